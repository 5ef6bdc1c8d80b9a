package bus

import (
	"errors"
	"testing"

	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/queue"
)

type fakeSub struct {
	id     uint8
	normal *queue.Ring[*event.Event]
	urgent *queue.Ring[*event.Event]
}

func newFakeSub(id uint8, depth int) *fakeSub {
	return &fakeSub{id: id, normal: queue.NewRing[*event.Event](depth), urgent: queue.NewRing[*event.Event](1)}
}

func (f *fakeSub) ID() uint8 {
	return f.id
}

func (f *fakeSub) Name() string {
	return "fake"
}

func (f *fakeSub) Post(ev *event.Event) error {
	return f.normal.Push(ev)
}

func (f *fakeSub) PostUrgent(ev *event.Event) error {
	return f.urgent.Push(ev)
}

func TestPublishFansOutInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	first, second := newFakeSub(3, 4), newFakeSub(1, 4)
	if err := b.Subscribe(first, event.SyncBegin, event.MotionQueueStart); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Subscribe(second, event.SyncBegin); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ds := b.Publish(event.New(event.SyncBegin, event.SyncRequest{ID: 4}))
	if len(ds) != 2 || ds[0].Task != 3 || ds[1].Task != 1 || Failed(ds) != 0 {
		t.Fatalf("unexpected deliveries %+v", ds)
	}
	if first.normal.Len() != 1 || second.normal.Len() != 1 {
		t.Fatalf("expected one event on each queue")
	}

	ds = b.Publish(event.New(event.MotionQueueStart, nil))
	if len(ds) != 1 || second.normal.Len() != 1 {
		t.Fatalf("event reached a non-subscriber: %+v", ds)
	}
}

func TestPublishNilIsNoop(t *testing.T) {
	b := NewBus()
	if ds := b.Publish(nil); ds != nil {
		t.Fatalf("expected no deliveries, got %+v", ds)
	}
	if b.Stats().Published != 0 {
		t.Fatalf("nil publish should not count")
	}
}

func TestPublishToFullQueueReportsFailure(t *testing.T) {
	b := NewBus()
	sub := newFakeSub(2, 1)
	b.Subscribe(sub, event.LightingQueueAdd)
	pool := event.NewPool(4, 0)

	ev, _ := pool.New(event.LightingQueueAdd, nil)
	b.Publish(ev)
	ev2, _ := pool.New(event.LightingQueueAdd, nil)
	ds := b.Publish(ev2)
	if Failed(ds) != 1 || !errors.Is(ds[0].Err, queue.ErrFull) {
		t.Fatalf("expected queue-full failure, got %+v", ds)
	}
	if b.Stats().Dropped != 1 {
		t.Fatalf("expected a counted drop, got %+v", b.Stats())
	}
	// the dropped event must have been returned to the pool
	if pool.Stats().InUse != 1 {
		t.Fatalf("expected only the queued event to hold a slot, got %+v", pool.Stats())
	}
}

func TestUnsubscribedEventReturnsSlot(t *testing.T) {
	b := NewBus()
	pool := event.NewPool(1, 0)
	ev, _ := pool.New(event.CameraCapture, nil)
	b.Publish(ev)
	if pool.Stats().InUse != 0 {
		t.Fatalf("expected slot to be recycled")
	}
}

func TestEmergencyUsesUrgentPathAndEscalates(t *testing.T) {
	b := NewBus()
	var fatal error
	b.OnFatal = func(err error) { fatal = err }
	sub := newFakeSub(5, 1)
	b.Subscribe(sub, event.MotionEmergency, event.MotionQueueStart)

	b.Publish(event.New(event.MotionQueueStart, nil))
	ds := b.Publish(event.New(event.MotionEmergency, nil))
	if Failed(ds) != 0 || sub.urgent.Len() != 1 {
		t.Fatalf("emergency should bypass the full normal queue: %+v", ds)
	}

	ds = b.Publish(event.New(event.MotionEmergency, nil))
	if !errors.Is(ds[0].Err, ErrEmergencyUndeliverable) || !errors.Is(fatal, ErrEmergencyUndeliverable) {
		t.Fatalf("expected escalation, got %+v / %v", ds, fatal)
	}
}

func TestSubscribeRules(t *testing.T) {
	b := NewBus()
	sub := newFakeSub(1, 1)
	if err := b.Subscribe(sub, event.Nothing); err == nil {
		t.Fatalf("expected invalid signal to be rejected")
	}
	b.Subscribe(sub, event.MechanismStart)
	if err := b.Subscribe(sub, event.MechanismStart); !errors.Is(err, ErrDuplicateSubscription) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	b.Seal()
	if err := b.Subscribe(sub, event.MechanismStop); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed, got %v", err)
	}
	if len(b.Subscribers(event.MechanismStart)) != 1 {
		t.Fatalf("expected one subscriber")
	}
}
