package event

import (
	"errors"
	"testing"
	"time"

	"github.com/coolcm/zaphod-bot/project/path"
)

func TestPoolExhaustionFailsWithoutBlocking(t *testing.T) {
	pool := NewPool(2, 1)
	a, err := pool.New(MotionQueueStart, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool.Retain(a)
	b, _ := pool.New(MotionQueueClear, nil)
	pool.Retain(b)

	if _, err := pool.New(MechanismStart, nil); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	stop, err := pool.New(MotionEmergency, nil)
	if err != nil {
		t.Fatalf("emergency should use the reserve, got %v", err)
	}
	pool.Retain(stop)
	if _, err := pool.New(MotionEmergency, nil); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected reserve to be exhausted, got %v", err)
	}

	st := pool.Stats()
	if st.InUse != 3 || st.HighWater != 3 || st.Failures != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestPoolReferenceCounting(t *testing.T) {
	pool := NewPool(1, 0)
	ev, _ := pool.New(SyncBegin, SyncRequest{ID: 7})
	pool.Retain(ev)
	pool.Retain(ev)
	if ev.Refs() != 2 {
		t.Fatalf("expected 2 refs, got %d", ev.Refs())
	}

	pool.Release(ev)
	if pool.Stats().InUse != 1 {
		t.Fatalf("slot recycled while still referenced")
	}
	pool.Release(ev)
	if pool.Stats().InUse != 0 {
		t.Fatalf("expected slot to be recycled, stats %+v", pool.Stats())
	}
	if _, err := pool.New(SyncBegin, nil); err != nil {
		t.Fatalf("expected recycled slot to be reusable, got %v", err)
	}
}

func TestUnretainedEventRecycledOnRelease(t *testing.T) {
	pool := NewPool(1, 0)
	ev, _ := pool.New(CameraCapture, Shutter{Exposure: time.Second})
	Release(ev)
	if pool.Stats().InUse != 0 {
		t.Fatalf("expected event without holders to be recycled")
	}
	// a second release of a recycled slot is harmless
	Release(ev)
	if pool.Stats().InUse != 0 {
		t.Fatalf("double release corrupted the pool: %+v", pool.Stats())
	}
}

func TestUnpooledEvent(t *testing.T) {
	ev := New(MotionEmergency, nil)
	Retain(ev)
	Release(ev)
	if ev.Pooled() || ev.Signal != MotionEmergency {
		t.Fatalf("unexpected unpooled event %+v", ev)
	}
}

func TestSignalNames(t *testing.T) {
	if MotionEmergency.String() != "MOTION_EMERGENCY" || SyncBegin.String() != "START_QUEUE_SYNC" {
		t.Fatalf("unexpected names %s %s", MotionEmergency, SyncBegin)
	}
	if !MotionEmergency.IsEmergency() || MotionQueueStart.IsEmergency() {
		t.Fatalf("only the motion emergency bypasses FIFO")
	}
	if Signal(200).Valid() || Nothing.Valid() {
		t.Fatalf("unexpected valid signal")
	}
}

func TestMovementBoundedPoints(t *testing.T) {
	pts := []path.Point{{}, {X: 1}, {X: 2}, {X: 3}, {X: 4}}
	if _, err := NewMovement(1, path.CatmullRomSpline, Absolute, time.Second, pts...); !errors.Is(err, ErrTooManyPoints) {
		t.Fatalf("expected ErrTooManyPoints, got %v", err)
	}

	m, err := NewMovement(2, path.CatmullRomSpline, Absolute, time.Second, pts[:3]...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Validate(); !errors.Is(err, path.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}

	m, _ = NewMovement(3, path.Linear, Relative, 0, pts[:2]...)
	if err := m.Validate(); err == nil {
		t.Fatalf("expected zero duration line to be rejected")
	}
	m, _ = NewMovement(4, path.Linear, Relative, time.Second, pts[:2]...)
	if err := m.Validate(); err != nil || m.NumPoints() != 2 || m.Points()[1].X != 1 {
		t.Fatalf("unexpected movement %+v (%v)", m, err)
	}
}

func TestFadeValidate(t *testing.T) {
	f, _ := NewFade(1, FadeLinear, time.Second, HSI{Hue: 10})
	if err := f.Validate(); err == nil {
		t.Fatalf("expected fade with one colour to be rejected for linear")
	}
	f, _ = NewFade(2, FadeInstant, 0, HSI{Hue: 10})
	if err := f.Validate(); err != nil {
		t.Fatalf("instant fade should not need a duration: %v", err)
	}
}
