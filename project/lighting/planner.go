// Package lighting is the lighting planner task. Fades are queued and
// started like movements; colours are interpolated as hue, saturation and
// intensity points.
package lighting

import (
	"math"
	"time"

	"github.com/coolcm/zaphod-bot/project/barrier"
	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/path"
	"github.com/coolcm/zaphod-bot/project/queue"
	"github.com/coolcm/zaphod-bot/project/state"
	"github.com/coolcm/zaphod-bot/project/task"
)

const (
	Root task.State = iota + 1
	Queued
	Running
	Manual
)

const Participant = "lighting"

// Driver owns the LED output stage.
type Driver interface {
	Set(c state.RGB) error
}

type Options struct {
	ID         uint8
	QueueDepth int
	FadeDepth  int
}

type Stats struct {
	Accepted     uint32
	Rejected     uint32
	Completed    uint32
	DriverErrors uint32
}

type Planner struct {
	task    *task.Task
	queue   *queue.Ring[event.Fade]
	pub     event.Publisher
	barrier *barrier.Barrier
	driver  Driver
	store   *state.Store

	manual    event.HSI
	output    state.RGB
	epoch     time.Duration
	seg_start time.Duration
	seg_live  bool
	prev_end  time.Duration
	progress  float64
	stats     Stats
}

func NewPlanner(opts Options, pub event.Publisher, b *barrier.Barrier, driver Driver, store *state.Store) (*Planner, error) {
	self := &Planner{}
	self.pub = pub
	self.barrier = b
	self.driver = driver
	self.store = store
	self.queue = queue.NewRing[event.Fade](opts.FadeDepth)

	t, err := task.NewTask(task.Options{
		ID:         opts.ID,
		Name:       "lighting",
		QueueDepth: opts.QueueDepth,
		Initial:    Queued,
		Table:      self.table(),
	})
	if err != nil {
		return nil, err
	}
	self.task = t
	if b != nil {
		if err := b.Register(Participant, self.release); err != nil {
			return nil, err
		}
	}
	return self, nil
}

func (self *Planner) Signals() []event.Signal {
	return []event.Signal{
		event.MotionEmergency,
		event.LightingQueueAdd,
		event.LightingQueueClear,
		event.LightingManualSet,
		event.MotionQueueStart,
		event.SyncBegin,
	}
}

func (self *Planner) Task() *task.Task {
	return self.task
}

func (self *Planner) Output() state.RGB {
	return self.output
}

func (self *Planner) Depth() int {
	return self.queue.Len()
}

func (self *Planner) Stats() Stats {
	return self.stats
}

func (self *Planner) table() task.Table {
	return task.Table{
		Root: {
			Name: "LIGHTING",
			Handlers: map[event.Signal]task.Handler{
				event.LightingQueueAdd:   self.onFade,
				event.LightingQueueClear: self.onClear,
				event.LightingManualSet:  self.onManual,
				event.MotionEmergency:    self.onEmergency,
			},
		},
		Queued: {
			Name:   "QUEUED",
			Parent: Root,
			Entry:  func(t *task.Task) { self.publishState() },
			Handlers: map[event.Signal]task.Handler{
				event.MotionQueueStart: self.onStart,
				event.SyncBegin:        self.onSync,
			},
		},
		Running: {
			Name:   "RUNNING",
			Parent: Root,
			Entry:  func(t *task.Task) { self.publishState() },
			Exit:   func(t *task.Task) { self.seg_live = false },
		},
		// The manual colour holds until it is switched off. Queued fades
		// wait for the next start, and lighting stands aside from a sync
		// so motion is never held by it.
		Manual: {
			Name:   "MANUAL",
			Parent: Root,
			Entry:  func(t *task.Task) { self.show(self.manual) },
			Exit:   func(t *task.Task) { self.off() },
			Handlers: map[event.Signal]task.Handler{
				event.MotionQueueStart: func(t *task.Task, ev *event.Event) {},
				event.SyncBegin:        self.onSyncManual,
			},
		},
	}
}

func (self *Planner) onFade(t *task.Task, ev *event.Event) {
	f, ok := ev.Payload.(event.Fade)
	if !ok {
		self.stats.Rejected++
		t.Log().Warnf("fade request without fade payload: %T", ev.Payload)
		return
	}
	if err := f.Validate(); err != nil {
		self.stats.Rejected++
		t.Log().Warnf("fade %d rejected: %v", f.ID, err)
		return
	}
	if err := self.queue.Push(f); err != nil {
		self.stats.Rejected++
		t.Log().Warnf("fade %d rejected: fade queue: %v", f.ID, err)
		return
	}
	self.stats.Accepted++
	if self.queue.Len() == 1 && t.In(Queued) {
		self.offer()
	}
	self.publishState()
}

func (self *Planner) onClear(t *task.Task, ev *event.Event) {
	self.queue.Clear()
	if self.barrier != nil {
		self.barrier.Cancel()
	}
	if t.In(Running) {
		self.off()
		t.Transition(Queued)
	}
	self.publishState()
}

func (self *Planner) onManual(t *task.Task, ev *event.Event) {
	req, ok := ev.Payload.(event.ManualColour)
	if !ok {
		return
	}
	self.manual = req.Colour
	switch {
	case req.Enabled && t.In(Manual):
		self.show(self.manual)
	case req.Enabled:
		t.Transition(Manual)
	case t.In(Manual):
		t.Transition(Queued)
	}
	self.publishState()
}

func (self *Planner) onEmergency(t *task.Task, ev *event.Event) {
	self.queue.Clear()
	if self.barrier != nil {
		self.barrier.Cancel()
	}
	self.off()
	t.Transition(Queued)
}

func (self *Planner) onStart(t *task.Task, ev *event.Event) {
	if !self.queue.IsEmpty() {
		self.begin()
	}
}

func (self *Planner) onSync(t *task.Task, ev *event.Event) {
	req, _ := ev.Payload.(event.SyncRequest)
	if self.barrier == nil {
		if head, ok := self.queue.Peek(); ok && req.ID != 0 && head.ID == req.ID {
			self.begin()
		}
		return
	}
	self.barrier.RequestSync(req.ID)
	self.offer()
}

func (self *Planner) onSyncManual(t *task.Task, ev *event.Event) {
	req, _ := ev.Payload.(event.SyncRequest)
	if self.barrier == nil || req.ID == 0 {
		return
	}
	self.barrier.RequestSync(req.ID)
	if self.barrier.Matched(Participant) {
		return
	}
	if _, err := self.barrier.BeginIfMatched(Participant, req.ID); err != nil {
		t.Log().Debugf("sync not matched: %v", err)
	}
}

func (self *Planner) offer() {
	if self.barrier == nil || !self.barrier.Pending() || self.barrier.Matched(Participant) {
		return
	}
	head, ok := self.queue.Peek()
	if !ok {
		return
	}
	if _, err := self.barrier.BeginIfMatched(Participant, head.ID); err != nil {
		self.task.Log().Debugf("sync not matched: %v", err)
	}
}

func (self *Planner) release() {
	if self.task.In(Queued) && !self.queue.IsEmpty() {
		self.begin()
	}
}

func (self *Planner) begin() {
	self.epoch = self.task.Now()
	self.prev_end = self.epoch
	self.seg_live = false
	self.task.Transition(Running)
}

// Process advances the active fade to now.
func (self *Planner) Process(now time.Duration) {
	if !self.task.In(Running) {
		return
	}
	for {
		f, ok := self.queue.Peek()
		if !ok {
			self.progress = 0
			self.task.Transition(Queued)
			return
		}
		if !self.seg_live {
			start := self.epoch + f.SyncOffset
			if start < self.prev_end {
				start = self.prev_end
			}
			if now < start {
				return
			}
			self.seg_start = start
			self.seg_live = true
		}

		t := 1.0
		if f.Duration > 0 {
			t = math.Max(0, float64(now-self.seg_start)/float64(f.Duration))
		}
		pts := make([]path.Point, 0, event.MaxFadeColours)
		for _, c := range f.Colours() {
			pts = append(pts, toPoint(c))
		}
		done := t >= 1
		if done {
			t = 1
		}
		p, err := path.Evaluate(pathKind(f.Type), pts, t)
		if err != nil {
			self.task.Log().Errorf("fade %d dropped: %v", f.ID, err)
			self.queue.Pop()
			self.seg_live = false
			continue
		}
		self.show(fromPoint(p))
		self.progress = t
		if !done {
			self.publishState()
			return
		}

		self.queue.Pop()
		self.stats.Completed++
		self.prev_end = self.seg_start + f.Duration
		self.seg_live = false
		if self.queue.IsEmpty() {
			self.pub.Publish(event.LightingComplete, event.Completed{ID: f.ID})
		}
	}
}

func (self *Planner) show(c event.HSI) {
	self.set(ToRGB(c))
}

func (self *Planner) off() {
	self.set(state.RGB{})
}

func (self *Planner) set(rgb state.RGB) {
	self.output = rgb
	if self.driver != nil {
		if err := self.driver.Set(rgb); err != nil {
			self.stats.DriverErrors++
			self.task.Log().Warnf("led driver: %v", err)
		}
	}
	if self.store != nil {
		self.store.Update(func(s *state.Shared) { s.Lighting.Output = rgb })
	}
}

func (self *Planner) publishState() {
	if self.store == nil {
		return
	}
	var id uint16
	if f, ok := self.queue.Peek(); ok {
		id = f.ID
	}
	self.store.Update(func(s *state.Shared) {
		s.Lighting.Running = self.task.In(Running)
		s.Lighting.Manual = self.task.In(Manual)
		s.Lighting.FadeID = id
		s.Lighting.Progress = self.progress
		s.Lighting.QueueDepth = self.queue.Len()
		s.Lighting.QueueCap = self.queue.Cap()
	})
}
