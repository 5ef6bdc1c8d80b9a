// Package motion is the motion planner task. It queues movements, waits
// for a start or a synchronised begin, and evaluates the active movement
// against the time it is given on every Process call.
package motion

import (
	"errors"
	"fmt"
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
	Disarmed
	Armed
	Idle
	Running
)

// Participant is the barrier name the planner registers under.
const Participant = "motion"

// Sink takes Cartesian targets. Inverse kinematics and servo output live
// behind it.
type Sink interface {
	Target(p path.Point) error
	Stop()
}

type Options struct {
	ID            uint8
	QueueDepth    int
	WaypointDepth int
	// micrometres per millisecond
	TrackSpeed float64
	MinTrack   time.Duration
}

type Stats struct {
	Accepted   uint32
	Rejected   uint32
	Completed  uint32
	SinkErrors uint32
}

type Planner struct {
	task    *task.Task
	queue   *queue.Ring[event.Movement]
	pub     event.Publisher
	barrier *barrier.Barrier
	sink    Sink
	store   *state.Store
	opts    Options

	position  path.Point
	origin    path.Point
	epoch     time.Duration
	seg_start time.Duration
	seg_live  bool
	prev_end  time.Duration
	progress  float64
	stats     Stats
}

// NewPlanner builds the planner task. b may be nil when motion does not
// take part in synchronised starts.
func NewPlanner(opts Options, pub event.Publisher, b *barrier.Barrier, sink Sink, store *state.Store) (*Planner, error) {
	if opts.TrackSpeed <= 0 {
		return nil, errors.New("motion: track speed must be positive")
	}
	self := &Planner{}
	self.opts = opts
	self.pub = pub
	self.barrier = b
	self.sink = sink
	self.store = store
	self.queue = queue.NewRing[event.Movement](opts.WaypointDepth)

	t, err := task.NewTask(task.Options{
		ID:         opts.ID,
		Name:       "motion",
		QueueDepth: opts.QueueDepth,
		Initial:    Disarmed,
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

// Signals lists what the planner subscribes to.
func (self *Planner) Signals() []event.Signal {
	return []event.Signal{
		event.MotionEmergency,
		event.MechanismArmed,
		event.MechanismDisarmed,
		event.MechanismStop,
		event.MechanismRehome,
		event.MovementRequest,
		event.MotionQueueStart,
		event.MotionQueueClear,
		event.TrackedTargetRequest,
		event.SyncBegin,
	}
}

func (self *Planner) Task() *task.Task {
	return self.task
}

func (self *Planner) Position() path.Point {
	return self.position
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
			Name: "MOTION",
			Handlers: map[event.Signal]task.Handler{
				event.MovementRequest:  self.onMovement,
				event.MotionQueueClear: self.onClear,
				event.MotionEmergency:  self.onEmergency,
			},
		},
		Disarmed: {
			Name:   "DISARMED",
			Parent: Root,
			Entry:  func(t *task.Task) { self.publishState() },
			// only the supervisor arms motion, so a homing report that
			// arrives after a disarm can never start the servos
			Handlers: map[event.Signal]task.Handler{
				event.MechanismArmed:    func(t *task.Task, ev *event.Event) { t.Transition(Idle) },
				event.MechanismDisarmed: func(t *task.Task, ev *event.Event) {},
			},
		},
		Armed: {
			Name:   "ARMED",
			Parent: Root,
			Handlers: map[event.Signal]task.Handler{
				event.MechanismStop:     self.onDisarm,
				event.MechanismRehome:   self.onDisarm,
				event.MechanismDisarmed: self.onDisarm,
				event.MechanismArmed:    func(t *task.Task, ev *event.Event) {},
			},
		},
		Idle: {
			Name:   "IDLE",
			Parent: Armed,
			Entry:  func(t *task.Task) { self.publishState() },
			Handlers: map[event.Signal]task.Handler{
				event.MotionQueueStart:     self.onStart,
				event.SyncBegin:            self.onSync,
				event.TrackedTargetRequest: self.onTrack,
			},
		},
		Running: {
			Name:   "RUNNING",
			Parent: Armed,
			Entry:  func(t *task.Task) { self.publishState() },
			Exit:   func(t *task.Task) { self.seg_live = false },
			Handlers: map[event.Signal]task.Handler{
				event.MotionQueueStart:     func(t *task.Task, ev *event.Event) {},
				event.TrackedTargetRequest: func(t *task.Task, ev *event.Event) { t.Log().Debugf("tracked target ignored while running") },
			},
		},
	}
}

func (self *Planner) onMovement(t *task.Task, ev *event.Event) {
	m, ok := ev.Payload.(event.Movement)
	if !ok {
		t.Log().Warnf("movement request without movement payload: %T", ev.Payload)
		self.stats.Rejected++
		return
	}
	if err := self.enqueue(m); err != nil {
		t.Log().Warnf("movement %d rejected: %v", m.ID, err)
		return
	}
	// a pending synchronised start may have been waiting for segments
	if self.queue.Len() == 1 && t.In(Idle) {
		self.offer()
	}
	self.publishState()
}

func (self *Planner) enqueue(m event.Movement) error {
	if err := m.Validate(); err != nil {
		self.stats.Rejected++
		return err
	}
	if err := self.queue.Push(m); err != nil {
		self.stats.Rejected++
		return fmt.Errorf("waypoint queue: %w", err)
	}
	self.stats.Accepted++
	return nil
}

func (self *Planner) onStart(t *task.Task, ev *event.Event) {
	if self.queue.IsEmpty() {
		t.Log().Debugf("start requested with an empty queue")
		return
	}
	self.begin()
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

// offer presents the head segment to the pending barrier.
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
	if self.task.In(Idle) && !self.queue.IsEmpty() {
		self.begin()
	}
}

func (self *Planner) begin() {
	self.epoch = self.task.Now()
	self.prev_end = self.epoch
	self.seg_live = false
	self.task.Transition(Running)
}

func (self *Planner) onTrack(t *task.Task, ev *event.Event) {
	req, ok := ev.Payload.(event.TrackedTarget)
	if !ok {
		return
	}
	if !self.queue.IsEmpty() {
		t.Log().Debugf("tracked target ignored with %d queued movements", self.queue.Len())
		return
	}
	ms := path.Distance(self.position, req.Target) / self.opts.TrackSpeed
	duration := time.Duration(math.Ceil(ms)) * time.Millisecond
	if duration < self.opts.MinTrack {
		duration = self.opts.MinTrack
	}
	m, err := event.NewMovement(0, path.Linear, event.Absolute, duration, self.position, req.Target)
	if err == nil {
		err = self.enqueue(m)
	}
	if err != nil {
		t.Log().Warnf("tracked target rejected: %v", err)
		return
	}
	self.begin()
}

func (self *Planner) onClear(t *task.Task, ev *event.Event) {
	self.queue.Clear()
	if self.barrier != nil {
		self.barrier.Cancel()
	}
	if t.In(Running) {
		t.Transition(Idle)
	}
	self.publishState()
}

func (self *Planner) onEmergency(t *task.Task, ev *event.Event) {
	self.halt()
	t.Log().Warnf("emergency stop at %+v", self.position)
	t.Transition(Disarmed)
}

func (self *Planner) onDisarm(t *task.Task, ev *event.Event) {
	self.halt()
	t.Transition(Disarmed)
}

func (self *Planner) halt() {
	self.queue.Clear()
	if self.barrier != nil {
		self.barrier.Cancel()
	}
	if self.sink != nil {
		self.sink.Stop()
	}
}

// Process advances the active movement to now. Several segments may
// finish in one call when now has moved past them.
func (self *Planner) Process(now time.Duration) {
	if !self.task.In(Running) {
		return
	}
	for {
		m, ok := self.queue.Peek()
		if !ok {
			self.finish()
			return
		}
		if !self.seg_live {
			start := self.epoch + m.SyncOffset
			if start < self.prev_end {
				start = self.prev_end
			}
			if now < start {
				return
			}
			self.seg_start = start
			self.seg_live = true
			self.origin = path.Point{}
			if m.Reference == event.Relative {
				self.origin = self.position
			}
		}

		t := 1.0
		if m.Duration > 0 {
			t = float64(now-self.seg_start) / float64(m.Duration)
		}
		if t < 0 {
			t = 0
		}
		done := t >= 1
		var (
			p   path.Point
			err error
		)
		if done {
			p, err = path.End(m.Type, m.Points())
		} else {
			p, err = path.Evaluate(m.Type, m.Points(), t)
		}
		if err != nil {
			self.task.Log().Errorf("movement %d dropped: %v", m.ID, err)
			self.queue.Pop()
			self.seg_live = false
			continue
		}
		self.emit(p.Add(self.origin))
		self.progress = math.Min(t, 1)
		if !done {
			self.publishState()
			return
		}

		self.queue.Pop()
		self.stats.Completed++
		self.prev_end = self.seg_start + m.Duration
		self.seg_live = false
		if self.queue.IsEmpty() {
			self.pub.Publish(event.PathingComplete, event.Completed{ID: m.ID})
		}
	}
}

func (self *Planner) finish() {
	self.progress = 0
	self.task.Transition(Idle)
}

func (self *Planner) emit(p path.Point) {
	self.position = p
	if self.sink == nil {
		return
	}
	if err := self.sink.Target(p); err != nil {
		self.stats.SinkErrors++
		self.task.Log().Warnf("sink rejected %+v: %v", p, err)
	}
}

func (self *Planner) publishState() {
	if self.store == nil {
		return
	}
	var (
		id   uint16
		kind string
	)
	if m, ok := self.queue.Peek(); ok {
		id, kind = m.ID, m.Type.String()
	}
	self.store.Update(func(s *state.Shared) {
		s.Motion.Enabled = self.task.In(Armed)
		s.Motion.Running = self.task.In(Running)
		s.Motion.MovementID = id
		s.Motion.Type = kind
		s.Motion.Progress = self.progress
		s.Motion.QueueDepth = self.queue.Len()
		s.Motion.QueueCap = self.queue.Cap()
		s.Motion.Position = self.position
	})
}
