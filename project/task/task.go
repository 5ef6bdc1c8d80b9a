// Package task implements the active object: a bounded event queue, a
// state machine dispatched one event at a time, and the runtime
// statistics reported to the host.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/coolcm/zaphod-bot/common/logger"
	"github.com/coolcm/zaphod-bot/common/utils/sys"
	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/queue"
	"go.uber.org/zap"
)

var ErrUndispatched = errors.New("no handler for event")

// DefaultUrgentDepth is the headroom reserved for emergency events.
const DefaultUrgentDepth = 2

type entry struct {
	ev     *event.Event
	posted time.Duration
}

type Options struct {
	ID          uint8
	Name        string
	QueueDepth  int
	UrgentDepth int
	Initial     State
	Table       Table
	Clock       func() time.Duration
}

type Stats struct {
	ID           uint8
	Name         string
	State        string
	Ready        bool
	QueueUsed    int
	QueueMax     int
	QueueCap     int
	WaitingMax   time.Duration
	BurstMax     int
	Dispatched   uint32
	Dropped      uint32
	Coalesced    uint32
	Undispatched uint32
	Faults       uint32
}

type Task struct {
	id      uint8
	name    string
	state   State
	initial State
	table   Table
	started bool

	queue  *queue.Ring[entry]
	urgent *queue.Ring[entry]
	clock  func() time.Duration
	log    *zap.SugaredLogger

	waiting_max  time.Duration
	burst_max    int
	dispatched   uint32
	dropped      uint32
	coalesced    uint32
	undispatched uint32
	faults       uint32
}

func NewTask(opts Options) (*Task, error) {
	if opts.QueueDepth <= 0 {
		return nil, fmt.Errorf("task %s: queue depth must be positive", opts.Name)
	}
	if err := opts.Table.check(opts.Initial); err != nil {
		return nil, fmt.Errorf("task %s: %w", opts.Name, err)
	}
	if opts.UrgentDepth <= 0 {
		opts.UrgentDepth = DefaultUrgentDepth
	}
	self := &Task{}
	self.id = opts.ID
	self.name = opts.Name
	self.table = opts.Table
	self.initial = opts.Initial
	self.state = Top
	self.queue = queue.NewRing[entry](opts.QueueDepth)
	self.urgent = queue.NewRing[entry](opts.UrgentDepth)
	self.clock = opts.Clock
	if self.clock == nil {
		start := time.Now()
		self.clock = func() time.Duration { return time.Since(start) }
	}
	self.log = logger.Named(opts.Name)
	return self, nil
}

func (self *Task) ID() uint8 {
	return self.id
}

func (self *Task) Name() string {
	return self.name
}

func (self *Task) State() State {
	return self.state
}

func (self *Task) Log() *zap.SugaredLogger {
	return self.log
}

// Now reads the task clock.
func (self *Task) Now() time.Duration {
	return self.clock()
}

// SetClock replaces the time source used for wait statistics.
func (self *Task) SetClock(clock func() time.Duration) {
	if clock != nil {
		self.clock = clock
	}
}

// Start enters the initial state, running entry actions top down.
func (self *Task) Start() {
	if self.started {
		return
	}
	self.started = true
	self.Transition(self.initial)
}

func (self *Task) Started() bool {
	return self.started
}

// Ready reports whether an event is waiting.
func (self *Task) Ready() bool {
	return !self.queue.IsEmpty() || !self.urgent.IsEmpty()
}

func (self *Task) Pending() int {
	return self.queue.Len() + self.urgent.Len()
}

// UrgentPending reports queued emergency events.
func (self *Task) UrgentPending() bool {
	return !self.urgent.IsEmpty()
}

func (self *Task) Post(ev *event.Event) error {
	if err := self.queue.Push(entry{ev: ev, posted: self.clock()}); err != nil {
		self.dropped++
		return fmt.Errorf("%s: %w", self.name, err)
	}
	return nil
}

// PostUrgent queues ev ahead of the FIFO. A second emergency of the same
// signal while one is pending is folded into it.
func (self *Task) PostUrgent(ev *event.Event) error {
	for i := 0; i < self.urgent.Len(); i++ {
		if pending, _ := self.urgent.At(i); pending.ev.Signal == ev.Signal {
			self.coalesced++
			event.Release(ev)
			return nil
		}
	}
	if err := self.urgent.Push(entry{ev: ev, posted: self.clock()}); err != nil {
		return fmt.Errorf("%s urgent: %w", self.name, err)
	}
	return nil
}

// Tick dispatches the oldest pending event, emergencies first. It reports
// whether an event was taken.
func (self *Task) Tick() bool {
	e, ok := self.urgent.Pop()
	if !ok {
		e, ok = self.queue.Pop()
	}
	if !ok {
		return false
	}
	if !self.started {
		self.Start()
	}

	if wait := self.clock() - e.posted; wait > self.waiting_max {
		self.waiting_max = wait
	}
	if err := self.Dispatch(e.ev); err != nil {
		if errors.Is(err, ErrUndispatched) {
			self.undispatched++
			self.log.Debugf("%v", err)
		} else {
			self.faults++
			self.log.Errorf("dispatch %s: %v", e.ev.Signal, err)
		}
	}
	self.dispatched++
	event.Release(e.ev)
	return true
}

// Dispatch runs the handler bound to the current state, or the nearest
// ancestor that handles the signal. Panics in handlers are returned as
// errors so the scheduler keeps running.
func (self *Task) Dispatch(ev *event.Event) (err error) {
	handler := self.table.lookup(self.state, ev.Signal)
	if handler == nil {
		return fmt.Errorf("%w: %s in %s", ErrUndispatched, ev.Signal, self.table.name(self.state))
	}
	defer sys.CatchPanic(self.name, &err)
	handler(self, ev)
	return nil
}

// NoteBurst records how many events were dispatched in one scheduler pass.
func (self *Task) NoteBurst(n int) {
	if n > self.burst_max {
		self.burst_max = n
	}
}

// Flush discards every queued normal event.
func (self *Task) Flush() {
	for {
		e, ok := self.queue.Pop()
		if !ok {
			return
		}
		event.Release(e.ev)
	}
}

func (self *Task) Stats() Stats {
	return Stats{
		ID:           self.id,
		Name:         self.name,
		State:        self.table.name(self.state),
		Ready:        self.Ready(),
		QueueUsed:    self.queue.Len(),
		QueueMax:     self.queue.HighWater(),
		QueueCap:     self.queue.Cap(),
		WaitingMax:   self.waiting_max,
		BurstMax:     self.burst_max,
		Dispatched:   self.dispatched,
		Dropped:      self.dropped,
		Coalesced:    self.coalesced,
		Undispatched: self.undispatched,
		Faults:       self.faults,
	}
}

func (self *Task) ResetStats() {
	self.queue.ResetHighWater()
	self.waiting_max = 0
	self.burst_max = 0
	self.dispatched = 0
	self.dropped = 0
	self.coalesced = 0
	self.undispatched = 0
	self.faults = 0
}
