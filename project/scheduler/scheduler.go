// Package scheduler runs every task from one loop. A pass drains the
// inbox, dispatches emergencies, then gives each task, highest id first,
// the events it had queued when its turn began.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/coolcm/zaphod-bot/common/logger"
	"github.com/coolcm/zaphod-bot/common/utils/sys"
	"github.com/coolcm/zaphod-bot/project/bus"
	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/task"
)

// MaxTasks bounds the task arena; task ids index it directly.
const MaxTasks = 16

var (
	ErrDuplicateTask = errors.New("task id already registered")
	ErrTaskID        = errors.New("task id out of range")
	ErrNotOwner      = errors.New("pass called off the loop goroutine")
	ErrStarted       = errors.New("scheduler already started")
)

type Stats struct {
	Passes        uint32
	Refused       uint32
	InboxDropped  uint32
	Coalesced     uint32
	AllocFailures uint32
	LastPass      time.Duration
	Pool          event.PoolStats
	Bus           bus.Stats
	Tasks         []task.Stats
}

type Scheduler struct {
	tasks   [MaxTasks]*task.Task
	order   []*task.Task
	pool    *event.Pool
	bus     *bus.Bus
	inbox   *Inbox
	pending []Request
	started bool

	owner    uint64
	owned    bool
	now      time.Duration
	passes   uint32
	refused  uint32
	failures uint32
}

func NewScheduler(pool *event.Pool, b *bus.Bus, inbox *Inbox) *Scheduler {
	self := &Scheduler{}
	self.pool = pool
	self.bus = b
	self.inbox = inbox
	return self
}

func (self *Scheduler) Bus() *bus.Bus {
	return self.bus
}

func (self *Scheduler) Pool() *event.Pool {
	return self.pool
}

func (self *Scheduler) Inbox() *Inbox {
	return self.inbox
}

// Now is the time of the pass in progress. Registered tasks use it as
// their clock.
func (self *Scheduler) Now() time.Duration {
	return self.now
}

func (self *Scheduler) Register(t *task.Task) error {
	if self.started {
		return ErrStarted
	}
	id := int(t.ID())
	if id >= MaxTasks {
		return fmt.Errorf("%w: %s has id %d", ErrTaskID, t.Name(), id)
	}
	if self.tasks[id] != nil {
		return fmt.Errorf("%w: %d (%s and %s)", ErrDuplicateTask, id, self.tasks[id].Name(), t.Name())
	}
	self.tasks[id] = t
	t.SetClock(self.Now)

	self.order = self.order[:0]
	for i := MaxTasks - 1; i >= 0; i-- {
		if self.tasks[i] != nil {
			self.order = append(self.order, self.tasks[i])
		}
	}
	return nil
}

func (self *Scheduler) Task(id uint8) *task.Task {
	if int(id) >= MaxTasks {
		return nil
	}
	return self.tasks[id]
}

// Tasks lists registered tasks in visiting order.
func (self *Scheduler) Tasks() []*task.Task {
	return append([]*task.Task(nil), self.order...)
}

// Start seals subscriptions and enters every task's initial state.
func (self *Scheduler) Start() {
	if self.started {
		return
	}
	self.started = true
	self.bus.Seal()
	for _, t := range self.order {
		t.Start()
	}
	logger.Infof("scheduler started with %d tasks", len(self.order))
}

// Publish allocates and publishes from inside the loop. Handlers and
// planners call it; other goroutines post to the inbox instead.
func (self *Scheduler) Publish(sig event.Signal, payload interface{}) error {
	ev, err := self.pool.New(sig, payload)
	if err != nil {
		self.failures++
		if sig.IsEmergency() && self.bus.OnFatal != nil {
			self.bus.OnFatal(err)
		}
		return err
	}
	ds := self.bus.Publish(ev)
	if n := bus.Failed(ds); n > 0 {
		return fmt.Errorf("%s: %d of %d deliveries failed", sig, n, len(ds))
	}
	return nil
}

func (self *Scheduler) claim() bool {
	gid := sys.GetGID()
	if !self.owned {
		self.owner = gid
		self.owned = true
		return true
	}
	return self.owner == gid
}

// Pass runs one scheduling round at now.
func (self *Scheduler) Pass(now time.Duration) error {
	if !self.claim() {
		self.refused++
		logger.Errorf("scheduler pass refused: loop owned by goroutine %d", self.owner)
		return ErrNotOwner
	}
	if !self.started {
		self.Start()
	}
	self.now = now
	self.passes++

	self.pending = self.inbox.take(self.pending)
	for _, r := range self.pending {
		if err := self.Publish(r.Signal, r.Payload); err != nil {
			logger.Warnf("inbox publish: %v", err)
		}
	}

	self.urgentPass()

	for _, t := range self.order {
		budget := t.Pending()
		n := 0
		for n < budget {
			self.urgentPass()
			if !t.Tick() {
				break
			}
			n++
		}
		t.NoteBurst(n)
	}
	return nil
}

// urgentPass dispatches every pending emergency, highest id first.
func (self *Scheduler) urgentPass() {
	for _, t := range self.order {
		for t.UrgentPending() {
			t.Tick()
		}
	}
}

// Idle reports whether no task has work queued.
func (self *Scheduler) Idle() bool {
	for _, t := range self.order {
		if t.Ready() {
			return false
		}
	}
	return self.inbox.Len() == 0
}

func (self *Scheduler) Stats() Stats {
	st := Stats{
		Passes:        self.passes,
		Refused:       self.refused,
		InboxDropped:  self.inbox.Dropped(),
		Coalesced:     self.inbox.Coalesced(),
		AllocFailures: self.failures,
		LastPass:      self.now,
		Pool:          self.pool.Stats(),
		Bus:           self.bus.Stats(),
	}
	for _, t := range self.order {
		st.Tasks = append(st.Tasks, t.Stats())
	}
	return st
}

func (self *Scheduler) ResetStats() {
	self.passes = 0
	self.refused = 0
	self.failures = 0
	self.inbox.resetStats()
	self.pool.ResetStats()
	self.bus.ResetStats()
	for _, t := range self.order {
		t.ResetStats()
	}
}
