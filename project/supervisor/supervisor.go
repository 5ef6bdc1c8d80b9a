// Package supervisor owns the mechanism: arming, homing, the expansion
// axis and the control mode.
package supervisor

import (
	"errors"
	"time"

	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/state"
	"github.com/coolcm/zaphod-bot/project/task"
)

const (
	Root task.State = iota + 1
	Disarmed
	Homing
	Armed
	Fault
)

var ErrHomingTimeout = errors.New("homing timed out")

// Mechanism is the servo power stage. Home starts homing; completion is
// reported back as a MechanismHomed event. Reports outside Homing are
// ignored; the planners only follow MechanismArmed and MechanismDisarmed.
type Mechanism interface {
	Enable(on bool) error
	Home() error
	SetExpansion(degrees float64) error
}

type Options struct {
	ID          uint8
	QueueDepth  int
	HomeTimeout time.Duration
}

type Supervisor struct {
	task  *task.Task
	mech  Mechanism
	pub   event.Publisher
	store *state.Store
	opts  Options

	mode         state.Mode
	homing_since time.Duration
	last_error   error
}

func NewSupervisor(opts Options, pub event.Publisher, mech Mechanism, store *state.Store) (*Supervisor, error) {
	self := &Supervisor{}
	self.opts = opts
	self.pub = pub
	self.mech = mech
	self.store = store
	t, err := task.NewTask(task.Options{
		ID:         opts.ID,
		Name:       "supervisor",
		QueueDepth: opts.QueueDepth,
		Initial:    Disarmed,
		Table:      self.table(),
	})
	if err != nil {
		return nil, err
	}
	self.task = t
	return self, nil
}

func (self *Supervisor) Signals() []event.Signal {
	return []event.Signal{
		event.MotionEmergency,
		event.MechanismStart,
		event.MechanismStop,
		event.MechanismRehome,
		event.MechanismHomed,
		event.ModeManual,
		event.ModeEvent,
		event.ModeDemo,
		event.ModeTrack,
		event.ExpansionAngleRequest,
	}
}

func (self *Supervisor) Task() *task.Task {
	return self.task
}

func (self *Supervisor) Mode() state.Mode {
	return self.mode
}

// LastError is the fault that put the supervisor in Fault, if any.
func (self *Supervisor) LastError() error {
	return self.last_error
}

func (self *Supervisor) table() task.Table {
	mode := func(m state.Mode) task.Handler {
		return func(t *task.Task, ev *event.Event) { self.setMode(m) }
	}
	return task.Table{
		Root: {
			Name: "SUPERVISOR",
			Handlers: map[event.Signal]task.Handler{
				event.MotionEmergency: func(t *task.Task, ev *event.Event) {
					// a failed power-off faults, and Fault must survive
					if self.enable(false) {
						t.Transition(Disarmed)
					}
				},
				event.ModeManual: mode(state.ModeManual),
				event.ModeEvent:  mode(state.ModeEvent),
				event.ModeDemo:   mode(state.ModeDemo),
				event.ModeTrack:  mode(state.ModeTrack),
			},
		},
		Disarmed: {
			Name:   "DISARMED",
			Parent: Root,
			Entry:  func(t *task.Task) { self.publish(state.SupervisorDisarmed) },
			Handlers: map[event.Signal]task.Handler{
				event.MechanismStart: func(t *task.Task, ev *event.Event) {
					if self.enable(true) {
						self.home()
					}
				},
			},
		},
		Homing: {
			Name:   "HOMING",
			Parent: Root,
			Entry: func(t *task.Task) {
				self.homing_since = t.Now()
				self.publish(state.SupervisorHoming)
			},
			Handlers: map[event.Signal]task.Handler{
				event.MechanismHomed: func(t *task.Task, ev *event.Event) { t.Transition(Armed) },
				event.MechanismStop:  self.onStop,
			},
		},
		Armed: {
			Name:   "ARMED",
			Parent: Root,
			Entry: func(t *task.Task) {
				self.publish(state.SupervisorArmed)
				self.announce(event.MechanismArmed)
			},
			Exit: func(t *task.Task) { self.announce(event.MechanismDisarmed) },
			Handlers: map[event.Signal]task.Handler{
				event.MechanismStop:         self.onStop,
				event.MechanismRehome:       func(t *task.Task, ev *event.Event) { self.home() },
				event.ExpansionAngleRequest: self.onExpansion,
			},
		},
		Fault: {
			Name:   "FAULT",
			Parent: Root,
			Entry:  func(t *task.Task) { self.publish(state.SupervisorError) },
			Handlers: map[event.Signal]task.Handler{
				// the fault raised this stop itself
				event.MotionEmergency: func(t *task.Task, ev *event.Event) {},
				event.MechanismStop: func(t *task.Task, ev *event.Event) {
					self.last_error = nil
					t.Transition(Disarmed)
				},
			},
		},
	}
}

func (self *Supervisor) enable(on bool) bool {
	if err := self.mech.Enable(on); err != nil {
		self.fault(err)
		return false
	}
	return true
}

func (self *Supervisor) home() {
	if err := self.mech.Home(); err != nil {
		self.fault(err)
		return
	}
	self.task.Transition(Homing)
}

func (self *Supervisor) onStop(t *task.Task, ev *event.Event) {
	self.enable(false)
	if !t.In(Fault) {
		t.Transition(Disarmed)
	}
}

func (self *Supervisor) onExpansion(t *task.Task, ev *event.Event) {
	req, ok := ev.Payload.(event.ExpansionAngle)
	if !ok {
		return
	}
	if err := self.mech.SetExpansion(req.Degrees); err != nil {
		t.Log().Warnf("expansion angle %.1f: %v", req.Degrees, err)
		return
	}
	if self.store != nil {
		self.store.Update(func(s *state.Shared) { s.Motion.Expansion = req.Degrees })
	}
}

// fault disables the mechanism and stops every planner.
func (self *Supervisor) fault(err error) {
	self.last_error = err
	self.task.Log().Errorf("mechanism fault: %v", err)
	self.mech.Enable(false)
	self.task.Transition(Fault)
	if perr := self.pub.Publish(event.MotionEmergency, nil); perr != nil {
		self.task.Log().Errorf("emergency after fault: %v", perr)
	}
}

// announce tells the planners the arming state changed.
func (self *Supervisor) announce(sig event.Signal) {
	if err := self.pub.Publish(sig, nil); err != nil {
		self.task.Log().Errorf("%s: %v", sig, err)
	}
}

func (self *Supervisor) setMode(m state.Mode) {
	if m == self.mode {
		return
	}
	self.task.Log().Infof("control mode %s -> %s", self.mode, m)
	self.mode = m
	if self.store != nil {
		self.store.Update(func(s *state.Shared) { s.Mode = m })
	}
}

func (self *Supervisor) publish(s state.Supervisor) {
	if self.store != nil {
		self.store.Update(func(sh *state.Shared) { sh.Supervisor = s })
	}
}

// Process checks the homing deadline.
func (self *Supervisor) Process(now time.Duration) {
	if self.opts.HomeTimeout <= 0 || !self.task.In(Homing) {
		return
	}
	if now-self.homing_since > self.opts.HomeTimeout {
		self.fault(ErrHomingTimeout)
	}
}
