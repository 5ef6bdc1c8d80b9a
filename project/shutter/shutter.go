// Package shutter drives the camera shutter release.
package shutter

import (
	"time"

	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/state"
	"github.com/coolcm/zaphod-bot/project/task"
)

const (
	Closed task.State = iota + 1
	Open
)

// DefaultExposure applies when a capture request carries no exposure.
const DefaultExposure = 100 * time.Millisecond

type Trigger interface {
	Open() error
	Close() error
}

type Shutter struct {
	task    *task.Task
	trigger Trigger
	store   *state.Store

	close_at time.Duration
	captures uint32
	failures uint32
}

func NewShutter(id uint8, depth int, trigger Trigger, store *state.Store) (*Shutter, error) {
	self := &Shutter{}
	self.trigger = trigger
	self.store = store
	t, err := task.NewTask(task.Options{
		ID:         id,
		Name:       "shutter",
		QueueDepth: depth,
		Initial:    Closed,
		Table: task.Table{
			Closed: {
				Name:  "CLOSED",
				Entry: func(t *task.Task) { self.publish(false) },
				Handlers: map[event.Signal]task.Handler{
					event.CameraCapture: self.onCapture,
				},
			},
			Open: {
				Name:  "OPEN",
				Entry: func(t *task.Task) { self.publish(true) },
				Handlers: map[event.Signal]task.Handler{
					event.CameraCapture:   func(t *task.Task, ev *event.Event) { t.Log().Debugf("capture ignored, shutter open") },
					event.MotionEmergency: func(t *task.Task, ev *event.Event) { self.close() },
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	self.task = t
	return self, nil
}

func (self *Shutter) Signals() []event.Signal {
	return []event.Signal{event.CameraCapture, event.MotionEmergency}
}

func (self *Shutter) Task() *task.Task {
	return self.task
}

func (self *Shutter) Captures() uint32 {
	return self.captures
}

func (self *Shutter) Failures() uint32 {
	return self.failures
}

func (self *Shutter) onCapture(t *task.Task, ev *event.Event) {
	exposure := DefaultExposure
	if req, ok := ev.Payload.(event.Shutter); ok && req.Exposure > 0 {
		exposure = req.Exposure
	}
	if err := self.trigger.Open(); err != nil {
		self.failures++
		t.Log().Warnf("shutter open: %v", err)
		return
	}
	self.captures++
	self.close_at = t.Now() + exposure
	t.Transition(Open)
}

func (self *Shutter) close() {
	if err := self.trigger.Close(); err != nil {
		self.failures++
		self.task.Log().Warnf("shutter close: %v", err)
	}
	self.task.Transition(Closed)
}

// Process closes the shutter once the exposure has elapsed.
func (self *Shutter) Process(now time.Duration) {
	if self.task.In(Open) && now >= self.close_at {
		self.close()
	}
}

func (self *Shutter) publish(open bool) {
	if self.store != nil {
		self.store.Update(func(s *state.Shared) { s.Shutter = open })
	}
}
