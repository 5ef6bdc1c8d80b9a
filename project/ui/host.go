// Package ui is the boundary to the host's tracked-variable protocol.
// Inbound writes land in staging buffers and turn into exactly one
// published event; outbound values are read from the shared state.
package ui

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/coolcm/zaphod-bot/common/logger"
	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/state"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknown  = errors.New("unknown tracked variable")
	ErrReadOnly = errors.New("tracked variable is read-only")
)

// Decoder fills dst, a pointer to a staging buffer.
type Decoder func(dst interface{}) error

// Value assigns v to the staging buffer; v must have the buffer's type.
func Value(v interface{}) Decoder {
	return func(dst interface{}) error {
		d := reflect.ValueOf(dst).Elem()
		src := reflect.ValueOf(v)
		if !src.IsValid() || !src.Type().AssignableTo(d.Type()) {
			return fmt.Errorf("want %s, got %T", d.Type(), v)
		}
		d.Set(src)
		return nil
	}
}

// YAML decodes text, in YAML or JSON syntax, into the staging buffer.
func YAML(text string) Decoder {
	return func(dst interface{}) error {
		return yaml.Unmarshal([]byte(text), dst)
	}
}

type variable struct {
	buffer interface{}
	keep   bool
	commit func() error
}

// Host is used from one goroutine, the one reading the host link.
type Host struct {
	pub     event.Publisher
	store   *state.Store
	staging Staging
	vars    map[string]*variable
	funcs   map[string]func() error
	reads   map[string]func(s *state.Shared) interface{}

	failures uint32
}

// NewHost publishes through pub, normally the scheduler inbox, and reads
// telemetry from store.
func NewHost(pub event.Publisher, store *state.Store) *Host {
	self := &Host{}
	self.pub = pub
	self.store = store

	self.vars = map[string]*variable{
		"inmv": {buffer: &self.staging.Movement, commit: func() error {
			m, err := self.staging.Movement.event()
			if err != nil {
				return err
			}
			return self.pub.Publish(event.MovementRequest, m)
		}},
		"inlt": {buffer: &self.staging.Fade, commit: func() error {
			f, err := self.staging.Fade.event()
			if err != nil {
				return err
			}
			return self.pub.Publish(event.LightingQueueAdd, f)
		}},
		"tpos": {buffer: &self.staging.Target, commit: func() error {
			return self.pub.Publish(event.TrackedTargetRequest, event.TrackedTarget{Target: self.staging.Target})
		}},
		"exp_ang": {buffer: &self.staging.Expansion, commit: func() error {
			return self.pub.Publish(event.ExpansionAngleRequest, event.ExpansionAngle{Degrees: self.staging.Expansion})
		}},
		"hsv": {buffer: &self.staging.Manual, keep: true, commit: func() error {
			m := self.staging.Manual
			return self.pub.Publish(event.LightingManualSet, event.ManualColour{
				Colour:  event.HSI{Hue: m.Hue, Saturation: m.Saturation, Intensity: m.Intensity},
				Enabled: m.Enable,
			})
		}},
		"capture": {buffer: &self.staging.Capture, commit: func() error {
			return self.pub.Publish(event.CameraCapture, event.Shutter{Exposure: time.Duration(self.staging.Capture) * time.Millisecond})
		}},
		"syncid":   {buffer: &self.staging.SyncID, keep: true},
		"req_mode": {buffer: &self.staging.Mode, commit: self.requestMode},
	}

	self.funcs = map[string]func() error{
		"stmv": func() error { return self.pub.Publish(event.MotionQueueStart, nil) },
		"clmv": func() error {
			// both queues, even if the first publish fails
			err := self.pub.Publish(event.MotionQueueClear, nil)
			if lerr := self.pub.Publish(event.LightingQueueClear, nil); err == nil {
				err = lerr
			}
			return err
		},
		"sync": func() error {
			err := self.pub.Publish(event.SyncBegin, event.SyncRequest{ID: self.staging.SyncID})
			self.staging.SyncID = 0
			return err
		},
		"estop":  func() error { return self.pub.Publish(event.MotionEmergency, nil) },
		"arm":    func() error { return self.pub.Publish(event.MechanismStart, nil) },
		"disarm": func() error { return self.pub.Publish(event.MechanismStop, nil) },
		"home":   func() error { return self.pub.Publish(event.MechanismRehome, nil) },
	}

	self.reads = map[string]func(s *state.Shared) interface{}{
		"name":   func(s *state.Shared) interface{} { return s.System.Name },
		"sys":    func(s *state.Shared) interface{} { return s.System },
		"super":  func(s *state.Shared) interface{} { return supervisorState(s) },
		"tasks":  func(s *state.Shared) interface{} { return s.Scheduler.Tasks },
		"moStat": func(s *state.Shared) interface{} { return s.Motion },
		"cpos":   func(s *state.Shared) interface{} { return s.Motion.Position },
		"rgb":    func(s *state.Shared) interface{} { return s.Lighting.Output },
		"queue":  func(s *state.Shared) interface{} { return queueDepths(s) },
	}
	return self
}

func supervisorState(s *state.Shared) map[string]string {
	return map[string]string{"supervisor": s.Supervisor.String(), "mode": s.Mode.String()}
}

func queueDepths(s *state.Shared) map[string]int {
	return map[string]int{"movements": s.Motion.QueueDepth, "fades": s.Lighting.QueueDepth}
}

func (self *Host) requestMode() error {
	sig := event.Nothing
	switch state.Mode(self.staging.Mode) {
	case state.ModeNone:
		return nil
	case state.ModeManual:
		sig = event.ModeManual
	case state.ModeEvent:
		sig = event.ModeEvent
	case state.ModeDemo:
		sig = event.ModeDemo
	case state.ModeTrack:
		sig = event.ModeTrack
	default:
		logger.Warnf("invalid mode request %d, stopping", self.staging.Mode)
		return self.pub.Publish(event.MotionEmergency, nil)
	}
	return self.pub.Publish(sig, nil)
}

// Write decodes a payload into the named staging buffer and publishes
// the matching event. The buffer is zeroed afterwards, whatever the
// outcome, so a later unrelated write cannot trigger it again.
func (self *Host) Write(name string, decode Decoder) error {
	v, ok := self.vars[name]
	if !ok {
		if _, ro := self.reads[name]; ro {
			return fmt.Errorf("%w: %s", ErrReadOnly, name)
		}
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	err := decode(v.buffer)
	if err == nil && v.commit != nil {
		err = v.commit()
	}
	if !v.keep || err != nil {
		zero(v.buffer)
	}
	if err != nil {
		self.failures++
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Call runs a function variable.
func (self *Host) Call(name string) error {
	fn, ok := self.funcs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	if err := fn(); err != nil {
		self.failures++
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Read returns the current value of a variable.
func (self *Host) Read(name string) (interface{}, error) {
	if v, ok := self.vars[name]; ok {
		return reflect.ValueOf(v.buffer).Elem().Interface(), nil
	}
	if fn, ok := self.reads[name]; ok {
		snap := self.store.Snapshot()
		return fn(&snap), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
}

// Names lists every variable and function, sorted.
func (self *Host) Names() []string {
	names := make([]string, 0, len(self.vars)+len(self.funcs)+len(self.reads))
	for n := range self.vars {
		names = append(names, n)
	}
	for n := range self.funcs {
		names = append(names, n)
	}
	for n := range self.reads {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (self *Host) IsFunc(name string) bool {
	_, ok := self.funcs[name]
	return ok
}

// Telemetry is a copy of everything the host can read.
func (self *Host) Telemetry() state.Shared {
	return self.store.Snapshot()
}

// Failures counts writes and calls that did not publish.
func (self *Host) Failures() uint32 {
	return self.failures
}

func zero(ptr interface{}) {
	v := reflect.ValueOf(ptr).Elem()
	v.Set(reflect.Zero(v.Type()))
}
