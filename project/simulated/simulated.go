// Package simulated provides logging stand-ins for the hardware the core
// drives: servos behind inverse kinematics, the LED stage, the mechanism
// power stage and the camera shutter.
package simulated

import (
	"errors"
	"fmt"
	"math"

	"github.com/coolcm/zaphod-bot/common/logger"
	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/path"
	"github.com/coolcm/zaphod-bot/project/state"
	"go.uber.org/zap"
)

var ErrOutOfReach = errors.New("target outside the work envelope")

// Envelope is a cylinder around the effector's home axis, in micrometres.
type Envelope struct {
	Radius float64
	MinZ   float64
	MaxZ   float64
}

// DefaultEnvelope is roughly the reach of the bench delta.
var DefaultEnvelope = Envelope{Radius: 200000, MinZ: -50000, MaxZ: 200000}

func (e Envelope) Contains(p path.Point) bool {
	return math.Hypot(p.X, p.Y) <= e.Radius && p.Z >= e.MinZ && p.Z <= e.MaxZ
}

type Servos struct {
	envelope Envelope
	position path.Point
	moves    uint32
	log      *zap.SugaredLogger
}

func NewServos(envelope Envelope) *Servos {
	self := &Servos{}
	self.envelope = envelope
	self.log = logger.Named("servos")
	return self
}

func (self *Servos) Target(p path.Point) error {
	if !self.envelope.Contains(p) {
		return fmt.Errorf("%w: %+v", ErrOutOfReach, p)
	}
	self.position = p
	self.moves++
	return nil
}

func (self *Servos) Stop() {
	self.log.Infof("servos stopped at %+v after %d targets", self.position, self.moves)
}

func (self *Servos) Position() path.Point {
	return self.position
}

type LEDs struct {
	last state.RGB
	log  *zap.SugaredLogger
}

func NewLEDs() *LEDs {
	return &LEDs{log: logger.Named("leds")}
}

func (self *LEDs) Set(c state.RGB) error {
	if c != self.last {
		self.log.Debugf("rgb %04x %04x %04x", c.R, c.G, c.B)
	}
	self.last = c
	return nil
}

func (self *LEDs) Last() state.RGB {
	return self.last
}

// Mechanism reports homing complete straight away through the inbox, so
// the supervisor sees MechanismHomed on the next pass.
type Mechanism struct {
	inbox     event.Publisher
	enabled   bool
	expansion float64
	log       *zap.SugaredLogger
}

func NewMechanism(inbox event.Publisher) *Mechanism {
	self := &Mechanism{}
	self.inbox = inbox
	self.log = logger.Named("mechanism")
	return self
}

func (self *Mechanism) Enable(on bool) error {
	if on != self.enabled {
		self.log.Infof("servo power %v", on)
	}
	self.enabled = on
	return nil
}

func (self *Mechanism) Home() error {
	if !self.enabled {
		return errors.New("cannot home with servo power off")
	}
	self.log.Infof("homing")
	return self.inbox.Publish(event.MechanismHomed, nil)
}

func (self *Mechanism) SetExpansion(degrees float64) error {
	if degrees < -90 || degrees > 90 {
		return fmt.Errorf("expansion angle %.1f outside +-90", degrees)
	}
	self.expansion = degrees
	return nil
}

func (self *Mechanism) Enabled() bool {
	return self.enabled
}

type Shutter struct {
	open bool
	log  *zap.SugaredLogger
}

func NewShutter() *Shutter {
	return &Shutter{log: logger.Named("shutter")}
}

func (self *Shutter) Open() error {
	self.open = true
	self.log.Infof("shutter open")
	return nil
}

func (self *Shutter) Close() error {
	self.open = false
	self.log.Infof("shutter closed")
	return nil
}

func (self *Shutter) IsOpen() bool {
	return self.open
}
