// Package state holds the snapshot the host-facing side reads. The loop
// writes it through Update; other goroutines read copies via Snapshot.
package state

import (
	"time"

	"github.com/coolcm/zaphod-bot/common/lock"
	"github.com/coolcm/zaphod-bot/project/path"
	"github.com/coolcm/zaphod-bot/project/scheduler"
	"github.com/coolcm/zaphod-bot/project/task"
)

type Supervisor uint8

const (
	SupervisorDisarmed Supervisor = iota
	SupervisorArmed
	SupervisorHoming
	SupervisorError
)

var supervisorNames = []string{"disarmed", "armed", "homing", "error"}

func (s Supervisor) String() string {
	if int(s) < len(supervisorNames) {
		return supervisorNames[s]
	}
	return "unknown"
}

type Mode uint8

const (
	ModeNone Mode = iota
	ModeManual
	ModeEvent
	ModeDemo
	ModeTrack
)

var modeNames = []string{"none", "manual", "event", "demo", "track"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// ParseMode maps a host mode request onto a Mode.
func ParseMode(name string) (Mode, bool) {
	for i, n := range modeNames {
		if i > 0 && n == name {
			return Mode(i), true
		}
	}
	return ModeNone, false
}

type System struct {
	Name     string
	ID       string
	Uptime   time.Duration
	LoopTick time.Duration
}

type Motion struct {
	Enabled    bool
	Running    bool
	MovementID uint16
	Type       string
	Progress   float64
	QueueDepth int
	QueueCap   int
	Position   path.Point
	Expansion  float64
}

// RGB is the 16-bit per channel LED output.
type RGB struct {
	R uint16
	G uint16
	B uint16
}

type Lighting struct {
	Running    bool
	Manual     bool
	FadeID     uint16
	Progress   float64
	QueueDepth int
	QueueCap   int
	Output     RGB
}

type Shared struct {
	System     System
	Supervisor Supervisor
	Mode       Mode
	Motion     Motion
	Lighting   Lighting
	Shutter    bool
	SyncToken  uint16
	Scheduler  scheduler.Stats
}

// Store guards the shared state with the spin lock.
type Store struct {
	lock lock.SpinLock
	data Shared
}

func NewStore(system System) *Store {
	self := &Store{}
	self.data.System = system
	return self
}

// Update applies fn with the lock held. fn must be short and must not
// call back into the store.
func (self *Store) Update(fn func(s *Shared)) {
	self.lock.Critical(func() { fn(&self.data) })
}

func (self *Store) Snapshot() Shared {
	var s Shared
	self.lock.Critical(func() {
		s = self.data
		s.Scheduler.Tasks = append([]task.Stats(nil), self.data.Scheduler.Tasks...)
	})
	return s
}
