package event

import (
	"errors"
	"fmt"
)

var ErrPoolExhausted = errors.New("event pool exhausted")

// Event is a signal with its kind-specific payload. Handlers receive the
// same *Event on every subscriber queue, so they must treat it as
// read-only.
type Event struct {
	Signal  Signal
	Payload interface{}

	owner    *Pool
	slot     int
	refs     int
	reserved bool
}

// New builds an event outside any pool. Retain and Release are no-ops on it.
func New(sig Signal, payload interface{}) *Event {
	return &Event{Signal: sig, Payload: payload, slot: -1}
}

func (self *Event) String() string {
	if self == nil {
		return "<nil>"
	}
	if self.Payload == nil {
		return self.Signal.String()
	}
	return fmt.Sprintf("%s %+v", self.Signal, self.Payload)
}

// Refs is the number of queues still holding the event.
func (self *Event) Refs() int {
	return self.refs
}

func (self *Event) Pooled() bool {
	return self.owner != nil
}

type PoolStats struct {
	Slots     int
	Reserved  int
	InUse     int
	HighWater int
	Failures  int
}

// Pool hands out a fixed number of event slots. A separate reserve is kept
// for emergency signals so a flooded pool can still carry a stop.
// Only the scheduler loop allocates and releases.
type Pool struct {
	slots        []Event
	free         []int
	reserve_free []int
	stats        PoolStats
}

func NewPool(slots, reserved int) *Pool {
	if slots <= 0 || reserved < 0 {
		panic("event: pool needs positive slots and non-negative reserve")
	}
	self := &Pool{}
	self.slots = make([]Event, slots+reserved)
	for i := slots - 1; i >= 0; i-- {
		self.free = append(self.free, i)
	}
	for i := slots + reserved - 1; i >= slots; i-- {
		self.reserve_free = append(self.reserve_free, i)
	}
	self.stats.Slots = slots
	self.stats.Reserved = reserved
	return self
}

// New allocates an event. It never blocks: with no slot left it returns
// ErrPoolExhausted and the caller drops the publish.
func (self *Pool) New(sig Signal, payload interface{}) (*Event, error) {
	var idx int
	reserved := false
	switch {
	case len(self.free) > 0:
		idx = self.free[len(self.free)-1]
		self.free = self.free[:len(self.free)-1]
	case sig.IsEmergency() && len(self.reserve_free) > 0:
		idx = self.reserve_free[len(self.reserve_free)-1]
		self.reserve_free = self.reserve_free[:len(self.reserve_free)-1]
		reserved = true
	default:
		self.stats.Failures++
		return nil, fmt.Errorf("%w: %s", ErrPoolExhausted, sig)
	}

	ev := &self.slots[idx]
	*ev = Event{Signal: sig, Payload: payload, owner: self, slot: idx, reserved: reserved}
	self.stats.InUse++
	if self.stats.InUse > self.stats.HighWater {
		self.stats.HighWater = self.stats.InUse
	}
	return ev, nil
}

// Retain records one more queue holding ev.
func (self *Pool) Retain(ev *Event) {
	if ev == nil || ev.owner != self {
		return
	}
	ev.refs++
}

// Release drops one reference; the slot is recycled at zero.
func (self *Pool) Release(ev *Event) {
	if ev == nil || ev.owner != self {
		return
	}
	if ev.refs > 0 {
		ev.refs--
	}
	if ev.refs > 0 {
		return
	}
	slot, reserved := ev.slot, ev.reserved
	*ev = Event{slot: -1}
	if reserved {
		self.reserve_free = append(self.reserve_free, slot)
	} else {
		self.free = append(self.free, slot)
	}
	self.stats.InUse--
}

func (self *Pool) Stats() PoolStats {
	return self.stats
}

func (self *Pool) ResetStats() {
	self.stats.HighWater = self.stats.InUse
	self.stats.Failures = 0
}

// Retain and Release route to the owning pool, if any.
func Retain(ev *Event) {
	if ev != nil && ev.owner != nil {
		ev.owner.Retain(ev)
	}
}

func Release(ev *Event) {
	if ev != nil && ev.owner != nil {
		ev.owner.Release(ev)
	}
}
