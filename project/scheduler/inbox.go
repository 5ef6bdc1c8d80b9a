package scheduler

import (
	"fmt"

	"github.com/coolcm/zaphod-bot/common/lock"
	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/queue"
)

// Request is a publish asked for from outside the scheduler loop. The loop
// allocates the event when it drains the inbox, so the pool is only ever
// touched by one goroutine.
type Request struct {
	Signal  event.Signal
	Payload interface{}
}

// Inbox is the only handoff between other goroutines (serial reception,
// console, signal handlers) and the loop. An emergency stop has a slot of
// its own beside the ring, so it gets through however full the ring is.
type Inbox struct {
	lock      lock.SpinLock
	ring      *queue.Ring[Request]
	emergency *Request
	dropped   uint32
	coalesced uint32
}

func NewInbox(depth int) *Inbox {
	self := &Inbox{}
	self.ring = queue.NewRing[Request](depth)
	return self
}

// Publish queues a request. It never blocks; a full inbox drops the
// request. Emergencies always succeed: a second one while the first is
// still waiting coalesces into it.
func (self *Inbox) Publish(sig event.Signal, payload interface{}) error {
	if !sig.Valid() {
		return fmt.Errorf("inbox: invalid signal %d", uint8(sig))
	}
	if sig.IsEmergency() {
		self.lock.Critical(func() {
			if self.emergency != nil {
				self.coalesced++
				return
			}
			self.emergency = &Request{Signal: sig, Payload: payload}
		})
		return nil
	}
	var err error
	self.lock.Critical(func() {
		err = self.ring.Push(Request{Signal: sig, Payload: payload})
		if err != nil {
			self.dropped++
		}
	})
	if err != nil {
		return fmt.Errorf("inbox %s: %w", sig, err)
	}
	return nil
}

// take removes every queued request, a pending emergency first. The lock
// is held only for the copy.
func (self *Inbox) take(buf []Request) []Request {
	buf = buf[:0]
	self.lock.Critical(func() {
		if self.emergency != nil {
			buf = append(buf, *self.emergency)
			self.emergency = nil
		}
		for {
			r, ok := self.ring.Pop()
			if !ok {
				return
			}
			buf = append(buf, r)
		}
	})
	return buf
}

func (self *Inbox) Len() int {
	n := 0
	self.lock.Critical(func() {
		n = self.ring.Len()
		if self.emergency != nil {
			n++
		}
	})
	return n
}

// EmergencyPending reports whether a stop is waiting for the next pass.
func (self *Inbox) EmergencyPending() bool {
	pending := false
	self.lock.Critical(func() { pending = self.emergency != nil })
	return pending
}

// Coalesced counts emergencies folded into one already waiting.
func (self *Inbox) Coalesced() uint32 {
	var n uint32
	self.lock.Critical(func() { n = self.coalesced })
	return n
}

func (self *Inbox) Dropped() uint32 {
	var n uint32
	self.lock.Critical(func() { n = self.dropped })
	return n
}

func (self *Inbox) resetStats() {
	self.lock.Critical(func() {
		self.dropped = 0
		self.coalesced = 0
		self.ring.ResetHighWater()
	})
}

var _ event.Publisher = (*Inbox)(nil)
