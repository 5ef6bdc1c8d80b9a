package bus

import (
	"errors"
	"fmt"

	"github.com/coolcm/zaphod-bot/common/logger"
	"github.com/coolcm/zaphod-bot/project/event"
)

var (
	ErrSealed                 = errors.New("bus subscriptions are sealed")
	ErrEmergencyUndeliverable = errors.New("emergency stop undeliverable")
	ErrDuplicateSubscription  = errors.New("duplicate subscription")
)

// Subscriber is a task queue the bus can deliver to.
type Subscriber interface {
	ID() uint8
	Name() string
	// Post appends ev to the normal FIFO.
	Post(ev *event.Event) error
	// PostUrgent places ev ahead of the FIFO.
	PostUrgent(ev *event.Event) error
}

// Delivery is the outcome of publishing to one subscriber.
type Delivery struct {
	Task uint8
	Err  error
}

type Stats struct {
	Published         uint32
	Delivered         uint32
	Dropped           uint32
	Unsubscribed      uint32
	EmergencyFailures uint32
}

// Bus fans events out to subscriber queues in subscription order.
type Bus struct {
	subs   [event.Count][]Subscriber
	sealed bool
	stats  Stats

	// OnFatal is called when an emergency stop cannot be queued.
	OnFatal func(err error)
}

func NewBus() *Bus {
	self := &Bus{}
	self.OnFatal = func(err error) {
		logger.Errorf("fatal: %v", err)
	}
	return self
}

// Subscribe registers sub for signals. Subscriptions are static and must be
// made before Seal.
func (self *Bus) Subscribe(sub Subscriber, signals ...event.Signal) error {
	if self.sealed {
		return ErrSealed
	}
	for _, sig := range signals {
		if !sig.Valid() {
			return fmt.Errorf("subscribe %s: invalid signal %d", sub.Name(), uint8(sig))
		}
		for _, existing := range self.subs[sig] {
			if existing.ID() == sub.ID() {
				return fmt.Errorf("%w: %s to %s", ErrDuplicateSubscription, sub.Name(), sig)
			}
		}
		self.subs[sig] = append(self.subs[sig], sub)
	}
	return nil
}

func (self *Bus) Seal() {
	self.sealed = true
}

func (self *Bus) Sealed() bool {
	return self.sealed
}

// Subscribers lists the subscribers of sig in delivery order.
func (self *Bus) Subscribers(sig event.Signal) []Subscriber {
	if int(sig) >= len(self.subs) {
		return nil
	}
	return append([]Subscriber(nil), self.subs[sig]...)
}

// Publish delivers ev to every subscriber of its signal. A nil event is a
// no-op so a failed allocation can be published directly. Publishing never
// dispatches; receivers see the event on their next scheduler turn.
func (self *Bus) Publish(ev *event.Event) []Delivery {
	if ev == nil {
		return nil
	}
	self.stats.Published++

	// hold the event while fanning out so an early delivery cannot free it
	event.Retain(ev)
	defer event.Release(ev)

	var subs []Subscriber
	if int(ev.Signal) < len(self.subs) {
		subs = self.subs[ev.Signal]
	}
	if len(subs) == 0 {
		self.stats.Unsubscribed++
		logger.Debugf("no subscribers for %s", ev.Signal)
		return nil
	}

	deliveries := make([]Delivery, 0, len(subs))
	for _, sub := range subs {
		var err error
		event.Retain(ev)
		if ev.Signal.IsEmergency() {
			err = sub.PostUrgent(ev)
		} else {
			err = sub.Post(ev)
		}
		if err != nil {
			event.Release(ev)
			if ev.Signal.IsEmergency() {
				self.stats.EmergencyFailures++
				err = fmt.Errorf("%w to %s: %v", ErrEmergencyUndeliverable, sub.Name(), err)
				logger.Errorf("%v", err)
				if self.OnFatal != nil {
					self.OnFatal(err)
				}
			} else {
				self.stats.Dropped++
				logger.Warnf("%s dropped %s: %v", sub.Name(), ev.Signal, err)
			}
		} else {
			self.stats.Delivered++
		}
		deliveries = append(deliveries, Delivery{Task: sub.ID(), Err: err})
	}
	return deliveries
}

func (self *Bus) Stats() Stats {
	return self.stats
}

func (self *Bus) ResetStats() {
	self.stats = Stats{}
}

// Failed counts the failed deliveries in ds.
func Failed(ds []Delivery) int {
	n := 0
	for _, d := range ds {
		if d.Err != nil {
			n++
		}
	}
	return n
}
