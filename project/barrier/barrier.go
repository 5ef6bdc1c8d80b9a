// Package barrier gates the start of independent queues on one shared
// token. A token is consumed exactly once: when every registered
// participant has matched it, all of them are released in the same call.
package barrier

import (
	"errors"
	"fmt"

	"github.com/coolcm/zaphod-bot/common/logger"
)

var (
	ErrStaleToken         = errors.New("stale sync token")
	ErrUnknownParticipant = errors.New("unknown sync participant")
	ErrInUse              = errors.New("barrier already in use")
)

type Stats struct {
	Requested uint32
	Released  uint32
	Stale     uint32
	Cancelled uint32
}

type participant struct {
	name    string
	release func()
	matched bool
}

type Barrier struct {
	token uint16
	parts []*participant
	used  bool
	stats Stats
}

func NewBarrier() *Barrier {
	return &Barrier{}
}

// Register adds a participant. release runs when the token it matched is
// consumed. Participants are fixed before the first request.
func (self *Barrier) Register(name string, release func()) error {
	if self.used {
		return fmt.Errorf("%w: register %s", ErrInUse, name)
	}
	for _, p := range self.parts {
		if p.name == name {
			return fmt.Errorf("sync participant %s registered twice", name)
		}
	}
	self.parts = append(self.parts, &participant{name: name, release: release})
	return nil
}

func (self *Barrier) Participants() []string {
	names := make([]string, 0, len(self.parts))
	for _, p := range self.parts {
		names = append(names, p.name)
	}
	return names
}

// RequestSync stores token. Zero is ignored; repeating the pending token
// keeps the observations made so far, a new token starts over.
func (self *Barrier) RequestSync(token uint16) {
	if token == 0 {
		return
	}
	self.used = true
	if token == self.token {
		return
	}
	if self.token != 0 {
		logger.Debugf("sync token %d replaced by %d", self.token, token)
	}
	self.token = token
	self.stats.Requested++
	self.reset()
}

// BeginIfMatched records that name is ready to start on token. It reports
// true when this call consumed the token and released every participant.
func (self *Barrier) BeginIfMatched(name string, token uint16) (bool, error) {
	p := self.find(name)
	if p == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownParticipant, name)
	}
	if token == 0 || self.token == 0 || token != self.token {
		self.stats.Stale++
		return false, fmt.Errorf("%w: %s offered %d, pending %d", ErrStaleToken, name, token, self.token)
	}
	p.matched = true
	for _, other := range self.parts {
		if !other.matched {
			return false, nil
		}
	}

	logger.Debugf("sync token %d consumed", self.token)
	self.token = 0
	self.stats.Released++
	self.reset()
	for _, other := range self.parts {
		if other.release != nil {
			other.release()
		}
	}
	return true, nil
}

// Matched reports whether name has already matched the pending token.
func (self *Barrier) Matched(name string) bool {
	p := self.find(name)
	return p != nil && self.token != 0 && p.matched
}

func (self *Barrier) Pending() bool {
	return self.token != 0
}

func (self *Barrier) Token() uint16 {
	return self.token
}

// Cancel drops the pending token without releasing anyone.
func (self *Barrier) Cancel() {
	if self.token == 0 {
		return
	}
	self.token = 0
	self.stats.Cancelled++
	self.reset()
}

func (self *Barrier) Stats() Stats {
	return self.stats
}

func (self *Barrier) ResetStats() {
	self.stats = Stats{}
}

func (self *Barrier) find(name string) *participant {
	for _, p := range self.parts {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (self *Barrier) reset() {
	for _, p := range self.parts {
		p.matched = false
	}
}
