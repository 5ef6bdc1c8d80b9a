package task

import (
	"errors"
	"fmt"

	"github.com/coolcm/zaphod-bot/project/event"
)

// State identifies a node of a task's state machine. Top is the implicit
// root every state descends from.
type State uint8

const Top State = 0

// Handler handles one event. It may call t.Transition and publish further
// events, and must return promptly.
type Handler func(t *Task, ev *event.Event)

type StateDef struct {
	Name     string
	Parent   State
	Entry    func(t *Task)
	Exit     func(t *Task)
	Handlers map[event.Signal]Handler
}

// Table maps each state to its definition.
type Table map[State]*StateDef

// maximum nesting, also guards against parent cycles
const maxDepth = 8

var ErrBadTable = errors.New("invalid state table")

func (self Table) check(initial State) error {
	if initial == Top {
		return fmt.Errorf("%w: initial state must not be top", ErrBadTable)
	}
	if _, ok := self[initial]; !ok {
		return fmt.Errorf("%w: initial state %d undefined", ErrBadTable, initial)
	}
	for id, def := range self {
		if id == Top {
			return fmt.Errorf("%w: top is implicit", ErrBadTable)
		}
		depth := 0
		for s := def.Parent; s != Top; s = self[s].Parent {
			if _, ok := self[s]; !ok {
				return fmt.Errorf("%w: %s has undefined parent %d", ErrBadTable, def.Name, s)
			}
			depth++
			if depth > maxDepth {
				return fmt.Errorf("%w: %s nests too deep or loops", ErrBadTable, def.Name)
			}
		}
	}
	return nil
}

func (self Table) name(s State) string {
	if s == Top {
		return "TOP"
	}
	if def, ok := self[s]; ok && def.Name != "" {
		return def.Name
	}
	return fmt.Sprintf("STATE_%d", uint8(s))
}

func (self Table) lookup(s State, sig event.Signal) Handler {
	for s != Top {
		def, ok := self[s]
		if !ok {
			return nil
		}
		if h, ok := def.Handlers[sig]; ok && h != nil {
			return h
		}
		s = def.Parent
	}
	return nil
}

// chain lists s and its ancestors, innermost first, ending with Top.
func (self Table) chain(s State) []State {
	out := []State{}
	for s != Top {
		out = append(out, s)
		s = self[s].Parent
	}
	return append(out, Top)
}

// In reports whether the task is in s or one of its substates.
func (self *Task) In(s State) bool {
	for _, c := range self.table.chain(self.state) {
		if c == s {
			return true
		}
	}
	return false
}

// Transition moves to target, running exit actions up to the common
// ancestor and entry actions down to target. A transition to the current
// state exits and re-enters it.
func (self *Task) Transition(target State) {
	if _, ok := self.table[target]; !ok {
		self.log.Errorf("transition to undefined state %d ignored", target)
		return
	}
	from := self.table.chain(self.state)
	to := self.table.chain(target)

	lca := Top
	if target != self.state {
		isSource := make(map[State]bool, len(from))
		for _, s := range from {
			isSource[s] = true
		}
		for _, s := range to {
			if isSource[s] {
				lca = s
				break
			}
		}
	} else if len(from) > 1 {
		lca = from[1]
	}

	for _, s := range from {
		if s == lca {
			break
		}
		if def := self.table[s]; def.Exit != nil {
			def.Exit(self)
		}
	}

	entering := []State{}
	for _, s := range to {
		if s == lca {
			break
		}
		entering = append(entering, s)
	}
	self.state = target
	for i := len(entering) - 1; i >= 0; i-- {
		if def := self.table[entering[i]]; def.Entry != nil {
			def.Entry(self)
		}
	}
}
