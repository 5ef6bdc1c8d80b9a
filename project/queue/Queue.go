package queue

import "errors"

var (
	ErrFull  = errors.New("queue full")
	ErrEmpty = errors.New("queue empty")
)

// Ring is a fixed-capacity FIFO. A failed push leaves the contents
// untouched. Not safe for concurrent use.
type Ring[T any] struct {
	rows       []T
	head       int
	used       int
	high_water int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}
	self := &Ring[T]{}
	self.rows = make([]T, capacity)
	return self
}

func (self *Ring[T]) Len() int {
	return self.used
}

func (self *Ring[T]) Cap() int {
	return len(self.rows)
}

func (self *Ring[T]) IsEmpty() bool {
	return self.used == 0
}

func (self *Ring[T]) IsFull() bool {
	return self.used == len(self.rows)
}

// HighWater is the deepest the queue has been since the last reset.
func (self *Ring[T]) HighWater() int {
	return self.high_water
}

func (self *Ring[T]) ResetHighWater() {
	self.high_water = self.used
}

func (self *Ring[T]) grew() {
	if self.used > self.high_water {
		self.high_water = self.used
	}
}

func (self *Ring[T]) Push(v T) error {
	if self.IsFull() {
		return ErrFull
	}
	self.rows[(self.head+self.used)%len(self.rows)] = v
	self.used++
	self.grew()
	return nil
}

// PushFront inserts v ahead of every queued entry.
func (self *Ring[T]) PushFront(v T) error {
	if self.IsFull() {
		return ErrFull
	}
	self.head = (self.head - 1 + len(self.rows)) % len(self.rows)
	self.rows[self.head] = v
	self.used++
	self.grew()
	return nil
}

func (self *Ring[T]) Pop() (T, bool) {
	var zero T
	if self.used == 0 {
		return zero, false
	}
	v := self.rows[self.head]
	self.rows[self.head] = zero
	self.head = (self.head + 1) % len(self.rows)
	self.used--
	return v, true
}

func (self *Ring[T]) Peek() (T, bool) {
	return self.At(0)
}

// At returns the i-th oldest entry.
func (self *Ring[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= self.used {
		return zero, false
	}
	return self.rows[(self.head+i)%len(self.rows)], true
}

// Slot returns a pointer to the i-th oldest entry for in-place updates.
func (self *Ring[T]) Slot(i int) *T {
	if i < 0 || i >= self.used {
		return nil
	}
	return &self.rows[(self.head+i)%len(self.rows)]
}

func (self *Ring[T]) Clear() {
	var zero T
	for i := range self.rows {
		self.rows[i] = zero
	}
	self.head = 0
	self.used = 0
}

// Snapshot copies the queued entries oldest first.
func (self *Ring[T]) Snapshot() []T {
	out := make([]T, 0, self.used)
	for i := 0; i < self.used; i++ {
		v, _ := self.At(i)
		out = append(out, v)
	}
	return out
}
