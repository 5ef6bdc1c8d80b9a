package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/coolcm/zaphod-bot/project/path"
)

const (
	MaxMovementPoints = 4
	MaxFadeColours    = 4
)

var ErrTooManyPoints = errors.New("too many points")

type Reference uint8

const (
	Absolute Reference = iota
	Relative
)

// Movement is one segment of the waypoint queue.
type Movement struct {
	ID         uint16
	Type       path.Kind
	Reference  Reference
	SyncOffset time.Duration // start delay from the sequence epoch
	Duration   time.Duration
	count      uint8
	points     [MaxMovementPoints]path.Point
}

// NewMovement copies pts into a bounded movement.
func NewMovement(id uint16, kind path.Kind, ref Reference, duration time.Duration, pts ...path.Point) (Movement, error) {
	m := Movement{ID: id, Type: kind, Reference: ref, Duration: duration}
	if err := m.SetPoints(pts...); err != nil {
		return Movement{}, err
	}
	return m, nil
}

func (m *Movement) SetPoints(pts ...path.Point) error {
	if len(pts) > MaxMovementPoints {
		return fmt.Errorf("%w: movement holds %d, got %d", ErrTooManyPoints, MaxMovementPoints, len(pts))
	}
	m.points = [MaxMovementPoints]path.Point{}
	copy(m.points[:], pts)
	m.count = uint8(len(pts))
	return nil
}

// Points is a view of the stored control points.
func (m *Movement) Points() []path.Point {
	return m.points[:m.count]
}

func (m Movement) NumPoints() int {
	return int(m.count)
}

// Validate checks the movement carries what its path kind needs.
func (m Movement) Validate() error {
	if need := path.Required(m.Type); int(m.count) < need {
		return fmt.Errorf("movement %d: %w: %s needs %d, got %d", m.ID, path.ErrInsufficientPoints, m.Type, need, m.count)
	}
	if m.Type != path.PointTransit && m.Duration <= 0 {
		return fmt.Errorf("movement %d: duration must be positive", m.ID)
	}
	return nil
}

// HSI is a hue (degrees), saturation and intensity (0..1) colour.
type HSI struct {
	Hue        float64 `yaml:"hue"`
	Saturation float64 `yaml:"saturation"`
	Intensity  float64 `yaml:"intensity"`
}

type FadeType uint8

const (
	FadeInstant FadeType = iota
	FadeLinear
	FadeSpline
)

func (f FadeType) Required() int {
	switch f {
	case FadeInstant:
		return 1
	case FadeLinear:
		return 2
	case FadeSpline:
		return 4
	}
	return MaxFadeColours + 1
}

// Fade is one segment of the lighting queue.
type Fade struct {
	ID         uint16
	Type       FadeType
	SyncOffset time.Duration
	Duration   time.Duration
	count      uint8
	colours    [MaxFadeColours]HSI
}

func NewFade(id uint16, kind FadeType, duration time.Duration, colours ...HSI) (Fade, error) {
	f := Fade{ID: id, Type: kind, Duration: duration}
	if err := f.SetColours(colours...); err != nil {
		return Fade{}, err
	}
	return f, nil
}

func (f *Fade) SetColours(colours ...HSI) error {
	if len(colours) > MaxFadeColours {
		return fmt.Errorf("%w: fade holds %d, got %d", ErrTooManyPoints, MaxFadeColours, len(colours))
	}
	f.colours = [MaxFadeColours]HSI{}
	copy(f.colours[:], colours)
	f.count = uint8(len(colours))
	return nil
}

func (f *Fade) Colours() []HSI {
	return f.colours[:f.count]
}

func (f Fade) Validate() error {
	if need := f.Type.Required(); int(f.count) < need {
		return fmt.Errorf("fade %d: %w: needs %d, got %d", f.ID, path.ErrInsufficientPoints, need, f.count)
	}
	if f.Type != FadeInstant && f.Duration <= 0 {
		return fmt.Errorf("fade %d: duration must be positive", f.ID)
	}
	return nil
}

type SyncRequest struct {
	ID uint16
}

type ManualColour struct {
	Colour  HSI
	Enabled bool
}

type TrackedTarget struct {
	Target path.Point
}

type ExpansionAngle struct {
	Degrees float64
}

type Shutter struct {
	Exposure time.Duration
}

// Completed reports the id of the last segment finished by a planner.
type Completed struct {
	ID uint16
}
