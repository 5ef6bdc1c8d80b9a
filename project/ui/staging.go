package ui

import (
	"time"

	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/path"
)

// Movement is the inbound movement buffer ("inmv"). Times are in
// milliseconds and points in micrometres.
type Movement struct {
	ID         uint16       `yaml:"id"`
	Type       uint8        `yaml:"type"`
	Reference  uint8        `yaml:"ref"`
	SyncOffset uint16       `yaml:"sync"`
	Duration   uint16       `yaml:"duration"`
	Points     []path.Point `yaml:"points"`
}

func (m Movement) event() (event.Movement, error) {
	mv, err := event.NewMovement(m.ID, path.Kind(m.Type), event.Reference(m.Reference),
		time.Duration(m.Duration)*time.Millisecond, m.Points...)
	if err != nil {
		return event.Movement{}, err
	}
	mv.SyncOffset = time.Duration(m.SyncOffset) * time.Millisecond
	return mv, nil
}

// Fade is the inbound lighting buffer ("inlt").
type Fade struct {
	ID         uint16      `yaml:"id"`
	Type       uint8       `yaml:"type"`
	SyncOffset uint16      `yaml:"sync"`
	Duration   uint16      `yaml:"duration"`
	Colours    []event.HSI `yaml:"colours"`
}

func (f Fade) event() (event.Fade, error) {
	fd, err := event.NewFade(f.ID, event.FadeType(f.Type), time.Duration(f.Duration)*time.Millisecond, f.Colours...)
	if err != nil {
		return event.Fade{}, err
	}
	fd.SyncOffset = time.Duration(f.SyncOffset) * time.Millisecond
	return fd, nil
}

// Manual is the manual colour control ("hsv"). It keeps its value after
// a write so the host can read it back.
type Manual struct {
	Hue        float64 `yaml:"hue"`
	Saturation float64 `yaml:"saturation"`
	Intensity  float64 `yaml:"intensity"`
	Enable     bool    `yaml:"enable"`
}

type Staging struct {
	Movement  Movement
	Fade      Fade
	Target    path.Point
	Expansion float64
	Manual    Manual
	Capture   uint32 // exposure, ms
	SyncID    uint16
	Mode      uint8
}
