package simulated

import (
	"errors"
	"testing"

	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/path"
)

type recorder struct {
	sigs []event.Signal
}

func (r *recorder) Publish(sig event.Signal, payload interface{}) error {
	r.sigs = append(r.sigs, sig)
	return nil
}

func TestServosRejectOutOfReach(t *testing.T) {
	s := NewServos(Envelope{Radius: 100, MinZ: 0, MaxZ: 50})
	if err := s.Target(path.Point{X: 60, Y: 80, Z: 10}); err != nil {
		t.Fatalf("edge of envelope rejected: %v", err)
	}
	if err := s.Target(path.Point{X: 101}); !errors.Is(err, ErrOutOfReach) {
		t.Fatalf("expected ErrOutOfReach, got %v", err)
	}
	if s.Position() != (path.Point{X: 60, Y: 80, Z: 10}) {
		t.Fatalf("rejected target moved the servos")
	}
}

func TestMechanismHoming(t *testing.T) {
	rec := &recorder{}
	m := NewMechanism(rec)
	if err := m.Home(); err == nil {
		t.Fatalf("homing without power should fail")
	}
	m.Enable(true)
	if err := m.Home(); err != nil || len(rec.sigs) != 1 || rec.sigs[0] != event.MechanismHomed {
		t.Fatalf("err=%v published=%v", err, rec.sigs)
	}
	if err := m.SetExpansion(120); err == nil {
		t.Fatalf("expected an out of range expansion error")
	}
}
