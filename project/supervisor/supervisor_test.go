package supervisor

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/state"
)

type mechanism struct {
	enabled   bool
	homes     int
	expansion float64
	failHome  error
	failOff   error
}

func (m *mechanism) Enable(on bool) error {
	if !on && m.failOff != nil {
		return m.failOff
	}
	m.enabled = on
	return nil
}

func (m *mechanism) Home() error {
	m.homes++
	return m.failHome
}

func (m *mechanism) SetExpansion(degrees float64) error {
	m.expansion = degrees
	return nil
}

type recorder struct {
	sigs []event.Signal
}

func (r *recorder) Publish(sig event.Signal, payload interface{}) error {
	r.sigs = append(r.sigs, sig)
	return nil
}

type bench struct {
	sup   *Supervisor
	mech  *mechanism
	pub   *recorder
	store *state.Store
	now   time.Duration
}

func newBench(t *testing.T) *bench {
	bn := &bench{mech: &mechanism{}, pub: &recorder{}, store: state.NewStore(state.System{})}
	s, err := NewSupervisor(Options{ID: 4, QueueDepth: 4, HomeTimeout: time.Second}, bn.pub, bn.mech, bn.store)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	s.Task().SetClock(func() time.Duration { return bn.now })
	s.Task().Start()
	bn.sup = s
	return bn
}

func (bn *bench) send(t *testing.T, sig event.Signal, payload interface{}) {
	if err := bn.sup.Task().Post(event.New(sig, payload)); err != nil {
		t.Fatalf("post %s: %v", sig, err)
	}
	for bn.sup.Task().Tick() {
	}
}

func TestArmHomesThenArms(t *testing.T) {
	bn := newBench(t)
	bn.send(t, event.MechanismStart, nil)
	if !bn.sup.Task().In(Homing) || !bn.mech.enabled || bn.mech.homes != 1 {
		t.Fatalf("expected homing with the mechanism enabled")
	}
	if bn.store.Snapshot().Supervisor != state.SupervisorHoming {
		t.Fatalf("shared state not homing")
	}
	bn.send(t, event.MechanismHomed, nil)
	if !bn.sup.Task().In(Armed) || bn.store.Snapshot().Supervisor != state.SupervisorArmed {
		t.Fatalf("expected ARMED")
	}
	bn.send(t, event.ExpansionAngleRequest, event.ExpansionAngle{Degrees: 45})
	if bn.mech.expansion != 45 || bn.store.Snapshot().Motion.Expansion != 45 {
		t.Fatalf("expansion angle not applied")
	}
	bn.send(t, event.MechanismStop, nil)
	if !bn.sup.Task().In(Disarmed) || bn.mech.enabled {
		t.Fatalf("expected DISARMED with the mechanism off")
	}
	want := []event.Signal{event.MechanismArmed, event.MechanismDisarmed}
	if !reflect.DeepEqual(bn.pub.sigs, want) {
		t.Fatalf("expected %v, got %v", want, bn.pub.sigs)
	}
}

func TestLateHomeReportIgnored(t *testing.T) {
	bn := newBench(t)
	bn.send(t, event.MechanismStart, nil)
	bn.send(t, event.MechanismStop, nil)
	bn.send(t, event.MechanismHomed, nil)
	if !bn.sup.Task().In(Disarmed) || len(bn.pub.sigs) != 0 {
		t.Fatalf("late homing report armed the mechanism: %v", bn.pub.sigs)
	}

	bn.send(t, event.MechanismStart, nil)
	bn.sup.Process(2 * time.Second)
	bn.send(t, event.MechanismHomed, nil)
	if !bn.sup.Task().In(Fault) {
		t.Fatalf("expected the timeout fault to hold")
	}
	for _, sig := range bn.pub.sigs {
		if sig == event.MechanismArmed {
			t.Fatalf("armed after a homing timeout: %v", bn.pub.sigs)
		}
	}
}

func TestEmergencyKeepsFaultWhenPowerOffFails(t *testing.T) {
	bn := newBench(t)
	bn.send(t, event.MechanismStart, nil)
	bn.send(t, event.MechanismHomed, nil)
	bn.mech.failOff = errors.New("driver not responding")
	bn.pub.sigs = nil

	bn.send(t, event.MotionEmergency, nil)
	if !bn.sup.Task().In(Fault) || bn.sup.LastError() == nil {
		t.Fatalf("fault overwritten, state %d", bn.sup.Task().State())
	}
	if bn.store.Snapshot().Supervisor != state.SupervisorError {
		t.Fatalf("shared state should report the fault")
	}
	want := []event.Signal{event.MechanismDisarmed, event.MotionEmergency}
	if !reflect.DeepEqual(bn.pub.sigs, want) {
		t.Fatalf("expected %v, got %v", want, bn.pub.sigs)
	}
}

func TestExpansionIgnoredWhileDisarmed(t *testing.T) {
	bn := newBench(t)
	bn.send(t, event.ExpansionAngleRequest, event.ExpansionAngle{Degrees: 45})
	if bn.mech.expansion != 0 || bn.sup.Task().Stats().Undispatched != 1 {
		t.Fatalf("expansion applied while disarmed")
	}
}

func TestEmergencyDisarms(t *testing.T) {
	bn := newBench(t)
	bn.send(t, event.MechanismStart, nil)
	bn.send(t, event.MechanismHomed, nil)
	bn.send(t, event.MotionEmergency, nil)
	if !bn.sup.Task().In(Disarmed) || bn.mech.enabled {
		t.Fatalf("emergency did not disarm")
	}
}

func TestHomingFailureFaults(t *testing.T) {
	bn := newBench(t)
	bn.mech.failHome = errors.New("endstop stuck")
	bn.send(t, event.MechanismStart, nil)
	if !bn.sup.Task().In(Fault) || bn.mech.enabled {
		t.Fatalf("expected FAULT with the mechanism off, state %d", bn.sup.Task().State())
	}
	if len(bn.pub.sigs) != 1 || bn.pub.sigs[0] != event.MotionEmergency {
		t.Fatalf("expected an emergency stop, got %v", bn.pub.sigs)
	}

	// the echoed emergency must not clear the fault
	bn.send(t, event.MotionEmergency, nil)
	if !bn.sup.Task().In(Fault) || bn.sup.LastError() == nil {
		t.Fatalf("fault cleared by its own emergency")
	}
	bn.send(t, event.MechanismStop, nil)
	if !bn.sup.Task().In(Disarmed) || bn.sup.LastError() != nil {
		t.Fatalf("stop should acknowledge the fault")
	}
}

func TestHomingTimeout(t *testing.T) {
	bn := newBench(t)
	bn.now = 10 * time.Millisecond
	bn.send(t, event.MechanismStart, nil)
	bn.sup.Process(900 * time.Millisecond)
	if !bn.sup.Task().In(Homing) {
		t.Fatalf("timed out early")
	}
	bn.sup.Process(1100 * time.Millisecond)
	if !bn.sup.Task().In(Fault) || !errors.Is(bn.sup.LastError(), ErrHomingTimeout) {
		t.Fatalf("expected homing timeout fault, got %v", bn.sup.LastError())
	}
}

func TestModes(t *testing.T) {
	bn := newBench(t)
	bn.send(t, event.ModeTrack, nil)
	if bn.sup.Mode() != state.ModeTrack || bn.store.Snapshot().Mode != state.ModeTrack {
		t.Fatalf("mode not applied")
	}
	bn.send(t, event.ModeDemo, nil)
	if bn.sup.Mode() != state.ModeDemo {
		t.Fatalf("mode not switched")
	}
}
