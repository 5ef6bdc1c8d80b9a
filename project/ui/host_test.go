package ui

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/path"
	"github.com/coolcm/zaphod-bot/project/scheduler"
	"github.com/coolcm/zaphod-bot/project/state"
	"github.com/coolcm/zaphod-bot/project/task"
)

type published struct {
	sig     event.Signal
	payload interface{}
}

type recorder struct {
	events []published
}

func (r *recorder) Publish(sig event.Signal, payload interface{}) error {
	r.events = append(r.events, published{sig, payload})
	return nil
}

func (r *recorder) signals() []event.Signal {
	out := []event.Signal{}
	for _, e := range r.events {
		out = append(out, e.sig)
	}
	return out
}

func newHost() (*Host, *recorder, *state.Store) {
	rec := &recorder{}
	store := state.NewStore(state.System{Name: "Zaphod Beeblebot", ID: "bench"})
	return NewHost(rec, store), rec, store
}

func TestMovementWritePublishesOnceAndClears(t *testing.T) {
	h, rec, _ := newHost()
	in := Movement{ID: 3, Type: uint8(path.Linear), Duration: 250, SyncOffset: 10,
		Points: []path.Point{{}, {X: 100}}}
	if err := h.Write("inmv", Value(in)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].sig != event.MovementRequest {
		t.Fatalf("expected one movement request, got %v", rec.signals())
	}
	m := rec.events[0].payload.(event.Movement)
	if m.ID != 3 || m.Duration != 250*time.Millisecond || m.SyncOffset != 10*time.Millisecond || m.NumPoints() != 2 {
		t.Fatalf("unexpected movement %+v", m)
	}
	staged, _ := h.Read("inmv")
	if !reflect.ValueOf(staged).IsZero() {
		t.Fatalf("staging buffer not cleared: %+v", staged)
	}
}

func TestYAMLWrite(t *testing.T) {
	h, rec, _ := newHost()
	err := h.Write("inlt", YAML(`{id: 4, type: 1, duration: 500, colours: [{intensity: 0}, {hue: 120, saturation: 1, intensity: 1}]}`))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	f := rec.events[0].payload.(event.Fade)
	if f.ID != 4 || f.Type != event.FadeLinear || len(f.Colours()) != 2 || f.Colours()[1].Hue != 120 {
		t.Fatalf("unexpected fade %+v", f)
	}
}

func TestBadWritesPublishNothing(t *testing.T) {
	h, rec, _ := newHost()
	if err := h.Write("inmv", YAML(`{id: [}`)); err == nil {
		t.Fatalf("expected a decode error")
	}
	tooMany := Movement{ID: 1, Points: make([]path.Point, 5)}
	if err := h.Write("inmv", Value(tooMany)); !errors.Is(err, event.ErrTooManyPoints) {
		t.Fatalf("expected ErrTooManyPoints, got %v", err)
	}
	if err := h.Write("tpos", Value("north")); err == nil {
		t.Fatalf("expected a type error")
	}
	if err := h.Write("cpos", Value(path.Point{})); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if err := h.Write("warp", Value(1)); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
	if len(rec.events) != 0 || h.Failures() != 3 {
		t.Fatalf("published %v, failures %d", rec.signals(), h.Failures())
	}
}

func TestClearPublishesBothQueues(t *testing.T) {
	h, rec, _ := newHost()
	if err := h.Call("clmv"); err != nil {
		t.Fatalf("call: %v", err)
	}
	want := []event.Signal{event.MotionQueueClear, event.LightingQueueClear}
	if !reflect.DeepEqual(rec.signals(), want) {
		t.Fatalf("expected %v, got %v", want, rec.signals())
	}
}

func TestModeRequests(t *testing.T) {
	h, rec, _ := newHost()
	h.Write("req_mode", Value(uint8(0)))
	h.Write("req_mode", Value(uint8(state.ModeTrack)))
	h.Write("req_mode", Value(uint8(9)))
	want := []event.Signal{event.ModeTrack, event.MotionEmergency}
	if !reflect.DeepEqual(rec.signals(), want) {
		t.Fatalf("expected %v, got %v", want, rec.signals())
	}
}

func TestSyncUsesStagedID(t *testing.T) {
	h, rec, _ := newHost()
	h.Write("syncid", Value(uint16(12)))
	if len(rec.events) != 0 {
		t.Fatalf("syncid alone must not publish")
	}
	h.Call("sync")
	if req := rec.events[0].payload.(event.SyncRequest); req.ID != 12 {
		t.Fatalf("expected sync id 12, got %d", req.ID)
	}
	if id, _ := h.Read("syncid"); id.(uint16) != 0 {
		t.Fatalf("sync id not cleared after use")
	}
}

func TestManualColourIsKept(t *testing.T) {
	h, rec, _ := newHost()
	h.Write("hsv", YAML(`{hue: 30, saturation: 0.5, intensity: 0.2, enable: true}`))
	got, _ := h.Read("hsv")
	if got.(Manual).Hue != 30 {
		t.Fatalf("manual colour not kept: %+v", got)
	}
	if c := rec.events[0].payload.(event.ManualColour); !c.Enabled || c.Colour.Saturation != 0.5 {
		t.Fatalf("unexpected manual colour %+v", c)
	}
}

func TestFunctions(t *testing.T) {
	h, rec, _ := newHost()
	for _, name := range []string{"stmv", "estop", "arm", "disarm", "home"} {
		if err := h.Call(name); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	want := []event.Signal{event.MotionQueueStart, event.MotionEmergency, event.MechanismStart, event.MechanismStop, event.MechanismRehome}
	if !reflect.DeepEqual(rec.signals(), want) {
		t.Fatalf("expected %v, got %v", want, rec.signals())
	}
	if err := h.Call("inmv"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("variables are not callable, got %v", err)
	}
	if !h.IsFunc("stmv") || h.IsFunc("inmv") {
		t.Fatalf("IsFunc disagrees with the function table")
	}
}

func TestReadTelemetryAndReport(t *testing.T) {
	h, _, store := newHost()
	store.Update(func(s *state.Shared) {
		s.Supervisor = state.SupervisorArmed
		s.Mode = state.ModeEvent
		s.Motion.Position = path.Point{X: 12.5}
		s.Motion.QueueDepth = 2
		s.Scheduler = scheduler.Stats{Tasks: []task.Stats{{Name: "motion", State: "RUNNING", QueueCap: 8}}}
	})
	pos, err := h.Read("cpos")
	if err != nil || pos.(path.Point).X != 12.5 {
		t.Fatalf("cpos = %v, %v", pos, err)
	}
	q, _ := h.Read("queue")
	if q.(map[string]int)["movements"] != 2 {
		t.Fatalf("queue = %v", q)
	}

	var buf bytes.Buffer
	if err := h.Report(&buf); err != nil {
		t.Fatalf("report: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Zaphod Beeblebot [bench]", "supervisor armed, mode event", "at (12.5, 0.0, 0.0)", "motion RUNNING q 0/8"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}
