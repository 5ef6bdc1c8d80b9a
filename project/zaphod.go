// Package project composes the controller: one event pool, bus and
// scheduler hosting the supervisor, the two planners and the shutter,
// with the ui host on the outside.
package project

import (
	"context"
	"fmt"
	"time"

	"github.com/coolcm/zaphod-bot/common/config"
	"github.com/coolcm/zaphod-bot/common/logger"
	"github.com/coolcm/zaphod-bot/project/barrier"
	"github.com/coolcm/zaphod-bot/project/bus"
	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/lighting"
	"github.com/coolcm/zaphod-bot/project/motion"
	"github.com/coolcm/zaphod-bot/project/scheduler"
	"github.com/coolcm/zaphod-bot/project/shutter"
	"github.com/coolcm/zaphod-bot/project/state"
	"github.com/coolcm/zaphod-bot/project/supervisor"
	"github.com/coolcm/zaphod-bot/project/task"
	"github.com/coolcm/zaphod-bot/project/ui"
	uuid "github.com/satori/go.uuid"
)

// Task ids. The scheduler visits higher ids first.
const (
	ShutterID    uint8 = 1
	LightingID   uint8 = 2
	MotionID     uint8 = 3
	SupervisorID uint8 = 4
)

// Hardware is everything outside the core.
type Hardware struct {
	Sink      motion.Sink
	Driver    lighting.Driver
	Mechanism supervisor.Mechanism
	Trigger   shutter.Trigger
}

// HardwareFactory builds the hardware once the inbox exists, so drivers
// can report back (homing complete, for example).
type HardwareFactory func(inbox event.Publisher) Hardware

type subscriber interface {
	Task() *task.Task
	Signals() []event.Signal
}

type Zaphod struct {
	cfg     *config.Config
	hw      Hardware
	pool    *event.Pool
	bus     *bus.Bus
	inbox   *scheduler.Inbox
	sched   *scheduler.Scheduler
	barrier *barrier.Barrier
	store   *state.Store
	host    *ui.Host

	supervisor *supervisor.Supervisor
	motion     *motion.Planner
	lighting   *lighting.Planner
	shutter    *shutter.Shutter

	fatal error
}

func NewZaphod(cfg *config.Config, factory HardwareFactory) (*Zaphod, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id, err := deviceID(cfg.Device.ID)
	if err != nil {
		return nil, err
	}

	self := &Zaphod{}
	self.cfg = cfg
	sc := cfg.Scheduler
	self.pool = event.NewPool(sc.EventPool, sc.EmergencyReserve)
	self.bus = bus.NewBus()
	self.bus.OnFatal = self.onFatal
	self.inbox = scheduler.NewInbox(sc.InboxDepth)
	self.sched = scheduler.NewScheduler(self.pool, self.bus, self.inbox)
	self.barrier = barrier.NewBarrier()
	self.store = state.NewStore(state.System{Name: cfg.Device.Name, ID: id, LoopTick: cfg.Tick()})
	self.host = ui.NewHost(self.inbox, self.store)
	self.hw = factory(self.inbox)

	syncFor := func(name string) *barrier.Barrier {
		if cfg.Sync.Participates(name) {
			return self.barrier
		}
		return nil
	}

	self.supervisor, err = supervisor.NewSupervisor(supervisor.Options{
		ID:          SupervisorID,
		QueueDepth:  sc.SupervisorQueue,
		HomeTimeout: cfg.Motion.HomeTimeout(),
	}, self.sched, self.hw.Mechanism, self.store)
	if err != nil {
		return nil, err
	}
	self.motion, err = motion.NewPlanner(motion.Options{
		ID:            MotionID,
		QueueDepth:    sc.MotionQueue,
		WaypointDepth: cfg.Motion.WaypointDepth,
		TrackSpeed:    cfg.Motion.TrackSpeed,
		MinTrack:      cfg.Motion.MinTrack(),
	}, self.sched, syncFor(motion.Participant), self.hw.Sink, self.store)
	if err != nil {
		return nil, err
	}
	self.lighting, err = lighting.NewPlanner(lighting.Options{
		ID:         LightingID,
		QueueDepth: sc.LightingQueue,
		FadeDepth:  cfg.Lighting.FadeDepth,
	}, self.sched, syncFor(lighting.Participant), self.hw.Driver, self.store)
	if err != nil {
		return nil, err
	}
	self.shutter, err = shutter.NewShutter(ShutterID, sc.ShutterQueue, self.hw.Trigger, self.store)
	if err != nil {
		return nil, err
	}

	for _, s := range []subscriber{self.supervisor, self.motion, self.lighting, self.shutter} {
		if err := self.sched.Register(s.Task()); err != nil {
			return nil, err
		}
		if err := self.bus.Subscribe(s.Task(), s.Signals()...); err != nil {
			return nil, err
		}
	}
	logger.Infof("%s [%s] sync participants %v", cfg.Device.Name, id, self.barrier.Participants())
	return self, nil
}

func deviceID(configured string) (string, error) {
	if configured == "" {
		return uuid.NewV4().String(), nil
	}
	id, err := uuid.FromString(configured)
	if err != nil {
		return "", fmt.Errorf("device.id: %w", err)
	}
	return id.String(), nil
}

// onFatal runs when an emergency stop could not be queued. The hardware
// is stopped directly since no task will see the event.
func (self *Zaphod) onFatal(err error) {
	logger.Errorf("emergency stop escalated: %v", err)
	self.fatal = err
	if self.hw.Sink != nil {
		self.hw.Sink.Stop()
	}
	if self.hw.Mechanism != nil {
		self.hw.Mechanism.Enable(false)
	}
}

func (self *Zaphod) Host() *ui.Host {
	return self.host
}

func (self *Zaphod) Store() *state.Store {
	return self.store
}

func (self *Zaphod) Scheduler() *scheduler.Scheduler {
	return self.sched
}

// Fatal is the last escalated emergency failure, if any.
func (self *Zaphod) Fatal() error {
	return self.fatal
}

// Background runs one loop iteration at now: a scheduler pass, then the
// time-driven work of every planner, then publication of telemetry.
func (self *Zaphod) Background(now time.Duration) error {
	if err := self.sched.Pass(now); err != nil {
		return err
	}
	self.supervisor.Process(now)
	self.motion.Process(now)
	self.lighting.Process(now)
	self.shutter.Process(now)

	stats := self.sched.Stats()
	token := self.barrier.Token()
	self.store.Update(func(s *state.Shared) {
		s.System.Uptime = now
		s.Scheduler = stats
		s.SyncToken = token
	})
	return nil
}

// Main runs the fixed-rate loop until ctx is cancelled.
func (self *Zaphod) Main(ctx context.Context) error {
	tick := self.cfg.Tick()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	start := time.Now()
	logger.Infof("background loop running every %s", tick)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("background loop stopped after %s", time.Since(start).Truncate(time.Millisecond))
			return nil
		case <-ticker.C:
			if err := self.Background(time.Since(start)); err != nil {
				return err
			}
		}
	}
}
