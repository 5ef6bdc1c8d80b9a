package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/coolcm/zaphod-bot/common/logger"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Participant names accepted by the barrier section.
const (
	ParticipantMotion   = "motion"
	ParticipantLighting = "lighting"
)

// MaxQueueDepth bounds every queue so depths fit the one-byte telemetry fields.
const MaxQueueDepth = 255

var ErrUnsupportedFormat = errors.New("unsupported config format")

type Device struct {
	Name string `yaml:"name" toml:"name"`
	ID   string `yaml:"id" toml:"id"`
}

type Log struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	Color      bool   `yaml:"color" toml:"color"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

type Scheduler struct {
	TickMs           int `yaml:"tick_ms" toml:"tick_ms"`
	EventPool        int `yaml:"event_pool" toml:"event_pool"`
	EmergencyReserve int `yaml:"emergency_reserve" toml:"emergency_reserve"`
	InboxDepth       int `yaml:"inbox_depth" toml:"inbox_depth"`

	SupervisorQueue int `yaml:"supervisor_queue" toml:"supervisor_queue"`
	MotionQueue     int `yaml:"motion_queue" toml:"motion_queue"`
	LightingQueue   int `yaml:"lighting_queue" toml:"lighting_queue"`
	ShutterQueue    int `yaml:"shutter_queue" toml:"shutter_queue"`
}

type Motion struct {
	WaypointDepth int `yaml:"waypoint_depth" toml:"waypoint_depth"`

	// micrometres per millisecond used for tracked-target moves
	TrackSpeed float64 `yaml:"track_speed" toml:"track_speed"`
	MinTrackMs int     `yaml:"min_track_ms" toml:"min_track_ms"`

	// zero waits for homing forever
	HomeTimeoutMs int `yaml:"home_timeout_ms" toml:"home_timeout_ms"`
}

type Lighting struct {
	FadeDepth int `yaml:"fade_depth" toml:"fade_depth"`
}

type Sync struct {
	Participants []string `yaml:"participants" toml:"participants"`
}

type Console struct {
	Port string `yaml:"port" toml:"port"`
	Baud int    `yaml:"baud" toml:"baud"`
}

type Config struct {
	Device    Device    `yaml:"device" toml:"device"`
	Log       Log       `yaml:"log" toml:"log"`
	Scheduler Scheduler `yaml:"scheduler" toml:"scheduler"`
	Motion    Motion    `yaml:"motion" toml:"motion"`
	Lighting  Lighting  `yaml:"lighting" toml:"lighting"`
	Sync      Sync      `yaml:"sync" toml:"sync"`
	Console   Console   `yaml:"console" toml:"console"`
}

func Default() *Config {
	return &Config{
		Device: Device{Name: "Zaphod Beeblebot"},
		Log: Log{
			Level:      "info",
			Color:      true,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Scheduler: Scheduler{
			TickMs:           1,
			EventPool:        32,
			EmergencyReserve: 2,
			InboxDepth:       16,
			SupervisorQueue:  8,
			MotionQueue:      8,
			LightingQueue:    8,
			ShutterQueue:     4,
		},
		Motion: Motion{
			WaypointDepth: 25,
			TrackSpeed:    100,
			MinTrackMs:    50,
			HomeTimeoutMs: 5000,
		},
		Lighting: Lighting{FadeDepth: 35},
		Sync:     Sync{Participants: []string{ParticipantMotion, ParticipantLighting}},
		Console:  Console{Baud: 115200},
	}
}

// Tick is the background loop period.
func (self *Config) Tick() time.Duration {
	return time.Duration(self.Scheduler.TickMs) * time.Millisecond
}

func (self Motion) MinTrack() time.Duration {
	return time.Duration(self.MinTrackMs) * time.Millisecond
}

func (self Motion) HomeTimeout() time.Duration {
	return time.Duration(self.HomeTimeoutMs) * time.Millisecond
}

// Participates reports whether name takes part in synchronised starts.
func (self Sync) Participates(name string) bool {
	for _, p := range self.Participants {
		if p == name {
			return true
		}
	}
	return false
}

// LoggerOptions converts the log section for logger.InitLogger.
func (self *Config) LoggerOptions() (logger.Options, error) {
	level, err := logger.ParseLevel(self.Log.Level)
	if err != nil {
		return logger.Options{}, err
	}
	return logger.Options{
		Level:      level,
		File:       ExpandUser(self.Log.File),
		Color:      self.Log.Color,
		MaxSize:    self.Log.MaxSizeMB,
		MaxBackups: self.Log.MaxBackups,
		MaxAge:     self.Log.MaxAgeDays,
	}, nil
}

// Load reads a YAML or TOML file on top of Default() and validates it.
func Load(path string) (*Config, error) {
	path = ExpandUser(path)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(content, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes content according to the file extension (".yaml", ".yml" or ".toml").
func Parse(content []byte, ext string) (*Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(content))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	case ".toml":
		meta, err := toml.Decode(string(content), cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkDepth(name string, v int) error {
	if v <= 0 || v > MaxQueueDepth {
		return fmt.Errorf("%s must be within 1..%d, got %d", name, MaxQueueDepth, v)
	}
	return nil
}

// Validate reports every problem at once.
func (self *Config) Validate() error {
	var err error
	if _, lerr := logger.ParseLevel(self.Log.Level); lerr != nil {
		err = multierr.Append(err, lerr)
	}
	if self.Scheduler.TickMs <= 0 {
		err = multierr.Append(err, fmt.Errorf("scheduler.tick_ms must be positive, got %d", self.Scheduler.TickMs))
	}
	if self.Scheduler.EmergencyReserve <= 0 {
		err = multierr.Append(err, fmt.Errorf("scheduler.emergency_reserve must be positive, got %d", self.Scheduler.EmergencyReserve))
	}
	err = multierr.Append(err, checkDepth("scheduler.event_pool", self.Scheduler.EventPool))
	err = multierr.Append(err, checkDepth("scheduler.inbox_depth", self.Scheduler.InboxDepth))
	err = multierr.Append(err, checkDepth("scheduler.supervisor_queue", self.Scheduler.SupervisorQueue))
	err = multierr.Append(err, checkDepth("scheduler.motion_queue", self.Scheduler.MotionQueue))
	err = multierr.Append(err, checkDepth("scheduler.lighting_queue", self.Scheduler.LightingQueue))
	err = multierr.Append(err, checkDepth("scheduler.shutter_queue", self.Scheduler.ShutterQueue))
	err = multierr.Append(err, checkDepth("motion.waypoint_depth", self.Motion.WaypointDepth))
	err = multierr.Append(err, checkDepth("lighting.fade_depth", self.Lighting.FadeDepth))
	if self.Motion.TrackSpeed <= 0 {
		err = multierr.Append(err, fmt.Errorf("motion.track_speed must be positive, got %v", self.Motion.TrackSpeed))
	}

	if self.Motion.MinTrackMs < 0 || self.Motion.HomeTimeoutMs < 0 {
		err = multierr.Append(err, errors.New("motion timings must not be negative"))
	}

	seen := map[string]bool{}
	for _, name := range self.Sync.Participants {
		switch name {
		case ParticipantMotion, ParticipantLighting:
		default:
			err = multierr.Append(err, fmt.Errorf("sync.participants: unknown participant %q", name))
		}
		if seen[name] {
			err = multierr.Append(err, fmt.Errorf("sync.participants: %q listed twice", name))
		}
		seen[name] = true
	}
	return err
}

// Save writes the config as YAML and syncs it to disk.
func (self *Config) Save(path string) error {
	d, err := yaml.Marshal(self)
	if err != nil {
		return err
	}
	return WriteFileWithSync(ExpandUser(path), d)
}

func WriteFileWithSync(file string, data []byte) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}

	if _, err = f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
