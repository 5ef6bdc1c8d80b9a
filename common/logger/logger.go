package logger

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
)

type LogLevel int8

const (
	DebugLevel LogLevel = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Options describes where and how the controller logs.
// An empty File keeps logging on the console only.
type Options struct {
	Level      LogLevel
	File       string
	Color      bool
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// ParseLevel maps a config level name onto a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", name)
}

func newEncoder(color bool) zapcore.Encoder {
	levelEncoder := zapcore.CapitalLevelEncoder
	if color {
		levelEncoder = zapcore.CapitalColorLevelEncoder
	}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		TimeKey:          "time",
		CallerKey:        "caller",
		NameKey:          "logger",
		EncodeLevel:      levelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}

	return zapcore.NewConsoleEncoder(encoderConfig)
}

func newConsoleCore(encoder zapcore.Encoder, level zapcore.Level) zapcore.Core {
	return zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
}

func newFileCore(encoder zapcore.Encoder, level zapcore.Level, opts Options) zapcore.Core {
	logFile := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   false,
		LocalTime:  true,
	}

	return zapcore.NewCore(encoder, zapcore.AddSync(logFile), level)
}

func InitLogger(opts Options) {
	level := zapcore.Level(opts.Level)
	cores := []zapcore.Core{newConsoleCore(newEncoder(opts.Color), level)}
	if opts.File != "" {
		// colour escapes are never written to the rotated file
		cores = append(cores, newFileCore(newEncoder(false), level, opts))
	}
	Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
}

// SetLogger replaces the global logger, nil disables logging entirely.
func SetLogger(l *zap.Logger) {
	Logger = l
}

// Named returns a child logger tagged with the owning task name.
// It never returns nil so callers can log unconditionally.
func Named(name string) *zap.SugaredLogger {
	if Logger == nil {
		return zap.NewNop().Sugar()
	}
	return Logger.WithOptions(zap.AddCallerSkip(-1)).Named(name).Sugar()
}

func Sync() {
	if Logger != nil {
		err := Logger.Sync()
		if err != nil && !strings.Contains(err.Error(), "inappropriate ioctl") {
			log.Printf("failed to sync logger: %v", err)
		}
	}
}

func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Infof(format, args...)
	}
}

func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Info(args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Debugf(format, args...)
	}
}

func Debug(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Debug(args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Warnf(format, args...)
	}
}

func Warn(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Warn(args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Errorf(format, args...)
	}
}

func Error(args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Error(args...)
	}
}

func Panicf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	if Logger != nil {
		Logger.Sync()
		Logger.Panic(message)
	}
	panic(message)
}

func Fatalf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	if Logger != nil {
		Logger.Sync()
		Logger.Fatal(message)
	}
	fmt.Fprintln(os.Stderr, message)
	os.Exit(1)
}
