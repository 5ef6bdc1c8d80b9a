package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DebugLevel,
		"":        InfoLevel,
		" INFO ":  InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}

func TestNamedWithoutLogger(t *testing.T) {
	saved := Logger
	defer SetLogger(saved)

	SetLogger(nil)
	l := Named("motion")
	if l == nil {
		t.Fatalf("Named must never return nil")
	}
	l.Infof("dropped %d", 1)
	Infof("dropped %d", 2)
}

func TestInitLoggerWritesFile(t *testing.T) {
	saved := Logger
	defer SetLogger(saved)

	file := filepath.Join(t.TempDir(), "zaphod.log")
	InitLogger(Options{Level: InfoLevel, File: file, MaxSize: 1})
	Named("supervisor").Infof("armed after %d ms", 42)
	Debugf("below threshold")
	Sync()

	content, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "armed after 42 ms") || !strings.Contains(text, "supervisor") {
		t.Fatalf("unexpected log content %q", text)
	}
	if strings.Contains(text, "below threshold") {
		t.Fatalf("debug line should be filtered at info level")
	}
	if strings.Contains(text, "\x1b[") {
		t.Fatalf("file output must not carry colour escapes")
	}
}
