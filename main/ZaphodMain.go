package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/coolcm/zaphod-bot/common/config"
	"github.com/coolcm/zaphod-bot/common/logger"
	"github.com/coolcm/zaphod-bot/common/utils/sys"
	"github.com/coolcm/zaphod-bot/project"
	"github.com/coolcm/zaphod-bot/project/console"
	"github.com/coolcm/zaphod-bot/project/event"
	"github.com/coolcm/zaphod-bot/project/simulated"
)

func main() {
	configPath := flag.String("config", "", "controller config (.yaml, .yml or .toml)")
	level := flag.String("log-level", "", "override log.level")
	port := flag.String("console", "", "serial port for the bench console, default stdin")
	writeDefault := flag.String("write-default", "", "write the default config to this path and exit")
	flag.Parse()

	if *writeDefault != "" {
		if err := config.Default().Save(*writeDefault); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if *port != "" {
		cfg.Console.Port = *port
	}
	opts, err := cfg.LoggerOptions()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.InitLogger(opts)
	defer logger.Sync()
	logger.Debugf("main thread %d running", sys.GetGID())

	zaphod, err := project.NewZaphod(cfg, func(inbox event.Publisher) project.Hardware {
		return project.Hardware{
			Sink:      simulated.NewServos(simulated.DefaultEnvelope),
			Driver:    simulated.NewLEDs(),
			Mechanism: simulated.NewMechanism(inbox),
			Trigger:   simulated.NewShutter(),
		}
	})
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var link io.ReadWriter = struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	if cfg.Console.Port != "" {
		serialLink, err := console.OpenSerial(cfg.Console.Port, cfg.Console.Baud)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer serialLink.Close()
		link = serialLink
	}
	go func() {
		if err := console.NewConsole(zaphod.Host(), link, link).Serve(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("console stopped: %v", err)
		}
	}()

	if err := zaphod.Main(ctx); err != nil {
		logger.Errorf("background loop: %v", err)
	}
}
