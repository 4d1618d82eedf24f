package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mecattaf/smart-tiling/internal/config"
	"github.com/mecattaf/smart-tiling/internal/control"
	"github.com/mecattaf/smart-tiling/internal/engine"
	"github.com/mecattaf/smart-tiling/internal/ipc"
	"github.com/mecattaf/smart-tiling/internal/metrics"
	"github.com/mecattaf/smart-tiling/internal/proc"
	"github.com/mecattaf/smart-tiling/internal/rules"
	"github.com/mecattaf/smart-tiling/internal/scroll"
	"github.com/mecattaf/smart-tiling/internal/state"
	"github.com/mecattaf/smart-tiling/internal/util"
)

func main() {
	cfgPath := flag.String("config", config.DefaultPath(), "path to YAML rules config")
	dryRun := flag.Bool("dry-run", false, "log commands instead of sending them")
	logLevel := flag.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	fallback := flag.Bool("fallback", true, "split unmatched windows along their longer dimension")
	fallbackRatio := flag.Float64("fallback-ratio", 0, "width/height threshold for the fallback split (0 uses the golden ratio)")
	fallbackWidth := flag.Float64("fallback-width", 1, "width factor applied after a horizontal fallback split (1 disables)")
	fallbackHeight := flag.Float64("fallback-height", 1, "height factor applied after a vertical fallback split (1 disables)")
	enableMetrics := flag.Bool("metrics", true, "collect in-memory counters, readable via stctl")
	flag.Parse()

	logger := util.NewLogger(util.ParseLogLevel(*logLevel))

	if *cfgPath == "" {
		exitErr(fmt.Errorf("no config file found; pass -config"))
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		exitErr(fmt.Errorf("load config: %w", err))
	}
	cfgFullPath, err := filepath.Abs(*cfgPath)
	if err != nil {
		exitErr(fmt.Errorf("resolve config path: %w", err))
	}
	cfgFullPath = filepath.Clean(cfgFullPath)

	socketPath, err := ipc.SocketPath()
	if err != nil {
		exitErr(err)
	}
	client, err := ipc.Dial(socketPath, logger)
	if err != nil {
		exitErr(err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := state.NewStores()
	seq := scroll.NewSequencer(client, proc.NewInspector(), stores, logger, *dryRun)
	ruleEngine := rules.NewEngine(logger, cfg.Settings.RelationshipRetention)
	collector := metrics.NewCollector(*enableMetrics)
	eng := engine.New(client, socketPath, cfg, seq, ruleEngine, stores, collector, logger, engine.Options{
		DryRun:               *dryRun,
		Fallback:             *fallback,
		FallbackRatio:        *fallbackRatio,
		FallbackWidthFactor:  *fallbackWidth,
		FallbackHeightFactor: *fallbackHeight,
	})
	eng.Reload(cfg)

	reloadRequests, err := watchConfig(ctx, logger, cfgFullPath)
	if err != nil {
		exitErr(fmt.Errorf("watch config: %w", err))
	}

	reload := func(reason string) error {
		logger.Infof("%s, reloading config", reason)
		cfg, err := config.Load(cfgFullPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		eng.Reload(cfg)
		return nil
	}

	ctrlSrv, err := control.NewServer(eng, logger, reload)
	if err != nil {
		exitErr(fmt.Errorf("start control server: %w", err))
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	errs := make(chan error, 2)
	go func() {
		errs <- eng.Run(ctx)
	}()
	go func() {
		errs <- ctrlSrv.Serve(ctx)
	}()

	for {
		select {
		case err := <-errs:
			if err != nil && err != context.Canceled {
				logger.Errorf("engine exited: %v", err)
				os.Exit(1)
			}
			logger.Infof("engine stopped")
			return
		case reason := <-reloadRequests:
			if err := reload(reason); err != nil {
				logger.Errorf("reload failed: %v", err)
			}
		case sig := <-sigs:
			switch sig {
			case syscall.SIGHUP:
				if err := reload("received SIGHUP"); err != nil {
					logger.Errorf("reload failed: %v", err)
				}
			case os.Interrupt, syscall.SIGTERM:
				logger.Infof("received %s, shutting down", sig)
				cancel()
			}
		}
	}
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
