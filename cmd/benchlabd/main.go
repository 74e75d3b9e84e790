// cmd/benchlabd/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/tamzrod/benchlab-telemetry/internal/config"
	"github.com/tamzrod/benchlab-telemetry/internal/daemon"
	"github.com/tamzrod/benchlab-telemetry/internal/export"
	"github.com/tamzrod/benchlab-telemetry/internal/httpapi"
	"github.com/tamzrod/benchlab-telemetry/internal/metrics"
	"github.com/tamzrod/benchlab-telemetry/internal/publish"
)

const usage = `usage: benchlabd [run|scan|validate] [flags]

  run       discover devices, poll them and serve telemetry (default)
  scan      probe candidate ports once and print what answered
  validate  load and validate the configuration, then exit
`

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var (
		cfgPath string
		listen  string
	)
	flags := pflag.NewFlagSet("benchlabd "+cmd, pflag.ExitOnError)
	flags.StringVarP(&cfgPath, "config", "c", "", "path to YAML config (defaults apply when omitted)")
	flags.StringVar(&listen, "listen", "", "HTTP listen address, overrides http.listen")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	_ = flags.Parse(args)

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.ApplyEnv(cfg, os.Getenv); err != nil {
		log.Fatalf("config env failed: %v", err)
	}
	if listen != "" {
		cfg.HTTP.Listen = listen
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "validate":
		fmt.Println("config ok")
	case "scan":
		runScan(ctx, cfg, logger)
	case "run":
		if err := run(ctx, cfg, logger); err != nil {
			log.Fatalf("benchlabd: %v", err)
		}
	default:
		flags.Usage()
		os.Exit(2)
	}
}

func newLogger(c config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runScan(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	d, err := daemon.New(cfg, daemon.Options{Logger: logger})
	if err != nil {
		log.Fatalf("daemon build failed: %v", err)
	}
	defer d.Registry().Close()

	found := 0
	for _, c := range d.ScanOnce(ctx) {
		if c.Err != nil {
			fmt.Printf("%-24s  error: %v\n", c.Port, c.Err)
			continue
		}
		found++
		fmt.Printf("%-24s  uid=%s firmware=%d\n", c.Port, c.Identity.UID, c.Identity.Firmware)
	}
	fmt.Printf("%d device(s) found\n", found)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// --------------------
	// Metrics
	// --------------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// --------------------
	// Modbus export (optional)
	// --------------------

	var exp *export.Exporter
	var closeExport func() error
	plans, err := export.BuildPlans(cfg.Export)
	if err != nil {
		return fmt.Errorf("export plan: %w", err)
	}

	var onError func(uid string, err error)
	var exportClients map[string]*export.EndpointClient
	if len(plans) > 0 {
		exportClients, closeExport, err = export.BuildEndpointClients(cfg.Export)
		if err != nil {
			return fmt.Errorf("export clients: %w", err)
		}
		defer closeExport()

		// The exporter needs the gateway, which the daemon builds; the
		// error hook is bound late through this closure.
		onError = func(uid string, err error) {
			if exp != nil {
				exp.ReportError(uid, err)
			}
		}
	}

	// --------------------
	// Core
	// --------------------

	d, err := daemon.New(cfg, daemon.Options{
		Logger:  logger,
		Metrics: m,
		OnError: onError,
	})
	if err != nil {
		return err
	}
	gw := d.Gateway()

	if len(plans) > 0 {
		exp = export.New(gw, plans, exportClients, export.Options{Logger: logger})
	}

	var wg sync.WaitGroup
	adapters, stopAdapters := context.WithCancel(context.Background())
	defer stopAdapters()

	if exp != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exp.Run(adapters)
		}()
		logger.Info("modbus export enabled", "devices", len(plans))
	}

	// --------------------
	// MQTT bridge (optional)
	// --------------------

	if cfg.MQTT.Enabled {
		client, err := publish.Dial(publish.ClientOptions{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			QoS:            cfg.MQTT.QoS,
			ConnectTimeout: time.Duration(cfg.MQTT.ConnectTimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		bridge := publish.NewBridge(gw, client, publish.Options{
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Sweep:       time.Duration(cfg.MQTT.SweepSeconds) * time.Second,
			Logger:      logger,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			bridge.Run(adapters)
		}()
		logger.Info("mqtt bridge enabled", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
	}

	// --------------------
	// HTTP
	// --------------------

	srv := &http.Server{
		Addr: cfg.HTTP.Listen,
		Handler: httpapi.NewHandler(gw, httpapi.Options{
			Logger:       logger,
			WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutMs) * time.Millisecond,
			Gatherer:     reg,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTP.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	// --------------------
	// Run until signalled
	// --------------------

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	daemonDone := make(chan error, 1)
	go func() { daemonDone <- d.Run(runCtx) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-srvErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	// Order: adapters, pollers and gateway, then the HTTP server.
	stopAdapters()
	wg.Wait()

	cancelRun()
	if err := <-daemonDone; err != nil && runErr == nil {
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownTimeoutMs)*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	return runErr
}
