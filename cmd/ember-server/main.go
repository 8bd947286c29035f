package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/emberops/ember/internal/adapter/prometheus"
	"github.com/emberops/ember/internal/adapter/synthetic"
	"github.com/emberops/ember/internal/api"
	"github.com/emberops/ember/internal/config"
	"github.com/emberops/ember/internal/log"
	logrusadapter "github.com/emberops/ember/internal/log/logrus"
	"github.com/emberops/ember/internal/manager"
	"github.com/emberops/ember/internal/provider"
	"github.com/emberops/ember/internal/slo"
	"github.com/emberops/ember/internal/storage"
	"github.com/emberops/ember/internal/storage/memory"
	"github.com/emberops/ember/internal/storage/sqlite"
	"github.com/emberops/ember/internal/telemetry"
)

func main() {
	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() error {
	cfg, err := parseFlags()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Infof("starting ember server")

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	recorder := telemetry.NewRecorder()
	providers := provider.NewRegistry()

	switch cfg.AdapterType {
	case "prometheus":
		adapter := prometheus.NewAdapter(prometheus.DefaultConfig(cfg.PrometheusURL))
		providers.Register(slo.SourcePrometheus, adapter)
		logger.Infof("using Prometheus adapter: %s", cfg.PrometheusURL)
	case "synthetic":
		adapter := synthetic.NewAdapter()
		if cfg.SyntheticFixSet != "" {
			if err := adapter.LoadFixtures(cfg.SyntheticFixSet); err != nil {
				return fmt.Errorf("load synthetic fixtures: %w", err)
			}
			logger.Infof("using synthetic adapter with fixtures from %s", cfg.SyntheticFixSet)
		} else {
			logger.Infof("using synthetic adapter")
		}
		// The synthetic adapter serves every source kind so fixture-backed
		// definitions work regardless of their declared source.
		for _, source := range []slo.MetricSource{
			slo.SourcePrometheus, slo.SourceCustom, slo.SourceLogs,
			slo.SourceTraces, slo.SourceSynthetic,
		} {
			providers.Register(source, adapter)
		}
	}

	mgr, err := manager.New(manager.Options{
		Store:               store,
		Providers:           providers,
		Logger:              logger,
		Telemetry:           recorder,
		MeasurementInterval: cfg.MeasurementInterval.Std(),
		RetentionDays:       cfg.RetentionDays,
		QueryTimeout:        cfg.QueryTimeout.Std(),
		AlertingEnabled:     cfg.Alerting.Enabled,
		BurnRateAlerts:      cfg.Alerting.BurnRateAlerts,
		WarningDefault:      cfg.Alerting.DefaultWarningThreshold,
		CriticalDefault:     cfg.Alerting.DefaultCriticalThreshold,
	})
	if err != nil {
		return err
	}

	if cfg.SLODirectory != "" {
		if err := loadDeclaredSLOs(mgr, cfg, logger); err != nil {
			return err
		}
	}

	if err := mgr.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	server := api.NewServer(api.Config{
		Addr:          fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Manager:       mgr,
		Providers:     providers,
		Logger:        logger,
		Telemetry:     recorder,
		DefaultPeriod: cfg.Reporting.DefaultPeriod,
	})

	var group run.Group

	{
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		done := make(chan struct{})
		group.Add(
			func() error {
				select {
				case sig := <-sigCh:
					logger.Infof("received signal %v", sig)
					return nil
				case <-done:
					return nil
				}
			},
			func(_ error) {
				close(done)
			},
		)
	}

	{
		group.Add(
			func() error {
				return server.Start()
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout.Std())
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					logger.Errorf("server shutdown: %v", err)
				}
				mgr.Stop()
			},
		)
	}

	err = group.Run()
	logger.Infof("shutdown complete")
	return err
}

func parseFlags() (config.Config, error) {
	cfg := config.DefaultConfig()

	configFile := flag.String("config", "", "path to YAML config file")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "HTTP server host")
	flag.StringVar(&cfg.SLODirectory, "slo-dir", cfg.SLODirectory, "directory containing SLO YAML files")
	flag.StringVar(&cfg.SchemaPath, "schema", cfg.SchemaPath, "path to SLO JSON schema")
	flag.StringVar(&cfg.AdapterType, "adapter", cfg.AdapterType, "metrics adapter type (prometheus|synthetic)")
	flag.StringVar(&cfg.PrometheusURL, "prometheus-url", cfg.PrometheusURL, "Prometheus server URL")
	flag.StringVar(&cfg.SyntheticFixSet, "synthetic-fixtures", cfg.SyntheticFixSet, "path to synthetic fixture file")
	flag.StringVar(&cfg.StorageType, "storage", cfg.StorageType, "storage backend (memory|sqlite)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	flag.Parse()

	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			return cfg, err
		}
		// Flags win over the file.
		flag.Parse()
	}

	return cfg, nil
}

func newLogger(level string) log.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if parsed, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(parsed)
	}
	return logrusadapter.NewLogrus(logrus.NewEntry(l))
}

func newStore(cfg config.Config) (storage.Store, error) {
	switch cfg.StorageType {
	case "sqlite":
		return sqlite.NewStore(cfg.DBPath)
	default:
		return memory.NewStore(), nil
	}
}

// loadDeclaredSLOs validates and registers SLO definitions declared as
// YAML files. Files that fail validation abort startup so a bad edit
// cannot silently drop an SLO.
func loadDeclaredSLOs(mgr *manager.Manager, cfg config.Config, logger log.Logger) error {
	validator, err := slo.NewValidator(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("initialize validator: %w", err)
	}
	if fileErrs := validator.ValidateDirectory(cfg.SLODirectory); len(fileErrs) > 0 {
		for _, fe := range fileErrs {
			logger.Errorf("%s", fe.Error())
		}
		return fmt.Errorf("%d invalid SLO file(s) in %s", len(fileErrs), cfg.SLODirectory)
	}

	docs, fileErrs := slo.LoadFromDirectory(cfg.SLODirectory)
	if len(fileErrs) > 0 {
		for _, fe := range fileErrs {
			logger.Errorf("%s", fe.Error())
		}
		return fmt.Errorf("failed to load SLO files from %s", cfg.SLODirectory)
	}

	for _, doc := range docs {
		def := doc.Document.Definition()
		existing, err := mgr.GetSLO(def.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if _, err := mgr.UpdateSLO(def); err != nil {
				return fmt.Errorf("%s: %w", doc.File, err)
			}
			continue
		}
		if _, err := mgr.CreateSLO(def); err != nil {
			return fmt.Errorf("%s: %w", doc.File, err)
		}
	}

	logger.Infof("loaded %d SLO definitions from %s", len(docs), cfg.SLODirectory)
	return nil
}
