package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/config"
	eventsourcev1 "github.com/kubescape/process-monitor/pkg/eventsource/v1"
	"github.com/kubescape/process-monitor/pkg/handoff"
	"github.com/kubescape/process-monitor/pkg/healthmanager"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	metricprometheus "github.com/kubescape/process-monitor/pkg/metricsmanager/prometheus"
	"github.com/kubescape/process-monitor/pkg/processevent"
	"github.com/kubescape/process-monitor/pkg/sinks"
	subscriptionmanagerv1 "github.com/kubescape/process-monitor/pkg/subscriptionmanager/v1"
	"github.com/kubescape/process-monitor/pkg/utils"
	"go.uber.org/multierr"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	configDir := "/etc/config"
	if envPath := os.Getenv("CONFIG_DIR"); envPath != "" {
		configDir = envPath
	}

	logger.L().SetWriter(os.Stderr)

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		logger.L().Ctx(ctx).Error("load config error", helpers.Error(err))
		return utils.ExitCodeError
	}

	if err := logger.L().SetLevel(cfg.LogLevel); err != nil {
		logger.L().Warning("invalid log level, keeping default", helpers.String("logLevel", cfg.LogLevel), helpers.Error(err))
	}

	if cfg.EnableProfiler {
		logger.L().Info("starting profiler on port 6060")
		go func() {
			_ = http.ListenAndServe("localhost:6060", nil)
		}()
	}

	if cfg.PyroscopeServer != "" {
		logger.L().Info("starting pyroscope profiler")

		if os.Getenv("APPLICATION_NAME") == "" {
			os.Setenv("APPLICATION_NAME", "process-monitor")
		}
		hostname, _ := os.Hostname()

		_, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: os.Getenv("APPLICATION_NAME"),
			ServerAddress:   cfg.PyroscopeServer,
			Logger:          pyroscope.StandardLogger,
			Tags:            map[string]string{"host": hostname, "app": "process-monitor"},
		})

		if err != nil {
			logger.L().Ctx(ctx).Error("error starting pyroscope", helpers.Error(err))
		}
	}

	var metrics metricsmanager.MetricsManager
	if cfg.EnablePrometheusExporter {
		metrics = metricprometheus.NewPrometheusMetric(cfg.MetricsPort)
	} else {
		metrics = metricsmanager.NewMetricsMock()
	}
	metrics.Start()
	defer metrics.Destroy()

	events := handoff.New[processevent.ProcessEvent]()

	sink, err := sinks.InitSink(cfg.Sinks, os.Stdout, os.Stdin, metrics)
	if err != nil {
		logger.L().Ctx(ctx).Error("error creating sink", helpers.Error(err))
		return utils.ExitCodeError
	}

	source := eventsourcev1.NewNetlinkSource(cfg.ProcfsPath)
	subscriptionManager := subscriptionmanagerv1.CreateSubscriptionManager(subscriptionmanagerv1.Config{
		MaxAttempts:           cfg.Subscription.MaxAttempts,
		RetryDelay:            cfg.Subscription.RetryDelay,
		ReconnectOnDisconnect: cfg.Subscription.ReconnectOnDisconnect,
	}, source, events, metrics)

	var healthManager *healthmanager.HealthManager
	if cfg.EnableHealthProbes {
		healthManager = healthmanager.NewHealthManager(cfg.HealthPort)
		healthManager.SetSubscriptionManager(subscriptionManager)
		healthManager.Start(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	subscriptionManager.Start(ctx)

	sinkDone := make(chan error, 1)
	go func() {
		sinkDone <- sink.Run(ctx, events)
	}()
	logger.L().Info("process monitor started", helpers.String("sink", sink.Name()))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var sinkErr error
	sinkFinished := false
	select {
	case sig := <-shutdown:
		logger.L().Info("received signal, shutting down", helpers.String("signal", sig.String()))
	case <-subscriptionManager.Done():
		logger.L().Info("subscription manager finished, shutting down")
	case sinkErr = <-sinkDone:
		sinkFinished = true
		logger.L().Info("sink finished, shutting down", helpers.String("sink", sink.Name()))
	}

	cancel()
	subscriptionManager.Stop()
	if !sinkFinished {
		sinkErr = <-sinkDone
	}

	errs := multierr.Combine(subscriptionManager.Err(), sinkErr)
	if healthManager != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = multierr.Append(errs, healthManager.Stop(stopCtx))
		stopCancel()
	}

	if errs != nil {
		for _, err := range multierr.Errors(errs) {
			logger.L().Error("process monitor stopped with error", helpers.Error(err))
		}
		return utils.ExitCodeError
	}
	return utils.ExitCodeSuccess
}
