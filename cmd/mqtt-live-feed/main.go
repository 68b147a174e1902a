package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mqtt-live-feed/config"
	"mqtt-live-feed/internal/connection"
	"mqtt-live-feed/internal/feed"
	"mqtt-live-feed/internal/lifecycle"
	"mqtt-live-feed/internal/logger"
	"mqtt-live-feed/internal/metrics"
	"mqtt-live-feed/internal/stats"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file (.yaml, .yml or .json)")

	// Optional override flags
	brokerOverride := flag.String("broker", "", "override broker address (empty = use config)")
	topicOverride := flag.String("topic", "", "override subscribed topic (empty = use config)")
	clientIDOverride := flag.String("client-id", "", "override client id (empty = use config or generate)")
	bufferSizeOverride := flag.Int("buffer-size", 0, "override message history size (0 = use config)")
	metricsAddrOverride := flag.String("metrics-addr", "", "override HTTP server address (empty = use config)")
	metricsPathOverride := flag.String("metrics-path", "", "override metrics endpoint path (empty = use config)")
	metricsIntervalOverride := flag.Duration("metrics-interval", 0, "override metrics collection interval (0 = use config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(
		*brokerOverride,
		*topicOverride,
		*clientIDOverride,
		*bufferSizeOverride,
		*metricsAddrOverride,
		*metricsPathOverride,
		*metricsIntervalOverride,
	)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	connCfg, factory, err := buildConnection(cfg, logger)
	if err != nil {
		logger.Fatal("failed to configure connection", "error", err)
	}

	statsCollector := stats.NewStatsCollector()
	opts := []connection.Option{
		connection.WithLogger(logger),
		connection.WithStats(statsCollector),
	}

	mux := http.NewServeMux()

	// Setup metrics if enabled
	var metricsCollector *metrics.MetricsCollector
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsService, err := metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		updateInterval, err := time.ParseDuration(cfg.Metrics.UpdateInterval)
		if err != nil {
			logger.Fatal("invalid metrics update interval", "error", err)
		}

		metricsCollector = metrics.NewMetricsCollector(metricsService, statsCollector, updateInterval)
		metricsCollector.Start()
		defer metricsCollector.Stop()

		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))
		opts = append(opts, connection.WithMetrics(metricsService))
	}

	manager, err := connection.NewManager(connCfg, factory, opts...)
	if err != nil {
		logger.Fatal("failed to create connection manager", "error", err)
	}

	feedServer := feed.NewServer(manager, feed.Options{
		Topic:  connCfg.Topic,
		Broker: connCfg.BrokerURI,
		Stats:  statsCollector,
		Logger: logger,
	})
	feedServer.Start()
	feedServer.Register(mux)

	httpServer := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting http server",
			"address", cfg.Metrics.Address,
			"metricsPath", cfg.Metrics.Path,
			"metricsEnabled", cfg.Metrics.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reconnect immediately when the host brings us back to the foreground
	monitor := lifecycle.NewMonitor(logger)
	monitor.OnForeground(manager.EnsureConnected)
	go func() {
		if err := monitor.Run(ctx, lifecycle.SignalSource(ctx)); err != nil && err != context.Canceled {
			logger.Error("lifecycle monitor stopped", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	if err := manager.Start(); err != nil {
		logger.Fatal("failed to start connection manager", "error", err)
	}

	logger.Info("mqtt-live-feed started",
		"transport", cfg.Transport,
		"broker", connCfg.BrokerURI,
		"clientId", connCfg.ClientID,
		"topic", connCfg.Topic,
		"bufferSize", cfg.Feed.BufferSize,
		"metricsEnabled", cfg.Metrics.Enabled)

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, reopening logs")
			logger.Sync()
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			feedServer.Close()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown http server", "error", err)
			}

			cancel()
			manager.Close()
			return
		}
	}
}
