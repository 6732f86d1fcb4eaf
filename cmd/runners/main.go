package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"web/resalegeo/app"
	"web/resalegeo/config"
	"web/resalegeo/events"
	"web/resalegeo/metrics"
	"web/resalegeo/runner"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	addr := flag.String("addr", "", "gRPC listen address (overrides config)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus listen address, empty to disable")
	maxRuns := flag.Int("max-runs", 0, "Maximum number of runs to keep in memory (overrides config)")
	idle := flag.Duration("idle", 30*time.Minute, "Unload inactive runs unused for this long")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		config.Default().NewLogger(true).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.GRPCAddr = *addr
	}
	if *maxRuns > 0 {
		cfg.Server.MaxLoadedRuns = *maxRuns
	}
	logger := cfg.NewLogger(true).With("service", "runner")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	inference, err := app.NewInference(ctx, cfg, logger, m)
	if err != nil {
		logger.Error("failed to start inference", "error", err)
		os.Exit(1)
	}
	defer inference.Close()

	if cfg.NATS.URL != "" {
		bus, err := events.Connect(cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		err = bus.SubscribeRuns(func(ev events.RunPublished) {
			logger.Info("run published", "run", ev.RunID, "entities", ev.Entities, "rows", ev.Rows)
			inference.Loader.HandleRunPublished(ctx, ev)
		})
		if err != nil {
			logger.Error("failed to subscribe to run events", "error", err)
			os.Exit(1)
		}
	}

	go inference.Loader.Run(ctx, time.Minute, *idle, cfg.Server.ReloadInterval)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		runner.ObserveInterceptor(m),
		runner.RecoverInterceptor(logger),
	))
	runner.RegisterFeatureServiceServer(s, runner.NewServer(inference.Service))

	// Enable reflection for debugging
	reflection.Register(s)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down gRPC server")
		s.GracefulStop()
	}()

	logger.Info("starting gRPC server", "addr", cfg.Server.GRPCAddr)
	if err := s.Serve(lis); err != nil {
		logger.Error("failed to serve", "error", err)
		os.Exit(1)
	}
}
