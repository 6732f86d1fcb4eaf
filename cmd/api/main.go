package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"web/resalegeo/api"
	"web/resalegeo/config"
	"web/resalegeo/metrics"
	"web/resalegeo/runner"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	runnerAddr := flag.String("runner", "localhost:50051", "Feature runner gRPC address")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	timeout := flag.Duration("timeout", 15*time.Second, "Per-request backend timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		config.Default().NewLogger(true).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.HTTPAddr = *addr
	}
	logger := cfg.NewLogger(true).With("service", "api")

	// Connect to feature runner
	client, err := runner.Dial(*runnerAddr)
	if err != nil {
		logger.Error("failed to connect to feature runner", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if st, err := client.Status(context.Background()); err == nil && st.Loaded {
		logger.Info("runner has an active run", "run", st.RunID, "columns", st.Columns)
	}

	m := metrics.New()
	server := api.NewServer(client, api.Options{
		Observer: m,
		Metrics:  m.Handler(),
		Logger:   logger,
		Timeout:  *timeout,
	})
	srv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: server.Router()}

	// Create a channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr, "runner", *runnerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
