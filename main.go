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
	"web/resalegeo/app"
	"web/resalegeo/config"
	"web/resalegeo/metrics"
)

// Standalone server: trains on demand and serves inference in-process,
// without a separate runner.
func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	train := flag.Bool("train", false, "Run the training pipeline before serving")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		config.Default().NewLogger(true).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.HTTPAddr = *addr
	}
	logger := cfg.NewLogger(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	if *train {
		training, err := app.NewTraining(ctx, cfg, logger, m)
		if err != nil {
			logger.Error("failed to set up training", "error", err)
			os.Exit(1)
		}
		res, err := training.Train(ctx, cfg, logger)
		training.Close()
		if err != nil {
			logger.Error("training failed", "error", err)
			os.Exit(1)
		}
		logger.Info("trained run", "run", res.Run.ID, "records", len(res.Frame.Rows), "elapsed", res.Elapsed)
	}

	inference, err := app.NewInference(ctx, cfg, logger, m)
	if err != nil {
		logger.Error("failed to start inference", "error", err)
		os.Exit(1)
	}
	defer inference.Close()
	go inference.Loader.Run(ctx, time.Minute, 30*time.Minute, cfg.Server.ReloadInterval)

	server := api.NewServer(inference.Service, api.Options{
		Observer: m,
		Metrics:  m.Handler(),
		Logger:   logger,
	})
	srv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: server.Router()}

	go func() {
		logger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
