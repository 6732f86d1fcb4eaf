package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"web/resalegeo/app"
	"web/resalegeo/artifact"
	"web/resalegeo/config"
	"web/resalegeo/metrics"
	"web/resalegeo/table"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	output := flag.String("output", "", "Training frame CSV (overrides config)")
	overpass := flag.Bool("overpass", false, "Fetch stations from the Overpass API instead of the exit file")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *output != "" {
		cfg.Data.Output = *output
	}
	if *overpass {
		cfg.Overpass.Enabled = true
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
	logger := cfg.NewLogger(false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	training, err := app.NewTraining(ctx, cfg, logger, metrics.New())
	if err != nil {
		logger.Error("failed to set up training", "error", err)
		os.Exit(1)
	}
	defer training.Close()

	res, err := training.Train(ctx, cfg, logger)
	if err != nil {
		if res != nil {
			logger.Error("training finished with errors", "run", res.Run.ID, "files", len(res.Paths), "error", err)
		} else {
			logger.Error("training failed", "error", err)
		}
		os.Exit(1)
	}

	if cfg.Data.Output != "" {
		if err := writeFrame(cfg.Data.Output, res.Frame); err != nil {
			logger.Error("failed to write training frame", "path", cfg.Data.Output, "error", err)
			os.Exit(1)
		}
	}

	for _, p := range res.Paths {
		size := int64(0)
		if info, err := os.Stat(p); err == nil {
			size = info.Size()
		}
		fmt.Printf("%-70s %10s\n", filepath.Base(p), artifact.FormatFileSize(size))
	}
	fmt.Printf("Run %s: %d records, %d columns, %d dropped, %v\n",
		res.Run.ID, len(res.Frame.Rows), len(res.Run.Schema.Columns), res.Dropped, res.Elapsed)
}

func writeFrame(path string, f *table.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := table.WriteCSV(w, f); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Sync()
}
