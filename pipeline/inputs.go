package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"web/resalegeo/cluster"
	"web/resalegeo/config"
	"web/resalegeo/features"
	"web/resalegeo/source"
	"web/resalegeo/table"
)

// StationSource supplies transit reference points from a live service.
type StationSource interface {
	Fetch(ctx context.Context) ([]cluster.ReferencePoint, source.Stats, error)
}

// LoadInput reads the datasets named in cfg. When stations is non-nil it
// replaces the station exit file.
func LoadInput(ctx context.Context, cfg config.DataConfig, stations StationSource, logger *slog.Logger) (TrainInput, error) {
	in := TrainInput{Points: make(map[string][]cluster.ReferencePoint)}

	var (
		transit []cluster.ReferencePoint
		stats   source.Stats
		err     error
	)
	if stations != nil {
		transit, stats, err = stations.Fetch(ctx)
	} else {
		var f *table.Frame
		if f, err = table.ReadCSVFile(cfg.StationExits); err == nil {
			transit, stats, err = source.StationExits(f)
		}
	}
	if err != nil {
		return in, fmt.Errorf("failed to load stations: %w", err)
	}
	logger.Info("loaded stations", "rows", stats.Rows, "stations", stats.Points, "skipped", stats.Skipped)
	in.Points[cluster.TransitSchema().Entity] = transit

	f, err := table.ReadCSVFile(cfg.Schools)
	if err != nil {
		return in, fmt.Errorf("failed to load schools: %w", err)
	}
	schools, stats, err := source.Schools(f)
	if err != nil {
		return in, fmt.Errorf("failed to load schools: %w", err)
	}
	logger.Info("loaded schools", "rows", stats.Rows, "schools", stats.Points, "skipped", stats.Skipped)
	in.Points[cluster.SchoolSchema().Entity] = schools

	resale, err := table.ReadCSVFile(cfg.Resale)
	if err != nil {
		return in, fmt.Errorf("failed to load resale records: %w", err)
	}
	in.Resale = resale.Rows
	logger.Info("loaded resale records", "rows", len(in.Resale))

	return in, nil
}

// LoadMacro reads the stock and unemployment series. A missing file leaves
// its table nil, so lookups fall back to the policy default.
func LoadMacro(cfg config.DataConfig, logger *slog.Logger) (stock, unemployment *features.MacroTable, err error) {
	load := func(path string, build func(*table.Frame) (*features.MacroTable, error)) (*features.MacroTable, error) {
		if path == "" {
			return nil, nil
		}
		f, err := table.ReadCSVFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("macro series not found, using defaults", "path", path)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		t, err := build(f)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded macro series", "name", t.Name, "months", t.Len())
		return t, nil
	}

	if stock, err = load(cfg.Stock, features.StockTable); err != nil {
		return nil, nil, err
	}
	if unemployment, err = load(cfg.Unemployment, features.UnemploymentTable); err != nil {
		return nil, nil, err
	}
	return stock, unemployment, nil
}
