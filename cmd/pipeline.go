package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vintage-cli/internal/consolidate"
	"github.com/sells-group/vintage-cli/internal/forecast"
	"github.com/sells-group/vintage-cli/internal/report"
	"github.com/sells-group/vintage-cli/internal/revision"
	"github.com/sells-group/vintage-cli/internal/store"
	"github.com/sells-group/vintage-cli/internal/vintage"
)

// ingestResult is everything a consolidate pass produced.
type ingestResult struct {
	Files []string
	Batch *vintage.BatchResult
	Table *consolidate.Table
}

// ingestDir discovers, parses and merges the vintage files in rawDir.
func ingestDir(ctx context.Context, rawDir string) (*ingestResult, error) {
	files, err := vintage.DiscoverFiles(rawDir, cfg.Ingest.Patterns)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, eris.Errorf("no vintage files matching %v in %s", cfg.Ingest.Patterns, rawDir)
	}

	batch, err := vintage.ParseFiles(ctx, files, vintage.Options{UseModTime: cfg.Ingest.UseModTimeFallback}, cfg.Ingest.Concurrency)
	if err != nil {
		return nil, err
	}

	table := consolidate.Merge(batch.Records)
	if err := table.Validate(); err != nil {
		return nil, eris.Wrapf(err, "consolidate %s", rawDir)
	}
	return &ingestResult{Files: files, Batch: batch, Table: table}, nil
}

// loadTable reads the consolidated table from a CSV file, or from the store when
// fromStore is set.
func loadTable(ctx context.Context, input string, fromStore bool) (*consolidate.Table, error) {
	if fromStore {
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		defer st.Close() //nolint:errcheck

		obs, err := st.LoadObservations(ctx)
		if err != nil {
			return nil, err
		}
		zap.L().Info("loaded consolidated table from store", zap.Int("rows", len(obs)))
		return consolidate.FromObservations(obs), nil
	}

	if input == "" {
		input = cfg.Report.ConsolidatedFile
	}
	obs, err := report.ReadConsolidatedFile(ctx, input)
	if err != nil {
		return nil, err
	}
	zap.L().Info("loaded consolidated table", zap.String("path", input), zap.Int("rows", len(obs)))
	return consolidate.FromObservations(obs), nil
}

func revisionOptions() revision.Options {
	return revision.Options{
		MinBucketSize: cfg.Revision.MinBucketSize,
		AgeBasis:      revision.AgeBasis(cfg.Revision.AgeBasis),
	}
}

// forecastOptions builds forecast options from config; horizon overrides the
// configured horizon when positive.
func forecastOptions(horizon int) forecast.Options {
	if horizon <= 0 {
		horizon = cfg.Forecast.Horizon
	}
	return forecast.Options{
		Horizon:             horizon,
		MinHistory:          cfg.Forecast.MinHistory,
		SeasonLength:        cfg.Forecast.SeasonLength,
		ResidualMultiplier:  cfg.Forecast.ResidualMultiplier,
		ComparableAgeWindow: cfg.Forecast.ComparableAgeWindow,
		MinBucketSize:       cfg.Revision.MinBucketSize,
	}
}
