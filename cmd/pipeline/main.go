package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/placesdata/pipeline"
	"github.com/placesdata/pipeline/config"
	"github.com/placesdata/pipeline/internal/analytics"
	"github.com/placesdata/pipeline/internal/transform"
	"github.com/placesdata/pipeline/internal/tui"
	"github.com/placesdata/pipeline/internal/warehouse"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	initLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	stage := config.Stage(flag.Arg(0))
	if stage == "" {
		stage = config.StageExtract
	}

	switch stage {
	case config.StageExtract:
		err = runExtract(ctx, cfg)
	case config.StageTransform:
		_, err = transform.Run(cfg)
	case config.StageTrain:
		err = analytics.Run(cfg)
	case config.StageLoad:
		if !cfg.Warehouse.Enabled {
			zap.S().Fatalw("warehouse loader is disabled in configuration")
		}
		err = warehouse.Run(ctx, cfg)
	default:
		zap.S().Fatalw("unknown stage", "stage", stage)
	}
	if err != nil {
		zap.S().Errorw("pipeline failed", "stage", stage, "error", err)
		os.Exit(1)
	}
	zap.S().Infow("pipeline completed successfully", "stage", stage)
}

func runExtract(ctx context.Context, cfg *config.Config) error {
	observers := []pipeline.RunObserver{pipeline.LogReporter{}}
	if cfg.Metrics.Enabled {
		pipeline.StartMetricsServer(ctx, cfg.Metrics.Port)
		observers = append(observers, pipeline.PromObserver{})
	}
	var events *pipeline.ChannelObserver
	if cfg.Run.EnableTUI {
		events = pipeline.NewChannelObserver(64)
		observers = append(observers, events)
	}

	extractor := pipeline.NewExtractor(cfg, observers...)

	var table *pipeline.Table
	var extractErr error
	if events != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer events.Close()
			table, extractErr = extractor.Extract(ctx)
		}()
		if err := tui.Run(events.C); err != nil {
			zap.S().Warnw("progress view failed", "error", err)
		}
		<-done
	} else {
		table, extractErr = extractor.Extract(ctx)
	}

	if extractErr != nil {
		for key, value := range extractor.Metrics().Summary() {
			zap.S().Errorw("partial extraction summary", "metric", key, "value", value)
		}
		return extractErr
	}

	if table.Empty() {
		zap.S().Warnw("extraction returned no rows, nothing to persist")
		return nil
	}

	if err := os.MkdirAll(cfg.Run.RawDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", cfg.Run.RawDir, err)
	}
	writer := pipeline.NewWriter(cfg.Output.DatasetName, cfg.Output.ParquetEnabled)
	csvPath, parquetPath, err := writer.Save(table, cfg.Run.RawDir)
	if err != nil {
		return err
	}
	zap.S().Infow("raw dataset saved", "csv", csvPath, "parquet", parquetPath)
	return nil
}

func initLogger(cfg config.LogConfig) {
	conf := zap.NewDevelopmentConfig()
	conf.Level = zap.NewAtomicLevelAt(cfg.Level)
	if cfg.Encoding != "" {
		conf.Encoding = cfg.Encoding
	}
	zap.ReplaceGlobals(zap.Must(conf.Build()))
}
