package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"mripatches/pkg/config"
	"mripatches/pkg/dataset"
	"mripatches/pkg/errors"
	"mripatches/pkg/explorer"
	"mripatches/pkg/features"
	"mripatches/pkg/log"
	"mripatches/pkg/report"
	"mripatches/pkg/stats"
	"mripatches/pkg/training"
	"mripatches/pkg/visualization"
	"mripatches/pkg/volume"
)

const usage = `usage: mripatches <command> [flags]

commands:
  init-config   write a default configuration file
  split         discover volume pairs and write datasets.json
  explore       sample and label patches, write patches.json
  train-stream  stream training patches to a nearest-centroid learner
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "mripatches.yaml", "Configuration file")
	datasetPath := fs.String("dataset", "", "Dataset root (overrides dataset.path)")
	outputDir := fs.String("output", "", "Output directory (overrides output.dir)")
	logLevel := fs.String("log-level", "", "Log level (overrides output.logLevel)")
	fs.Parse(os.Args[2:])

	if command == "init-config" {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *datasetPath != "" {
		cfg.Dataset.Path = *datasetPath
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *logLevel != "" {
		cfg.Output.LogLevel = *logLevel
	}

	logger, err := log.Setup(cfg.Output.LogLevel, os.Stderr, cfg.Output.Console)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	switch command {
	case "split":
		err = runSplit(cfg, logger)
	case "explore":
		err = runExplore(cfg, logger)
	case "train-stream":
		err = runTrain(cfg, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logError(logger, command, err)
		os.Exit(1)
	}
	logger.Info().Str("command", command).Dur("elapsed", time.Since(start)).Msg("done")
}

// logError logs err with the structured fields of the pipeline error types.
func logError(logger zerolog.Logger, command string, err error) {
	event := logger.Error().Err(err).Str("command", command)
	var cfgErr *errors.ConfigError
	var dataErr *errors.DataError
	var rangeErr *errors.RangeError
	switch {
	case errors.As(err, &cfgErr):
		event = event.Object("details", cfgErr)
	case errors.As(err, &dataErr):
		event = event.Object("details", dataErr)
	case errors.As(err, &rangeErr):
		event = event.Object("details", rangeErr)
	}
	event.Msg("command failed")
}

func runSplit(cfg *config.Config, logger zerolog.Logger) error {
	if _, err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Dataset.Path == "" {
		return errors.NewConfigError("dataset.path", "must be set")
	}
	m := &dataset.Manager{
		Root:     cfg.Dataset.Path,
		Discover: dataset.DirectoryDiscoverer(cfg.Dataset.LabelMarker),
		Ratios:   [2]float64{cfg.Dataset.Ratio[0], cfg.Dataset.Ratio[1]},
		Seed:     cfg.Dataset.Seed,
		Logger:   log.Component(logger, "dataset"),
	}
	_, err := m.Decompose(cfg.Output.Dir)
	return err
}

func runExplore(cfg *config.Config, logger zerolog.Logger) error {
	spec, err := cfg.Validate()
	if err != nil {
		return err
	}
	split, err := dataset.LoadSplit(filepath.Join(cfg.Output.Dir, dataset.SplitFilename))
	if err != nil {
		return err
	}

	opts := explorer.Options{
		Spec:               spec,
		RatioPatchesVoxels: cfg.Extraction.RatioPatchesVoxels,
		BatchSize:          cfg.Extraction.BatchSize,
		ExtractAllPositive: cfg.Extraction.ExtractAllPositive,
		ExtractAllNegative: cfg.Extraction.ExtractAllNegative,
		Seed:               cfg.Dataset.Seed,
		Opener:             cfg.Opener(),
		Logger:             logger,
	}
	if cfg.Extraction.PreviewCount > 0 {
		viewer := visualization.NewViewer(filepath.Join(cfg.Output.Dir, "preview"))
		opts.Preview = viewer.Preview
		opts.PreviewCount = cfg.Extraction.PreviewCount
	}
	if cfg.Output.Plot {
		opts.Report = func(name string, s stats.Statistics) error {
			if len(s) == 0 {
				return nil
			}
			path, err := report.SaveClassChart(cfg.Output.Dir, name, s)
			if err != nil {
				return err
			}
			logger.Info().Str(log.SplitKey, name).Str("path", path).Msg("class chart saved")
			return nil
		}
	}

	e, err := explorer.New(opts)
	if err != nil {
		return err
	}
	_, err = e.Explore(split, cfg.Output.Dir)
	return err
}

func runTrain(cfg *config.Config, logger zerolog.Logger) error {
	if _, err := cfg.Validate(); err != nil {
		return err
	}
	split, err := dataset.LoadSplit(filepath.Join(cfg.Output.Dir, dataset.SplitFilename))
	if err != nil {
		return err
	}
	patches, err := explorer.LoadPatches(filepath.Join(cfg.Output.Dir, explorer.PatchesFilename))
	if err != nil {
		return err
	}
	feature, err := features.Lookup(cfg.Training.Feature)
	if err != nil {
		return err
	}

	var opener volume.Opener = cfg.Opener()
	if cfg.Training.Normalization == "percentile" {
		r := cfg.Training.NormalizationRange
		opener = features.NormalizingOpener(opener, r[0], r[1])
	}

	tr, err := training.New(training.Options{
		Split:              split,
		Patches:            patches,
		RatioPatchPerImage: cfg.Training.RatioPatchPerImage,
		BatchSize:          cfg.Training.BatchSize,
		Features:           feature,
		Opener:             opener,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	model := training.NewNearestCentroid()
	if _, err := tr.Train(model); err != nil {
		return err
	}
	path, err := model.Save(cfg.Output.Dir)
	if err != nil {
		return err
	}
	logger.Info().Str("path", path).Ints(log.ClassesKey, model.Classes()).Msg("model saved")
	return nil
}
