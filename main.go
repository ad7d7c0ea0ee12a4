package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tmdb-etl/config"
	"tmdb-etl/pipeline"
	"tmdb-etl/storage"
	"tmdb-etl/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tmdb-etl",
	Short: "TMDb movie listings ETL",
	Long:  "Extracts the popular, top rated and upcoming TMDb movie listings, turns them into typed analysis tables and loads them into a relational store.",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c

		l, err := utils.NewLoggerWith(utils.LogOptions{Level: cfg.LogLevel, Format: cfg.LogFormat})
		if err != nil {
			logger = utils.NewLogger()
			logger.Warn("Invalid log settings, using info console logging: %v", err)
			return nil
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, r *pipeline.Runner) error {
			return r.Run(ctx)
		})
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Fetch the listings and genre list into the raw directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, r *pipeline.Runner) error {
			_, err := r.Extract(ctx)
			return err
		})
	},
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Build the processed CSV and Parquet tables from the raw snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, r *pipeline.Runner) error {
			_, err := r.TransformRaw(ctx)
			return err
		})
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Replace the relational tables with the processed Parquet files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, func(ctx context.Context, r *pipeline.Runner) error {
			return r.LoadFiles(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(extractCmd, transformCmd, loadCmd)
}

// runStage builds a Runner for the configured environment, runs fn under a
// context cancelled by SIGINT or SIGTERM and prints the run summary.
func runStage(cmd *cobra.Command, fn func(context.Context, *pipeline.Runner) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Config: max pages %d | delay %v (popular %v) | store %s | raw %s | processed %s",
		cfg.MaxPages, cfg.RequestDelay, cfg.PopularDelay, cfg.StoreDriver, cfg.RawDir, cfg.ProcessedDir)

	var opts []pipeline.Option
	if cfg.S3Bucket != "" {
		pub, err := storage.NewS3Publisher(ctx, cfg.S3Bucket, cfg.AWSRegion)
		if err != nil {
			logger.Warn("S3 mirror disabled: %v", err)
		} else {
			logger.Info("Mirroring processed files to s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
			opts = append(opts, pipeline.WithPublisher(pub))
		}
	}

	r := pipeline.New(cfg, logger, opts...)
	err := fn(ctx, r)
	r.Finish(os.Stdout)
	if err != nil {
		logger.Error("%s finished with errors: %v", cmd.Name(), err)
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
