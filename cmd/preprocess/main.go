package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"bankml/adapters/fetch"
	"bankml/internal/config"
	"bankml/internal/preprocess"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Download the bank marketing dataset and write train/test partitions",
		Long: `Downloads the dataset archive once, re-extracts it, drops incomplete rows,
one-hot encodes categorical columns and writes a stratified train/test split.

Settings are read from ` + config.DefaultPath + `.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	config.LoadDotEnv()

	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		return err
	}

	fetcher := fetch.NewFetcher(cfg.Data.ArchiveName, cfg.Data.TablePath, nil)
	_, report, err := preprocess.Run(ctx, cfg, fetcher)
	if err != nil {
		return err
	}

	log.Printf("✅ Preprocessing complete: %d train rows, %d test rows, %d features (positive rate %.3f)",
		report.TrainRows, report.TestRows, report.Features, report.PositiveRate)
	return nil
}
