package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"bankml/adapters/tracking"
	"bankml/internal/config"
	"bankml/internal/training"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "train",
		Short: "Train and evaluate the logistic regression model",
		Long: `Fits a logistic regression on the processed partitions, logs parameters,
accuracy, f1_score and the model artifact to the tracking server, and saves
the model locally.

Example: train --config configs/config.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "Path to the pipeline configuration")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	config.LoadDotEnv()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	tracker, err := tracking.Open(ctx, cfg.MLflow.TrackingURI, tracking.Options{ArtifactRoot: cfg.MLflow.ArtifactRoot})
	if err != nil {
		return err
	}
	defer tracker.Close()

	result, err := training.Train(ctx, cfg, tracker)
	if err != nil {
		return err
	}

	log.Printf("🏁 Run %s: accuracy=%.4f f1_score=%.4f, model saved to %s",
		result.RunID, result.Accuracy, result.F1, result.ModelPath)
	return nil
}
