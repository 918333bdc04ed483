package preprocess

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"bankml/adapters/tabular"
	"bankml/internal/config"
	"bankml/internal/errors"
	"bankml/internal/profiling"
	"bankml/ports"

	"github.com/montanaflynn/stats"
)

// SplitReport summarises a split for logging and tests.
type SplitReport struct {
	RawRows           int
	DroppedRows       int
	Features          int
	TrainRows         int
	TestRows          int
	PositiveRate      float64
	TrainPositiveRate float64
	TestPositiveRate  float64
	// Profiles describes the non-indicator training features
	Profiles []profiling.ColumnProfile
}

// Run acquires the dataset, cleans and encodes it, performs the stratified
// split and persists the partitions under cfg.Data.ProcessedDir.
func Run(ctx context.Context, cfg *config.Config, source ports.DatasetSource) (*Partitions, *SplitReport, error) {
	path, err := source.Acquire(ctx, cfg.Data.ExternalURL, cfg.Data.RawDir)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to acquire dataset")
	}

	raw, err := tabular.Read(path, cfg.Data.Delimiter)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load dataset")
	}
	log.Printf("[Preprocess] ✅ dataset loaded: %d rows, %d columns", raw.Len(), len(raw.Headers))

	partitions, report, err := Split(raw, cfg.Data.Target, cfg.Data.PositiveLabel, cfg.TestSize, cfg.RandomState)
	if err != nil {
		return nil, nil, err
	}

	if err := partitions.Save(cfg.Data.ProcessedDir); err != nil {
		return nil, nil, errors.Wrap(err, "failed to persist partitions")
	}
	log.Printf("[Preprocess] 💾 processed data saved to %s", cfg.Data.ProcessedDir)

	return partitions, report, nil
}

// Split runs the in-memory part of preprocessing: null-dropping, encoding
// and the stratified split. raw is not modified.
func Split(raw *tabular.Table, target, positive string, testSize float64, seed int64) (*Partitions, *SplitReport, error) {
	clean, dropped := DropMissing(raw)
	if dropped > 0 {
		log.Printf("[Preprocess] dropped %d rows with missing values", dropped)
	}

	enc, err := Encode(clean, target, positive)
	if err != nil {
		return nil, nil, err
	}

	train, test, err := StratifiedSplit(enc.Labels, testSize, seed)
	if err != nil {
		return nil, nil, err
	}

	partitions := NewPartitions(enc, train, test)
	if err := partitions.Validate(); err != nil {
		return nil, nil, err
	}

	report := &SplitReport{
		RawRows:     raw.Len(),
		DroppedRows: dropped,
		Features:    len(enc.Features.Headers),
		TrainRows:   len(train),
		TestRows:    len(test),
	}
	if report.PositiveRate, err = positiveRate(enc.Labels, nil); err != nil {
		return nil, nil, err
	}
	if report.TrainPositiveRate, err = positiveRate(enc.Labels, train); err != nil {
		return nil, nil, err
	}
	if report.TestPositiveRate, err = positiveRate(enc.Labels, test); err != nil {
		return nil, nil, err
	}
	log.Printf("[Preprocess] split %d/%d rows, %d features, positive rate all=%.4f train=%.4f test=%.4f",
		report.TrainRows, report.TestRows, report.Features,
		report.PositiveRate, report.TrainPositiveRate, report.TestPositiveRate)

	if report.Profiles, err = profiling.NewDistributionAnalyzer().ProfileTable(partitions.XTrain); err != nil {
		return nil, nil, errors.Wrap(err, "failed to profile training features")
	}
	for _, p := range report.Profiles {
		log.Printf("[Profiler] 📈 %s: mean=%.3f std=%.3f median=%.3f range=[%g, %g] outliers=%d",
			p.Name, p.Mean, p.StdDev, p.Median, p.Min, p.Max, p.Outliers)
	}

	return partitions, report, nil
}

// positiveRate is the mean label over rows (all rows when rows is nil).
func positiveRate(labels []int, rows []int) (float64, error) {
	var data stats.Float64Data
	if rows == nil {
		for _, y := range labels {
			data = append(data, float64(y))
		}
	} else {
		for _, r := range rows {
			data = append(data, float64(labels[r]))
		}
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return 0, errors.Wrap(err, "failed to compute positive rate")
	}
	return mean, nil
}

// LabelValues parses a single-column label table into 0/1 integers.
func LabelValues(table *tabular.Table) ([]int, error) {
	if len(table.Headers) != 1 {
		return nil, errors.ValidationError(fmt.Sprintf("label table must have one column, got %d", len(table.Headers)))
	}
	out := make([]int, table.Len())
	for i, row := range table.Rows {
		v, err := strconv.Atoi(row[0])
		if err != nil || (v != 0 && v != 1) {
			return nil, errors.ValidationError(fmt.Sprintf("label row %d: expected 0 or 1, got %q", i+1, row[0]))
		}
		out[i] = v
	}
	return out, nil
}
