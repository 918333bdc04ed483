package profiling

import (
	"fmt"
	"math"
	"strconv"

	"bankml/adapters/tabular"

	"github.com/montanaflynn/stats"
)

// ColumnProfile summarises the distribution of one numeric feature
type ColumnProfile struct {
	Name     string
	Count    int
	Mean     float64
	StdDev   float64
	Min      float64
	Max      float64
	Median   float64
	Q25      float64
	Q75      float64
	Skewness float64
	Outliers int
}

// DistributionAnalyzer handles distribution shape analysis
type DistributionAnalyzer struct{}

// NewDistributionAnalyzer creates a new distribution analyzer
func NewDistributionAnalyzer() *DistributionAnalyzer {
	return &DistributionAnalyzer{}
}

// AnalyzeDistribution computes summary statistics for one column of values
func (da *DistributionAnalyzer) AnalyzeDistribution(name string, data []float64) (ColumnProfile, error) {
	profile := ColumnProfile{Name: name, Count: len(data)}
	if len(data) == 0 {
		return profile, fmt.Errorf("column %s has no values", name)
	}

	var err error
	if profile.Mean, err = stats.Mean(data); err != nil {
		return profile, err
	}
	if profile.StdDev, err = stats.StandardDeviationSample(data); err != nil {
		return profile, err
	}
	if profile.Min, err = stats.Min(data); err != nil {
		return profile, err
	}
	if profile.Max, err = stats.Max(data); err != nil {
		return profile, err
	}
	if profile.Median, err = stats.Median(data); err != nil {
		return profile, err
	}
	quartiles, err := stats.Quartile(data)
	if err != nil {
		// fewer values than quartiles need; the median bounds both
		quartiles = stats.Quartiles{Q1: profile.Median, Q2: profile.Median, Q3: profile.Median}
	}
	profile.Q25, profile.Q75 = quartiles.Q1, quartiles.Q3

	profile.Skewness = calculateSkewness(data, profile.Mean, profile.StdDev)
	profile.Outliers = detectOutliers(data, profile.Q25, profile.Q75)
	return profile, nil
}

// ProfileTable profiles every column of a numeric feature table except
// 0/1 indicator columns.
func (da *DistributionAnalyzer) ProfileTable(table *tabular.Table) ([]ColumnProfile, error) {
	var profiles []ColumnProfile
	for j, name := range table.Headers {
		values := make([]float64, 0, table.Len())
		binary := true
		for _, row := range table.Rows {
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: %q is not numeric", name, row[j])
			}
			if v != 0 && v != 1 {
				binary = false
			}
			values = append(values, v)
		}
		if binary {
			continue
		}
		profile, err := da.AnalyzeDistribution(name, values)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// calculateSkewness computes sample skewness using the adjusted Fisher-Pearson coefficient
func calculateSkewness(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 || stdDev == 0 {
		return 0
	}

	n := float64(len(data))
	sumCubedDeviations := 0.0
	for _, x := range data {
		deviation := (x - mean) / stdDev
		sumCubedDeviations += deviation * deviation * deviation
	}

	return sumCubedDeviations / n * math.Sqrt(n*(n-1)) / (n - 2)
}

// detectOutliers counts values outside 1.5 IQR of the quartiles
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lowerBound := q25 - 1.5*iqr
	upperBound := q75 + 1.5*iqr

	outlierCount := 0
	for _, x := range data {
		if x < lowerBound || x > upperBound {
			outlierCount++
		}
	}
	return outlierCount
}
