package preprocess

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"bankml/adapters/tabular"
	"bankml/internal/config"
	"bankml/internal/errors"
	"bankml/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDatasetSource returns a fixed table path
type MockDatasetSource struct {
	mock.Mock
}

func (m *MockDatasetSource) Acquire(ctx context.Context, url, destinationDir string) (string, error) {
	args := m.Called(ctx, url, destinationDir)
	return args.String(0), args.Error(1)
}

func TestDropMissing(t *testing.T) {
	table := &tabular.Table{
		Headers: []string{"a", "b"},
		Rows: [][]string{
			{"1", "x"},
			{"", "x"},
			{"2", "NA"},
			{"3", "unknown"},
			{"4", " nan "},
		},
	}
	clean, dropped := DropMissing(table)
	assert.Equal(t, 3, dropped)
	assert.Equal(t, [][]string{{"1", "x"}, {"3", "unknown"}}, clean.Rows)
	assert.Len(t, table.Rows, 5, "input must not be mutated")
}

func TestIsMissing_CaseSensitiveMarkers(t *testing.T) {
	for _, cell := range []string{"", "  ", "NA", "N/A", "n/a", "NaN", "nan", "NULL", "null", "None", "<NA>", "#N/A"} {
		assert.True(t, IsMissing(cell), "%q", cell)
	}
	for _, cell := range []string{"Null", "Nan", "none", "na", "NAN", "unknown", "0"} {
		assert.False(t, IsMissing(cell), "%q", cell)
	}
}

func TestOneHot_DropFirstLayout(t *testing.T) {
	table := &tabular.Table{
		Headers: []string{"job", "age", "marital", "y"},
		Rows: [][]string{
			{"services", "30", "single", "no"},
			{"admin.", "41", "married", "yes"},
			{"blue-collar", "25", "single", "yes"},
			{"services", "52", "married", "no"},
		},
	}

	out := OneHot(table, "y")
	assert.Equal(t, []string{"age", "job_blue-collar", "job_services", "marital_single"}, out.Headers)
	assert.Equal(t, [][]string{
		{"30", "0", "1", "1"},
		{"41", "0", "0", "0"},
		{"25", "1", "0", "1"},
		{"52", "0", "1", "0"},
	}, out.Rows)
}

func TestOneHot_SingleCategoryColumnDisappears(t *testing.T) {
	table := &tabular.Table{
		Headers: []string{"constant", "n"},
		Rows:    [][]string{{"same", "1"}, {"same", "2"}},
	}
	out := OneHot(table)
	assert.Equal(t, []string{"n"}, out.Headers)
}

func TestEncode_YesNoTarget(t *testing.T) {
	table := &tabular.Table{
		Headers: []string{"job", "y"},
		Rows:    [][]string{{"a", "yes"}, {"b", "no"}, {"a", "no"}, {"c", "yes"}},
	}
	enc, err := Encode(table, "y", "yes")
	require.NoError(t, err)
	assert.Equal(t, "y_yes", enc.LabelColumn)
	assert.Equal(t, []int{1, 0, 0, 1}, enc.Labels)
	assert.Equal(t, []string{"job_b", "job_c"}, enc.Features.Headers)
}

func TestEncode_ConfigurablePositiveClass(t *testing.T) {
	table := &tabular.Table{
		Headers: []string{"x", "y"},
		Rows:    [][]string{{"1", "churn"}, {"2", "stay"}, {"3", "churn"}},
	}
	enc, err := Encode(table, "y", "churn")
	require.NoError(t, err)
	assert.Equal(t, "y_churn", enc.LabelColumn)
	assert.Equal(t, []int{1, 0, 1}, enc.Labels)
}

func TestEncode_DataShapeErrors(t *testing.T) {
	table := &tabular.Table{
		Headers: []string{"x", "y"},
		Rows:    [][]string{{"1", "no"}, {"2", "no"}},
	}

	_, err := Encode(table, "target", "yes")
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))

	_, err = Encode(table, "y", "yes")
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
	assert.Contains(t, err.Error(), "y_yes")
}

func TestStratifiedSplit_Invariants(t *testing.T) {
	labels := make([]int, 0, 103)
	for i := 0; i < 103; i++ {
		if i%4 == 0 {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}

	train, test, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)

	assert.Len(t, test, 21) // ceil(0.2 * 103)
	assert.Len(t, train, 82)

	all := append(append([]int(nil), train...), test...)
	sort.Ints(all)
	for i, v := range all {
		require.Equal(t, i, v, "every row must appear exactly once")
	}

	overall := rate(labels, nil)
	assert.InDelta(t, overall, rate(labels, train), 1.0/float64(len(train)))
	assert.InDelta(t, overall, rate(labels, test), 1.0/float64(len(test)))
}

func TestStratifiedSplit_Deterministic(t *testing.T) {
	labels := []int{0, 1, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0}

	trainA, testA, err := StratifiedSplit(labels, 0.25, 7)
	require.NoError(t, err)
	trainB, testB, err := StratifiedSplit(labels, 0.25, 7)
	require.NoError(t, err)
	assert.Equal(t, trainA, trainB)
	assert.Equal(t, testA, testB)

	trainC, _, err := StratifiedSplit(labels, 0.25, 8)
	require.NoError(t, err)
	assert.Len(t, trainC, len(trainA))
}

func TestStratifiedSplit_Errors(t *testing.T) {
	_, _, err := StratifiedSplit([]int{0, 0, 1}, 0.5, 1)
	assert.Error(t, err, "class with a single member")

	_, _, err = StratifiedSplit([]int{0, 1, 0, 1}, 0, 1)
	assert.Error(t, err)

	_, _, err = StratifiedSplit([]int{0, 0, 1, 1}, 0.99, 1)
	assert.Error(t, err, "train partition would be empty")
}

func TestAllocate(t *testing.T) {
	assert.Equal(t, []int{16, 5}, allocate([]int{77, 26}, 21))
	assert.Equal(t, []int{1, 1}, allocate([]int{2, 2}, 2))
	assert.Equal(t, []int{2, 1}, allocate([]int{5, 3}, 3))
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	raw := testkit.NewBankDataGenerator(testkit.BankGeneratorConfig{Rows: 240, MissingEvery: 10, Seed: 3}).Generate()
	tablePath := filepath.Join(dir, "bank.csv")
	require.NoError(t, os.WriteFile(tablePath, testkit.EncodeDelimited(raw, ';'), 0644))

	cfg := &config.Config{
		Data: config.DataConfig{
			ExternalURL:   "https://example.test/bank.zip",
			RawDir:        filepath.Join(dir, "raw"),
			ProcessedDir:  filepath.Join(dir, "processed"),
			Target:        "y",
			PositiveLabel: "yes",
			Delimiter:     ';',
		},
		TestSize:    0.2,
		RandomState: 42,
	}

	source := new(MockDatasetSource)
	source.On("Acquire", mock.Anything, cfg.Data.ExternalURL, cfg.Data.RawDir).Return(tablePath, nil)

	parts, report, err := Run(context.Background(), cfg, source)
	require.NoError(t, err)
	source.AssertExpectations(t)

	complete := testkit.CountComplete(raw)
	assert.Equal(t, 24, report.DroppedRows)
	assert.Equal(t, complete, parts.XTrain.Len()+parts.XTest.Len())
	assert.Equal(t, parts.XTrain.Len(), parts.YTrain.Len())
	assert.Equal(t, parts.XTest.Len(), parts.YTest.Len())
	assert.Equal(t, []string{"y_yes"}, parts.YTrain.Headers)

	assert.Equal(t, []string{
		"age", "duration", "campaign",
		"job_blue-collar", "job_retired", "job_services", "job_student",
		"marital_married", "marital_single",
	}, parts.XTrain.Headers)
	assert.Less(t, math.Abs(report.TrainPositiveRate-report.PositiveRate), 0.02)
	assert.Less(t, math.Abs(report.TestPositiveRate-report.PositiveRate), 0.03)

	var profiled []string
	for _, p := range report.Profiles {
		profiled = append(profiled, p.Name)
		assert.Equal(t, parts.XTrain.Len(), p.Count)
	}
	assert.Equal(t, []string{"age", "duration", "campaign"}, profiled)

	// every split row maps back to a distinct source row with the same label
	clean, _ := DropMissing(raw)
	remaining := map[string]int{}
	for _, row := range clean.Rows {
		remaining[strings.Join(row, "|")]++
	}
	claim := func(x, y *tabular.Table) {
		labels, err := LabelValues(y)
		require.NoError(t, err)
		for i, row := range x.Rows {
			key := strings.Join(sourceRow(x.Headers, row, labels[i]), "|")
			require.Positive(t, remaining[key], "row %d (%s) has no unclaimed source row", i, key)
			remaining[key]--
		}
	}
	claim(parts.XTrain, parts.YTrain)
	claim(parts.XTest, parts.YTest)
	for key, n := range remaining {
		assert.Zero(t, n, "source row %s never reached a partition", key)
	}

	// a second run reproduces the files byte for byte
	first := readAll(t, cfg.Data.ProcessedDir)
	_, _, err = Run(context.Background(), cfg, source)
	require.NoError(t, err)
	assert.Equal(t, first, readAll(t, cfg.Data.ProcessedDir))

	loaded, err := LoadPartitions(cfg.Data.ProcessedDir)
	require.NoError(t, err)
	assert.Equal(t, parts.XTest.Rows, loaded.XTest.Rows)
	assert.Equal(t, parts.YTrain.Rows, loaded.YTrain.Rows)
}

func TestRun_AcquisitionFailurePropagates(t *testing.T) {
	source := new(MockDatasetSource)
	source.On("Acquire", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.NotFound("primary table"))

	_, _, err := Run(context.Background(), &config.Config{}, source)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestLoadPartitions_RowMismatch(t *testing.T) {
	dir := t.TempDir()
	x := &tabular.Table{Headers: []string{"a"}, Rows: [][]string{{"1"}, {"2"}}}
	y := &tabular.Table{Headers: []string{"y_yes"}, Rows: [][]string{{"1"}}}
	parts := &Partitions{XTrain: x, XTest: x, YTrain: y, YTest: y}
	require.NoError(t, parts.Save(dir))

	_, err := LoadPartitions(dir)
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.GetCode(err))
}

func TestLabelValues_RejectsNonBinary(t *testing.T) {
	_, err := LabelValues(&tabular.Table{Headers: []string{"y"}, Rows: [][]string{{"1"}, {"2"}}})
	assert.Error(t, err)
}

// sourceRow rebuilds the generator's row layout from an encoded feature row.
// Categories without an indicator column are the dropped first level.
func sourceRow(headers, row []string, label int) []string {
	values := map[string]string{"job": "admin.", "marital": "divorced"}
	for j, h := range headers {
		prefix, category, found := strings.Cut(h, "_")
		if !found {
			values[h] = row[j]
			continue
		}
		if row[j] == "1" {
			values[prefix] = category
		}
	}
	y := "no"
	if label == 1 {
		y = "yes"
	}
	return []string{values["age"], values["job"], values["marital"], values["duration"], values["campaign"], y}
}

func rate(labels []int, rows []int) float64 {
	if rows == nil {
		return float64(sum(labels)) / float64(len(labels))
	}
	s := 0
	for _, r := range rows {
		s += labels[r]
	}
	return float64(s) / float64(len(rows))
}

func sum(v []int) int {
	s := 0
	for _, x := range v {
		s += x
	}
	return s
}

func readAll(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	for _, name := range []string{XTrainFile, XTestFile, YTrainFile, YTestFile} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		out[name] = b
	}
	return out
}
