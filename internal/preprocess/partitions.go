package preprocess

import (
	"fmt"
	"path/filepath"
	"strconv"

	"bankml/adapters/tabular"
	"bankml/internal/errors"
)

// File names of the persisted partitions under the processed directory.
const (
	XTrainFile = "X_train.csv"
	XTestFile  = "X_test.csv"
	YTrainFile = "y_train.csv"
	YTestFile  = "y_test.csv"
)

// Partitions holds the four tables produced by the split.
type Partitions struct {
	XTrain *tabular.Table
	XTest  *tabular.Table
	YTrain *tabular.Table
	YTest  *tabular.Table
}

// NewPartitions assembles partitions from encoded data and split indices.
func NewPartitions(enc *Encoded, train, test []int) *Partitions {
	labelTable := func(rows []int) *tabular.Table {
		t := &tabular.Table{Headers: []string{enc.LabelColumn}, Rows: make([][]string, len(rows))}
		for i, r := range rows {
			t.Rows[i] = []string{strconv.Itoa(enc.Labels[r])}
		}
		return t
	}
	return &Partitions{
		XTrain: enc.Features.Select(train),
		XTest:  enc.Features.Select(test),
		YTrain: labelTable(train),
		YTest:  labelTable(test),
	}
}

// Validate checks the feature/label row alignment invariant.
func (p *Partitions) Validate() error {
	if p.XTrain.Len() != p.YTrain.Len() {
		return errors.ValidationError(fmt.Sprintf("train features have %d rows but labels have %d", p.XTrain.Len(), p.YTrain.Len()))
	}
	if p.XTest.Len() != p.YTest.Len() {
		return errors.ValidationError(fmt.Sprintf("test features have %d rows but labels have %d", p.XTest.Len(), p.YTest.Len()))
	}
	if len(p.YTrain.Headers) != 1 || len(p.YTest.Headers) != 1 {
		return errors.ValidationError("label tables must have exactly one column")
	}
	if fmt.Sprint(p.XTrain.Headers) != fmt.Sprint(p.XTest.Headers) {
		return errors.ValidationError("train and test features have different columns")
	}
	return nil
}

// Save writes the four tables under dir as comma-delimited files.
func (p *Partitions) Save(dir string) error {
	files := []struct {
		name  string
		table *tabular.Table
	}{
		{XTrainFile, p.XTrain},
		{XTestFile, p.XTest},
		{YTrainFile, p.YTrain},
		{YTestFile, p.YTest},
	}
	for _, f := range files {
		if err := tabular.Write(filepath.Join(dir, f.name), f.table, ','); err != nil {
			return err
		}
	}
	return nil
}

// LoadPartitions reads the four tables written by Save.
func LoadPartitions(dir string) (*Partitions, error) {
	read := func(name string) (*tabular.Table, error) {
		t, err := tabular.Read(filepath.Join(dir, name), ',')
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", name)
		}
		return t, nil
	}

	var p Partitions
	var err error
	if p.XTrain, err = read(XTrainFile); err != nil {
		return nil, err
	}
	if p.XTest, err = read(XTestFile); err != nil {
		return nil, err
	}
	if p.YTrain, err = read(YTrainFile); err != nil {
		return nil, err
	}
	if p.YTest, err = read(YTestFile); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
