package tabular

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"bankml/internal/errors"
)

// Write stores the table as delimited text, creating parent directories.
// Output is a pure function of the table, so rewriting identical data yields
// identical bytes.
func Write(path string, table *Table, delimiter rune) error {
	if delimiter == 0 {
		delimiter = ','
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}

	w := csv.NewWriter(file)
	w.Comma = delimiter
	if err := w.Write(table.Headers); err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to write header to %s", path)
	}
	if err := w.WriteAll(table.Rows); err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to write rows to %s", path)
	}

	if err := file.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", path)
	}
	return nil
}
