package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bankml/internal/errors"

	"github.com/xuri/excelize/v2"
)

// Reader loads delimited text or xlsx workbooks into a Table
type Reader struct {
	filePath  string
	fileType  string // "xlsx" or "csv"
	delimiter rune
}

// NewReader creates a reader; the file type is chosen from the extension.
func NewReader(filePath string, delimiter rune) *Reader {
	fileType := "csv"
	if strings.EqualFold(filepath.Ext(filePath), ".xlsx") {
		fileType = "xlsx"
	}
	if delimiter == 0 {
		delimiter = ','
	}
	return &Reader{filePath: filePath, fileType: fileType, delimiter: delimiter}
}

// Read is shorthand for NewReader(path, delimiter).ReadTable().
func Read(path string, delimiter rune) (*Table, error) {
	return NewReader(path, delimiter).ReadTable()
}

// ReadTable reads the whole file. The first row is the header.
func (r *Reader) ReadTable() (*Table, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.NotFound(fmt.Sprintf("%s file %s", strings.ToUpper(r.fileType), r.filePath))
	}

	switch r.fileType {
	case "csv":
		return r.readDelimited()
	case "xlsx":
		return r.readWorkbook()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

func (r *Reader) readDelimited() (*Table, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()

	return r.parse(file)
}

func (r *Reader) parse(src io.Reader) (*Table, error) {
	reader := csv.NewReader(src)
	reader.Comma = r.delimiter
	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WithCode(errors.CodeValidationError, errors.Wrapf(err, "failed to read %s", r.filePath))
	}
	log.Printf("[Reader] %s read in %.2fms (%d rows)", filepath.Base(r.filePath), float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	return r.processRows(rows)
}

// readWorkbook reads the first sheet of an xlsx workbook
func (r *Reader) readWorkbook() (*Table, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ValidationError(fmt.Sprintf("workbook %s has no sheets", r.filePath))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s", sheets[0])
	}
	log.Printf("[Reader] sheet %s read (%d rows)", sheets[0], len(rows))

	// excelize omits trailing empty cells
	if len(rows) > 0 {
		width := len(rows[0])
		for i, row := range rows {
			for len(row) < width {
				row = append(row, "")
			}
			rows[i] = row
		}
	}

	return r.processRows(rows)
}

func (r *Reader) processRows(rows [][]string) (*Table, error) {
	if len(rows) < 2 {
		return nil, errors.ValidationError(fmt.Sprintf("%s must have at least a header row and one data row", r.filePath))
	}

	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		headers[i] = strings.TrimSpace(header)
	}

	data := make([][]string, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) != len(headers) {
			return nil, errors.ValidationError(fmt.Sprintf("%s row %d has %d fields, header has %d", r.filePath, i+1, len(row), len(headers)))
		}
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = strings.TrimSpace(cell)
		}
		data = append(data, cells)
	}

	return &Table{Headers: headers, Rows: data}, nil
}
