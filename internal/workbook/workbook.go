// Package workbook reads the cell grid of uploaded spreadsheets.
//
// It is the only package that knows about the xlsx format; everything else
// consumes sheets through rules.SheetSource.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are not Office Open XML
// workbooks.
var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

// ErrUnreadable is returned when a file has an accepted extension but its
// content is not a readable workbook.
var ErrUnreadable = errors.New("unreadable spreadsheet")

// Extensions accepted for upload.
var Extensions = []string{".xlsx", ".xlsm"}

// Workbook is an opened spreadsheet. Close must be called when done.
type Workbook struct {
	file *excelize.File
}

// Open reads the workbook at path.
func Open(path string) (*Workbook, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return &Workbook{file: f}, nil
}

// Read parses a workbook from r.
func Read(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return &Workbook{file: f}, nil
}

// Supported reports whether name carries an accepted spreadsheet extension.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// SheetNames returns sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// Rows returns every row of sheet as formatted cell text. Trailing empty
// cells are not included, so rows may differ in length.
func (w *Workbook) Rows(sheet string) ([][]string, error) {
	rows, err := w.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("rows of %q: %w", sheet, err)
	}
	return rows, nil
}

// Close releases resources held by the workbook.
func (w *Workbook) Close() error {
	return w.file.Close()
}
