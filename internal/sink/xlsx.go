package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// XLSXDir stores monthly sinks as .xlsx workbooks in a local directory.
// Object IDs are paths relative to the directory without the extension.
type XLSXDir struct {
	dir string
	mu  sync.Mutex
}

// NewXLSXDir creates the directory if needed
func NewXLSXDir(dir string) (*XLSXDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sheets directory: %w", err)
	}
	return &XLSXDir{dir: dir}, nil
}

func (x *XLSXDir) path(id string) string {
	return filepath.Join(x.dir, filepath.FromSlash(id)+".xlsx")
}

// CreateObject creates an empty workbook, inside the parent subdirectory if given
func (x *XLSXDir) CreateObject(ctx context.Context, name, parent string) (Object, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	base := strings.Trim(unsafeName.ReplaceAllString(name, "_"), "_") + "-" + uuid.NewString()[:8]
	id := base
	if parent != "" {
		id = unsafeName.ReplaceAllString(parent, "_") + "/" + base
	}

	path := x.path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Object{}, err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return Object{}, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return Object{ID: id, URL: "file://" + filepath.ToSlash(abs)}, nil
}

// WriteHeader writes the header into row 1 in bold
func (x *XLSXDir) WriteHeader(ctx context.Context, id string, header []string) error {
	return x.edit(id, func(f *excelize.File, sheet string) error {
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return err
		}
		return f.SetCellStyle(sheet, "A1", ColumnName(len(header))+"1", style)
	})
}

// ReadRange supports cell ranges (A2:N9) and whole columns (A:A)
func (x *XLSXDir) ReadRange(ctx context.Context, id, a1 string) ([][]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := excelize.OpenFile(x.path(id))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, err
	}

	col1, row1, col2, row2, err := parseRange(a1)
	if err != nil {
		return nil, err
	}
	if row2 == 0 || row2 > len(rows) {
		row2 = len(rows)
	}

	var out [][]string
	for r := row1; r <= row2; r++ {
		src := rows[r-1]
		var cells []string
		for c := col1; c <= col2 && c <= len(src); c++ {
			cells = append(cells, src[c-1])
		}
		out = append(out, cells)
	}
	return out, nil
}

// WriteRange writes rows starting at the range's top-left cell
func (x *XLSXDir) WriteRange(ctx context.Context, id, a1 string, rows [][]string) error {
	col, row, _, _, err := parseRange(a1)
	if err != nil {
		return err
	}
	return x.edit(id, func(f *excelize.File, sheet string) error {
		for i := range rows {
			cell, err := excelize.CoordinatesToCellName(col, row+i)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRows removes rows start..end inclusive
func (x *XLSXDir) DeleteRows(ctx context.Context, id string, start, end int) error {
	return x.edit(id, func(f *excelize.File, sheet string) error {
		for r := end; r >= start; r-- {
			if err := f.RemoveRow(sheet, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// Rename sets the first worksheet's title
func (x *XLSXDir) Rename(ctx context.Context, id, name string) error {
	return x.edit(id, func(f *excelize.File, sheet string) error {
		return f.SetSheetName(sheet, name)
	})
}

func (x *XLSXDir) edit(id string, fn func(f *excelize.File, sheet string) error) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := excelize.OpenFile(x.path(id))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fn(f, f.GetSheetName(0)); err != nil {
		return err
	}
	return f.Save()
}

// parseRange returns 1-based bounds; row2 == 0 means "to the last used row"
func parseRange(a1 string) (col1, row1, col2, row2 int, err error) {
	parts := strings.SplitN(a1, ":", 2)
	col1, row1, err = parseCell(parts[0])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	col2, row2 = col1, row1
	if len(parts) == 2 {
		if col2, row2, err = parseCell(parts[1]); err != nil {
			return 0, 0, 0, 0, err
		}
	}
	if row1 == 0 {
		row1 = 1
	}
	return col1, row1, col2, row2, nil
}

// parseCell accepts "B7" or a bare column "B" (row 0)
func parseCell(cell string) (col, row int, err error) {
	if col, row, err = excelize.CellNameToCoordinates(cell); err == nil {
		return col, row, nil
	}
	if col, err = excelize.ColumnNameToNumber(cell); err == nil {
		return col, 0, nil
	}
	return 0, 0, fmt.Errorf("invalid range %q", cell)
}
