package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheet describes one worksheet: optional preamble lines above the table,
// a styled header row and plain string rows.
type Sheet struct {
	Title    string
	Preamble []string
	Header   []string
	Rows     [][]string
	// RowFills optionally assigns a solid fill color (hex, no '#') per data row.
	RowFills []string
	// Footer rows are appended after the data without fills.
	Footer [][]string
}

// Workbook wraps an excelize file built from Sheet specs.
type Workbook struct {
	File *excelize.File
}

// NewWorkbook renders all sheets into a fresh workbook.
func NewWorkbook(sheets []Sheet) (*Workbook, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook requires at least one sheet")
	}
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"2563EB"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return nil, fmt.Errorf("title style: %w", err)
	}

	for i, s := range sheets {
		name := s.Title
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return nil, fmt.Errorf("new sheet %s: %w", name, err)
			}
		}

		row := 1
		for j, line := range s.Preamble {
			cell := fmt.Sprintf("A%d", row)
			if err := f.SetCellStr(name, cell, line); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
			if j == 0 {
				_ = f.SetCellStyle(name, cell, cell, titleStyle)
			}
			row++
		}
		if len(s.Preamble) > 0 {
			row++ // blank spacer before the table
		}

		headerRow := row
		for col, h := range s.Header {
			cell := fmt.Sprintf("%s%d", colName(col+1), headerRow)
			if err := f.SetCellStr(name, cell, h); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		if len(s.Header) > 0 {
			end := fmt.Sprintf("%s%d", colName(len(s.Header)), headerRow)
			_ = f.SetCellStyle(name, fmt.Sprintf("A%d", headerRow), end, headerStyle)
		}
		row++

		for r, values := range s.Rows {
			for c, val := range values {
				cell := fmt.Sprintf("%s%d", colName(c+1), row)
				if err := f.SetCellStr(name, cell, val); err != nil {
					return nil, fmt.Errorf("set cell %s: %w", cell, err)
				}
			}
			if r < len(s.RowFills) && s.RowFills[r] != "" {
				fill, err := f.NewStyle(&excelize.Style{
					Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{s.RowFills[r]}},
				})
				if err == nil {
					end := fmt.Sprintf("%s%d", colName(len(s.Header)), row)
					_ = f.SetCellStyle(name, fmt.Sprintf("A%d", row), end, fill)
				}
			}
			row++
		}

		if len(s.Footer) > 0 {
			row++
			for _, values := range s.Footer {
				for c, val := range values {
					cell := fmt.Sprintf("%s%d", colName(c+1), row)
					if err := f.SetCellStr(name, cell, val); err != nil {
						return nil, fmt.Errorf("set cell %s: %w", cell, err)
					}
				}
				row++
			}
		}

		autoWidth(f, name, s)
	}
	return &Workbook{File: f}, nil
}

// Bytes serializes the workbook into xlsx bytes.
func (w *Workbook) Bytes() ([]byte, error) {
	buf, err := w.File.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// autoWidth sizes columns from the header and the first rows.
func autoWidth(f *excelize.File, name string, s Sheet) {
	for c := 1; c <= len(s.Header); c++ {
		max := len(s.Header[c-1])
		for r := 0; r < len(s.Rows) && r < 50; r++ {
			if c-1 < len(s.Rows[r]) {
				if l := len(s.Rows[r][c-1]); l > max {
					max = l
				}
			}
		}
		w := float64(max) * 0.9
		if w < 12 {
			w = 12
		}
		if w > 50 {
			w = 50
		}
		_ = f.SetColWidth(name, colName(c), colName(c), w)
	}
}

func colName(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}
