package source

import (
	"context"
	"fmt"
	"iter"

	"github.com/xuri/excelize/v2"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

// Excel reads documents from an .xlsx worksheet. The first row is the header.
type Excel struct {
	path       string
	sheet      string
	sheetIndex int
	opts       Options
}

// NewExcel returns a source over the named sheet, or the sheet at
// sheetIndex when sheet is empty.
func NewExcel(path, sheet string, sheetIndex int, opts Options) *Excel {
	return &Excel{path: path, sheet: sheet, sheetIndex: sheetIndex, opts: opts.withDefaults()}
}

// Documents implements Source. Rows are streamed, not loaded up front.
func (x *Excel) Documents(ctx context.Context) iter.Seq2[pipeline.Document, error] {
	return func(yield func(pipeline.Document, error) bool) {
		f, err := excelize.OpenFile(x.path)
		if err != nil {
			yield(pipeline.Document{}, fmt.Errorf("open workbook: %w", err))
			return
		}
		defer f.Close()

		sheet, err := x.resolveSheet(f)
		if err != nil {
			yield(pipeline.Document{}, err)
			return
		}
		rows, err := f.Rows(sheet)
		if err != nil {
			yield(pipeline.Document{}, fmt.Errorf("read sheet %s: %w", sheet, err))
			return
		}
		defer rows.Close()

		var header []string
		idx := 0
		for rows.Next() {
			if err := ctx.Err(); err != nil {
				yield(pipeline.Document{}, err)
				return
			}
			cells, err := rows.Columns()
			if err != nil {
				yield(pipeline.Document{}, fmt.Errorf("read row: %w", err))
				return
			}
			if header == nil {
				header = normalizeHeader(cells)
				continue
			}
			if x.opts.MaxRows > 0 && idx >= x.opts.MaxRows {
				return
			}
			doc, ok := x.opts.tabular(header, cells, idx)
			idx++
			if !ok {
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
		if err := rows.Error(); err != nil {
			yield(pipeline.Document{}, fmt.Errorf("read sheet %s: %w", sheet, err))
		}
	}
}

func (x *Excel) resolveSheet(f *excelize.File) (string, error) {
	if x.sheet != "" {
		idx, err := f.GetSheetIndex(x.sheet)
		if err != nil || idx < 0 {
			return "", fmt.Errorf("%w: sheet %q", internalerr.ErrNotFound, x.sheet)
		}
		return x.sheet, nil
	}
	sheets := f.GetSheetList()
	if x.sheetIndex < 0 || x.sheetIndex >= len(sheets) {
		return "", fmt.Errorf("%w: sheet index %d (workbook has %d)", internalerr.ErrNotFound, x.sheetIndex, len(sheets))
	}
	return sheets[x.sheetIndex], nil
}
