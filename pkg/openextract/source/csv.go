package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

// CSV reads documents from a comma-separated file with a header row.
type CSV struct {
	path string
	opts Options
}

// NewCSV returns a CSV source.
func NewCSV(path string, opts Options) *CSV {
	return &CSV{path: path, opts: opts.withDefaults()}
}

// Documents implements Source.
func (c *CSV) Documents(ctx context.Context) iter.Seq2[pipeline.Document, error] {
	return func(yield func(pipeline.Document, error) bool) {
		f, err := os.Open(c.path)
		if err != nil {
			yield(pipeline.Document{}, err)
			return
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		r.LazyQuotes = true

		first, err := r.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(pipeline.Document{}, fmt.Errorf("read header: %w", err))
			return
		}
		header := normalizeHeader(first)

		idx := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(pipeline.Document{}, err)
				return
			}
			rec, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(pipeline.Document{}, fmt.Errorf("read %s: %w", c.path, err))
				return
			}
			if c.opts.MaxRows > 0 && idx >= c.opts.MaxRows {
				return
			}
			doc, ok := c.opts.tabular(header, rec, idx)
			idx++
			if !ok {
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}
