// Package source reads tabular files into pipeline documents.
package source

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

// Source yields documents lazily. A sequence can be consumed once.
type Source interface {
	Documents(ctx context.Context) iter.Seq2[pipeline.Document, error]
}

// Columns names the columns mapped onto document fields. Every other column
// lands in Document.Meta.
type Columns struct {
	ID      string
	Title   string
	Content string
}

// DefaultColumns matches the conventional spreadsheet headers.
var DefaultColumns = Columns{ID: "Id", Title: "Title", Content: "Content"}

// Options shared by all sources.
type Options struct {
	Columns   Columns
	// MaxRows caps the data rows read, blank or malformed ones included.
	// Zero means no limit.
	MaxRows   int
	StripHTML bool
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Columns.ID == "" {
		o.Columns.ID = DefaultColumns.ID
	}
	if o.Columns.Title == "" {
		o.Columns.Title = DefaultColumns.Title
	}
	if o.Columns.Content == "" {
		o.Columns.Content = DefaultColumns.Content
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Spec selects a source implementation.
type Spec struct {
	Type  string // excel | csv | jsonl
	Path  string
	Sheet string // sheet name; empty selects SheetIndex
	// SheetIndex is the zero-based sheet position used when Sheet is empty.
	SheetIndex int
	Options
}

// Open returns the source described by spec. The input file must exist.
func Open(spec Spec) (Source, error) {
	if _, err := os.Stat(spec.Path); err != nil {
		return nil, fmt.Errorf("source file: %w", err)
	}
	switch strings.ToLower(spec.Type) {
	case "excel", "xlsx":
		return NewExcel(spec.Path, spec.Sheet, spec.SheetIndex, spec.Options), nil
	case "csv":
		return NewCSV(spec.Path, spec.Options), nil
	case "jsonl":
		return NewJSONL(spec.Path, spec.Options), nil
	default:
		return nil, fmt.Errorf("%w: unsupported source type %q", internalerr.ErrInvalidConfig, spec.Type)
	}
}

// row is one record keyed by column name, in column order.
type row struct {
	keys   []string
	values map[string]any
}

func (o Options) document(idx int, r row) pipeline.Document {
	id := strings.TrimSpace(stringify(r.values[o.Columns.ID]))
	if id == "" {
		id = "row_" + strconv.Itoa(idx)
	}
	doc := pipeline.Document{
		ID:      id,
		Title:   stringify(r.values[o.Columns.Title]),
		Payload: stringify(r.values[o.Columns.Content]),
		Meta:    make(map[string]any),
	}
	for _, k := range r.keys {
		if k == o.Columns.ID || k == o.Columns.Title || k == o.Columns.Content {
			continue
		}
		doc.Meta[k] = r.values[k]
	}
	if o.StripHTML {
		doc.Title = StripHTML(doc.Title)
		doc.Payload = StripHTML(doc.Payload)
	}
	return doc
}

// tabular converts header + cells rows into documents, skipping blank rows.
func (o Options) tabular(header []string, cells []string, idx int) (pipeline.Document, bool) {
	blank := true
	r := row{keys: header, values: make(map[string]any, len(header))}
	for i, col := range header {
		v := ""
		if i < len(cells) {
			v = strings.TrimSpace(cells[i])
		}
		if v != "" {
			blank = false
		}
		r.values[col] = v
	}
	if blank {
		return pipeline.Document{}, false
	}
	return o.document(idx, r), true
}

func normalizeHeader(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.TrimPrefix(c, "\ufeff")
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
