package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"sort"

	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

const maxLineSize = 16 << 20

// JSONL reads one JSON object per line. Malformed lines are skipped with a
// warning.
type JSONL struct {
	path string
	opts Options
}

// NewJSONL returns a JSONL source.
func NewJSONL(path string, opts Options) *JSONL {
	return &JSONL{path: path, opts: opts.withDefaults()}
}

// Documents implements Source.
func (j *JSONL) Documents(ctx context.Context) iter.Seq2[pipeline.Document, error] {
	return func(yield func(pipeline.Document, error) bool) {
		f, err := os.Open(j.path)
		if err != nil {
			yield(pipeline.Document{}, err)
			return
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		line, idx := 0, 0
		for sc.Scan() {
			line++
			if j.opts.MaxRows > 0 && line > j.opts.MaxRows {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(pipeline.Document{}, err)
				return
			}
			text := bytes.TrimSpace(sc.Bytes())
			if len(text) == 0 {
				continue
			}

			obj := map[string]any{}
			dec := json.NewDecoder(bytes.NewReader(text))
			dec.UseNumber()
			if err := dec.Decode(&obj); err != nil {
				j.opts.Logger.Warn("skipping malformed JSON", "path", j.path, "line", line, "error", err)
				continue
			}

			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			doc := j.opts.document(idx, row{keys: keys, values: obj})
			idx++

			if !yield(doc, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(pipeline.Document{}, fmt.Errorf("read %s: %w", j.path, err))
		}
	}
}
