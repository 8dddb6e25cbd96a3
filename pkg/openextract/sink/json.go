package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

// File names written inside the configured output directories.
const (
	JSONFileName  = "results.json"
	JSONLFileName = "results.jsonl"
)

// JSONFile buffers results and writes them as an indented JSON array on Close.
type JSONFile struct {
	dir     string
	results []pipeline.Result
}

// NewJSONFile returns a sink writing dir/results.json.
func NewJSONFile(dir string) *JSONFile {
	return &JSONFile{dir: dir}
}

// Path is the file Close writes.
func (j *JSONFile) Path() string { return filepath.Join(j.dir, JSONFileName) }

// Write implements Sink.
func (j *JSONFile) Write(_ context.Context, r pipeline.Result) error {
	j.results = append(j.results, r)
	return nil
}

// Close implements Sink.
func (j *JSONFile) Close() error {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(j.Path())
	if err != nil {
		return err
	}
	defer f.Close()

	results := j.results
	if results == nil {
		results = []pipeline.Result{}
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("write %s: %w", j.Path(), err)
	}
	return f.Close()
}

// JSONL streams one result per line to dir/results.jsonl.
type JSONL struct {
	f   *os.File
	w   *bufio.Writer
	enc *json.Encoder
}

// NewJSONL creates dir and the results file.
func NewJSONL(dir string) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jsonl dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, JSONLFileName))
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONL{f: f, w: w, enc: enc}, nil
}

// Path is the file being written.
func (j *JSONL) Path() string { return j.f.Name() }

// Write implements Sink.
func (j *JSONL) Write(_ context.Context, r pipeline.Result) error {
	if err := j.enc.Encode(r); err != nil {
		return err
	}
	return j.w.Flush()
}

// Close implements Sink.
func (j *JSONL) Close() error {
	if err := j.w.Flush(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}

// ReadJSON loads results written by JSONFile.
func ReadJSON(path string) ([]pipeline.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var results []pipeline.Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return results, nil
}
