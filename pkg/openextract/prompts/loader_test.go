package prompts

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoaderSortedTxt(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"02_tags.txt":    "Tags for {01_summary.content}",
		"01_summary.txt": "Summarize {title}",
		"notes.md":       "ignored when txt files exist",
	})
	if err := os.Mkdir(filepath.Join(dir, "sub.txt"), 0755); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir)
	l.TemperatureOverrides = map[string]float64{"02_tags": 0.9}
	l.MaxTokensOverrides = map[string]int{"01_summary": 200}

	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(got))
	}
	if got[0].Name() != "01_summary" || got[1].Name() != "02_tags" {
		t.Errorf("unexpected order: %s, %s", got[0].Name(), got[1].Name())
	}
	if got[0].Section() != got[0].Name() {
		t.Errorf("section should equal name, got %s", got[0].Section())
	}
	if got[0].Temperature() != DefaultTemperature {
		t.Errorf("expected default temperature, got %v", got[0].Temperature())
	}
	if got[1].Temperature() != 0.9 {
		t.Errorf("expected override 0.9, got %v", got[1].Temperature())
	}
	if got[0].maxTokens != 200 {
		t.Errorf("expected max tokens override, got %d", got[0].maxTokens)
	}
}

func TestLoaderFallsBackToMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"b.md": "B", "a.md": "A"})

	got, err := NewLoader(dir).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name() != "a" || got[1].Name() != "b" {
		t.Errorf("unexpected prompts: %v", got)
	}
}

func TestLoaderDefaultTemperature(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "A"})
	l := NewLoader(dir)
	l.DefaultTemperature = 0.0

	got, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Temperature() != 0 {
		t.Errorf("expected configured default 0, got %v", got[0].Temperature())
	}
}

func TestLoaderMissingDir(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope")).Load()
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoaderEmptyDir(t *testing.T) {
	_, err := NewLoader(t.TempDir()).Load()
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoaderMalformedTemplate(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "broken {"})
	_, err := NewLoader(dir).Load()
	if !errors.Is(err, internalerr.ErrMalformedTemplate) {
		t.Errorf("expected ErrMalformedTemplate, got %v", err)
	}
}

func TestLoaderUnits(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "A {title}"})
	units, err := NewLoader(dir).Units()
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].Name() != "a" {
		t.Errorf("unexpected units %v", units)
	}
}

func TestLoaderHyphenatedStemIsReferenceable(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"01_key-points.txt": "Key points of {title}",
		"02_tags.txt":       "Tag: {01_key-points.content}",
	})

	got, err := NewLoader(dir).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got[0].Section() != "01_key-points" {
		t.Fatalf("unexpected section %q", got[0].Section())
	}
	ctx := pipeline.Context{"01_key-points": map[string]any{"content": "short"}}
	payload, err := got[1].RenderInput(pipeline.Document{ID: "1"}, ctx)
	if err != nil {
		t.Fatalf("RenderInput: %v", err)
	}
	if payload.Messages[0].Content != "Tag: short" {
		t.Errorf("got %q", payload.Messages[0].Content)
	}
}

func TestLoaderRejectsUnreferenceableStem(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"01.summary.txt": "x"})

	_, err := NewLoader(dir).Load()
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for dotted stem, got %v", err)
	}
}
