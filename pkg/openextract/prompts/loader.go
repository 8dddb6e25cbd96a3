package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

// Loader builds prompts from the template files in a directory.
type Loader struct {
	Dir                  string
	DefaultTemperature   float64
	TemperatureOverrides map[string]float64
	MaxTokensOverrides   map[string]int
}

// NewLoader returns a Loader for dir with the package default temperature.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir, DefaultTemperature: DefaultTemperature}
}

// Load reads every *.txt file in name order, or every *.md file when the
// directory has no .txt files. Each file becomes one step named after its stem.
func (l *Loader) Load() ([]*TemplatePrompt, error) {
	info, err := os.Stat(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("prompts directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: prompts path %s is not a directory", internalerr.ErrInvalidConfig, l.Dir)
	}

	files, err := l.files(".txt")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if files, err = l.files(".md"); err != nil {
			return nil, err
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no prompt files in %s", internalerr.ErrInvalidConfig, l.Dir)
	}

	out := make([]*TemplatePrompt, 0, len(files))
	for _, path := range files {
		p, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Units loads the prompts as pipeline steps.
func (l *Loader) Units() ([]pipeline.PromptUnit, error) {
	loaded, err := l.Load()
	if err != nil {
		return nil, err
	}
	units := make([]pipeline.PromptUnit, len(loaded))
	for i, p := range loaded {
		units[i] = p
	}
	return units, nil
}

func (l *Loader) files(ext string) ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		out = append(out, filepath.Join(l.Dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (l *Loader) loadFile(path string) (*TemplatePrompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	temp := l.DefaultTemperature
	if t, ok := l.TemperatureOverrides[name]; ok {
		temp = t
	}
	opts := []PromptOption{WithTemperature(temp)}
	if n, ok := l.MaxTokensOverrides[name]; ok {
		opts = append(opts, WithMaxTokens(n))
	}
	return NewTemplatePrompt(name, name, string(data), opts...)
}
