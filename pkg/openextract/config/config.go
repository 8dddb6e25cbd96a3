package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
)

// Defaults applied when the configuration leaves a value unset.
const (
	DefaultProvider     = "siliconflow"
	DefaultSleepSeconds = 1.0
	DefaultTimeout      = 120.0
	DefaultJSONPath     = "output/api_results"
)

// Config is the merged pipeline and settings configuration.
type Config struct {
	Pipeline  Pipeline                    `yaml:"pipeline"`
	Providers map[string]ProviderSettings `yaml:"providers"`
	Logging   Logging                     `yaml:"logging"`
}

// Pipeline describes one extraction pipeline.
type Pipeline struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Source      Source      `yaml:"source"`
	Runtime     Runtime     `yaml:"runtime"`
	Provider    ProviderRef `yaml:"provider"`
	Prompts     Prompts     `yaml:"prompts"`
	Outputs     Outputs     `yaml:"outputs"`
}

// Source selects and shapes the tabular input.
type Source struct {
	Type          string   `yaml:"type"` // excel | csv | jsonl
	Path          string   `yaml:"path"`
	Sheet         SheetRef `yaml:"sheet"`
	IDColumn      string   `yaml:"id_column"`
	TitleColumn   string   `yaml:"title_column"`
	ContentColumn string   `yaml:"content_column"`
	StripHTML     bool     `yaml:"strip_html"`
}

// Runtime limits.
type Runtime struct {
	MaxRows int `yaml:"max_rows"`
}

// ProviderRef picks a provider and its pacing.
type ProviderRef struct {
	Name         string   `yaml:"name"`
	SleepSeconds *Seconds `yaml:"sleep_seconds"`
	Timeout      *Seconds `yaml:"timeout"`
}

// MinInterval returns the minimum spacing between provider calls.
func (p ProviderRef) MinInterval() time.Duration {
	if p.SleepSeconds == nil {
		return Seconds(DefaultSleepSeconds).Duration()
	}
	return p.SleepSeconds.Duration()
}

// CallTimeout returns the per-call network timeout.
func (p ProviderRef) CallTimeout() time.Duration {
	if p.Timeout == nil {
		return Seconds(DefaultTimeout).Duration()
	}
	return p.Timeout.Duration()
}

// Prompts locates prompt templates and their per-step overrides.
type Prompts struct {
	Dir                  string             `yaml:"dir"`
	DefaultTemperature   *float64           `yaml:"default_temperature"`
	TemperatureOverrides map[string]float64 `yaml:"temperature_overrides"`
	MaxTokensOverrides   map[string]int     `yaml:"max_tokens_overrides"`
}

// Outputs lists result destinations. JSONPath and JSONLDump are directories.
type Outputs struct {
	JSONPath   string `yaml:"json_path"`
	JSONLDump  string `yaml:"jsonl_dump"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ProviderSettings is the per-provider block of the global settings.
type ProviderSettings struct {
	APIBase          string `yaml:"api_base"`
	Model            string `yaml:"model"`
	APIKey           string `yaml:"api_key"`
	APIKeyEnv        string `yaml:"api_key_env"`
	MaxTokens        int    `yaml:"max_tokens"`
	StructuredOutput bool   `yaml:"structured_output"`
}

// Seconds is a duration written in YAML either as a number of seconds
// (1.5) or as a Go duration string ("1500ms").
type Seconds float64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Seconds) UnmarshalYAML(value *yaml.Node) error {
	var f float64
	if err := value.Decode(&f); err == nil {
		*s = Seconds(f)
		return nil
	}
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("duration %q: %w", str, err)
	}
	*s = Seconds(d.Seconds())
	return nil
}

// Duration returns the standard time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// SheetRef names a worksheet either by name or by zero-based index.
type SheetRef struct {
	Name  string
	Index int
}

// UnmarshalYAML allows a sheet to be an integer index or a name.
func (r *SheetRef) UnmarshalYAML(value *yaml.Node) error {
	var idx int
	if err := value.Decode(&idx); err == nil {
		r.Index = idx
		return nil
	}
	return value.Decode(&r.Name)
}

// MarshalYAML keeps SheetRef round-trippable.
func (r SheetRef) MarshalYAML() (interface{}, error) {
	if r.Name != "" {
		return r.Name, nil
	}
	return r.Index, nil
}

// LoadYAML reads a YAML file into a generic map. An empty file yields an
// empty map.
func LoadYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Load reads the pipeline file and, when settingsPath names an existing
// file, merges it underneath so pipeline values win.
func Load(pipelinePath, settingsPath string) (*Config, error) {
	merged, err := LoadYAML(pipelinePath)
	if err != nil {
		return nil, fmt.Errorf("load pipeline config: %w", err)
	}

	if settingsPath != "" {
		settings, err := LoadYAML(settingsPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("load settings: %w", err)
		default:
			merged = Merge(settings, merged)
		}
	}

	return Decode(merged)
}

// Decode converts a merged generic map into a Config and applies defaults.
func Decode(m map[string]any) (*Config, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Pipeline.Provider.Name == "" {
		c.Pipeline.Provider.Name = DefaultProvider
	}
	if c.Pipeline.Outputs.JSONPath == "" {
		c.Pipeline.Outputs.JSONPath = DefaultJSONPath
	}
	if c.Pipeline.Source.IDColumn == "" {
		c.Pipeline.Source.IDColumn = "Id"
	}
	if c.Pipeline.Source.TitleColumn == "" {
		c.Pipeline.Source.TitleColumn = "Title"
	}
	if c.Pipeline.Source.ContentColumn == "" {
		c.Pipeline.Source.ContentColumn = "Content"
	}
}

// Validate checks that the settings a run cannot start without are present.
func (c *Config) Validate() error {
	var missing []string
	if c.Pipeline.Source.Type == "" {
		missing = append(missing, "pipeline.source.type")
	}
	if c.Pipeline.Source.Path == "" {
		missing = append(missing, "pipeline.source.path")
	}
	if c.Pipeline.Prompts.Dir == "" {
		missing = append(missing, "pipeline.prompts.dir")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", internalerr.ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

// ProviderSettings returns the settings block of the selected provider.
func (c *Config) ProviderSettings() ProviderSettings {
	return c.Providers[c.Pipeline.Provider.Name]
}
