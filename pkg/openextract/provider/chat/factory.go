package chat

import (
	"time"

	"github.com/cognicore/openextract/pkg/openextract/pipeline"
	"github.com/cognicore/openextract/pkg/openextract/provider"
)

// Known OpenAI-compatible endpoints.
var defaultBaseURLs = map[string]string{
	"siliconflow": "https://api.siliconflow.cn/v1",
	"openai":      "https://api.openai.com/v1",
	"deepseek":    "https://api.deepseek.com/v1",
}

// DefaultModel is used when the provider settings name no model.
const DefaultModel = "deepseek-chat"

// Names lists the providers Register installs.
func Names() []string {
	return []string{"deepseek", "openai", "siliconflow"}
}

// Register installs a chat factory under every known endpoint name.
func Register(r *provider.Registry) {
	for _, name := range Names() {
		r.Register(name, Factory)
	}
}

// Factory builds a Client from registry settings.
func Factory(s provider.Settings) (pipeline.Provider, error) {
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[s.Name]
	}
	model := s.Model
	if model == "" {
		model = DefaultModel
	}
	return New(Config{
		Name:             s.Name,
		BaseURL:          baseURL,
		Model:            model,
		APIKey:           s.APIKey,
		MaxTokens:        s.MaxTokens,
		MinInterval:      seconds(s.MinIntervalSecs),
		Timeout:          seconds(s.TimeoutSecs),
		StructuredOutput: s.StructuredOutput,
		Logger:           s.Logger,
	})
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
