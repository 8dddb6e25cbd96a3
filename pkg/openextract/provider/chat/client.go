package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
	"github.com/cognicore/openextract/pkg/openextract/provider"
)

const (
	// DefaultMaxTokens is sent when neither the prompt nor the config sets a limit.
	DefaultMaxTokens = 1500
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 120 * time.Second

	maxErrorBody = 256
)

// Config holds the runtime settings of a chat completion adapter.
type Config struct {
	Name    string
	BaseURL string
	Model   string
	APIKey  string

	MaxTokens int
	// MinInterval is the minimum spacing between two requests.
	MinInterval time.Duration
	Timeout     time.Duration
	// StructuredOutput asks for a JSON object and decodes the reply content.
	StructuredOutput bool

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls an OpenAI-compatible chat completion endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ provider.Stages[*Request, json.RawMessage] = (*Client)(nil)

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("%w: chat: base URL and model required", internalerr.ErrInvalidConfig)
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{cfg: cfg, http: cfg.HTTPClient, logger: cfg.Logger}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MinInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return c, nil
}

// Request is the wire body of a chat completion call.
type Request struct {
	Model          string             `json:"model"`
	Messages       []pipeline.Message `json:"messages"`
	Temperature    float64            `json:"temperature"`
	MaxTokens      int                `json:"max_tokens"`
	Stream         *bool              `json:"stream,omitempty"`
	ResponseFormat *ResponseFormat    `json:"response_format,omitempty"`
}

// ResponseFormat selects the provider's output mode.
type ResponseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// PreparePayload implements provider.Stages.
func (c *Client) PreparePayload(payload pipeline.Payload) *Request {
	req := &Request{
		Model:       c.cfg.Model,
		Messages:    payload.Messages,
		Temperature: payload.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if payload.MaxTokens > 0 {
		req.MaxTokens = payload.MaxTokens
	}
	if c.cfg.StructuredOutput {
		stream := false
		req.Stream = &stream
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	return req
}

// Dispatch implements provider.Stages. It waits for the rate limiter, then
// posts the request with a per-call timeout.
func (c *Client) Dispatch(ctx context.Context, req *Request) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: rate limit wait: %v", internalerr.ErrProviderCall, c.cfg.Name, err)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: encode request: %v", internalerr.ErrProviderCall, c.cfg.Name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrProviderCall, c.cfg.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrProviderCall, c.cfg.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", internalerr.ErrProviderCall, c.cfg.Name, err)
	}
	c.logger.Debug("chat completion",
		"provider", c.cfg.Name,
		"model", c.cfg.Model,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s: http %d: %s", internalerr.ErrProviderCall, c.cfg.Name, resp.StatusCode, truncate(data))
	}
	return json.RawMessage(data), nil
}

// ParseResponse implements provider.Stages.
func (c *Client) ParseResponse(raw json.RawMessage) (any, error) {
	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrResponseParse, c.cfg.Name, err)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", internalerr.ErrProviderCall, c.cfg.Name, payload.Error.Message)
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message.Content == nil {
		return nil, fmt.Errorf("%w: %s: no message content in response", internalerr.ErrResponseParse, c.cfg.Name)
	}
	content := *payload.Choices[0].Message.Content

	if !c.cfg.StructuredOutput {
		return map[string]any{"content": content}, nil
	}
	var out any
	if err := json.Unmarshal([]byte(stripFence(content)), &out); err != nil {
		return nil, fmt.Errorf("%w: %s: content is not JSON: %v", internalerr.ErrResponseParse, c.cfg.Name, err)
	}
	return out, nil
}

// Invoke implements pipeline.Provider.
func (c *Client) Invoke(ctx context.Context, prompt pipeline.PromptUnit, doc pipeline.Document, payload pipeline.Payload) (any, error) {
	return provider.Invoke(ctx, c, payload)
}

// stripFence removes a surrounding ```json ... ``` block, which some models
// emit even in JSON mode.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
