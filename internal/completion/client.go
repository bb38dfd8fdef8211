// Package completion talks to an OpenAI-compatible chat completion API
// (DeepSeek by default).
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/askweb/internal/apperr"
	"github.com/kalambet/askweb/internal/composer"
)

const (
	// ProviderName identifies this client in errors and logs.
	ProviderName = "deepseek"

	DefaultBaseURL     = "https://api.deepseek.com/v1"
	DefaultModel       = "deepseek-chat"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
	defaultTimeout     = 60 * time.Second
	maxErrorBody       = 512
	maxResponseBody    = 10 << 20
)

// FallbackAnswer is returned when the provider answers successfully but
// without any text.
const FallbackAnswer = "AI response generation is currently unavailable. The search completed successfully; please review the sources below."

// Options configures a Client. Zero values fall back to defaults; a nil
// Temperature means DefaultTemperature, so 0 can still be requested.
type Options struct {
	BaseURL     string
	Model       string
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client sends chat completion requests.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewClient creates a completion client. An empty apiKey is reported as a
// configuration error on the first Complete call.
func NewClient(apiKey string, opts Options) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		httpClient:  opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		c.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.Model != "" {
		c.model = opts.Model
	}
	if opts.Temperature != nil {
		c.temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		c.maxTokens = opts.MaxTokens
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	return c
}

// Name implements pipeline.Completer.
func (c *Client) Name() string { return ProviderName }

// Complete asks the model to answer query from the assembled context.
func (c *Client) Complete(ctx context.Context, query, searchContext string) (Answer, error) {
	if c.apiKey == "" {
		return Answer{}, apperr.NewConfiguration(ProviderName, "API key not configured; set DEEPSEEK_API_KEY")
	}

	req := ChatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: composer.SystemPrompt},
			{Role: "user", Content: composer.UserPrompt(query, searchContext)},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	body, err := c.chat(ctx, req)
	if err != nil {
		return Answer{}, err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Answer{}, apperr.NewUpstream(ProviderName, http.StatusOK, err, "malformed response")
	}

	text := extractText(resp)
	if text == "" {
		return Answer{Text: FallbackAnswer, Degraded: true}, nil
	}
	return Answer{Text: text}, nil
}

func extractText(resp chatResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	msg := resp.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return ""
	}
	if strings.TrimSpace(*msg.Content) == "" {
		return ""
	}
	return *msg.Content
}

func (c *Client) chat(ctx context.Context, req ChatRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.NewInternal(err, "marshalling completion request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.NewInternal(err, "creating completion request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.NewUpstream(ProviderName, 0, err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperr.NewUpstream(ProviderName, resp.StatusCode,
			errors.New(strings.TrimSpace(string(excerpt))), "unexpected status")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, apperr.NewUpstream(ProviderName, resp.StatusCode, fmt.Errorf("reading body: %w", err), "reading response")
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
