// Package search queries the Tavily web-search API.
package search

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

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kalambet/askweb/internal/apperr"
	"github.com/kalambet/askweb/internal/storage"
)

const (
	// ProviderName identifies this client in errors and logs.
	ProviderName = "tavily"

	DefaultBaseURL    = "https://api.tavily.com"
	DefaultMaxResults = 5
	defaultTimeout    = 30 * time.Second
	searchDepth       = "basic"
	maxErrorBody      = 512
	maxResponseBody   = 10 << 20
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client sends queries to Tavily and normalizes the results.
type Client struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// NewClient creates a Tavily client. An empty apiKey is accepted here and
// reported as a configuration error on the first Search call.
func NewClient(apiKey string, opts Options) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		maxResults: DefaultMaxResults,
		httpClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		c.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.MaxResults > 0 {
		c.maxResults = opts.MaxResults
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

// Name implements pipeline.Searcher.
func (c *Client) Name() string { return ProviderName }

type searchRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	IncludeRawContent bool   `json:"include_raw_content"`
	MaxResults        int    `json:"max_results"`
}

// Search runs query against Tavily and returns at most MaxResults results in
// provider order.
func (c *Client) Search(ctx context.Context, query string) ([]storage.Result, error) {
	if c.apiKey == "" {
		return nil, apperr.NewConfiguration(ProviderName, "API key not configured; set TAVILY_API_KEY")
	}

	body, err := json.Marshal(searchRequest{
		Query:             query,
		SearchDepth:       searchDepth,
		IncludeRawContent: true,
		MaxResults:        c.maxResults,
	})
	if err != nil {
		return nil, apperr.NewInternal(err, "marshalling search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.NewInternal(err, "creating search request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.NewUpstream(ProviderName, 0, err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperr.NewUpstream(ProviderName, resp.StatusCode,
			errors.New(strings.TrimSpace(string(excerpt))), "unexpected status")
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, apperr.NewUpstream(ProviderName, resp.StatusCode, err, "reading response")
	}

	results, err := parseResponse(raw)
	if err != nil {
		return nil, apperr.NewUpstream(ProviderName, resp.StatusCode, err, "malformed response")
	}
	if len(results) > c.maxResults {
		results = results[:c.maxResults]
	}
	return results, nil
}

// wireResponse mirrors Tavily's body. Required fields are pointers so a
// missing key can be told apart from an empty string.
type wireResponse struct {
	Results *[]wireResult `json:"results"`
}

type wireResult struct {
	Title         *string `json:"title"`
	URL           *string `json:"url"`
	Content       *string `json:"content"`
	RawContent    *string `json:"raw_content"`
	PublishedDate *string `json:"published_date"`
}

func (r wireResult) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NotNil),
		validation.Field(&r.URL, validation.NotNil),
		validation.Field(&r.Content, validation.NotNil),
	)
}

// parseResponse decodes and validates a Tavily body. Unknown keys are
// ignored; missing required keys and wrong types are errors.
func parseResponse(raw []byte) ([]storage.Result, error) {
	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decoding body: %w", err)
	}
	if wire.Results == nil {
		return nil, errors.New("results: cannot be blank")
	}

	out := make([]storage.Result, 0, len(*wire.Results))
	for i, w := range *wire.Results {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("results[%d]: %w", i, err)
		}
		out = append(out, storage.Result{
			Title:         *w.Title,
			URL:           *w.URL,
			Content:       *w.Content,
			RawContent:    w.RawContent,
			PublishedDate: w.PublishedDate,
		})
	}
	return out, nil
}
