package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"plantid-server-go/internal/platform/config"
)

const messagesPath = "/v1/messages"

// Client performs the single downstream Messages API call.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiVersion string
	maxTokens  int
}

// DownstreamResponse is the raw downstream answer.
type DownstreamResponse struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r DownstreamResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// NewClient builds a client from relay configuration. httpClient may be nil.
func NewClient(cfg config.RelayConfig, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("relay base_url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   base + messagesPath,
		model:      cfg.Model,
		apiVersion: cfg.APIVersion,
		maxTokens:  cfg.MaxTokens,
	}, nil
}

// Endpoint returns the downstream URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Identify sends the image and prompt with the caller's credential. Transport
// failures are returned as errors; any HTTP status is a response.
func (c *Client) Identify(ctx context.Context, apiKey, mediaType, data string) (DownstreamResponse, error) {
	payload, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: mediaType,
						Data:      data,
					},
				},
				{Type: "text", Text: IdentificationPrompt},
			},
		}},
	})
	if err != nil {
		return DownstreamResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return DownstreamResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", c.apiVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DownstreamResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return DownstreamResponse{}, fmt.Errorf("read downstream response after %s: %w", time.Since(start), err)
	}
	return DownstreamResponse{Status: resp.StatusCode, Body: body}, nil
}
