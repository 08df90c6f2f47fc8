package localllm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"emptyfridge/internal/kitchen"
)

const (
	// DefaultURL is the chat completions endpoint of a local OpenAI-compatible server.
	DefaultURL = "http://localhost:1234/v1/chat/completions"
	// DefaultModel is the vision model the local server is expected to host.
	DefaultModel = "gemma-3-12b-it:2"
)

// Client represents a client for the local LLM.
type Client struct {
	httpClient  *http.Client
	apiURL      string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
}

// NewClient creates a new client for the local LLM.
func NewClient(apiURL, model string) *Client {
	if apiURL == "" {
		apiURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		httpClient:  &http.Client{},
		apiURL:      apiURL,
		model:       model,
		temperature: 1,
		maxTokens:   2048,
	}
}

// Request represents the request body for the local LLM.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Message represents a message in the request.
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content represents the content of a message.
type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents the image URL in the content.
type ImageURL struct {
	URL string `json:"url"`
}

// Response represents the response from the local LLM.
type Response struct {
	Choices []Choice `json:"choices"`
}

// Choice represents a choice in the response.
type Choice struct {
	Message ResponseMessage `json:"message"`
}

// ResponseMessage represents a message in the response.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate sends all parts as one user message and returns the first choice.
func (c *Client) Generate(ctx context.Context, parts ...kitchen.Part) (string, error) {
	reqBody := Request{
		Model: c.model,
		Messages: []Message{
			{Role: "user", Content: toContent(parts)},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("received non-OK status code: %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var llmResp Response
	if err := json.NewDecoder(resp.Body).Decode(&llmResp); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(llmResp.Choices) > 0 {
		return llmResp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("no content found in response")
}

// Close implements kitchen.Backend. The HTTP client holds no per-run resources.
func (c *Client) Close() error { return nil }

func toContent(parts []kitchen.Part) []Content {
	out := make([]Content, 0, len(parts))
	for _, p := range parts {
		if p.Image != nil {
			out = append(out, Content{
				Type: "image_url",
				ImageURL: &ImageURL{
					URL: "data:" + p.Image.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Image.Data),
				},
			})
			continue
		}
		out = append(out, Content{Type: "text", Text: p.Text})
	}
	return out
}

// Connector hands out clients for the local server. A key is optional and sent as a bearer token.
type Connector struct {
	URL  string
	Name string
	Temp *float64
	HTTP *http.Client
}

// RequiresKey implements kitchen.Connector.
func (c *Connector) RequiresKey() bool { return false }

// Model implements kitchen.Connector.
func (c *Connector) Model() string {
	if c.Name == "" {
		return DefaultModel
	}
	return c.Name
}

// Connect implements kitchen.Connector.
func (c *Connector) Connect(ctx context.Context, apiKey string) (kitchen.Backend, error) {
	client := NewClient(c.URL, c.Name)
	client.apiKey = apiKey
	if c.Temp != nil {
		client.temperature = *c.Temp
	}
	if c.HTTP != nil {
		client.httpClient = c.HTTP
	}
	return client, nil
}

var _ kitchen.Connector = (*Connector)(nil)
