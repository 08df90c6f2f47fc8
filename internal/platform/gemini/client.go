package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"emptyfridge/internal/kitchen"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.5-flash-lite"

// ErrMissingAPIKey is returned when Connect is called without a key.
var ErrMissingAPIKey = errors.New("gemini api key is required")

// Connector opens Gemini clients for per-request API keys.
type Connector struct {
	model       string
	temperature *float32
}

// NewConnector creates a Connector for the named model. temperature may be nil.
func NewConnector(model string, temperature *float32) *Connector {
	if model == "" {
		model = DefaultModel
	}
	return &Connector{model: model, temperature: temperature}
}

// RequiresKey implements kitchen.Connector.
func (c *Connector) RequiresKey() bool { return true }

// Model implements kitchen.Connector.
func (c *Connector) Model() string { return c.model }

// Connect creates a client authenticated with apiKey.
func (c *Connector) Connect(ctx context.Context, apiKey string) (kitchen.Backend, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := NewClient(ctx, apiKey, c.model, c.temperature)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Client is a client for the Gemini API.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, apiKey, model string, temperature *float32) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("error creating gemini client: %w", err)
	}
	m := client.GenerativeModel(model)
	if temperature != nil {
		m.SetTemperature(*temperature)
	}
	return &Client{client: client, model: m}, nil
}

// Generate sends the parts in order and returns the text of the first candidate.
func (c *Client) Generate(ctx context.Context, parts ...kitchen.Part) (string, error) {
	resp, err := c.model.GenerateContent(ctx, toGenaiParts(parts)...)
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

func toGenaiParts(parts []kitchen.Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Image != nil {
			out = append(out, genai.Blob{MIMEType: p.Image.MIMEType, Data: p.Image.Data})
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		if cand.FinishReason != genai.FinishReasonUnspecified {
			return "", fmt.Errorf("no content from Gemini (finish reason %s)", cand.FinishReason)
		}
		return "", fmt.Errorf("empty response from Gemini")
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return b.String(), nil
}

var _ kitchen.Connector = (*Connector)(nil)
var _ kitchen.Backend = (*Client)(nil)
