// Package claude wraps the Anthropic SDK behind the small completion
// surface the triage backend needs.
package claude

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const responseTokens = 1024

// Client issues single-turn completion requests to the Claude API.
type Client struct {
	api   anthropic.Client
	model string
}

// New creates a new Claude client for the given API key and model name.
// Extra request options (base URL, HTTP client) are for tests.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
	}
	return &Client{
		api:   anthropic.NewClient(append(base, opts...)...),
		model: model,
	}
}

// Complete sends one user prompt under the given system prompt and
// returns the concatenated text content of the reply.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: responseTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
