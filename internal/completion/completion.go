// Package completion wraps Genkit model generation behind a small client.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// ErrEmptyResponse indicates the model returned no usable text.
var ErrEmptyResponse = errors.New("model returned empty response")

// generateTimeout bounds a single model call.
const generateTimeout = 60 * time.Second

// Init creates a Genkit instance with the Google AI plugin. The plugin reads
// GEMINI_API_KEY from the environment.
func Init(ctx context.Context) *genkit.Genkit {
	return genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
}

// Client generates completions from a single configured model.
//
// Client is safe for concurrent use.
type Client struct {
	g      *genkit.Genkit
	model  string
	logger *slog.Logger
}

// New creates a Client for the given model. Bare model names are qualified
// with the googleai provider; names already containing a provider prefix
// (such as mock models in tests) pass through unchanged.
func New(g *genkit.Genkit, modelName string, logger *slog.Logger) *Client {
	if !strings.Contains(modelName, "/") {
		modelName = "googleai/" + modelName
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{g: g, model: modelName, logger: logger}
}

// Complete sends the prompt to the model and returns its text output.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	start := time.Now()
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("completion generated",
		"model", c.model,
		"prompt_len", len(prompt),
		"response_len", len(text),
		"duration", time.Since(start))
	return text, nil
}
