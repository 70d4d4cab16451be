package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const ollamaKeepAlive = 15 * time.Minute

// Ollama generates through a local Ollama server.
type Ollama struct {
	Model  string
	client *api.Client
}

// NewOllama returns a client for the server at baseURL with the given request timeout.
func NewOllama(baseURL, model string, timeout time.Duration) (*Ollama, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("NewOllama: parse base url: %w", err)
	}
	return &Ollama{
		Model:  model,
		client: api.NewClient(base, &http.Client{Timeout: timeout}),
	}, nil
}

func (o *Ollama) Name() string { return "ollama" }

// Complete requests a non-streamed JSON-format generation.
func (o *Ollama) Complete(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:     o.Model,
		Prompt:    prompt,
		Stream:    &stream,
		Format:    json.RawMessage(`"json"`),
		KeepAlive: &api.Duration{Duration: ollamaKeepAlive},
	}

	var out strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("Ollama.Complete: generate: %w", err)
	}
	return out.String(), nil
}
