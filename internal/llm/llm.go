// Package llm talks to text-generation backends and turns their replies into JSON.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/bank-data-pipeline/internal/config"
	"github.com/dvloznov/bank-data-pipeline/internal/logger"
)

// ErrUnparseable is the envelope error when no JSON value could be recovered.
const ErrUnparseable = "Failed to parse JSON from model response"

// Generator produces a completion for a prompt. Backends ask for JSON output
// where the API supports it, but callers still validate the text.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// JSONResult is the envelope returned to handlers.
type JSONResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	RawText string      `json:"raw_text"`
	Error   string      `json:"error,omitempty"`
}

// GenerateJSON runs prompt through g and extracts a JSON value from the reply.
// Transport failures and unparseable replies are reported in the envelope.
func GenerateJSON(ctx context.Context, g Generator, prompt string) JSONResult {
	log := logger.FromContext(ctx)

	text, err := g.Complete(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Str("backend", g.Name()).Msg("LLM request failed")
		return JSONResult{Error: err.Error()}
	}

	data, ok := ExtractJSON(text)
	if !ok {
		log.Warn().Str("backend", g.Name()).Int("chars", len(text)).Msg("LLM reply was not JSON")
		return JSONResult{RawText: text, Error: ErrUnparseable}
	}
	return JSONResult{Success: true, Data: data, RawText: text}
}

var (
	objectPattern = regexp.MustCompile(`\{[\s\S]*\}`)
	arrayPattern  = regexp.MustCompile(`\[[\s\S]*\]`)
)

// ExtractJSON parses text directly, then with code fences removed, then the
// outermost {...} block, then the outermost [...] block.
func ExtractJSON(text string) (interface{}, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	candidates := []string{text, stripFences(text)}
	if m := objectPattern.FindString(text); m != "" {
		candidates = append(candidates, m)
	}
	if m := arrayPattern.FindString(text); m != "" {
		candidates = append(candidates, m)
	}

	for _, c := range candidates {
		var v interface{}
		if err := json.Unmarshal([]byte(c), &v); err == nil {
			return v, true
		}
	}
	return nil, false
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// New builds the generator selected by cfg.Backend.
func New(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "ollama":
		o, err := NewOllama(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return o, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("New: openai backend requires OPENAI_API_KEY")
		}
		return NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.Timeout), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("New: gemini backend requires GEMINI_API_KEY")
		}
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("New: unknown LLM backend %q", cfg.Backend)
	}
}

// Options override the configured backend for a single request.
type Options struct {
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"openai_api_key,omitempty"`
	UseOpenAI bool   `json:"use_openai,omitempty"`
}

func (o Options) IsZero() bool {
	return o == Options{}
}

// Apply returns cfg with o layered on top. UseOpenAI switches the backend,
// APIKey replaces the OpenAI key and Model replaces the model of whichever
// backend ends up selected.
func (o Options) Apply(cfg config.LLMConfig) config.LLMConfig {
	if o.UseOpenAI {
		cfg.Backend = "openai"
	}
	if o.APIKey != "" {
		cfg.OpenAIAPIKey = o.APIKey
	}
	if o.Model != "" {
		switch strings.ToLower(cfg.Backend) {
		case "openai":
			cfg.OpenAIModel = o.Model
		case "gemini":
			cfg.GeminiModel = o.Model
		default:
			cfg.OllamaModel = o.Model
		}
	}
	return cfg
}

// Selector hands out the default generator, or a fresh one when a request
// carries Options.
type Selector struct {
	cfg config.LLMConfig
	def Generator
}

// NewSelector wraps def, which may be nil when the configured backend is unavailable.
func NewSelector(cfg config.LLMConfig, def Generator) *Selector {
	return &Selector{cfg: cfg, def: def}
}

// For returns the generator for opts. With zero options it returns the
// default, which may be nil.
func (s *Selector) For(ctx context.Context, opts Options) (Generator, error) {
	if s == nil {
		s = &Selector{}
	}
	if opts.IsZero() {
		return s.def, nil
	}
	g, err := New(ctx, opts.Apply(s.cfg))
	if err != nil {
		return nil, fmt.Errorf("Selector.For: %w", err)
	}
	return g, nil
}
