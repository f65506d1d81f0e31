// Package ollama implements the adapter for a local Ollama daemon. Calls are
// free; token counts are always estimated because Ollama's generate endpoint
// reports none.
package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/lattice-dev/lattice/internal/providers"
	"github.com/lattice-dev/lattice/internal/tracing"
)

// Adapter implements providers.Adapter against /api/generate.
type Adapter struct {
	id           string
	baseURL      string
	defaultModel string
	client       *http.Client
}

// New creates an Ollama adapter. Local generation is slow; the timeout
// defaults to 120s.
func New(id, baseURL, defaultModel string, opts ...Option) *Adapter {
	a := &Adapter{
		id:           id,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		client: &http.Client{
			Timeout:   120 * time.Second,
			Transport: tracing.HTTPTransport(nil),
		},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.client.Timeout = d }
}

func (a *Adapter) ID() string { return a.id }

// Plan freezes the target model. Generation params are left to the daemon's
// model defaults.
func (a *Adapter) Plan(p providers.Params, model string) providers.Plan {
	if model == "" {
		model = a.defaultModel
	}
	temperature, maxTokens := providers.ResolveParams(p)
	return providers.Plan{
		Target: providers.Target{Provider: a.id, Model: model},
		Params: providers.PlanParams{Temperature: temperature, MaxTokens: maxTokens},
	}
}

type generateResponse struct {
	Response string `json:"response"`
}

// Execute performs one non-streaming generate call.
func (a *Adapter) Execute(ctx context.Context, plan providers.Plan, prompt string) (providers.Result, error) {
	payload := map[string]any{
		"model":  plan.Target.Model,
		"prompt": prompt,
		"stream": false,
	}

	start := time.Now()
	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/api/generate", payload, nil)
	latencyMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		return providers.Result{}, providers.Classify(err, a.id)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return providers.Result{}, providers.Classify(err, a.id)
	}

	output := strings.TrimSpace(parsed.Response)
	promptTokens := providers.EstimateTokens(prompt)
	completionTokens := providers.EstimateTokens(output)

	return providers.Result{
		Output:           output,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		LatencyMs:        latencyMs,
		Confidence:       0.9,
		Provenance: map[string]any{
			"provider":      a.id,
			"model":         plan.Target.Model,
			"mode":          "generate",
			"input_tokens":  promptTokens,
			"output_tokens": completionTokens,
			"estimated":     true,
		},
	}, nil
}
