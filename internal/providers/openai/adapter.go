// Package openai implements the chat-completions adapter for OpenAI and
// OpenAI-compatible endpoints.
package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/lattice-dev/lattice/internal/errs"
	"github.com/lattice-dev/lattice/internal/providers"
	"github.com/lattice-dev/lattice/internal/tracing"
)

const systemPrompt = "You are a concise assistant running inside the lattice router."

// Adapter implements providers.Adapter against the chat-completions API.
type Adapter struct {
	id      string
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates an OpenAI adapter. baseURL must include the version prefix,
// e.g. "https://api.openai.com/v1".
func New(id, apiKey, baseURL string, opts ...Option) *Adapter {
	a := &Adapter{
		id:      id,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   60 * time.Second,
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

// Plan freezes the generation parameters for one call. Pure.
func (a *Adapter) Plan(p providers.Params, model string) providers.Plan {
	temperature, maxTokens := providers.ResolveParams(p)
	return providers.Plan{
		Target: providers.Target{Provider: a.id, Model: model},
		Params: providers.PlanParams{
			Temperature:  temperature,
			MaxTokens:    maxTokens,
			SystemPrompt: systemPrompt,
		},
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Execute performs one chat-completions call.
func (a *Adapter) Execute(ctx context.Context, plan providers.Plan, prompt string) (providers.Result, error) {
	if a.apiKey == "" {
		return providers.Result{}, errs.New(errs.KindConfiguration, "OPENAI_API_KEY is not configured").WithProvider(a.id)
	}

	payload := map[string]any{
		"model": plan.Target.Model,
		"messages": []map[string]string{
			{"role": "system", "content": plan.Params.SystemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": plan.Params.Temperature,
		"max_tokens":  plan.Params.MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}

	start := time.Now()
	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/chat/completions", payload, headers)
	latencyMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		return providers.Result{}, providers.Classify(err, a.id)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return providers.Result{}, errs.Wrap(errs.KindProviderInternal, err, "upstream returned a malformed response").WithProvider(a.id)
	}
	if len(parsed.Choices) == 0 {
		return providers.Result{}, errs.New(errs.KindProviderInternal, "upstream returned no choices").WithProvider(a.id)
	}

	output := parsed.Choices[0].Message.Content
	promptTokens := parsed.Usage.PromptTokens
	completionTokens := parsed.Usage.CompletionTokens

	provenance := map[string]any{
		"provider":      a.id,
		"model":         plan.Target.Model,
		"mode":          "chat.completions",
		"input_tokens":  promptTokens,
		"output_tokens": completionTokens,
	}
	if promptTokens == 0 && completionTokens == 0 {
		promptTokens = providers.EstimateTokens(prompt)
		completionTokens = providers.EstimateTokens(output)
		provenance["estimated"] = true
	}

	return providers.Result{
		Output:           output,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		LatencyMs:        latencyMs,
		Confidence:       0.9,
		Provenance:       provenance,
	}, nil
}
