// Package anthropic implements the messages-API adapter for Anthropic.
package anthropic

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

const apiVersion = "2023-06-01"

const systemPrompt = "You are a concise assistant running inside the lattice router."

// Adapter implements providers.Adapter against the messages API.
type Adapter struct {
	id      string
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates an Anthropic adapter, e.g. New("anthropic", key,
// "https://api.anthropic.com").
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

// Plan freezes the generation parameters for one call. Pure. The messages
// API requires max_tokens, so the default always applies.
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

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Execute performs one messages call.
func (a *Adapter) Execute(ctx context.Context, plan providers.Plan, prompt string) (providers.Result, error) {
	if a.apiKey == "" {
		return providers.Result{}, errs.New(errs.KindConfiguration, "ANTHROPIC_API_KEY is not configured").WithProvider(a.id)
	}

	payload := map[string]any{
		"model":       plan.Target.Model,
		"max_tokens":  plan.Params.MaxTokens,
		"temperature": plan.Params.Temperature,
		"system":      plan.Params.SystemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": apiVersion,
	}

	start := time.Now()
	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/v1/messages", payload, headers)
	latencyMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		return providers.Result{}, providers.Classify(err, a.id)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return providers.Result{}, errs.Wrap(errs.KindProviderInternal, err, "upstream returned a malformed response").WithProvider(a.id)
	}
	if len(parsed.Content) == 0 {
		return providers.Result{}, errs.New(errs.KindProviderInternal, "upstream returned no content blocks").WithProvider(a.id)
	}

	output := parsed.Content[0].Text
	promptTokens := parsed.Usage.InputTokens
	completionTokens := parsed.Usage.OutputTokens

	provenance := map[string]any{
		"provider":      a.id,
		"model":         plan.Target.Model,
		"mode":          "messages",
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
