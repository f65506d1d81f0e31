// Package gemini implements the generateContent adapter for Google Gemini.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/lattice-dev/lattice/internal/errs"
	"github.com/lattice-dev/lattice/internal/providers"
	"github.com/lattice-dev/lattice/internal/tracing"
)

const (
	defaultModel     = "gemini-2.0-flash"
	defaultMaxTokens = 1024
	defaultTemp      = 0.3
)

// perTokenPricing is the adapter-side USD cost per token, reported as
// upstream cost when the central catalog has no row for the model.
var perTokenPricing = map[string][2]float64{
	"gemini-2.0-flash": {0.25 / 1e6, 0.5 / 1e6},
	"gemini-1.5-flash": {0.35 / 1e6, 1.05 / 1e6},
	"gemini-1.5-pro":   {7.0 / 1e6, 21.0 / 1e6},
}

// Adapter implements providers.Adapter against the Gemini REST API.
type Adapter struct {
	id      string
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a Gemini adapter, e.g. New("gemini", key,
// "https://generativelanguage.googleapis.com").
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

// Plan freezes the generation parameters. Gemini's defaults differ from the
// chat adapters: temperature 0.3, 1024 output tokens.
func (a *Adapter) Plan(p providers.Params, model string) providers.Plan {
	if model == "" {
		model = defaultModel
	}
	temperature := defaultTemp
	if p.Temperature != nil {
		temperature = *p.Temperature
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return providers.Plan{
		Target: providers.Target{Provider: a.id, Model: model},
		Params: providers.PlanParams{Temperature: temperature, MaxTokens: maxTokens},
	}
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Execute performs one generateContent call.
func (a *Adapter) Execute(ctx context.Context, plan providers.Plan, prompt string) (providers.Result, error) {
	if a.apiKey == "" {
		return providers.Result{}, errs.New(errs.KindConfiguration, "GEMINI_API_KEY is not configured").WithProvider(a.id)
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature":     plan.Params.Temperature,
			"maxOutputTokens": plan.Params.MaxTokens,
		},
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", a.baseURL, plan.Target.Model)
	headers := map[string]string{"x-goog-api-key": a.apiKey}

	start := time.Now()
	body, err := providers.DoRequest(ctx, a.client, url, payload, headers)
	latencyMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		return providers.Result{}, providers.Classify(err, a.id)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return providers.Result{}, errs.Wrap(errs.KindProviderInternal, err, "upstream returned a malformed response").WithProvider(a.id)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return providers.Result{}, errs.New(errs.KindProviderInternal, "upstream returned no candidates").WithProvider(a.id)
	}

	output := parsed.Candidates[0].Content.Parts[0].Text
	promptTokens := parsed.UsageMetadata.PromptTokenCount
	completionTokens := parsed.UsageMetadata.CandidatesTokenCount

	provenance := map[string]any{
		"provider":      a.id,
		"model":         plan.Target.Model,
		"mode":          "generate_content",
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
		CostUSD:          estimateCost(plan.Target.Model, promptTokens, completionTokens),
		Confidence:       0.9,
		Provenance:       provenance,
	}, nil
}

func estimateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, ok := perTokenPricing[model]
	if !ok {
		pricing = perTokenPricing[defaultModel]
	}
	cost := float64(promptTokens)*pricing[0] + float64(completionTokens)*pricing[1]
	return math.Round(cost*1e8) / 1e8
}
