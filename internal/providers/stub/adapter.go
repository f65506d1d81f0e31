// Package stub provides a deterministic, zero-cost adapter for development
// profiles and tests. It never leaves the process.
package stub

import (
	"context"
	"strings"

	"github.com/lattice-dev/lattice/internal/providers"
)

// Adapter echoes a canned or derived reply with deterministic token counts.
type Adapter struct {
	id     string
	output string // fixed reply; empty means echo the prompt
}

// New creates a stub adapter that echoes the prompt.
func New(id string, opts ...Option) *Adapter {
	a := &Adapter{id: id}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithOutput fixes the reply text instead of echoing the prompt.
func WithOutput(text string) Option {
	return func(a *Adapter) { a.output = text }
}

func (a *Adapter) ID() string { return a.id }

// Plan freezes the generation parameters. Pure.
func (a *Adapter) Plan(p providers.Params, model string) providers.Plan {
	temperature, maxTokens := providers.ResolveParams(p)
	return providers.Plan{
		Target: providers.Target{Provider: a.id, Model: model},
		Params: providers.PlanParams{Temperature: temperature, MaxTokens: maxTokens},
	}
}

// Execute returns the canned reply without any I/O. Token counts are word
// counts so identical prompts always produce identical usage.
func (a *Adapter) Execute(_ context.Context, plan providers.Plan, prompt string) (providers.Result, error) {
	output := a.output
	if output == "" {
		output = prompt
	}

	promptTokens := wordCount(prompt)
	completionTokens := wordCount(output)

	return providers.Result{
		Output:           output,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		LatencyMs:        1,
		Confidence:       1.0,
		Provenance: map[string]any{
			"provider":      a.id,
			"model":         plan.Target.Model,
			"mode":          "stub",
			"input_tokens":  promptTokens,
			"output_tokens": completionTokens,
		},
	}, nil
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
