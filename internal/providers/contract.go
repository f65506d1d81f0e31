// Package providers defines the adapter capability every upstream must
// implement, plus the shared HTTP plumbing and error classification all
// adapters use.
package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Params carries caller-supplied generation parameters into Plan. Zero or
// nil fields mean "use the adapter default".
type Params struct {
	MaxTokens   int
	Temperature *float64
}

// Target names the upstream a plan is bound to.
type Target struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// PlanParams are the frozen generation parameters of a plan.
type PlanParams struct {
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
}

// Plan is a frozen, adapter-specific execution bundle. Produced by Plan,
// consumed by Execute; never mutated in between.
type Plan struct {
	Target Target     `json:"target"`
	Params PlanParams `json:"params"`
}

// Result is the normalized outcome of one upstream call. Token counts
// reported by the upstream win; estimated counts are marked in Provenance.
type Result struct {
	Output           string
	PromptTokens     int
	CompletionTokens int
	LatencyMs        float64
	CostUSD          float64 // upstream-reported cost, when available
	Confidence       float64
	Provenance       map[string]any
}

// Adapter is the provider capability: a pure planning step and a single
// upstream call. Execute returns errors from the gateway taxonomy only.
type Adapter interface {
	ID() string
	Plan(p Params, model string) Plan
	Execute(ctx context.Context, plan Plan, prompt string) (Result, error)
}

// Defaults applied by adapters when the caller leaves parameters unset.
const (
	DefaultMaxTokens   = 512
	DefaultTemperature = 0.2
)

// ResolveParams applies the shared defaults to caller-supplied params.
func ResolveParams(p Params) (temperature float64, maxTokens int) {
	temperature = DefaultTemperature
	if p.Temperature != nil {
		temperature = *p.Temperature
	}
	maxTokens = p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return temperature, maxTokens
}

// EstimateTokens approximates a token count at ~4 chars per token. Used only
// when the upstream omits usage; results are marked estimated in provenance.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// StatusError captures a non-200 HTTP status from a provider response.
type StatusError struct {
	StatusCode     int
	Body           string
	RetryAfterSecs int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// ParseRetryAfter records a Retry-After header value when it is a plain
// seconds count. HTTP-date forms are ignored.
func (e *StatusError) ParseRetryAfter(header string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		e.RetryAfterSecs = secs
	}
}
