package router

import (
	"strings"

	"github.com/lattice-dev/lattice/internal/bands"
	"github.com/lattice-dev/lattice/internal/pricing"
)

// Request is one completion request after JSON decoding.
type Request struct {
	Prompt      string            `json:"prompt"`
	Band        string            `json:"band,omitempty"`
	Model       string            `json:"model,omitempty"`
	Provider    string            `json:"provider,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Normalize trims and lowercases the routing-relevant fields in place.
func (r *Request) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.Band = bands.Normalize(r.Band)
	r.Model = strings.TrimSpace(r.Model)
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
}

// Usage is the token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Decision explains how the router chose the target.
type Decision struct {
	Reason       string            `json:"reason"`
	Band         string            `json:"band"`
	InferredBand string            `json:"inferred_band,omitempty"`
	Score        float64           `json:"score"`
	Candidates   []bands.Candidate `json:"candidates"`
	Chosen       bands.Candidate   `json:"chosen"`
	CacheHit     bool              `json:"cache_hit"`
}

// Response is the completion payload returned to the caller and, on a miss,
// the value stored in the exact-match cache.
type Response struct {
	Text       string            `json:"text"`
	Provider   string            `json:"provider"`
	Model      string            `json:"model"`
	Band       string            `json:"band"`
	LatencyMs  float64           `json:"latency_ms"`
	Usage      Usage             `json:"usage"`
	Cost       pricing.Breakdown `json:"cost"`
	Tags       []string          `json:"tags"`
	Routing    Decision          `json:"routing"`
	Provenance map[string]any    `json:"provenance,omitempty"`
}
