// Package trace persists per-request routing traces. The trace is the audit
// record of one completion: which provider answered, what it cost, and how
// the routing decision was made.
package trace

import (
	"context"
	"time"
)

// Trace statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Record is one persisted completion trace.
type Record struct {
	ID               string         `json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	Provider         string         `json:"provider"`
	Model            string         `json:"model"`
	Input            string         `json:"input"`
	Output           string         `json:"output,omitempty"`
	LatencyMs        float64        `json:"latency_ms"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	CostUSD          float64        `json:"cost_usd"`
	Band             string         `json:"band"`
	RequestedBand    string         `json:"requested_band,omitempty"`
	InferredBand     string         `json:"inferred_band,omitempty"`
	RouteSource      string         `json:"route_source,omitempty"`
	Plan             map[string]any `json:"plan,omitempty"`
	Provenance       map[string]any `json:"provenance,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Status           string         `json:"status"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	RequestID        string         `json:"request_id,omitempty"`
}

// Sink receives completed traces. Implementations must be safe for
// concurrent use; Record failures are the caller's to log, never to
// propagate to the client.
type Sink interface {
	Record(ctx context.Context, rec Record) error
	List(ctx context.Context, limit, offset int, status string) ([]Record, error)
	Close() error
}

// Discard is a Sink that drops everything. Used when persistence is off.
type Discard struct{}

func (Discard) Record(context.Context, Record) error { return nil }

func (Discard) List(context.Context, int, int, string) ([]Record, error) {
	return nil, nil
}

func (Discard) Close() error { return nil }
