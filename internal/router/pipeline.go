// Package router implements the completion pipeline: score the prompt,
// resolve a band, pick candidates, consult the exact-match cache, dispatch
// with failover, then account cost, tag sensitivity, and persist the trace.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-dev/lattice/internal/bands"
	"github.com/lattice-dev/lattice/internal/cache"
	"github.com/lattice-dev/lattice/internal/cloud"
	"github.com/lattice-dev/lattice/internal/complexity"
	"github.com/lattice-dev/lattice/internal/errs"
	"github.com/lattice-dev/lattice/internal/metrics"
	"github.com/lattice-dev/lattice/internal/pricing"
	"github.com/lattice-dev/lattice/internal/providers"
	"github.com/lattice-dev/lattice/internal/sensitivity"
	"github.com/lattice-dev/lattice/internal/trace"
)

// Pipeline owns the per-request routing flow. All fields except Registry,
// Pricing, and Providers may be nil; a nil collaborator disables that stage.
type Pipeline struct {
	Registry  *bands.Registry
	Pricing   *pricing.Catalog
	Providers *providers.Registry
	Cache     *cache.Client
	Metrics   metrics.Recorder
	Traces    trace.Sink
	Cloud     *cloud.Forwarder
	Logger    *slog.Logger
}

// recoverable reports whether the next candidate should be tried after this
// failure. Validation and configuration failures abort immediately: retrying
// a different model cannot fix a bad request or a missing credential.
func recoverable(kind errs.Kind) bool {
	switch kind {
	case errs.KindProviderTimeout, errs.KindProviderRateLimit, errs.KindProviderInternal:
		return true
	}
	return false
}

// Complete runs one request through the full pipeline.
func (p *Pipeline) Complete(ctx context.Context, req Request) (*Response, error) {
	req.Normalize()
	if req.Prompt == "" {
		return nil, errs.New(errs.KindProviderValidation, "prompt must not be empty")
	}

	inferred := complexity.Evaluate(req.Prompt)

	decision, err := p.route(req, inferred)
	if err != nil {
		return nil, err
	}

	resp, execErr := p.dispatch(ctx, req, decision)
	if execErr != nil {
		p.recordFailure(ctx, req, decision, inferred, execErr)
		return nil, execErr
	}
	if resp.Routing.CacheHit {
		return resp, nil
	}

	// Counted once per cache-checked request, only after success.
	if p.Cache != nil && p.Metrics != nil {
		p.Metrics.RecordCacheMiss()
	}
	if p.Metrics != nil {
		p.Metrics.RecordRequest(metrics.RequestSample{
			Provider:     resp.Provider,
			Model:        resp.Model,
			Band:         resp.Band,
			LatencyMs:    resp.LatencyMs,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalCost:    resp.Cost.TotalCost,
			PIICount:     len(resp.Tags),
			CountUsage:   true,
		})
	}

	// A cancelled request must not leave side effects behind.
	if ctx.Err() != nil {
		return nil, errs.Wrap(errs.KindProviderTimeout, ctx.Err(), "request cancelled before completion")
	}

	if p.Cache != nil {
		// Keyed on the candidate that actually served, so a later identical
		// request hits regardless of which candidates failed before it.
		key := cache.Key(req.Prompt, resp.Provider, resp.Model, decision.Band)
		if payload, err := json.Marshal(resp); err == nil {
			if err := p.Cache.Set(ctx, key, payload); err != nil {
				p.log().Debug("cache_write_failed", slog.String("error", err.Error()))
			}
		}
	}
	p.persist(ctx, req, decision, inferred, resp)
	return resp, nil
}

// route resolves band, candidates, and the routing reason.
func (p *Pipeline) route(req Request, inferred complexity.Result) (Decision, error) {
	d := Decision{
		InferredBand: inferred.Band,
		Score:        inferred.Score,
	}

	if req.Model != "" {
		provider := req.Provider
		if provider == "" {
			found, ok := p.Registry.FindProvider(req.Model)
			if !ok {
				return d, errs.Newf(errs.KindProviderValidation, "no provider serves model %q", req.Model)
			}
			provider = found
		}
		if req.Band != "" {
			d.Band = p.Registry.Resolve(req.Band).Name
		} else {
			d.Band = inferred.Band
		}
		d.Reason = fmt.Sprintf("model override='%s'", req.Model)
		d.Candidates = []bands.Candidate{{Provider: provider, Model: req.Model}}
		d.Chosen = d.Candidates[0]
		return d, nil
	}

	source := "auto"
	name := inferred.Band
	if req.Band != "" {
		source = "user"
		name = req.Band
	}
	band := p.Registry.Resolve(name)
	d.Band = band.Name
	d.Reason = fmt.Sprintf("band='%s' (%s)", band.Name, source)
	d.Candidates = band.Models
	d.Chosen = d.Candidates[0]
	return d, nil
}

// cacheLookup serves an identical earlier response for one candidate. Tags
// are recomputed from the stored response text so tagging changes take effect
// immediately; usage and cost are replayed but never re-counted in the
// aggregates.
func (p *Pipeline) cacheLookup(ctx context.Context, req Request, decision Decision, candidate bands.Candidate) (*Response, bool) {
	if p.Cache == nil {
		return nil, false
	}
	key := cache.Key(req.Prompt, candidate.Provider, candidate.Model, decision.Band)
	payload, ok := p.Cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		p.log().Debug("cache_decode_failed", slog.String("error", err.Error()))
		return nil, false
	}

	resp.Tags = nonNil(sensitivity.Union(sensitivity.Tags(resp.Text), resp.Tags))
	decision.Chosen = candidate
	decision.CacheHit = true
	resp.Routing = decision

	if p.Metrics != nil {
		p.Metrics.RecordCacheHit()
		p.Metrics.RecordRequest(metrics.RequestSample{
			Provider:   resp.Provider,
			Model:      resp.Model,
			Band:       resp.Band,
			LatencyMs:  resp.LatencyMs,
			CacheHit:   true,
			PIICount:   len(resp.Tags),
			CountUsage: false,
		})
	}
	return &resp, true
}

// dispatch tries each candidate in order until one succeeds or a
// non-recoverable failure aborts the request. Every candidate gets a cache
// check under its own key before its upstream is called, so a cached answer
// from an earlier failover is still found after the candidates ahead of it
// fail again. The last recoverable error is what the caller sees when every
// candidate fails.
func (p *Pipeline) dispatch(ctx context.Context, req Request, decision Decision) (*Response, error) {
	params := providers.Params{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	var lastErr error
	for _, candidate := range decision.Candidates {
		if resp, ok := p.cacheLookup(ctx, req, decision, candidate); ok {
			return resp, nil
		}

		adapter, ok := p.Providers.Get(candidate.Provider)
		if !ok {
			return nil, errs.Newf(errs.KindConfiguration, "no adapter registered for provider %q", candidate.Provider)
		}

		plan := adapter.Plan(params, candidate.Model)
		started := time.Now()
		result, err := adapter.Execute(ctx, plan, req.Prompt)
		if err != nil {
			kind := errs.KindOf(err)
			if !recoverable(kind) {
				return nil, err
			}
			p.log().Warn("provider_failover",
				slog.String("provider", candidate.Provider),
				slog.String("model", candidate.Model),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}

		latency := result.LatencyMs
		if latency <= 0 {
			latency = float64(time.Since(started).Milliseconds())
		}

		cost := p.Pricing.Cost(candidate.Provider, candidate.Model, result.PromptTokens, result.CompletionTokens)
		if cost.TotalCost == 0 && result.CostUSD > 0 {
			// Some upstreams price calls themselves; trust them over an
			// empty catalog row.
			cost.TotalCost = result.CostUSD
		}

		decision.Chosen = candidate
		return &Response{
			Text:      result.Output,
			Provider:  candidate.Provider,
			Model:     candidate.Model,
			Band:      decision.Band,
			LatencyMs: latency,
			Usage: Usage{
				PromptTokens:     result.PromptTokens,
				CompletionTokens: result.CompletionTokens,
				TotalTokens:      result.PromptTokens + result.CompletionTokens,
			},
			Cost:       cost,
			Tags:       nonNil(sensitivity.Tags(req.Prompt + "\n" + result.Output)),
			Routing:    decision,
			Provenance: result.Provenance,
		}, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errs.New(errs.KindConfiguration, "band has no candidates")
}

// persist writes the success trace and forwards it to the cloud ingest.
func (p *Pipeline) persist(ctx context.Context, req Request, decision Decision, inferred complexity.Result, resp *Response) {
	if p.Traces == nil && p.Cloud == nil {
		return
	}
	rec := trace.Record{
		ID:               uuid.NewString(),
		CreatedAt:        time.Now().UTC(),
		Provider:         resp.Provider,
		Model:            resp.Model,
		Input:            req.Prompt,
		Output:           resp.Text,
		LatencyMs:        resp.LatencyMs,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		CostUSD:          resp.Cost.TotalCost,
		Band:             decision.Band,
		RequestedBand:    req.Band,
		InferredBand:     inferred.Label,
		RouteSource:      decision.Reason,
		Provenance:       resp.Provenance,
		Tags:             resp.Tags,
		Status:           trace.StatusSuccess,
		RequestID:        requestIDFrom(req),
	}
	p.emit(ctx, rec)
}

func (p *Pipeline) recordFailure(ctx context.Context, req Request, decision Decision, inferred complexity.Result, execErr error) {
	e := errs.AsError(execErr)
	provider := decision.Chosen.Provider
	message := execErr.Error()
	if e != nil {
		if e.Provider != "" {
			provider = e.Provider
		}
		message = e.Message
	}

	rec := trace.Record{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Provider:      provider,
		Model:         decision.Chosen.Model,
		Input:         req.Prompt,
		Band:          decision.Band,
		RequestedBand: req.Band,
		InferredBand:  inferred.Label,
		RouteSource:   decision.Reason,
		Status:        trace.StatusError,
		ErrorMessage:  message,
		RequestID:     requestIDFrom(req),
	}
	p.emit(ctx, rec)
}

func (p *Pipeline) emit(ctx context.Context, rec trace.Record) {
	if p.Traces != nil {
		if err := p.Traces.Record(ctx, rec); err != nil {
			p.log().Error("trace_persist_failed", slog.String("error", err.Error()))
		}
	}
	if p.Cloud != nil {
		p.Cloud.Enqueue(rec)
	}
}

func (p *Pipeline) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func requestIDFrom(req Request) string {
	if req.Metadata == nil {
		return ""
	}
	return req.Metadata["request_id"]
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
