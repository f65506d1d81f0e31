package router

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alicebob/miniredis/v2"

	"github.com/lattice-dev/lattice/internal/bands"
	"github.com/lattice-dev/lattice/internal/cache"
	"github.com/lattice-dev/lattice/internal/errs"
	"github.com/lattice-dev/lattice/internal/metrics"
	"github.com/lattice-dev/lattice/internal/pricing"
	"github.com/lattice-dev/lattice/internal/providers"
	"github.com/lattice-dev/lattice/internal/providers/stub"
	"github.com/lattice-dev/lattice/internal/trace"
)

// failingAdapter fails every Execute with a fixed error.
type failingAdapter struct {
	id  string
	err error
}

func (f *failingAdapter) ID() string { return f.id }

func (f *failingAdapter) Plan(p providers.Params, model string) providers.Plan {
	temperature, maxTokens := providers.ResolveParams(p)
	return providers.Plan{
		Target: providers.Target{Provider: f.id, Model: model},
		Params: providers.PlanParams{Temperature: temperature, MaxTokens: maxTokens},
	}
}

func (f *failingAdapter) Execute(context.Context, providers.Plan, string) (providers.Result, error) {
	return providers.Result{}, f.err
}

// memorySink collects traces for assertions.
type memorySink struct {
	mu      sync.Mutex
	records []trace.Record
}

func (m *memorySink) Record(_ context.Context, rec trace.Record) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

func (m *memorySink) List(_ context.Context, limit, offset int, status string) ([]trace.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]trace.Record(nil), m.records...), nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) all() []trace.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]trace.Record(nil), m.records...)
}

const testBands = `{
  "default_band": "mid",
  "bands": {
    "low": {"models": [{"provider": "flaky", "model": "cheap-model"}, {"provider": "stub", "model": "stub-small"}]},
    "mid": {"models": [{"provider": "stub", "model": "stub-medium"}]},
    "high": {"models": [{"provider": "stub", "model": "stub-large"}]}
  }
}`

func testRegistry(t *testing.T) *bands.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bands.json")
	require.NoError(t, os.WriteFile(path, []byte(testBands), 0o600))
	r, err := bands.Load(path)
	require.NoError(t, err)
	return r
}

func testPricing() *pricing.Catalog {
	return pricing.NewCatalog("USD", "test", map[string]map[string]pricing.Entry{
		"stub":  {"*": {Input: 1.0, Output: 2.0, Unit: "per_million"}},
		"flaky": {"*": {Input: 0, Output: 0, Unit: "per_million"}},
	})
}

func newTestPipeline(t *testing.T, adapters ...providers.Adapter) (*Pipeline, *metrics.Memory, *memorySink) {
	t.Helper()
	reg := providers.NewRegistry()
	if len(adapters) == 0 {
		adapters = []providers.Adapter{
			stub.New("stub", stub.WithOutput("stub reply")),
			stub.New("flaky", stub.WithOutput("stub reply")),
		}
	}
	for _, a := range adapters {
		reg.Register(a)
	}

	mem := metrics.NewMemory()
	sink := &memorySink{}
	return &Pipeline{
		Registry:  testRegistry(t),
		Pricing:   testPricing(),
		Providers: reg,
		Metrics:   mem,
		Traces:    sink,
	}, mem, sink
}

func withCache(t *testing.T, p *Pipeline) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.New("redis://"+mr.Addr(), "lattice:cache", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	p.Cache = c
}

func TestCompleteAutoRouting(t *testing.T) {
	p, _, sink := newTestPipeline(t)

	resp, err := p.Complete(context.Background(), Request{Prompt: "what time is it?"})
	require.NoError(t, err)

	assert.Equal(t, "stub reply", resp.Text)
	assert.Equal(t, "band='"+resp.Band+"' (auto)", resp.Routing.Reason)
	assert.False(t, resp.Routing.CacheHit)
	assert.NotZero(t, resp.Usage.TotalTokens)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, trace.StatusSuccess, records[0].Status)
	assert.NotEmpty(t, records[0].ID)
}

func TestCompleteAutoPromotion(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	prompt := "analyze compliance architecture " + strings.Repeat("x", 5000)
	resp, err := p.Complete(context.Background(), Request{Prompt: prompt})
	require.NoError(t, err)

	assert.Equal(t, "high", resp.Band)
	assert.Equal(t, "band='high' (auto)", resp.Routing.Reason)
	assert.Equal(t, "stub-large", resp.Model)
}

func TestCompleteUserBandWins(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	resp, err := p.Complete(context.Background(), Request{Prompt: "hello there", Band: "complex"})
	require.NoError(t, err)

	assert.Equal(t, "high", resp.Band)
	assert.Equal(t, "band='high' (user)", resp.Routing.Reason)
	assert.Equal(t, "stub-large", resp.Model)
}

func TestCompleteUnknownBandFallsBackToDefault(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	resp, err := p.Complete(context.Background(), Request{Prompt: "hello there", Band: "turbo"})
	require.NoError(t, err)
	assert.Equal(t, "mid", resp.Band)
}

func TestCompleteModelOverride(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	resp, err := p.Complete(context.Background(), Request{Prompt: "hello there", Model: "stub-large"})
	require.NoError(t, err)

	assert.Equal(t, "stub", resp.Provider)
	assert.Equal(t, "stub-large", resp.Model)
	assert.Equal(t, "model override='stub-large'", resp.Routing.Reason)
}

func TestCompleteUnknownModelRejected(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	_, err := p.Complete(context.Background(), Request{Prompt: "hello", Model: "no-such-model"})
	require.Error(t, err)
	assert.Equal(t, errs.KindProviderValidation, errs.KindOf(err))
}

func TestCompleteEmptyPromptRejected(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	_, err := p.Complete(context.Background(), Request{Prompt: "   "})
	require.Error(t, err)
	assert.Equal(t, errs.KindProviderValidation, errs.KindOf(err))
}

func TestCompleteCacheMissThenHit(t *testing.T) {
	p, mem, sink := newTestPipeline(t)
	withCache(t, p)
	ctx := context.Background()
	req := Request{Prompt: "repeat after me", Band: "mid"}

	first, err := p.Complete(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Routing.CacheHit)

	second, err := p.Complete(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Routing.CacheHit)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Usage, second.Usage)

	snap, err := mem.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.CacheMissesTotal)
	assert.Equal(t, int64(1), snap.CacheHitsTotal)
	assert.Equal(t, int64(2), snap.TotalRequests)
	// Tokens and cost counted exactly once despite two responses.
	assert.Equal(t, int64(first.Usage.PromptTokens), snap.TotalInputTokens)
	assert.Equal(t, first.Cost.TotalCost, snap.TotalCost)

	// Cache hits never produce a second trace.
	assert.Len(t, sink.all(), 1)
}

func TestCompleteFailoverThenCacheHit(t *testing.T) {
	flaky := &failingAdapter{
		id:  "flaky",
		err: errs.New(errs.KindProviderTimeout, "upstream did not respond in time").WithProvider("flaky"),
	}
	p, _, sink := newTestPipeline(t, flaky, stub.New("stub", stub.WithOutput("recovered")))
	withCache(t, p)
	ctx := context.Background()
	req := Request{Prompt: "hi", Band: "low"}

	first, err := p.Complete(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Routing.CacheHit)
	require.Equal(t, "stub", first.Provider)

	second, err := p.Complete(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Routing.CacheHit)
	assert.Equal(t, first.Text, second.Text)

	// Chosen names the candidate that served the cached response, not the
	// failed candidate ahead of it.
	assert.Equal(t, "stub", second.Routing.Chosen.Provider)
	assert.Equal(t, "stub-small", second.Routing.Chosen.Model)
	assert.Equal(t, second.Provider, second.Routing.Chosen.Provider)
	assert.Equal(t, second.Model, second.Routing.Chosen.Model)

	// Only the served request left a trace.
	assert.Len(t, sink.all(), 1)
}

func TestCompleteFailover(t *testing.T) {
	flaky := &failingAdapter{
		id:  "flaky",
		err: errs.New(errs.KindProviderTimeout, "upstream did not respond in time").WithProvider("flaky"),
	}
	p, _, _ := newTestPipeline(t, flaky, stub.New("stub", stub.WithOutput("recovered")))

	resp, err := p.Complete(context.Background(), Request{Prompt: "hi", Band: "low"})
	require.NoError(t, err)

	assert.Equal(t, "stub", resp.Provider)
	assert.Equal(t, "stub-small", resp.Model)
	assert.Equal(t, "recovered", resp.Text)
}

func TestCompleteAllCandidatesFail(t *testing.T) {
	flaky := &failingAdapter{
		id:  "flaky",
		err: errs.New(errs.KindProviderInternal, "upstream exploded").WithProvider("flaky"),
	}
	alsoFlaky := &failingAdapter{
		id:  "stub",
		err: errs.New(errs.KindProviderTimeout, "upstream did not respond in time").WithProvider("stub"),
	}
	p, _, sink := newTestPipeline(t, flaky, alsoFlaky)

	_, err := p.Complete(context.Background(), Request{Prompt: "hi", Band: "low"})
	require.Error(t, err)
	// The last candidate's error is what surfaces.
	assert.Equal(t, errs.KindProviderTimeout, errs.KindOf(err))

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, trace.StatusError, records[0].Status)
	assert.NotEmpty(t, records[0].ErrorMessage)
}

func TestCompleteNonRecoverableAborts(t *testing.T) {
	rejecting := &failingAdapter{
		id:  "flaky",
		err: errs.New(errs.KindProviderValidation, "prompt rejected").WithProvider("flaky"),
	}
	p, _, _ := newTestPipeline(t, rejecting, stub.New("stub", stub.WithOutput("never reached")))

	_, err := p.Complete(context.Background(), Request{Prompt: "hi", Band: "low"})
	require.Error(t, err)
	assert.Equal(t, errs.KindProviderValidation, errs.KindOf(err))
}

func TestCompleteSensitivityTags(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	resp, err := p.Complete(context.Background(), Request{
		Prompt: "email the doctor at care@clinic.example about my diagnosis",
		Band:   "mid",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Tags, "PII_EMAIL")
	assert.Contains(t, resp.Tags, "PHI_MEDICAL")
}

func TestCompleteCostBreakdown(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	resp, err := p.Complete(context.Background(), Request{Prompt: "one two three", Band: "mid"})
	require.NoError(t, err)

	assert.Equal(t, "USD", resp.Cost.Currency)
	assert.Equal(t, resp.Usage.PromptTokens, resp.Cost.InputTokens)
	assert.Equal(t, resp.Usage.CompletionTokens, resp.Cost.OutputTokens)
	assert.InDelta(t, resp.Cost.InputCost+resp.Cost.OutputCost, resp.Cost.TotalCost, 1e-9)
}
