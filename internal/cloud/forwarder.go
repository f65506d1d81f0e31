// Package cloud forwards completed traces to a remote ingest endpoint.
// Forwarding is strictly best-effort: a full queue drops the trace and an
// upstream failure is logged at debug, never surfaced to the client.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lattice-dev/lattice/internal/trace"
	"github.com/lattice-dev/lattice/internal/tracing"
)

const (
	defaultQueueSize   = 256
	forwardTimeout     = 2 * time.Second
	shutdownDrainLimit = 5 * time.Second
)

// Forwarder ships traces to the cloud ingest endpoint from a single
// background worker.
type Forwarder struct {
	url    string
	apiKey string
	client *http.Client
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan trace.Record
	done   chan struct{}
	once   sync.Once
}

// New starts a forwarder targeting url with the given bearer key.
func New(url, apiKey string, log *slog.Logger) *Forwarder {
	f := &Forwarder{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{
			Timeout:   forwardTimeout,
			Transport: tracing.HTTPTransport(nil),
		},
		log:   log,
		queue: make(chan trace.Record, defaultQueueSize),
		done:  make(chan struct{}),
	}
	go f.run()
	return f
}

// Enqueue hands a trace to the background worker. Never blocks: when the
// queue is full, or the forwarder has shut down, the trace is dropped and
// the drop is logged.
func (f *Forwarder) Enqueue(rec trace.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.log.Debug("cloud_forward_dropped", slog.String("trace_id", rec.ID))
		return
	}
	select {
	case f.queue <- rec:
	default:
		f.log.Debug("cloud_forward_dropped", slog.String("trace_id", rec.ID))
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for rec := range f.queue {
		f.forward(rec)
	}
}

func (f *Forwarder) forward(rec trace.Record) {
	body, err := json.Marshal(rec)
	if err != nil {
		f.log.Debug("cloud_forward_encode_failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		f.log.Debug("cloud_forward_failed", slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Debug("cloud_forward_failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		f.log.Debug("cloud_forward_rejected",
			slog.String("trace_id", rec.ID),
			slog.String("status", fmt.Sprintf("%d", resp.StatusCode)))
	}
}

// Shutdown stops accepting traces and drains what is already queued,
// bounded by a short deadline.
func (f *Forwarder) Shutdown() {
	f.once.Do(func() {
		// Flag first, under the same lock Enqueue sends under, so no send
		// can race the close.
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.queue)
	})
	select {
	case <-f.done:
	case <-time.After(shutdownDrainLimit):
	}
}
