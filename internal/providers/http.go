package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/lattice-dev/lattice/internal/errs"
)

// DoRequest sends a POST with a JSON payload and returns the response body.
// It handles marshaling, headers, W3C trace propagation, and turns non-200
// statuses into StatusError (with Retry-After parsing).
func DoRequest(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) ([]byte, error) {
	// Child span is a no-op unless the global tracer is configured.
	ctx, span := otel.Tracer("lattice.providers").Start(ctx, "provider.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", url)),
	)
	defer span.End()

	jsonData, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create request failed")
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read response failed")
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		se.ParseRetryAfter(resp.Header.Get("Retry-After"))
		span.RecordError(se)
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		return nil, se
	}

	span.SetStatus(codes.Ok, "")
	return body, nil
}

// Classify maps a transport or status error onto the gateway taxonomy for
// the given provider. Every adapter funnels its Execute errors through here
// so the pipeline can dispatch on kind alone.
func Classify(err error, provider string) *errs.Error {
	var already *errs.Error
	if errors.As(err, &already) {
		return already
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests || se.StatusCode == 529:
			return errs.Wrap(errs.KindProviderRateLimit, err, "upstream rate limit exceeded").WithProvider(provider)
		case se.StatusCode >= 500:
			return errs.Wrap(errs.KindProviderInternal, err, fmt.Sprintf("upstream error (status %d)", se.StatusCode)).WithProvider(provider)
		case se.StatusCode >= 400:
			return errs.Wrap(errs.KindProviderValidation, err, fmt.Sprintf("upstream rejected the request (status %d)", se.StatusCode)).WithProvider(provider)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return errs.Wrap(errs.KindProviderTimeout, err, "upstream did not respond in time").WithProvider(provider)
	}

	// Transport failures and malformed bodies count as upstream internal.
	return errs.Wrap(errs.KindProviderInternal, err, "failed to reach upstream").WithProvider(provider)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
