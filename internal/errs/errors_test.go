package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	e := New(KindProviderTimeout, "upstream timed out").WithProvider("openai")
	if e.Kind != KindProviderTimeout {
		t.Errorf("kind: got %s", e.Kind)
	}
	if e.Provider != "openai" {
		t.Errorf("provider: got %s", e.Provider)
	}
	if e.Error() == "" {
		t.Error("expected non-empty message")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := Wrap(KindProviderInternal, cause, "failed to reach upstream")
	if !errors.Is(e, cause) {
		t.Error("wrapped cause must satisfy errors.Is")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(New(KindRateLimit, "x")); got != KindRateLimit {
		t.Errorf("got %s", got)
	}
	// Wrapped deeper in a chain.
	deep := fmt.Errorf("outer: %w", New(KindConfiguration, "missing key"))
	if got := KindOf(deep); got != KindConfiguration {
		t.Errorf("got %s", got)
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("foreign errors default to internal, got %s", got)
	}
}

func TestAsErrorForeign(t *testing.T) {
	e := AsError(errors.New("boom"))
	if e == nil || e.Kind != KindInternal {
		t.Fatalf("expected internal wrapper, got %+v", e)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindRequestValidation:  http.StatusUnprocessableEntity,
		KindProviderValidation: http.StatusBadRequest,
		KindProviderTimeout:    http.StatusGatewayTimeout,
		KindProviderRateLimit:  http.StatusTooManyRequests,
		KindProviderInternal:   http.StatusBadGateway,
		KindConfiguration:      http.StatusInternalServerError,
		KindRateLimit:          http.StatusTooManyRequests,
		KindInternal:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}
