package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/lattice-dev/lattice/internal/errs"
)

func TestResolveParamsDefaults(t *testing.T) {
	temperature, maxTokens := ResolveParams(Params{})
	if temperature != DefaultTemperature {
		t.Errorf("temperature: %v", temperature)
	}
	if maxTokens != DefaultMaxTokens {
		t.Errorf("max tokens: %d", maxTokens)
	}

	zero := 0.0
	temperature, maxTokens = ResolveParams(Params{Temperature: &zero, MaxTokens: 64})
	if temperature != 0 {
		t.Errorf("explicit zero temperature must win, got %v", temperature)
	}
	if maxTokens != 64 {
		t.Errorf("max tokens: %d", maxTokens)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("empty text: %d", got)
	}
	if got := EstimateTokens("abc"); got != 1 {
		t.Errorf("short text must estimate at least one token, got %d", got)
	}
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Errorf("8 chars: %d", got)
	}
}

func TestClassifyPassthrough(t *testing.T) {
	orig := errs.New(errs.KindConfiguration, "missing key")
	if got := Classify(orig, "p"); got != orig {
		t.Error("existing taxonomy errors must pass through untouched")
	}
}

func TestClassifyStatusError(t *testing.T) {
	cases := map[int]errs.Kind{
		429: errs.KindProviderRateLimit,
		529: errs.KindProviderRateLimit,
		500: errs.KindProviderInternal,
		503: errs.KindProviderInternal,
		400: errs.KindProviderValidation,
		404: errs.KindProviderValidation,
	}
	for status, want := range cases {
		err := Classify(&StatusError{StatusCode: status}, "openai")
		if err.Kind != want {
			t.Errorf("status %d: expected %s, got %s", status, want, err.Kind)
		}
		if err.Provider != "openai" {
			t.Errorf("status %d: provider missing", status)
		}
	}
}

func TestClassifyDeadline(t *testing.T) {
	err := Classify(context.DeadlineExceeded, "p")
	if err.Kind != errs.KindProviderTimeout {
		t.Errorf("expected timeout, got %s", err.Kind)
	}
}

func TestClassifyUnknown(t *testing.T) {
	err := Classify(errors.New("connection refused"), "p")
	if err.Kind != errs.KindProviderInternal {
		t.Errorf("expected provider_internal, got %s", err.Kind)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Get("missing"); ok {
		t.Error("expected miss on empty registry")
	}
}
