package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lattice-dev/lattice/internal/errs"
	"github.com/lattice-dev/lattice/internal/providers"
)

func TestPlanDefaults(t *testing.T) {
	a := New("openai", "key", "https://api.openai.com/v1")
	plan := a.Plan(providers.Params{}, "gpt-4o")

	if plan.Target.Provider != "openai" || plan.Target.Model != "gpt-4o" {
		t.Errorf("target: %+v", plan.Target)
	}
	if plan.Params.Temperature != providers.DefaultTemperature {
		t.Errorf("temperature: got %v", plan.Params.Temperature)
	}
	if plan.Params.MaxTokens != providers.DefaultMaxTokens {
		t.Errorf("max tokens: got %d", plan.Params.MaxTokens)
	}
	if plan.Params.SystemPrompt == "" {
		t.Error("system prompt must be set")
	}
}

func TestExecuteMissingKey(t *testing.T) {
	a := New("openai", "", "https://api.openai.com/v1")
	_, err := a.Execute(context.Background(), a.Plan(providers.Params{}, "gpt-4o"), "hi")
	if errs.KindOf(err) != errs.KindConfiguration {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header: %s", got)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "gpt-4o" {
			t.Errorf("model: %v", req["model"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "hello back"}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 4},
		})
	}))
	defer srv.Close()

	a := New("openai", "test-key", srv.URL+"/v1")
	res, err := a.Execute(context.Background(), a.Plan(providers.Params{}, "gpt-4o"), "hi")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Output != "hello back" {
		t.Errorf("output: %s", res.Output)
	}
	if res.PromptTokens != 12 || res.CompletionTokens != 4 {
		t.Errorf("usage: %d/%d", res.PromptTokens, res.CompletionTokens)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence: %v", res.Confidence)
	}
	if _, estimated := res.Provenance["estimated"]; estimated {
		t.Error("reported usage must not be marked estimated")
	}
}

func TestExecuteEstimatesMissingUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "four letter words"}},
			},
		})
	}))
	defer srv.Close()

	a := New("openai", "test-key", srv.URL+"/v1")
	res, err := a.Execute(context.Background(), a.Plan(providers.Params{}, "gpt-4o"), "a longer prompt here")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.PromptTokens == 0 || res.CompletionTokens == 0 {
		t.Errorf("expected estimated tokens, got %d/%d", res.PromptTokens, res.CompletionTokens)
	}
	if est, ok := res.Provenance["estimated"].(bool); !ok || !est {
		t.Error("estimated usage must be marked in provenance")
	}
}

func TestExecuteClassifiesStatusCodes(t *testing.T) {
	cases := map[int]errs.Kind{
		http.StatusTooManyRequests:     errs.KindProviderRateLimit,
		http.StatusInternalServerError: errs.KindProviderInternal,
		http.StatusBadRequest:          errs.KindProviderValidation,
		http.StatusUnauthorized:        errs.KindProviderValidation,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		a := New("openai", "test-key", srv.URL+"/v1")
		_, err := a.Execute(context.Background(), a.Plan(providers.Params{}, "gpt-4o"), "hi")
		if got := errs.KindOf(err); got != want {
			t.Errorf("status %d: expected %s, got %s", status, want, got)
		}
		srv.Close()
	}
}

func TestExecuteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	a := New("openai", "test-key", srv.URL+"/v1", WithTimeout(50*time.Millisecond))
	_, err := a.Execute(context.Background(), a.Plan(providers.Params{}, "gpt-4o"), "hi")
	if got := errs.KindOf(err); got != errs.KindProviderTimeout {
		t.Errorf("expected provider_timeout, got %s (%v)", got, err)
	}
}

func TestExecuteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	a := New("openai", "test-key", srv.URL+"/v1")
	_, err := a.Execute(context.Background(), a.Plan(providers.Params{}, "gpt-4o"), "hi")
	if got := errs.KindOf(err); got != errs.KindProviderInternal {
		t.Errorf("expected provider_internal, got %s", got)
	}
}
