package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/lattice-dev/lattice/internal/errs"
	"github.com/lattice-dev/lattice/internal/router"
	"github.com/lattice-dev/lattice/internal/trace"
)

// errorBody is the uniform error envelope:
// {"error": {"type": "...", "message": "...", "provider": "..."}}
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps an error onto the taxonomy envelope and HTTP status.
func writeError(w http.ResponseWriter, err error) {
	e := errs.AsError(err)
	writeJSON(w, errs.HTTPStatus(e.Kind), errorBody{Error: errorDetail{
		Type:     string(e.Kind),
		Message:  e.Message,
		Provider: e.Provider,
	}})
}

func writeErrorKind(w http.ResponseWriter, kind errs.Kind, message string) {
	writeJSON(w, errs.HTTPStatus(kind), errorBody{Error: errorDetail{
		Type:    string(kind),
		Message: message,
	}})
}

// consumerKey identifies the caller for rate limiting: the hashed bearer
// token when one is presented, otherwise the client address.
func consumerKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
		digest := sha256.Sum256([]byte(token))
		return "tok:" + hex.EncodeToString(digest[:8])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return "ip:" + host
}

// CompleteHandler serves POST /v1/complete. Rate limiting runs before body
// validation so over-limit callers cannot probe request parsing.
func CompleteHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Limiter != nil && !d.Limiter.Allow(r.Context(), consumerKey(r), d.RateLimit, d.RateWindowSecs) {
			writeErrorKind(w, errs.KindRateLimit, "daily request limit exceeded")
			return
		}

		var req router.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorKind(w, errs.KindRequestValidation, "request body is not valid JSON")
			return
		}
		// Whitespace-only prompts are left for the pipeline, which rejects
		// them as a provider validation failure.
		if req.Prompt == "" {
			writeErrorKind(w, errs.KindRequestValidation, "prompt is required")
			return
		}
		if req.MaxTokens < 0 {
			writeErrorKind(w, errs.KindRequestValidation, "max_tokens must be greater than zero")
			return
		}
		if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
			writeErrorKind(w, errs.KindRequestValidation, "temperature must be between 0 and 2")
			return
		}

		resp, err := d.Pipeline.Complete(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// MetricsHandler serves GET /v1/metrics: the aggregate snapshot, no
// per-request data.
func MetricsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Metrics == nil {
			writeErrorKind(w, errs.KindConfiguration, "metrics backend is not configured")
			return
		}
		snap, err := d.Metrics.Snapshot(r.Context())
		if err != nil {
			writeErrorKind(w, errs.KindInternal, "metrics snapshot failed")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// TracesHandler serves GET /v1/traces?limit=&offset=&status=.
func TracesHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Traces == nil {
			writeJSON(w, http.StatusOK, map[string]any{"traces": []trace.Record{}})
			return
		}

		limit := queryInt(r, "limit", 50)
		offset := queryInt(r, "offset", 0)
		status := r.URL.Query().Get("status")
		if status != "" && status != trace.StatusSuccess && status != trace.StatusError {
			writeErrorKind(w, errs.KindRequestValidation, "status must be 'success' or 'error'")
			return
		}

		records, err := d.Traces.List(r.Context(), limit, offset, status)
		if err != nil {
			writeErrorKind(w, errs.KindInternal, "trace listing failed")
			return
		}
		if records == nil {
			records = []trace.Record{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"traces": records})
	}
}

// HealthHandler is the liveness probe: the process is up.
func HealthHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"version":     d.Version,
			"environment": d.Env,
		})
	}
}

// ReadyHandler is the readiness probe: reports per-dependency detail and 503
// when anything required is down.
func ReadyHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		details := map[string]string{}
		ready := true

		if d.Providers != nil {
			adapters := d.Providers.IDs()
			details["providers"] = strconv.Itoa(len(adapters)) + " registered"
			if len(adapters) == 0 {
				details["providers"] = "none registered"
				ready = false
			}
		}
		if d.Cache != nil {
			if d.Cache.Ping(r.Context()) {
				details["cache"] = "ok"
			} else {
				details["cache"] = "unreachable"
				ready = false
			}
		} else {
			details["cache"] = "disabled"
		}
		if d.Bands != nil {
			details["bands"] = strings.Join(d.Bands.Names(), ",")
		}

		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "details": details})
	}
}

// IndexHandler serves GET /: a service descriptor with the endpoint list.
func IndexHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "lattice",
			"version": d.Version,
			"endpoints": []string{
				"POST /v1/complete",
				"GET /v1/metrics",
				"GET /v1/traces",
				"GET /v1/health",
				"GET /v1/ready",
				"GET /metrics",
			},
		})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
