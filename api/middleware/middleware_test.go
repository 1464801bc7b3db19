package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"datasetAnalyzer/api/dto"
)

func TestTraceID_GeneratedAndEchoed(t *testing.T) {
	t.Parallel()
	var seen string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTraceID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	if seen == "" || rec.Header().Get(TraceIDHeader) != seen {
		t.Errorf("trace id = %q, header = %q", seen, rec.Header().Get(TraceIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set(TraceIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc-123" {
		t.Errorf("incoming trace id not kept: %q", seen)
	}
}

func TestRecovery_ReturnsJSON500(t *testing.T) {
	t.Parallel()
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), TraceID, Logging(zaptest.NewLogger(t)), Recovery(zaptest.NewLogger(t)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body dto.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TraceID == "" || body.Error == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(2)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, code)
		}
	}
	if code := send("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("over limit: status %d, want 429", code)
	}
	if code := send("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other client: status %d, want 200", code)
	}
}

func TestRateLimiter_DisabledWhenZero(t *testing.T) {
	t.Parallel()
	var nilLimiter *RateLimiter
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if h := nilLimiter.Limit(next); h == nil {
		t.Fatal("nil limiter returned nil handler")
	}
	rl := NewRateLimiter(0)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		rl.Limit(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d with limiting disabled", rec.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	if got := clientIP(req); got != "1.2.3.4" {
		t.Errorf("clientIP = %q", got)
	}
}
