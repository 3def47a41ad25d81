package shield

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "frame-ancestors 'none'") {
		t.Errorf("CSP = %q", csp)
	}
}

func TestSecurityHeaders_SkipsEmptyFields(t *testing.T) {
	h := SecurityHeaders(HeaderConfig{XContentTypeOptions: "nosniff"})(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Header().Get("Content-Security-Policy") != "" {
		t.Error("empty CSP should not be set")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("configured header missing")
	}
}

func TestTraceID(t *testing.T) {
	var fromCtx string
	h := TraceID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		fromCtx = GetTraceID(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	header := rec.Header().Get("X-Trace-ID")
	if !regexp.MustCompile(`^[0-9a-f]{8}$`).MatchString(header) {
		t.Fatalf("X-Trace-ID = %q", header)
	}
	if fromCtx != header {
		t.Errorf("context id %q != header id %q", fromCtx, header)
	}
}

func TestGetTraceID_Unset(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("GetTraceID = %q, want empty", id)
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(400)
			return
		}
		w.WriteHeader(200)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader("tiny")))
	if rec.Code != 200 {
		t.Errorf("small body: code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 64))))
	if rec.Code != 400 {
		t.Errorf("big body: code = %d", rec.Code)
	}
}
