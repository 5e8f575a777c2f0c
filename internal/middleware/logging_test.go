package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger_RecordsStatusAndPath(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestLogger(zap.New(core))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/requests", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusAccepted) {
		t.Errorf("status = %v, want 202", fields["status"])
	}
	if fields["path"] != "/requests" {
		t.Errorf("path = %v", fields["path"])
	}
	if fields["method"] != "POST" {
		t.Errorf("method = %v", fields["method"])
	}
}

func TestRequestLogger_ImplicitOK(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestLogger(zap.New(core))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	fields := logs.All()[0].ContextMap()
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("status = %v, want implicit 200", fields["status"])
	}
}

func TestRequestLogger_IncludesRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	stack := NewRequestCorrelation(zap.NewNop()).Middleware(
		RequestLogger(logger)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	r := httptest.NewRequest(http.MethodGet, "/requests", nil)
	r.Header.Set(RequestIDHeader, "req-42")
	stack.ServeHTTP(httptest.NewRecorder(), r)

	fields := logs.All()[0].ContextMap()
	if fields["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", fields["request_id"])
	}
}
