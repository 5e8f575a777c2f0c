package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogLevelHandler() (*LogLevelHandler, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return NewLogLevelHandler(level, zap.NewNop()), level
}

func decodeLevel(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape: %T", resp.Data)
	}
	level, _ := data["level"].(string)
	return level
}

func TestLogLevelHandler_Get(t *testing.T) {
	h, _ := newLogLevelHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/log-level", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := decodeLevel(t, w); got != "info" {
		t.Errorf("level = %q, want info", got)
	}
}

func TestLogLevelHandler_SetViaJSON(t *testing.T) {
	h, level := newLogLevelHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/admin/log-level",
		strings.NewReader(`{"level":"debug"}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if level.Level() != zapcore.DebugLevel {
		t.Errorf("level = %v, want debug", level.Level())
	}
}

func TestLogLevelHandler_SetViaQuery(t *testing.T) {
	h, level := newLogLevelHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/log-level?level=error", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if level.Level() != zapcore.ErrorLevel {
		t.Errorf("level = %v, want error", level.Level())
	}
}

func TestLogLevelHandler_RejectsUnknownLevel(t *testing.T) {
	h, level := newLogLevelHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/admin/log-level?level=verbose", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if level.Level() != zapcore.InfoLevel {
		t.Error("level should be unchanged after a rejected request")
	}
}

func TestLogLevelHandler_RequiresLevel(t *testing.T) {
	h, _ := newLogLevelHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/admin/log-level", strings.NewReader(`{}`)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestLogLevelHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newLogLevelHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/admin/log-level", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
