package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/logging"
)

// LogLevelHandler adjusts the process log level at runtime through the
// logger's atomic level. Mounted on the admin route group.
type LogLevelHandler struct {
	level  zap.AtomicLevel
	logger *zap.Logger
}

// NewLogLevelHandler creates the admin log level endpoint.
func NewLogLevelHandler(level zap.AtomicLevel, logger *zap.Logger) *LogLevelHandler {
	return &LogLevelHandler{level: level, logger: logger}
}

type logLevelPayload struct {
	Level string `json:"level"`
}

// ServeHTTP implements http.Handler. GET reports the current level,
// PUT and POST change it.
func (h *LogLevelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		OK(w, r, http.StatusOK, logLevelPayload{Level: h.level.Level().String()})
	case http.MethodPut, http.MethodPost:
		h.setLevel(w, r)
	default:
		Fail(w, r, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *LogLevelHandler) setLevel(w http.ResponseWriter, r *http.Request) {
	// The level comes from a query parameter or a JSON body; the query
	// form keeps one-off curl invocations simple.
	levelStr := r.URL.Query().Get("level")
	if levelStr == "" {
		var payload logLevelPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			levelStr = payload.Level
		}
	}
	if levelStr == "" {
		Fail(w, r, http.StatusBadRequest, "level is required")
		return
	}

	level, err := logging.ParseLevel(levelStr)
	if err != nil {
		Fail(w, r, http.StatusBadRequest, fmt.Sprintf("invalid level %q", levelStr))
		return
	}

	previous := h.level.Level()
	h.level.SetLevel(level)
	h.logger.Info("log level changed",
		zap.Stringer("previous", previous),
		zap.Stringer("level", level),
	)

	OK(w, r, http.StatusOK, logLevelPayload{Level: level.String()})
}
