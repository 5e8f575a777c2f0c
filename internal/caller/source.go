package caller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jkindrix/callbridge/internal/cache"
	"github.com/jkindrix/callbridge/internal/domain"
)

// ResultSource is where a webhook-mode caller looks for its terminal
// result. The webhook ingestor fills the source; the caller polls it.
type ResultSource interface {
	// Lookup returns the call result for callID, or false if it has not
	// arrived yet.
	Lookup(ctx context.Context, callID string) (*domain.CallResult, bool)
}

// CacheSource reads results straight from the in-process result cache.
type CacheSource struct {
	Cache *cache.ResultCache
}

// Lookup implements ResultSource. An entry still being enriched reads
// as a miss: returning the partial snapshot early would hand callers a
// result with no transcript or analysis while the enricher is still
// fetching the full call.
func (s *CacheSource) Lookup(_ context.Context, callID string) (*domain.CallResult, bool) {
	entry := s.Cache.Get(callID)
	if entry == nil || entry.Result == nil {
		return nil, false
	}
	switch entry.DataStatus {
	case cache.StatusComplete, cache.StatusFetchFailed:
		return entry.Result, true
	default:
		return nil, false
	}
}

// HTTPSource polls a callbridge backend's cache endpoint. Used when the
// caller runs in a different process than the webhook ingress, with the
// backend address coming from BACKEND_URL.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource creates an HTTPSource for the given backend base URL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup implements ResultSource. A 404 is the expected miss during
// normal polling; anything else unexpected also reads as a miss so the
// poll loop keeps going.
func (s *HTTPSource) Lookup(ctx context.Context, callID string) (*domain.CallResult, bool) {
	url := fmt.Sprintf("%s/vapi/calls/%s", s.BaseURL, callID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var body struct {
		Success bool               `json:"success"`
		Data    *domain.CallResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Data == nil {
		return nil, false
	}
	return body.Data, true
}
