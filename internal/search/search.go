// Package search discovers candidate providers through an external
// discovery service. Discovery quality is the external service's
// problem; this package only does transport and shape normalization.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/domain"
	apperrors "github.com/jkindrix/callbridge/internal/errors"
)

// DefaultTimeout bounds one discovery round trip.
const DefaultTimeout = 20 * time.Second

// maxCandidates caps how many providers one request will call.
const maxCandidates = 10

// Config holds discovery service settings.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// HTTPAdapter implements domain.SearchAdapter against an HTTP discovery
// service: POST {url}/search with the request's title and location,
// decode a candidate list back.
type HTTPAdapter struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPAdapter creates an HTTPAdapter.
func NewHTTPAdapter(cfg Config, logger *zap.Logger) *HTTPAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &HTTPAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type searchRequest struct {
	Query    string `json:"query"`
	Location string `json:"location"`
	Criteria string `json:"criteria,omitempty"`
	Limit    int    `json:"limit"`
}

type candidate struct {
	Name          string   `json:"name"`
	Phone         string   `json:"phone"`
	Rating        *float64 `json:"rating,omitempty"`
	ReviewCount   *int     `json:"review_count,omitempty"`
	Address       *string  `json:"address,omitempty"`
	PlaceID       *string  `json:"place_id,omitempty"`
	DistanceMiles *float64 `json:"distance_miles,omitempty"`
	Hours         *string  `json:"hours,omitempty"`
	IsOpenNow     *bool    `json:"is_open_now,omitempty"`
}

type searchResponse struct {
	Providers []candidate `json:"providers"`
}

// FindProviders implements domain.SearchAdapter.
func (a *HTTPAdapter) FindProviders(ctx context.Context, req *domain.ServiceRequest) ([]*domain.Provider, error) {
	if a.cfg.URL == "" {
		return nil, apperrors.InternalError("search service not configured", nil)
	}

	payload, err := json.Marshal(searchRequest{
		Query:    req.Title,
		Location: req.Location,
		Criteria: req.Criteria,
		Limit:    maxCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, apperrors.VendorError(fmt.Sprintf("search service returned %d", resp.StatusCode), nil)
	}

	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	providers := make([]*domain.Provider, 0, len(decoded.Providers))
	for _, c := range decoded.Providers {
		if c.Phone == "" {
			// Uncallable candidates are useless downstream.
			continue
		}
		providers = append(providers, &domain.Provider{
			Name:          c.Name,
			Phone:         c.Phone,
			Rating:        c.Rating,
			ReviewCount:   c.ReviewCount,
			Address:       c.Address,
			PlaceID:       c.PlaceID,
			DistanceMiles: c.DistanceMiles,
			Hours:         c.Hours,
			IsOpenNow:     c.IsOpenNow,
		})
		if len(providers) == maxCandidates {
			break
		}
	}

	a.logger.Info("provider discovery finished",
		zap.String("query", req.Title),
		zap.String("location", req.Location),
		zap.Int("candidates", len(providers)),
	)
	return providers, nil
}
