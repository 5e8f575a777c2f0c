package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/domain"
)

func discoveryServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func testRequest() *domain.ServiceRequest {
	return domain.NewServiceRequest("find a plumber", "leaky faucet", "licensed", "Greenville, SC", domain.UrgencyFlexible)
}

func TestFindProviders(t *testing.T) {
	var received searchRequest
	server := discoveryServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		rating := 4.5
		json.NewEncoder(w).Encode(searchResponse{Providers: []candidate{
			{Name: "Alpha Plumbing", Phone: "+18645551111", Rating: &rating},
			{Name: "No Phone Co"},
			{Name: "Beta Services", Phone: "+18645552222"},
		}})
	})

	adapter := NewHTTPAdapter(Config{URL: server.URL, APIKey: "test-key"}, zap.NewNop())
	providers, err := adapter.FindProviders(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received.Query != "find a plumber" || received.Location != "Greenville, SC" {
		t.Errorf("request = %+v", received)
	}
	if received.Limit != maxCandidates {
		t.Errorf("limit = %d, want %d", received.Limit, maxCandidates)
	}
	if len(providers) != 2 {
		t.Fatalf("providers = %d, phoneless candidates must be dropped", len(providers))
	}
	if providers[0].Name != "Alpha Plumbing" || providers[0].Rating == nil {
		t.Errorf("provider = %+v", providers[0])
	}
}

func TestFindProviders_CapsCandidates(t *testing.T) {
	server := discoveryServer(t, func(w http.ResponseWriter, r *http.Request) {
		var resp searchResponse
		for i := 0; i < maxCandidates+5; i++ {
			resp.Providers = append(resp.Providers, candidate{
				Name:  fmt.Sprintf("Provider %d", i),
				Phone: fmt.Sprintf("+186455512%02d", i),
			})
		}
		json.NewEncoder(w).Encode(resp)
	})

	adapter := NewHTTPAdapter(Config{URL: server.URL}, zap.NewNop())
	providers, err := adapter.FindProviders(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(providers) != maxCandidates {
		t.Errorf("providers = %d, want capped at %d", len(providers), maxCandidates)
	}
}

func TestFindProviders_NotConfigured(t *testing.T) {
	adapter := NewHTTPAdapter(Config{}, zap.NewNop())
	if _, err := adapter.FindProviders(context.Background(), testRequest()); err == nil {
		t.Fatal("expected an error without a configured URL")
	}
}

func TestFindProviders_ServiceError(t *testing.T) {
	server := discoveryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	adapter := NewHTTPAdapter(Config{URL: server.URL}, zap.NewNop())
	_, err := adapter.FindProviders(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected an error for a 5xx response")
	}
}

func TestFindProviders_BadJSON(t *testing.T) {
	server := discoveryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	adapter := NewHTTPAdapter(Config{URL: server.URL}, zap.NewNop())
	if _, err := adapter.FindProviders(context.Background(), testRequest()); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestFindProviders_EmptyResult(t *testing.T) {
	server := discoveryServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{})
	})

	adapter := NewHTTPAdapter(Config{URL: server.URL}, zap.NewNop())
	providers, err := adapter.FindProviders(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(providers) != 0 {
		t.Errorf("providers = %d, want 0", len(providers))
	}
}
