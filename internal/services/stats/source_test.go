package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSourceProfile(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/alice" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(Profile{SolvedEasy: 10, SolvedMedium: 5, SolvedHard: 2})
	}))
	t.Cleanup(srv.Close)

	src, err := NewHTTPSource(SourceConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	p, err := src.Profile(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Total() != 17 {
		t.Fatalf("total = %d, want 17", p.Total())
	}

	if _, err := src.Profile(context.Background(), "bob"); err == nil {
		t.Fatal("missing user should error")
	}
	if _, err := src.Profile(context.Background(), "  "); err == nil {
		t.Fatal("blank handle should be rejected")
	}
}

func TestNewHTTPSourceRequiresBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := NewHTTPSource(SourceConfig{}); err == nil {
		t.Fatal("empty base URL should be rejected")
	}
}
