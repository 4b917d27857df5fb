package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JillVernus/feature-gate/internal/quota"
)

func TestClientFetchCombinesFeaturesAndTier(t *testing.T) {
	var gotKeys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKeys = append(gotKeys, r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/features":
			w.Write([]byte(`[
				{"feature":"conversation","allowed":false,"usageCount":5,"limit":5,"remaining":0,"cooldownSeconds":3600,"remainingCooldown":120},
				{"feature":"search","allowed":true,"usageCount":2,"limit":20,"remaining":18,"cooldownSeconds":600,"remainingCooldown":0}
			]`))
		case "/api/limits":
			w.Write([]byte(`{"activeTier":"plus","tiers":{"plus":{"features":{}}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	// Trailing slash must not produce double-slash request paths.
	client := NewClient(srv.URL+"/", "secret")
	snap, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(gotKeys) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(gotKeys))
	}
	for _, k := range gotKeys {
		if k != "secret" {
			t.Fatalf("expected x-api-key on every request, got %q", k)
		}
	}

	if snap.ActiveTier != "plus" {
		t.Errorf("expected activeTier plus, got %q", snap.ActiveTier)
	}
	if len(snap.Statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(snap.Statuses))
	}
	if snap.Statuses[0].Feature != quota.FeatureConversation || snap.Statuses[0].RemainingCooldown != 120 {
		t.Errorf("unexpected first status: %+v", snap.Statuses[0])
	}
	if snap.FetchedAt.IsZero() {
		t.Errorf("expected FetchedAt to be stamped")
	}
}

func TestClientFetchReportsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Invalid or missing API key"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "wrong")
	_, err := client.Fetch(context.Background())
	if err == nil {
		t.Fatalf("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "API key") {
		t.Errorf("expected status and server message in error, got %q", err)
	}
}

func TestClientFetchOmitsHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["X-Api-Key"]; ok {
			t.Errorf("expected no x-api-key header for empty key")
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/features" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`{"activeTier":"free"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if _, err := client.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
}
