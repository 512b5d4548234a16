package social

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestFetchParsesEngagement(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"likes":    42,
			"reshares": 7,
			"replies":  3,
			"likers":   []string{"alice", "bob"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-token", 3600, testLogger())
	eng, err := client.Fetch(context.Background(), "post-123")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if gotPath != "/v2/posts/post-123/engagement" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("authorization header = %q", gotAuth)
	}
	if eng.PostID != "post-123" {
		t.Errorf("post id = %q", eng.PostID)
	}
	if eng.Likes != 42 || eng.Reshares != 7 || eng.Replies != 3 {
		t.Errorf("counts = %d/%d/%d", eng.Likes, eng.Reshares, eng.Replies)
	}
	if len(eng.Likers) != 2 {
		t.Errorf("likers = %v", eng.Likers)
	}
	if eng.Resharers != nil {
		t.Errorf("absent actor list should stay nil, got %v", eng.Resharers)
	}
}

func TestFetchDeletedPost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 3600, testLogger())
	_, err := client.Fetch(context.Background(), "gone")
	if !errors.Is(err, ErrPostGone) {
		t.Fatalf("expected ErrPostGone, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("deleted post must not be retried, got %d calls", calls.Load())
	}
}

func TestFetchRateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "900")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 3600, testLogger())
	_, err := client.Fetch(context.Background(), "post-1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("rate-limited call must not be retried, got %d calls", calls.Load())
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"likes": 1})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 3600, testLogger())
	eng, err := client.Fetch(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("Fetch failed after retries: %v", err)
	}
	if eng.Likes != 1 {
		t.Errorf("likes = %d, want 1", eng.Likes)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetchNoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 3600, testLogger())
	if _, err := client.Fetch(context.Background(), "post-1"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
}
