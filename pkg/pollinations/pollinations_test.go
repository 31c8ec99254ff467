package pollinations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func respond(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestAskSendsSeedAndMessages(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		respond(t, w, "hello back")
	}))
	defer srv.Close()

	c := New(WithURL(srv.URL), WithSeedFunc(func() int { return 4242 }))
	out, err := c.Ask(context.Background(), "hi", "you are terse")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if out != "hello back" {
		t.Errorf("Ask = %q, want %q", out, "hello back")
	}
	if got.Seed != 4242 {
		t.Errorf("seed = %d, want 4242", got.Seed)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestAskOmitsEmptySystem(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		respond(t, w, "ok")
	}))
	defer srv.Close()

	c := New(WithURL(srv.URL))
	if _, err := c.Ask(context.Background(), "hi", ""); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("messages = %+v, want single user message", got.Messages)
	}
}

func TestAskErrorsOnNonOK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(WithURL(srv.URL))
	if _, err := c.Ask(context.Background(), "hi", ""); err == nil {
		t.Fatal("Ask on 503 succeeded, want error")
	}
}

func TestModels(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"openai"},{"name":"openai-fast"},{"description":"unnamed"}]`))
	}))
	defer srv.Close()

	c := New(WithModelsURL(srv.URL))
	models, err := c.Models(context.Background())
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(models) != 2 || models[0] != "openai" || models[1] != "openai-fast" {
		t.Errorf("models = %v", models)
	}
}

func TestAskSeedVariesPerCall(t *testing.T) {
	t.Parallel()

	seeds := make(map[int]bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		seeds[req.Seed] = true
		respond(t, w, "ok")
	}))
	defer srv.Close()

	c := New(WithURL(srv.URL))
	for i := 0; i < 3; i++ {
		if _, err := c.Ask(context.Background(), "same prompt", ""); err != nil {
			t.Fatalf("Ask: %v", err)
		}
	}
	// Three identical prompts should not share one seed. A collision across
	// two of three draws from ~1e6 values is vanishingly unlikely.
	if len(seeds) < 2 {
		t.Errorf("seeds across 3 calls = %v, want variation", seeds)
	}
}
