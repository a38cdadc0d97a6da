package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

func TestGeminiChat(t *testing.T) {
	var captured geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Error("missing x-goog-api-key header")
		}
		json.NewDecoder(r.Body).Decode(&captured)

		w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"title\":"}, {"text": "\"Crash\"}"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 4}
		}`))
	}))
	defer srv.Close()

	p := NewGemini("g-key", WithGeminiBaseURL(srv.URL))
	got, err := p.Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{
			{Role: "system", Content: "Write tickets."},
			{Role: "user", Content: "The app crashes"},
			{Role: "assistant", Content: "Which page?"},
			{Role: "user", Content: "Login"},
		},
		Temperature: 0.3,
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Content != `{"title":"Crash"}` {
		t.Errorf("content = %q", got.Content)
	}
	if got.Usage.TotalTokens() != 16 {
		t.Errorf("tokens = %d", got.Usage.TotalTokens())
	}

	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "Write tickets." {
		t.Errorf("system instruction = %+v", captured.SystemInstruction)
	}
	if len(captured.Contents) != 3 {
		t.Fatalf("contents = %+v", captured.Contents)
	}
	if captured.Contents[1].Role != "model" {
		t.Errorf("assistant role mapped to %q", captured.Contents[1].Role)
	}
	gen := captured.GenerationConfig
	if gen == nil || gen.ResponseMimeType != "application/json" {
		t.Errorf("generation config = %+v", gen)
	}
	if gen != nil && (gen.Temperature == nil || *gen.Temperature != 0.3) {
		t.Errorf("temperature = %v", gen.Temperature)
	}
}

func TestGeminiChat_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": [], "promptFeedback": {"blockReason": "SAFETY"}}`))
	}))
	defer srv.Close()

	p := NewGemini("g-key", WithGeminiBaseURL(srv.URL))
	_, err := p.Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{{Role: "user", Content: "Hi"}},
	})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGeminiChat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewGemini("g-key", WithGeminiBaseURL(srv.URL), WithGeminiModel("gemini-3-pro-preview"))
	_, err := p.Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{{Role: "user", Content: "Hi"}},
	})
	if !IsTransient(err) {
		t.Fatalf("503 should be transient, got %v", err)
	}
}
