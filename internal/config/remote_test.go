package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoadRemote(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(validYAML))
	}))
	defer srv.Close()

	cfg, err := LoadRemote(context.Background(), RemoteOptions{
		URL:     srv.URL + "/ticketbot.yaml",
		Token:   "cfg-token",
		DataDir: "/srv/data",
	})
	if err != nil {
		t.Fatalf("LoadRemote: %v", err)
	}
	if gotAuth != "Bearer cfg-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if cfg.Bot.DataDir != "/srv/data" {
		t.Errorf("data_dir = %q", cfg.Bot.DataDir)
	}
	if cfg.Slack.Mode != SlackModeHTTP {
		t.Errorf("slack.mode = %q", cfg.Slack.Mode)
	}
}

func TestLoadRemote_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := LoadRemote(context.Background(), RemoteOptions{URL: srv.URL + "/config.json"})
	if err == nil || !strings.Contains(err.Error(), "HTTP 403") {
		t.Fatalf("expected HTTP 403 error, got %v", err)
	}
}
