package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDraftsList(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[{"key":"C1_1.0","status":"pending","mode":"review","title":"Login broken"}]`))
	}))
	defer srv.Close()
	t.Setenv("TICKETBOT_API_URL", srv.URL)
	t.Setenv("TICKETBOT_API_KEY", "k")

	out, err := runCLI(t, "drafts", "list", "--status", "pending", "--limit", "5")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "C1_1.0") || !strings.Contains(out, "Login broken") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(gotQuery, "status=pending") || !strings.Contains(gotQuery, "limit=5") {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAuth != "Bearer k" {
		t.Errorf("auth = %q", gotAuth)
	}
}

func TestDraftsDelete(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	t.Setenv("TICKETBOT_API_URL", srv.URL)

	if _, err := runCLI(t, "drafts", "delete", "C1_1.0"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/drafts/C1_1.0" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestAPIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"draft not found"}`))
	}))
	defer srv.Close()
	t.Setenv("TICKETBOT_API_URL", srv.URL)

	_, err := runCLI(t, "drafts", "show", "C9_9.9")
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("err = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticketbot.yaml")
	cfg := `
slack:
  bot_token: xoxb-1
  app_token: xapp-1
jira:
  base_url: https://example.atlassian.net
  email: bot@example.com
  api_token: tok
providers:
  default:
    type: gemini
    api_key: g
    model: gemini-2.0-flash
bot:
  data_dir: ` + dir + `
`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "config", "validate", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "config is valid") || !strings.Contains(out, ":uiux: -> auto") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"slack": {}}`), 0o644)

	if _, err := runCLI(t, "config", "validate", path); err == nil {
		t.Error("expected validation error")
	}
}
