package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  // Slack app in socket mode
  "slack": {
    "bot_token": "xoxb-test",
    "app_token": "xapp-test",
    "channels": ["C001"]
  },
  "jira": {
    "base_url": "https://example.atlassian.net",
    "email": "bot@example.com",
    "api_token": "jira-token",
    "default_project": "OPS",
    "default_epic": "OPS-1",
  },
  "providers": {
    "default": {"type": "gemini", "api_key": "g-key", "model": "gemini-2.0-flash"}
  },
  "bot": {
    "data_dir": "/tmp/ticketbot-test",
    "draft_ttl": "12h",
    "max_workers": 2
  },
  "api": {"host": "0.0.0.0", "port": 9090, "api_key": "admin-key"}
}`

const validYAML = `
slack:
  bot_token: xoxb-test
  signing_secret: shh
  mode: http
jira:
  base_url: https://example.atlassian.net
  email: bot@example.com
  api_token: jira-token
providers:
  default:
    type: openai
    api_key: sk-test
    model: gpt-4o
bot:
  triggers:
    - reaction: bug
      mode: auto
      project: QA
      issue_type: Bug
  worker_timeout: 90s
store:
  driver: sqlite
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_JSONWithComments(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", validJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Slack.BotToken != "xoxb-test" {
		t.Errorf("slack.bot_token = %q", cfg.Slack.BotToken)
	}
	if cfg.Slack.Mode != SlackModeSocket {
		t.Errorf("slack.mode = %q, want socket default", cfg.Slack.Mode)
	}
	if cfg.Jira.DefaultProject != "OPS" {
		t.Errorf("jira.default_project = %q", cfg.Jira.DefaultProject)
	}
	if cfg.Bot.DraftTTL.Std() != 12*time.Hour {
		t.Errorf("bot.draft_ttl = %v", cfg.Bot.DraftTTL)
	}
	if cfg.Bot.MaxWorkers != 2 {
		t.Errorf("bot.max_workers = %d", cfg.Bot.MaxWorkers)
	}
	if cfg.Store.Path != filepath.Join("/tmp/ticketbot-test", "pending_tickets.json") {
		t.Errorf("store.path = %q", cfg.Store.Path)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("api.port = %d", cfg.API.Port)
	}
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Slack.Mode != SlackModeHTTP {
		t.Errorf("slack.mode = %q", cfg.Slack.Mode)
	}
	if len(cfg.Bot.Triggers) != 1 {
		t.Fatalf("triggers = %+v", cfg.Bot.Triggers)
	}
	tr, ok := cfg.Trigger("bug")
	if !ok {
		t.Fatal("trigger 'bug' not found")
	}
	if tr.Mode != ModeAuto || tr.Project != "QA" || tr.IssueType != "Bug" {
		t.Errorf("trigger = %+v", tr)
	}
	if cfg.Bot.WorkerTimeout.Std() != 90*time.Second {
		t.Errorf("worker_timeout = %v", cfg.Bot.WorkerTimeout)
	}
	if !strings.HasSuffix(cfg.Store.Path, "drafts.db") {
		t.Errorf("store.path = %q", cfg.Store.Path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", validJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, r := range []string{"ticket", "jira", "memo"} {
		tr, ok := cfg.Trigger(r)
		if !ok || tr.Mode != ModeReview {
			t.Errorf("trigger %q = %+v, %v", r, tr, ok)
		}
	}
	if tr, ok := cfg.Trigger("uiux"); !ok || tr.Mode != ModeAuto {
		t.Errorf("uiux trigger = %+v, %v", tr, ok)
	}
	if _, ok := cfg.Trigger("thumbsup"); ok {
		t.Error("unexpected trigger for thumbsup")
	}

	if cfg.Jira.EpicField != "customfield_10014" {
		t.Errorf("epic_field = %q", cfg.Jira.EpicField)
	}
	if cfg.Jira.PriorityMap["Highest"] != "P0 - Critical / Blocker" {
		t.Errorf("priority map = %v", cfg.Jira.PriorityMap)
	}
	if cfg.Bot.DefaultPriority != "Needs Priority" {
		t.Errorf("default_priority = %q", cfg.Bot.DefaultPriority)
	}
	if cfg.Bot.Temperature != 0.3 {
		t.Errorf("temperature = %v", cfg.Bot.Temperature)
	}
	if cfg.Bot.SweepSchedule != "@every 15m" {
		t.Errorf("sweep_schedule = %q", cfg.Bot.SweepSchedule)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	_, err := Load(writeConfig(t, "config.json", "{not json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{
		Slack: SlackConfig{Mode: "carrier-pigeon"},
		Providers: map[string]ProviderConfig{
			"default": {Type: "mystery"},
		},
		Bot: BotConfig{
			Triggers: []TriggerConfig{
				{Reaction: "ticket", Mode: "review", Provider: "missing"},
				{Reaction: "ticket", Mode: "later"},
			},
		},
		Store: StoreConfig{Driver: "bolt"},
	}
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"slack.bot_token is required",
		"slack.mode",
		"jira.base_url is required",
		"jira.email is required",
		"jira.api_token is required",
		"providers.default.type",
		"providers.default.api_key is required",
		"providers.default.model is required",
		"references unknown provider \"missing\"",
		"is duplicated",
		"mode \"later\"",
		"store.driver",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidate_ModeCredentials(t *testing.T) {
	cfg, err := Parse([]byte(validJSON), ".json")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Slack.AppToken = ""
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "app_token") {
		t.Errorf("expected app_token error, got %v", err)
	}

	cfg.Slack.Mode = SlackModeHTTP
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "signing_secret") {
		t.Errorf("expected signing_secret error, got %v", err)
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte(" 15m ")); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 15*time.Minute {
		t.Errorf("got %v", d)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected error for invalid duration")
	}
}
