package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the top-level ticketbot configuration.
type Config struct {
	Slack     SlackConfig               `json:"slack" yaml:"slack"`
	Jira      JiraConfig                `json:"jira" yaml:"jira"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Bot       BotConfig                 `json:"bot" yaml:"bot"`
	Store     StoreConfig               `json:"store" yaml:"store"`
	Links     LinksConfig               `json:"links" yaml:"links"`
	API       APIConfig                 `json:"api" yaml:"api"`
}

// Slack ingress modes.
const (
	SlackModeSocket = "socket"
	SlackModeHTTP   = "http"
)

// SlackConfig holds Slack app credentials and ingress settings.
type SlackConfig struct {
	BotToken      string   `json:"bot_token" yaml:"bot_token"`
	AppToken      string   `json:"app_token,omitempty" yaml:"app_token,omitempty"`
	SigningSecret string   `json:"signing_secret,omitempty" yaml:"signing_secret,omitempty"`
	Mode          string   `json:"mode,omitempty" yaml:"mode,omitempty"` // "socket" (default) or "http"
	Channels      []string `json:"channels,omitempty" yaml:"channels,omitempty"`
	APIURL        string   `json:"api_url,omitempty" yaml:"api_url,omitempty"`
}

// JiraConfig holds issue tracker settings.
type JiraConfig struct {
	BaseURL        string            `json:"base_url" yaml:"base_url"`
	Email          string            `json:"email" yaml:"email"`
	APIToken       string            `json:"api_token" yaml:"api_token"`
	DefaultProject string            `json:"default_project" yaml:"default_project"`
	DefaultEpic    string            `json:"default_epic,omitempty" yaml:"default_epic,omitempty"`
	EpicField      string            `json:"epic_field,omitempty" yaml:"epic_field,omitempty"`
	PriorityMap    map[string]string `json:"priority_map,omitempty" yaml:"priority_map,omitempty"`
	IssueTypes     []string          `json:"issue_types,omitempty" yaml:"issue_types,omitempty"`
	Priorities     []string          `json:"priorities,omitempty" yaml:"priorities,omitempty"`
	Timeout        Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Type       string `json:"type,omitempty" yaml:"type,omitempty"` // "openai" (default), "anthropic" or "gemini"
	APIKey     string `json:"api_key" yaml:"api_key"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string `json:"model" yaml:"model"`
	MaxRetries int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// Trigger modes.
const (
	ModeReview = "review"
	ModeAuto   = "auto"
)

// TriggerConfig binds a reaction name to a workflow. Project, Epic,
// IssueType and Priority override the Jira defaults for that trigger.
type TriggerConfig struct {
	Reaction  string `json:"reaction" yaml:"reaction"`
	Mode      string `json:"mode" yaml:"mode"`
	Provider  string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Project   string `json:"project,omitempty" yaml:"project,omitempty"`
	Epic      string `json:"epic,omitempty" yaml:"epic,omitempty"`
	IssueType string `json:"issue_type,omitempty" yaml:"issue_type,omitempty"`
	Priority  string `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// BotConfig holds workflow settings.
type BotConfig struct {
	DataDir         string          `json:"data_dir" yaml:"data_dir"`
	Provider        string          `json:"provider,omitempty" yaml:"provider,omitempty"`
	Triggers        []TriggerConfig `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	DefaultPriority string          `json:"default_priority,omitempty" yaml:"default_priority,omitempty"`
	Temperature     float64         `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	DraftTTL        Duration        `json:"draft_ttl,omitempty" yaml:"draft_ttl,omitempty"`
	SweepSchedule   string          `json:"sweep_schedule,omitempty" yaml:"sweep_schedule,omitempty"`
	WorkerTimeout   Duration        `json:"worker_timeout,omitempty" yaml:"worker_timeout,omitempty"`
	MaxWorkers      int             `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	KeepCreated     bool            `json:"keep_created,omitempty" yaml:"keep_created,omitempty"`
}

// Draft store drivers.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
)

// StoreConfig selects the draft persistence driver. An empty Path resolves
// under Bot.DataDir.
type StoreConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LinksConfig controls fetching of pages linked from a thread.
type LinksConfig struct {
	Enabled  bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MaxLinks int      `json:"max_links,omitempty" yaml:"max_links,omitempty"`
	MaxChars int      `json:"max_chars,omitempty" yaml:"max_chars,omitempty"`
	Timeout  Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// APIConfig holds admin API server settings.
type APIConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	Key  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("15m").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Load reads configuration from a JSON (comments allowed) or YAML file,
// applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw config bytes. ext selects the format: ".yaml" and
// ".yml" are YAML, anything else is JSON with comments.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with the bot's stock behavior.
func (c *Config) ApplyDefaults() {
	if c.Slack.Mode == "" {
		c.Slack.Mode = SlackModeSocket
	}

	if c.Jira.DefaultProject == "" {
		c.Jira.DefaultProject = "GOD"
	}
	if c.Jira.EpicField == "" {
		c.Jira.EpicField = "customfield_10014"
	}
	if c.Jira.PriorityMap == nil {
		c.Jira.PriorityMap = map[string]string{
			"Highest":        "P0 - Critical / Blocker",
			"High":           "P1 - High Priority",
			"Medium":         "P2 - Medium Priority",
			"Low":            "P3 - Low Priority",
			"Needs Priority": "Needs Priority",
		}
	}
	if len(c.Jira.IssueTypes) == 0 {
		c.Jira.IssueTypes = []string{"Story", "Bug", "Task"}
	}
	if len(c.Jira.Priorities) == 0 {
		c.Jira.Priorities = []string{"Needs Priority", "Highest", "High", "Medium", "Low"}
	}
	if c.Jira.Timeout == 0 {
		c.Jira.Timeout = Duration(30 * time.Second)
	}

	if c.Bot.DataDir == "" {
		c.Bot.DataDir = "./data"
	}
	if c.Bot.Provider == "" {
		c.Bot.Provider = "default"
	}
	if len(c.Bot.Triggers) == 0 {
		c.Bot.Triggers = []TriggerConfig{
			{Reaction: "ticket", Mode: ModeReview},
			{Reaction: "jira", Mode: ModeReview},
			{Reaction: "memo", Mode: ModeReview},
			{Reaction: "uiux", Mode: ModeAuto, IssueType: "Story"},
		}
	}
	if c.Bot.DefaultPriority == "" {
		c.Bot.DefaultPriority = "Needs Priority"
	}
	if c.Bot.Temperature == 0 {
		c.Bot.Temperature = 0.3
	}
	if c.Bot.DraftTTL == 0 {
		c.Bot.DraftTTL = Duration(24 * time.Hour)
	}
	if c.Bot.SweepSchedule == "" {
		c.Bot.SweepSchedule = "@every 15m"
	}
	if c.Bot.WorkerTimeout == 0 {
		c.Bot.WorkerTimeout = Duration(5 * time.Minute)
	}
	if c.Bot.MaxWorkers == 0 {
		c.Bot.MaxWorkers = 8
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreJSON
	}
	if c.Store.Path == "" {
		name := "pending_tickets.json"
		if c.Store.Driver == StoreSQLite {
			name = "drafts.db"
		}
		c.Store.Path = filepath.Join(c.Bot.DataDir, name)
	}

	if c.Links.MaxLinks == 0 {
		c.Links.MaxLinks = 3
	}
	if c.Links.MaxChars == 0 {
		c.Links.MaxChars = 4000
	}
	if c.Links.Timeout == 0 {
		c.Links.Timeout = Duration(10 * time.Second)
	}

	if c.API.Host == "" {
		c.API.Host = "127.0.0.1"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}

// Trigger returns the trigger bound to a reaction name.
func (c *Config) Trigger(reaction string) (TriggerConfig, bool) {
	for _, t := range c.Bot.Triggers {
		if t.Reaction == reaction {
			return t, true
		}
	}
	return TriggerConfig{}, false
}

// Validate checks for required fields and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Slack.BotToken == "" {
		errs = append(errs, "slack.bot_token is required")
	}
	switch c.Slack.Mode {
	case SlackModeSocket:
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required in socket mode")
		}
	case SlackModeHTTP:
		if c.Slack.SigningSecret == "" {
			errs = append(errs, "slack.signing_secret is required in http mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("slack.mode %q must be socket or http", c.Slack.Mode))
	}

	if c.Jira.BaseURL == "" {
		errs = append(errs, "jira.base_url is required")
	} else if !strings.HasPrefix(c.Jira.BaseURL, "http://") && !strings.HasPrefix(c.Jira.BaseURL, "https://") {
		errs = append(errs, "jira.base_url must be an http(s) URL")
	}
	if c.Jira.Email == "" {
		errs = append(errs, "jira.email is required")
	}
	if c.Jira.APIToken == "" {
		errs = append(errs, "jira.api_token is required")
	}

	if len(c.Providers) == 0 {
		errs = append(errs, "at least one provider is required")
	}
	for name, p := range c.Providers {
		switch p.Type {
		case "", "openai", "anthropic", "gemini":
		default:
			errs = append(errs, fmt.Sprintf("providers.%s.type %q is not supported", name, p.Type))
		}
		if p.APIKey == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.api_key is required", name))
		}
		if p.Model == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.model is required", name))
		}
	}
	if len(c.Providers) > 0 {
		if _, ok := c.Providers[c.Bot.Provider]; !ok {
			errs = append(errs, fmt.Sprintf("bot.provider references unknown provider %q", c.Bot.Provider))
		}
	}

	seen := make(map[string]bool)
	for i, t := range c.Bot.Triggers {
		if t.Reaction == "" {
			errs = append(errs, fmt.Sprintf("bot.triggers[%d].reaction is required", i))
		} else if seen[t.Reaction] {
			errs = append(errs, fmt.Sprintf("bot.triggers[%d].reaction %q is duplicated", i, t.Reaction))
		}
		seen[t.Reaction] = true
		if t.Mode != ModeReview && t.Mode != ModeAuto {
			errs = append(errs, fmt.Sprintf("bot.triggers[%d].mode %q must be review or auto", i, t.Mode))
		}
		if t.Provider != "" {
			if _, ok := c.Providers[t.Provider]; !ok {
				errs = append(errs, fmt.Sprintf("bot.triggers[%d].provider references unknown provider %q", i, t.Provider))
			}
		}
	}
	if c.Bot.MaxWorkers < 0 {
		errs = append(errs, "bot.max_workers must not be negative")
	}

	if c.Store.Driver != StoreJSON && c.Store.Driver != StoreSQLite {
		errs = append(errs, fmt.Sprintf("store.driver %q must be json or sqlite", c.Store.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
