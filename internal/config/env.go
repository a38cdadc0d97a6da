package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// botEnv holds the raw environment variables understood by LoadFromEnv.
type botEnv struct {
	SlackBotToken      string   `env:"SLACK_BOT_TOKEN"`
	SlackAppToken      string   `env:"SLACK_APP_TOKEN"`
	SlackSigningSecret string   `env:"SLACK_SIGNING_SECRET"`
	SlackMode          string   `env:"SLACK_MODE"`
	SlackChannels      []string `env:"SLACK_CHANNELS" envSeparator:","`

	JiraBaseURL    string `env:"JIRA_BASE_URL"`
	JiraEmail      string `env:"JIRA_EMAIL"`
	JiraAPIToken   string `env:"JIRA_API_TOKEN"`
	DefaultProject string `env:"DEFAULT_PROJECT" envDefault:"GOD"`
	DefaultEpic    string `env:"DEFAULT_EPIC" envDefault:"GOD-26345"`
	JiraEpicField  string `env:"JIRA_EPIC_FIELD"`

	GoogleAPIKey    string `env:"GOOGLE_API_KEY"`
	GeminiModel     string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GeminiAutoModel string `env:"GEMINI_AUTO_MODEL" envDefault:"gemini-3-pro-preview"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	OpenAIModel     string `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-20250514"`

	DataDir       string        `env:"DATA_DIR" envDefault:"./data"`
	StoreDriver   string        `env:"STORE_DRIVER"`
	DraftTTL      time.Duration `env:"DRAFT_TTL"`
	SweepSchedule string        `env:"SWEEP_SCHEDULE"`
	MaxWorkers    int           `env:"MAX_WORKERS"`
	KeepCreated   bool          `env:"KEEP_CREATED"`
	LinkContext   bool          `env:"LINK_CONTEXT"`

	APIHost string `env:"API_HOST"`
	APIPort int    `env:"API_PORT"`
	APIKey  string `env:"API_KEY"`
}

// LoadFromEnv builds a config from environment variables. Variable names
// match the ones the bot has always used (SLACK_BOT_TOKEN, JIRA_BASE_URL,
// GOOGLE_API_KEY, ...). Gemini is preferred when GOOGLE_API_KEY is set;
// auto-mode triggers then use GEMINI_AUTO_MODEL.
func LoadFromEnv() (*Config, error) {
	var e botEnv
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	cfg := &Config{
		Slack: SlackConfig{
			BotToken:      e.SlackBotToken,
			AppToken:      e.SlackAppToken,
			SigningSecret: e.SlackSigningSecret,
			Mode:          e.SlackMode,
			Channels:      e.SlackChannels,
		},
		Jira: JiraConfig{
			BaseURL:        e.JiraBaseURL,
			Email:          e.JiraEmail,
			APIToken:       e.JiraAPIToken,
			DefaultProject: e.DefaultProject,
			DefaultEpic:    e.DefaultEpic,
			EpicField:      e.JiraEpicField,
		},
		Providers: make(map[string]ProviderConfig),
		Bot: BotConfig{
			DataDir:       e.DataDir,
			DraftTTL:      Duration(e.DraftTTL),
			SweepSchedule: e.SweepSchedule,
			MaxWorkers:    e.MaxWorkers,
			KeepCreated:   e.KeepCreated,
		},
		Store: StoreConfig{Driver: e.StoreDriver},
		Links: LinksConfig{Enabled: e.LinkContext},
		API: APIConfig{
			Host: e.APIHost,
			Port: e.APIPort,
			Key:  e.APIKey,
		},
	}

	switch {
	case e.GoogleAPIKey != "":
		cfg.Providers["default"] = ProviderConfig{Type: "gemini", APIKey: e.GoogleAPIKey, Model: e.GeminiModel}
		cfg.Providers["auto"] = ProviderConfig{Type: "gemini", APIKey: e.GoogleAPIKey, Model: e.GeminiAutoModel}
		cfg.Bot.Triggers = []TriggerConfig{
			{Reaction: "ticket", Mode: ModeReview},
			{Reaction: "jira", Mode: ModeReview},
			{Reaction: "memo", Mode: ModeReview},
			{Reaction: "uiux", Mode: ModeAuto, Provider: "auto", IssueType: "Story"},
		}
	case e.AnthropicAPIKey != "":
		cfg.Providers["default"] = ProviderConfig{Type: "anthropic", APIKey: e.AnthropicAPIKey, Model: e.AnthropicModel}
	case e.OpenAIAPIKey != "":
		cfg.Providers["default"] = ProviderConfig{Type: "openai", APIKey: e.OpenAIAPIKey, BaseURL: e.OpenAIBaseURL, Model: e.OpenAIModel}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
