package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"
)

// RemoteOptions describe where to fetch a config document over HTTP.
type RemoteOptions struct {
	URL     string
	Token   string // sent as a bearer token when set
	DataDir string // overrides bot.data_dir when set
	Timeout time.Duration
}

// LoadRemote fetches a config document from a config service, parses it by
// its URL extension (YAML or JSON), applies defaults and validates it.
func LoadRemote(ctx context.Context, opts RemoteOptions) (*Config, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("config: remote: create request: %w", err)
	}
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	client := &http.Client{Timeout: opts.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("config: remote: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("config: remote: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config: remote: HTTP %d: %s", resp.StatusCode, string(body))
	}

	cfg, err := Parse(body, path.Ext(req.URL.Path))
	if err != nil {
		return nil, fmt.Errorf("config: remote: parse: %w", err)
	}
	if opts.DataDir != "" {
		cfg.Bot.DataDir = opts.DataDir
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: remote: %w", err)
	}
	return cfg, nil
}
