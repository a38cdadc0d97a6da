package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/h1v3-io/ticketbot/internal/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticketbotctl",
		Short: "Ticket bot management CLI",
		Long: `ticketbotctl talks to a running ticketbotd over its admin API.

Environment:
  TICKETBOT_API_URL  Daemon URL (default: http://localhost:8080)
  TICKETBOT_API_KEY  API key for authentication`,
		SilenceUsage: true,
	}
	cmd.AddCommand(healthCmd(), draftsCmd(), configCmd())
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := apiDo(http.MethodGet, "/api/health")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
			return nil
		},
	}
}

func draftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Inspect and remove ticket drafts",
	}

	var status, user, mode string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List drafts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if status != "" {
				q.Set("status", status)
			}
			if user != "" {
				q.Set("user", user)
			}
			if mode != "" {
				q.Set("mode", mode)
			}
			body, err := apiDo(http.MethodGet, "/api/drafts?"+q.Encode())
			if err != nil {
				return err
			}
			var drafts []map[string]any
			if err := json.Unmarshal(body, &drafts); err != nil {
				return fmt.Errorf("decode drafts: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, d := range drafts {
				fmt.Fprintf(out, "%-28v %-9v %-7v %v\n", d["key"], d["status"], d["mode"], d["title"])
			}
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (pending|creating|created|failed)")
	list.Flags().StringVar(&user, "user", "", "Filter by Slack user ID")
	list.Flags().StringVar(&mode, "mode", "", "Filter by mode (review|auto)")
	list.Flags().IntVar(&limit, "limit", 50, "Max results")

	show := &cobra.Command{
		Use:   "show <key>",
		Short: "Show a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := apiDo(http.MethodGet, "/api/drafts/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := apiDo(http.MethodDelete, "/api/drafts/"+url.PathEscape(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "draft %s deleted\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config file helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return fmt.Errorf("invalid: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "config is valid")
			fmt.Fprintf(out, "  slack mode: %s\n", cfg.Slack.Mode)
			fmt.Fprintf(out, "  store:      %s (%s)\n", cfg.Store.Driver, cfg.Store.Path)
			for _, t := range cfg.Bot.Triggers {
				fmt.Fprintf(out, "  trigger:    :%s: -> %s\n", t.Reaction, t.Mode)
			}
			return nil
		},
	})
	return cmd
}

// --- Helpers ---

func apiDo(method, path string) ([]byte, error) {
	base := envOr("TICKETBOT_API_URL", "http://localhost:8080")

	req, err := http.NewRequest(method, base+path, nil)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("TICKETBOT_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
