package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apiPkg "github.com/h1v3-io/ticketbot/internal/api"
	"github.com/h1v3-io/ticketbot/internal/bot"
	"github.com/h1v3-io/ticketbot/internal/config"
	slackconn "github.com/h1v3-io/ticketbot/internal/connector/slack"
	"github.com/h1v3-io/ticketbot/internal/connector/webhook"
	"github.com/h1v3-io/ticketbot/internal/draft"
	"github.com/h1v3-io/ticketbot/internal/drafter"
	"github.com/h1v3-io/ticketbot/internal/jira"
	"github.com/h1v3-io/ticketbot/internal/logbuf"
	"github.com/h1v3-io/ticketbot/internal/metrics"
	"github.com/h1v3-io/ticketbot/internal/provider"
	"github.com/h1v3-io/ticketbot/internal/scheduler"
	"github.com/h1v3-io/ticketbot/internal/unfurl"
)

const version = "0.3.0"

type options struct {
	configPath  string
	configURL   string
	configToken string
	verbose     bool
}

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "ticketbotd",
		Short: "Slack reaction to Jira ticket bot",
		Long: `ticketbotd watches Slack for trigger reactions, drafts a ticket from the
thread with an LLM and files it in Jira, either after the reacting user
reviews it or straight away.

Config comes from --config (JSON or YAML), --config-url, or the
environment (SLACK_BOT_TOKEN, JIRA_BASE_URL, GOOGLE_API_KEY, ...).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (JSON or YAML)")
	cmd.Flags().StringVar(&opts.configURL, "config-url", os.Getenv("TICKETBOT_CONFIG_URL"), "Fetch config from this URL")
	cmd.Flags().StringVar(&opts.configToken, "config-token", os.Getenv("TICKETBOT_CONFIG_TOKEN"), "Bearer token for --config-url")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ticketbotd %s\n", version)
		},
	})
	return cmd
}

func loadConfig(ctx context.Context, opts options, logger *slog.Logger) (*config.Config, error) {
	switch {
	case opts.configPath != "":
		return config.Load(opts.configPath)
	case opts.configURL != "":
		logger.Info("loading config from url", "url", opts.configURL)
		return config.LoadRemote(ctx, config.RemoteOptions{URL: opts.configURL, Token: opts.configToken})
	default:
		return config.LoadFromEnv()
	}
}

func run(parent context.Context, opts options) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logLevel := slog.LevelInfo
	if opts.verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	slog.SetDefault(logger)

	cfg, err := loadConfig(ctx, opts, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("ticketbotd starting", "version", version, "slack_mode", cfg.Slack.Mode, "store", cfg.Store.Driver)

	m := metrics.New()

	// 1. LLM providers, one drafter each.
	summarizers := make(map[string]bot.Summarizer, len(cfg.Providers))
	for name, pcfg := range cfg.Providers {
		prov, err := provider.FromConfig(pcfg, logger.With("component", "provider", "provider", name))
		if err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
		summarizers[name] = drafter.New(prov, drafter.Options{
			Temperature:     cfg.Bot.Temperature,
			DefaultPriority: cfg.Bot.DefaultPriority,
			IssueTypes:      cfg.Jira.IssueTypes,
		}, logger.With("component", "drafter", "provider", name))
		logger.Info("provider initialized", "name", name, "type", pcfg.Type, "model", pcfg.Model)
	}

	// 2. Jira.
	tracker := jira.New(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken,
		jira.WithEpicField(cfg.Jira.EpicField),
		jira.WithPriorityMap(cfg.Jira.PriorityMap),
		jira.WithTimeout(cfg.Jira.Timeout.Std()),
		jira.WithLogger(logger.With("component", "jira")),
	)
	checkCtx, cancelCheck := context.WithTimeout(ctx, 15*time.Second)
	if me, err := tracker.Myself(checkCtx); err != nil {
		logger.Warn("jira credentials check failed", "error", err)
	} else {
		logger.Info("jira authorized", "user", me.DisplayName)
	}
	cancelCheck()

	// 3. Draft store.
	store, err := draft.Open(cfg.Store.Driver, cfg.Store.Path, logger.With("component", "store"))
	if err != nil {
		return fmt.Errorf("open draft store: %w", err)
	}
	defer store.Close()
	logger.Info("draft store opened", "driver", cfg.Store.Driver, "path", cfg.Store.Path)

	// 4. Slack client and the bot.
	api := slackconn.NewAPI(cfg.Slack.BotToken, cfg.Slack.AppToken, cfg.Slack.APIURL)
	client := slackconn.NewClient(api, logger.With("component", "slack"))
	botID, err := client.BotUserID(ctx)
	if err != nil {
		return err
	}

	deps := bot.Deps{
		Chat:        client,
		Tracker:     tracker,
		Store:       store,
		Summarizers: summarizers,
		Metrics:     m,
		Logger:      logger,
	}
	if cfg.Links.Enabled {
		deps.Links = unfurl.New(
			unfurl.WithLimits(cfg.Links.MaxLinks, cfg.Links.MaxChars),
			unfurl.WithTimeout(cfg.Links.Timeout.Std()),
			unfurl.WithLogger(logger.With("component", "unfurl")),
		)
	}
	b, err := bot.New(cfg, deps)
	if err != nil {
		return err
	}
	if n, err := b.Recover(ctx); err != nil {
		logger.Error("draft recovery failed", "error", err)
	} else if n > 0 {
		logger.Warn("recovered drafts interrupted mid-creation", "count", n)
	}

	dispatcher := slackconn.NewDispatcher(b, botID, cfg.Slack.Channels, logger.With("component", "dispatcher"))

	// 5. Sweeper.
	sched := scheduler.New(logger)
	if err := sched.AddJob(scheduler.SweepJobName, cfg.Bot.SweepSchedule, scheduler.SweepJob(b)); err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// 6. Ingress and API server.
	apiDeps := apiPkg.Deps{
		Drafts:  store,
		Logs:    logBuf,
		Metrics: m.Handler(),
		Ingress: cfg.Slack.Mode,
	}
	switch cfg.Slack.Mode {
	case config.SlackModeHTTP:
		apiDeps.Slack = webhook.New(cfg.Slack.SigningSecret, dispatcher, logger.With("component", "webhook"))
	default:
		conn, err := slackconn.NewSocket(api, dispatcher, logger.With("component", "socket"))
		if err != nil {
			return err
		}
		go safeGo(logger, conn.Name(), func() {
			if err := conn.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("slack connector stopped", "error", err)
				stop()
			}
		})
		defer conn.Stop()
	}

	apiSrv := apiPkg.NewServer(apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, apiDeps, logger)
	go safeGo(logger, "api-server", func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server stopped", "error", err)
			stop()
		}
	})

	// 7. Graceful shutdown.
	<-ctx.Done()
	logger.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := b.Shutdown(shutCtx); err != nil {
		logger.Warn("workers still running at shutdown", "error", err)
	}
	logger.Info("ticketbotd stopped")
	return nil
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
