// Package bot implements the reaction-to-ticket workflow: it reacts to chat
// events, runs the slow parts in background workers, and keeps the draft
// store and the user's DM in step.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"golang.org/x/sync/semaphore"

	"github.com/h1v3-io/ticketbot/internal/config"
	"github.com/h1v3-io/ticketbot/internal/connector"
	"github.com/h1v3-io/ticketbot/internal/draft"
	"github.com/h1v3-io/ticketbot/internal/drafter"
	"github.com/h1v3-io/ticketbot/internal/jira"
	"github.com/h1v3-io/ticketbot/internal/metrics"
	"github.com/h1v3-io/ticketbot/internal/render"
	"github.com/h1v3-io/ticketbot/internal/unfurl"
	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// Reactions the bot puts on the triggering message.
const (
	ReactionWorking = "hourglass_flowing_sand"
	ReactionDone    = "white_check_mark"
	ReactionFailed  = "x"
)

// cleanupTimeout bounds the notifications sent after a worker failed or
// timed out.
const cleanupTimeout = 15 * time.Second

// ErrShuttingDown is returned when work is submitted after Shutdown.
var ErrShuttingDown = errors.New("bot: shutting down")

// Chat is the chat platform surface the workflow needs.
type Chat interface {
	ChannelName(ctx context.Context, channelID string) (string, error)
	FetchThread(ctx context.Context, channelID, ts string) (*protocol.Thread, error)
	Permalink(ctx context.Context, channelID, ts string) (string, error)
	PostMessage(ctx context.Context, channel, text string, blocks []slack.Block) (string, string, error)
	UpdateMessage(ctx context.Context, channel, ts, text string, blocks []slack.Block) error
	PostEphemeral(ctx context.Context, channel, user, text string) error
	AddReaction(ctx context.Context, channel, ts, name string) error
	RemoveReaction(ctx context.Context, channel, ts, name string)
	OpenModal(ctx context.Context, triggerID string, view slack.ModalViewRequest) error
	DownloadFile(ctx context.Context, url string, w io.Writer) error
}

// Tracker creates issues.
type Tracker interface {
	CreateIssue(ctx context.Context, in jira.IssueInput) (*jira.Issue, error)
	AddAttachment(ctx context.Context, issueKey, name, path string) error
}

// Summarizer turns a conversation into a ticket proposal.
type Summarizer interface {
	Draft(ctx context.Context, in drafter.Input) (*drafter.Proposal, protocol.Usage, error)
}

// LinkFetcher loads pages linked from a thread.
type LinkFetcher interface {
	Fetch(ctx context.Context, links []string) []unfurl.Page
}

// Deps are the collaborators of a Bot. Links and Metrics are optional.
type Deps struct {
	Chat    Chat
	Tracker Tracker
	Store   draft.Store
	// Summarizers are keyed by provider name.
	Summarizers map[string]Summarizer
	Links       LinkFetcher
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Bot handles chat events. It implements connector.Handler.
type Bot struct {
	cfg     *config.Config
	chat    Chat
	tracker Tracker
	store   draft.Store
	models  map[string]Summarizer
	links   LinkFetcher
	metrics *metrics.Metrics
	logger  *slog.Logger

	sem     *semaphore.Weighted
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inflight map[string]bool // draft keys with a running reaction worker
}

// New creates a Bot. cfg must have defaults applied.
func New(cfg *config.Config, deps Deps) (*Bot, error) {
	if deps.Chat == nil || deps.Tracker == nil || deps.Store == nil {
		return nil, fmt.Errorf("bot: chat, tracker and store are required")
	}
	if _, ok := deps.Summarizers[cfg.Bot.Provider]; !ok {
		return nil, fmt.Errorf("bot: no summarizer for default provider %q", cfg.Bot.Provider)
	}
	for _, t := range cfg.Bot.Triggers {
		if t.Provider == "" {
			continue
		}
		if _, ok := deps.Summarizers[t.Provider]; !ok {
			return nil, fmt.Errorf("bot: no summarizer for provider %q of trigger %q", t.Provider, t.Reaction)
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Bot.MaxWorkers
	if workers <= 0 {
		workers = 8
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		cfg:      cfg,
		chat:     deps.Chat,
		tracker:  deps.Tracker,
		store:    deps.Store,
		models:   deps.Summarizers,
		links:    deps.Links,
		metrics:  deps.Metrics,
		logger:   logger.With("component", "bot"),
		sem:      semaphore.NewWeighted(int64(workers)),
		timeout:  cfg.Bot.WorkerTimeout.Std(),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]bool),
	}, nil
}

// spawn runs fn in a tracked background goroutine with panic recovery, a
// concurrency slot and the worker timeout.
func (b *Bot) spawn(kind, key string, fn func(ctx context.Context, log *slog.Logger) error) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.metrics.WorkerRejected(kind)
		return ErrShuttingDown
	}
	b.wg.Add(1)
	b.mu.Unlock()

	log := b.logger.With("worker", uuid.NewString(), "kind", kind, "key", key)
	go func() {
		defer b.wg.Done()

		if err := b.sem.Acquire(b.ctx, 1); err != nil {
			b.metrics.WorkerRejected(kind)
			log.Warn("worker dropped before start", "error", err)
			return
		}
		defer b.sem.Release(1)

		done := b.metrics.WorkerStarted(kind)
		outcome := metrics.OutcomePanic
		defer func() {
			if r := recover(); r != nil {
				log.Error("worker panicked", "panic", fmt.Sprintf("%v", r))
			}
			done(outcome)
		}()

		ctx := b.ctx
		if b.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.timeout)
			defer cancel()
		}

		start := time.Now()
		log.Debug("worker started")
		if err := fn(ctx, log); err != nil {
			outcome = metrics.OutcomeError
			log.Error("worker failed", "error", err, "elapsed", time.Since(start))
			return
		}
		outcome = metrics.OutcomeOK
		log.Info("worker done", "elapsed", time.Since(start))
	}()
	return nil
}

// Shutdown stops accepting work and waits for running workers. When ctx
// expires first, running workers are cancelled and ctx's error returned.
func (b *Bot) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-done
		return ctx.Err()
	}
}

// claimMessage marks a message as being processed by a reaction worker.
// It returns false when one is already running for it.
func (b *Bot) claimMessage(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight[key] {
		return false
	}
	b.inflight[key] = true
	return true
}

func (b *Bot) releaseMessage(key string) {
	b.mu.Lock()
	delete(b.inflight, key)
	b.mu.Unlock()
}

func (b *Bot) summarizer(trig config.TriggerConfig) (Summarizer, string) {
	name := trig.Provider
	if name == "" {
		name = b.cfg.Bot.Provider
	}
	return b.models[name], name
}

// detached returns a context for notifications that must go out even when
// the worker context is done.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

// swapReaction replaces the working marker on the source message.
func (b *Bot) swapReaction(ctx context.Context, channelID, ts, name string) {
	b.chat.RemoveReaction(ctx, channelID, ts, ReactionWorking)
	if err := b.chat.AddReaction(ctx, channelID, ts, name); err != nil {
		b.logger.Warn("failed to add reaction", "reaction", name, "channel", channelID, "error", err)
	}
}

func (b *Bot) modalOptions() render.ModalOptions {
	return render.ModalOptions{
		IssueTypes: b.cfg.Jira.IssueTypes,
		Priorities: b.cfg.Jira.Priorities,
	}
}

var _ connector.Handler = (*Bot)(nil)
