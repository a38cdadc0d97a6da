package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"github.com/h1v3-io/ticketbot/internal/config"
	"github.com/h1v3-io/ticketbot/internal/draft"
	"github.com/h1v3-io/ticketbot/internal/drafter"
	"github.com/h1v3-io/ticketbot/internal/jira"
	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

type sentMessage struct {
	Channel string
	TS      string
	Text    string
	Blocks  string // JSON
}

type fakeChat struct {
	mu        sync.Mutex
	thread    *protocol.Thread
	threadErr error
	postErr   error
	updateErr error
	posted    []sentMessage
	updated   []sentMessage
	ephemeral []string
	reactions []string // "+name" / "-name"
	modals    []slack.ModalViewRequest
	downloads map[string]string // url -> content
	nextTS    int
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		thread: &protocol.Thread{
			Conversation: "@Ana: checkout is broken\n@Ben: confirmed on staging",
			MessageCount: 2,
		},
		downloads: map[string]string{},
	}
}

func blocksJSON(blocks []slack.Block) string {
	if blocks == nil {
		return ""
	}
	data, _ := json.Marshal(blocks)
	return string(data)
}

func (f *fakeChat) ChannelName(ctx context.Context, channelID string) (string, error) {
	return "support", nil
}

func (f *fakeChat) FetchThread(ctx context.Context, channelID, ts string) (*protocol.Thread, error) {
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return f.thread, nil
}

func (f *fakeChat) Permalink(ctx context.Context, channelID, ts string) (string, error) {
	return "https://team.slack.com/archives/" + channelID + "/p" + strings.ReplaceAll(ts, ".", ""), nil
}

func (f *fakeChat) PostMessage(ctx context.Context, channel, text string, blocks []slack.Block) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.nextTS++
	ts := fmt.Sprintf("1800000000.%06d", f.nextTS)
	f.posted = append(f.posted, sentMessage{Channel: channel, TS: ts, Text: text, Blocks: blocksJSON(blocks)})
	return "D" + channel, ts, nil
}

func (f *fakeChat) UpdateMessage(ctx context.Context, channel, ts, text string, blocks []slack.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, sentMessage{Channel: channel, TS: ts, Text: text, Blocks: blocksJSON(blocks)})
	return nil
}

func (f *fakeChat) PostEphemeral(ctx context.Context, channel, user, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ephemeral = append(f.ephemeral, text)
	return nil
}

func (f *fakeChat) AddReaction(ctx context.Context, channel, ts, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, "+"+name)
	return nil
}

func (f *fakeChat) RemoveReaction(ctx context.Context, channel, ts, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, "-"+name)
}

func (f *fakeChat) OpenModal(ctx context.Context, triggerID string, view slack.ModalViewRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modals = append(f.modals, view)
	return nil
}

func (f *fakeChat) DownloadFile(ctx context.Context, url string, w io.Writer) error {
	f.mu.Lock()
	content, ok := f.downloads[url]
	f.mu.Unlock()
	if !ok {
		return errors.New("404")
	}
	_, err := io.WriteString(w, content)
	return err
}

func (f *fakeChat) lastUpdate() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updated) == 0 {
		return sentMessage{}
	}
	return f.updated[len(f.updated)-1]
}

type fakeTracker struct {
	mu          sync.Mutex
	err         error
	inputs      []jira.IssueInput
	attachments map[string]string // name -> content
	attachErr   map[string]error
}

func (f *fakeTracker) CreateIssue(ctx context.Context, in jira.IssueInput) (*jira.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	key := fmt.Sprintf("%s-%d", in.Project, 100+len(f.inputs))
	return &jira.Issue{Key: key, ID: "1", URL: "https://jira.example.com/browse/" + key}, nil
}

func (f *fakeTracker) AddAttachment(ctx context.Context, issueKey, name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.attachErr[name]; err != nil {
		return err
	}
	if f.attachments == nil {
		f.attachments = map[string]string{}
	}
	f.attachments[name] = string(data)
	return nil
}

type fakeSummarizer struct {
	mu  sync.Mutex
	err error
	p   drafter.Proposal
	got []drafter.Input
}

func (f *fakeSummarizer) Draft(ctx context.Context, in drafter.Input) (*drafter.Proposal, protocol.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, in)
	if f.err != nil {
		return nil, protocol.Usage{}, f.err
	}
	p := f.p
	return &p, protocol.Usage{PromptTokens: 10, CompletionTokens: 5}, nil
}

type harness struct {
	bot     *Bot
	chat    *fakeChat
	tracker *fakeTracker
	model   *fakeSummarizer
	store   draft.Store
	cfg     *config.Config
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := &config.Config{}
	for _, m := range mutate {
		m(cfg)
	}
	cfg.ApplyDefaults()

	store, err := draft.NewFileStore(t.TempDir()+"/"+draft.DefaultFileName, nil)
	require.NoError(t, err)

	h := &harness{
		chat:    newFakeChat(),
		tracker: &fakeTracker{},
		model: &fakeSummarizer{p: drafter.Proposal{
			Title:       "Checkout fails on staging",
			Description: "h2. Problem\nCheckout is broken.",
			IssueType:   "Bug",
			Priority:    "Needs Priority",
			Labels:      []string{"checkout"},
		}},
		store: store,
		cfg:   cfg,
	}
	h.bot, err = New(cfg, Deps{
		Chat:        h.chat,
		Tracker:     h.tracker,
		Store:       store,
		Summarizers: map[string]Summarizer{cfg.Bot.Provider: h.model},
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.bot.Shutdown(context.Background()) })
	return h
}

// wait blocks until every spawned worker has finished.
func (h *harness) wait() {
	h.bot.wg.Wait()
}
