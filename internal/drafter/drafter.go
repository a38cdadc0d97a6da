// Package drafter turns a chat conversation into a ticket proposal using an
// LLM provider.
package drafter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/h1v3-io/ticketbot/internal/provider"
	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// MaxTitleRunes is the longest summary Jira accepts.
const MaxTitleRunes = 255

var (
	// ErrNoJSON is returned when the model answer contains no JSON object.
	ErrNoJSON = errors.New("drafter: no JSON object in model response")
	// ErrNoTitle is returned when the model answer has an empty title.
	ErrNoTitle = errors.New("drafter: model response has no title")
)

// Options tune prompt construction and normalization.
type Options struct {
	Temperature     float64
	MaxTokens       int
	DefaultPriority string
	IssueTypes      []string
}

// Excerpt is readable text from a page linked in the conversation.
type Excerpt struct {
	URL   string
	Title string
	Text  string
}

// Input is everything the model sees for one draft.
type Input struct {
	Mode         protocol.Mode
	ChannelName  string
	Conversation string
	Excerpts     []Excerpt
}

// Proposal is the normalized model output.
type Proposal struct {
	Title       string
	Description string
	IssueType   string
	Priority    string
	Labels      []string
}

// Drafter calls a provider and normalizes its answer.
type Drafter struct {
	provider provider.Provider
	opts     Options
	logger   *slog.Logger
}

// New creates a Drafter. Zero options get the stock values.
func New(p provider.Provider, opts Options, logger *slog.Logger) *Drafter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.3
	}
	if opts.DefaultPriority == "" {
		opts.DefaultPriority = "Needs Priority"
	}
	if len(opts.IssueTypes) == 0 {
		opts.IssueTypes = []string{"Story", "Bug", "Task"}
	}
	return &Drafter{provider: p, opts: opts, logger: logger}
}

type rawProposal struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	IssueType   string     `json:"issue_type"`
	Priority    string     `json:"priority"`
	Labels      stringList `json:"labels"`
}

// Draft asks the model for a ticket proposal for the given conversation.
func (d *Drafter) Draft(ctx context.Context, in Input) (*Proposal, protocol.Usage, error) {
	req := protocol.ChatRequest{
		Messages: []protocol.ChatMessage{
			{Role: "system", Content: d.systemPrompt(in.Mode)},
			{Role: "user", Content: userContent(in)},
		},
		Temperature: d.opts.Temperature,
		MaxTokens:   d.opts.MaxTokens,
		JSONMode:    true,
	}

	resp, err := d.provider.Chat(ctx, req)
	if err != nil {
		return nil, protocol.Usage{}, fmt.Errorf("drafter: %s: %w", d.provider.Name(), err)
	}

	raw := extractJSON(resp.Content)
	if raw == "" {
		return nil, resp.Usage, ErrNoJSON
	}
	var rp rawProposal
	if err := json.Unmarshal([]byte(raw), &rp); err != nil {
		return nil, resp.Usage, fmt.Errorf("drafter: decode proposal: %w", err)
	}

	p, err := d.normalize(in.Mode, rp)
	if err != nil {
		return nil, resp.Usage, err
	}
	d.logger.Info("draft generated",
		"provider", d.provider.Name(), "mode", in.Mode,
		"title", truncateRunes(p.Title, 50), "tokens", resp.Usage.TotalTokens())
	return p, resp.Usage, nil
}

func (d *Drafter) normalize(mode protocol.Mode, rp rawProposal) (*Proposal, error) {
	title := strings.Join(strings.Fields(rp.Title), " ")
	if title == "" {
		return nil, ErrNoTitle
	}
	p := &Proposal{
		Title:       truncateRunes(title, MaxTitleRunes),
		Description: strings.TrimSpace(rp.Description),
		Priority:    d.opts.DefaultPriority,
	}
	if mode == protocol.ModeAuto {
		return p, nil
	}
	p.IssueType = d.issueType(rp.IssueType)
	p.Labels = normalizeLabels(rp.Labels)
	return p, nil
}

// issueType maps the model's choice onto a configured type, case-insensitively.
// Unknown values fall back to Story, or the first configured type.
func (d *Drafter) issueType(v string) string {
	v = strings.TrimSpace(v)
	fallback := d.opts.IssueTypes[0]
	for _, t := range d.opts.IssueTypes {
		if strings.EqualFold(t, v) {
			return t
		}
		if t == "Story" {
			fallback = t
		}
	}
	return fallback
}

// normalizeLabels trims, replaces whitespace with dashes (Jira labels cannot
// contain spaces) and drops duplicates, keeping first occurrence order.
func normalizeLabels(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, l := range in {
		l = strings.Join(strings.Fields(l), "-")
		if l == "" || seen[strings.ToLower(l)] {
			continue
		}
		seen[strings.ToLower(l)] = true
		out = append(out, l)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
