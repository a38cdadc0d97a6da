package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/h1v3-io/ticketbot/internal/config"
	"github.com/h1v3-io/ticketbot/internal/connector"
	"github.com/h1v3-io/ticketbot/internal/drafter"
	"github.com/h1v3-io/ticketbot/internal/render"
	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// source is the conversation a draft is generated from.
type source struct {
	channelName string
	thread      *protocol.Thread
	permalink   string
}

// gather fetches everything about the reacted message the summary needs.
func (b *Bot) gather(ctx context.Context, log *slog.Logger, ev connector.ReactionEvent) (*source, error) {
	name, err := b.chat.ChannelName(ctx, ev.ChannelID)
	if err != nil {
		return nil, err
	}
	thread, err := b.chat.FetchThread(ctx, ev.ChannelID, ev.MessageTS)
	if err != nil {
		return nil, err
	}
	link, err := b.chat.Permalink(ctx, ev.ChannelID, ev.MessageTS)
	if err != nil {
		return nil, err
	}
	log.Info("conversation fetched", "channel", name, "messages", thread.MessageCount,
		"files", len(thread.Files), "chars", len(thread.Conversation))
	return &source{channelName: name, thread: thread, permalink: link}, nil
}

// propose asks the trigger's model for a ticket.
func (b *Bot) propose(ctx context.Context, trig config.TriggerConfig, mode protocol.Mode, src *source) (*drafter.Proposal, error) {
	in := drafter.Input{
		Mode:         mode,
		ChannelName:  src.channelName,
		Conversation: src.thread.Conversation,
	}
	if b.links != nil && len(src.thread.Links) > 0 {
		for _, p := range b.links.Fetch(ctx, src.thread.Links) {
			in.Excerpts = append(in.Excerpts, drafter.Excerpt{URL: p.URL, Title: p.Title, Text: p.Text})
		}
	}

	model, name := b.summarizer(trig)
	p, usage, err := model.Draft(ctx, in)
	b.metrics.ObserveTokens(name, usage.PromptTokens, usage.CompletionTokens)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// newDraft builds the stored draft for a proposal. Trigger overrides win
// over the model's choices and the Jira defaults.
func (b *Bot) newDraft(trig config.TriggerConfig, mode protocol.Mode, ev connector.ReactionEvent, src *source, p *drafter.Proposal) *protocol.Draft {
	d := &protocol.Draft{
		Key:         protocol.DraftKey(ev.ChannelID, ev.MessageTS),
		Mode:        mode,
		Status:      protocol.DraftPending,
		ChannelID:   ev.ChannelID,
		ChannelName: src.channelName,
		MessageTS:   ev.MessageTS,
		UserID:      ev.UserID,
		Permalink:   src.permalink,
		Title:       p.Title,
		Description: p.Description,
		IssueType:   firstNonEmpty(trig.IssueType, p.IssueType, "Story"),
		Priority:    firstNonEmpty(trig.Priority, p.Priority, b.cfg.Bot.DefaultPriority),
		Labels:      p.Labels,
		Project:     firstNonEmpty(trig.Project, b.cfg.Jira.DefaultProject),
		Epic:        firstNonEmpty(trig.Epic, b.cfg.Jira.DefaultEpic),
		Files:       src.thread.Files,
	}
	return d
}

// reviewWorker drafts a ticket and sends it to the reacting user for review.
func (b *Bot) reviewWorker(ctx context.Context, log *slog.Logger, trig config.TriggerConfig, ev connector.ReactionEvent) (err error) {
	if err := b.chat.AddReaction(ctx, ev.ChannelID, ev.MessageTS, ReactionWorking); err != nil {
		log.Warn("failed to add working reaction", "error", err)
	}

	stored := false
	key := protocol.DraftKey(ev.ChannelID, ev.MessageTS)
	defer func() {
		if err == nil {
			return
		}
		cctx, cancel := detached(ctx)
		defer cancel()
		b.swapReaction(cctx, ev.ChannelID, ev.MessageTS, ReactionFailed)
		if _, _, perr := b.chat.PostMessage(cctx, ev.UserID, render.GenerateError(err), nil); perr != nil {
			log.Error("failed to send error DM", "error", perr)
		}
		if stored {
			b.markFailed(key, err)
		}
	}()

	src, err := b.gather(ctx, log, ev)
	if err != nil {
		return err
	}
	p, err := b.propose(ctx, trig, protocol.ModeReview, src)
	if err != nil {
		return err
	}

	d := b.newDraft(trig, protocol.ModeReview, ev, src, p)
	if err := b.store.Put(d); err != nil {
		return fmt.Errorf("store draft: %w", err)
	}
	stored = true

	msg := render.Draft(d)
	dmChannel, dmTS, err := b.chat.PostMessage(ctx, ev.UserID, msg.Text, msg.Blocks)
	if err != nil {
		return fmt.Errorf("send draft: %w", err)
	}
	if _, err := b.store.Update(key, func(d *protocol.Draft) error {
		d.DMChannel, d.DMTS = dmChannel, dmTS
		return nil
	}); err != nil {
		// The draft and its buttons still work; only sweeper DM updates
		// depend on this.
		log.Warn("failed to record draft DM", "error", err)
	}

	b.swapReaction(ctx, ev.ChannelID, ev.MessageTS, ReactionDone)
	log.Info("draft sent for review", "title", render.Truncate(d.Title, 50))
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
