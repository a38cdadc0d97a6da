package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/h1v3-io/ticketbot/internal/jira"
	"github.com/h1v3-io/ticketbot/internal/render"
	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// createWorker creates the issue for a reviewed draft. The draft has
// already been claimed (status creating).
func (b *Bot) createWorker(ctx context.Context, log *slog.Logger, d *protocol.Draft) error {
	if d.HasDM() {
		msg := render.Creating(d)
		if err := b.chat.UpdateMessage(ctx, d.DMChannel, d.DMTS, msg.Text, msg.Blocks); err != nil {
			log.Warn("failed to update draft DM", "error", err)
		}
	}

	created, err := b.submit(ctx, d)
	if err != nil {
		cctx, cancel := detached(ctx)
		defer cancel()
		b.markFailed(d.Key, err)
		b.reportFailure(cctx, log, d, err)
		return err
	}

	b.deliver(ctx, log, created)
	return nil
}

// submit creates the Jira issue and records its key on the draft. On error
// the draft is returned unchanged.
func (b *Bot) submit(ctx context.Context, d *protocol.Draft) (*protocol.Draft, error) {
	issue, err := b.tracker.CreateIssue(ctx, jira.IssueInput{
		Project:     d.Project,
		Summary:     d.Title,
		Description: d.Description,
		IssueType:   d.IssueType,
		Priority:    d.Priority,
		Labels:      d.Labels,
		Epic:        d.Epic,
		SourceLink:  d.Permalink,
	})
	if err != nil {
		return d, fmt.Errorf("create issue: %w", err)
	}
	b.metrics.ObserveIssue(string(d.Mode))

	out := d.Clone()
	out.IssueKey, out.IssueURL = issue.Key, issue.URL
	updated, err := b.store.Update(d.Key, func(d *protocol.Draft) error {
		d.IssueKey, d.IssueURL = issue.Key, issue.URL
		return nil
	})
	if err != nil {
		// The issue exists; losing the record only affects crash recovery.
		b.logger.Warn("failed to record issue key", "key", d.Key, "issue", issue.Key, "error", err)
		return out, nil
	}
	return updated, nil
}

// deliver copies the files, shows the final summary and retires the draft.
func (b *Bot) deliver(ctx context.Context, log *slog.Logger, d *protocol.Draft) {
	var uploaded, failed []string
	if n := countAttachable(d.Files); n > 0 {
		if d.HasDM() {
			msg := render.Uploading(d, n)
			if err := b.chat.UpdateMessage(ctx, d.DMChannel, d.DMTS, msg.Text, msg.Blocks); err != nil {
				log.Warn("failed to update draft DM", "error", err)
			}
		}
		uploaded, failed = b.transferFiles(ctx, log, d.IssueKey, d.Files)
	}

	cctx, cancel := detached(ctx)
	defer cancel()

	msg := render.Created(d, uploaded, failed)
	sent := false
	if d.HasDM() {
		if err := b.chat.UpdateMessage(cctx, d.DMChannel, d.DMTS, msg.Text, msg.Blocks); err != nil {
			log.Warn("failed to update draft DM, sending a new one", "error", err)
		} else {
			sent = true
		}
	}
	if !sent {
		if _, _, err := b.chat.PostMessage(cctx, d.UserID, render.CreatedText(d, uploaded, failed), nil); err != nil {
			log.Error("failed to send created DM", "error", err)
		}
	}

	b.retire(d.Key)
	log.Info("ticket created", "issue", d.IssueKey, "uploaded", len(uploaded), "failed", len(failed))
}

// retire marks a draft created and removes it unless created drafts are kept.
func (b *Bot) retire(key string) {
	if _, err := b.store.Update(key, func(d *protocol.Draft) error {
		d.Status = protocol.DraftCreated
		return nil
	}); err != nil {
		b.logger.Warn("failed to mark draft created", "key", key, "error", err)
	}
	if b.cfg.Bot.KeepCreated {
		return
	}
	if err := b.store.Delete(key); err != nil {
		b.logger.Warn("failed to delete created draft", "key", key, "error", err)
	}
}

// markFailed records a failure so the draft can be retried from its DM.
func (b *Bot) markFailed(key string, cause error) {
	_, err := b.store.Update(key, func(d *protocol.Draft) error {
		d.Status = protocol.DraftFailed
		d.Error = render.ErrorText(cause)
		return nil
	})
	if err != nil {
		b.logger.Warn("failed to mark draft failed", "key", key, "error", err)
	}
}

// reportFailure shows a failure with a retry button on the draft DM, or in a
// new DM when there is none.
func (b *Bot) reportFailure(ctx context.Context, log *slog.Logger, d *protocol.Draft, cause error) {
	msg := render.Failed(cause, d.Key)
	if d.HasDM() {
		if err := b.chat.UpdateMessage(ctx, d.DMChannel, d.DMTS, msg.Text, msg.Blocks); err == nil {
			return
		}
	}
	if _, _, err := b.chat.PostMessage(ctx, d.UserID, msg.Text, msg.Blocks); err != nil {
		log.Error("failed to send failure DM", "error", err)
	}
}
