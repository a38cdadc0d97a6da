package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/h1v3-io/ticketbot/internal/config"
	"github.com/h1v3-io/ticketbot/internal/connector"
	"github.com/h1v3-io/ticketbot/internal/draft"
	"github.com/h1v3-io/ticketbot/internal/jira"
	"github.com/h1v3-io/ticketbot/internal/render"
	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

var (
	errAlreadyCreating = errors.New("bot: draft is already being created")
	errAlreadyCreated  = errors.New("bot: draft was already created")
)

// OnReaction starts a review or auto worker for a trigger reaction.
func (b *Bot) OnReaction(ctx context.Context, ev connector.ReactionEvent) {
	if ev.ItemType != "" && ev.ItemType != "message" {
		return
	}
	trig, ok := b.cfg.Trigger(ev.Reaction)
	if !ok {
		return
	}
	b.metrics.ObserveReaction(ev.Reaction, trig.Mode)

	key := protocol.DraftKey(ev.ChannelID, ev.MessageTS)
	if d, err := b.store.Get(key); err == nil && d.Status == protocol.DraftCreating {
		b.logger.Info("ignoring reaction, ticket is being created", "key", key, "user", ev.UserID)
		return
	}
	if !b.claimMessage(key) {
		b.logger.Info("ignoring reaction, message already in progress", "key", key, "user", ev.UserID)
		return
	}

	b.logger.Info("reaction received", "reaction", ev.Reaction, "mode", trig.Mode, "user", ev.UserID, "key", key)

	kind, work := "review", b.reviewWorker
	if trig.Mode == config.ModeAuto {
		kind, work = "auto", b.autoWorker
	}
	err := b.spawn(kind, key, func(ctx context.Context, log *slog.Logger) error {
		defer b.releaseMessage(key)
		return work(ctx, log, trig, ev)
	})
	if err != nil {
		b.releaseMessage(key)
		b.logger.Warn("reaction dropped", "key", key, "error", err)
	}
}

// OnAction handles the buttons on draft and failure messages.
func (b *Bot) OnAction(ctx context.Context, ev connector.ActionEvent) {
	switch ev.ActionID {
	case render.ActionEdit, render.ActionRetry:
		b.openReview(ctx, ev)
	case render.ActionCancel:
		b.cancelDraft(ctx, ev)
	default:
		b.logger.Debug("ignoring action", "action", ev.ActionID)
	}
}

func (b *Bot) openReview(ctx context.Context, ev connector.ActionEvent) {
	key := ev.Value
	b.logger.Info("review requested", "key", key, "action", ev.ActionID, "user", ev.UserID)

	d, err := b.store.Get(key)
	if err != nil || d.Status == protocol.DraftCreated {
		if err != nil && !errors.Is(err, draft.ErrNotFound) {
			b.logger.Error("failed to load draft", "key", key, "error", err)
		}
		b.ephemeral(ctx, ev, render.NotFoundEphemeral)
		return
	}
	if d.Status == protocol.DraftCreating {
		b.ephemeral(ctx, ev, render.AlreadyCreating)
		return
	}

	if err := b.chat.OpenModal(ctx, ev.TriggerID, render.ReviewModal(d, b.modalOptions())); err != nil {
		b.logger.Error("failed to open review modal", "key", key, "error", err)
		return
	}

	// Retry buttons live on the failure message, which may not be the
	// original DM. Point the draft at the message that was clicked.
	if ev.ChannelID != "" && ev.MessageTS != "" && (d.DMChannel != ev.ChannelID || d.DMTS != ev.MessageTS) {
		_, err := b.store.Update(key, func(d *protocol.Draft) error {
			d.DMChannel, d.DMTS = ev.ChannelID, ev.MessageTS
			return nil
		})
		if err != nil {
			b.logger.Warn("failed to record draft message", "key", key, "error", err)
		}
	}
}

func (b *Bot) cancelDraft(ctx context.Context, ev connector.ActionEvent) {
	key := ev.Value
	title := ""
	d, err := b.store.Get(key)
	if err == nil {
		if d.Status == protocol.DraftCreating {
			b.ephemeral(ctx, ev, render.AlreadyCreating)
			return
		}
		title = d.Title
		if err := b.store.Delete(key); err != nil {
			b.logger.Error("failed to delete draft", "key", key, "error", err)
		}
	}
	b.logger.Info("draft cancelled", "key", key, "user", ev.UserID, "found", err == nil)

	msg := render.Cancelled(title)
	if err := b.chat.UpdateMessage(ctx, ev.ChannelID, ev.MessageTS, msg.Text, msg.Blocks); err != nil {
		b.logger.Warn("failed to update cancelled draft message", "key", key, "error", err)
	}
}

func (b *Bot) ephemeral(ctx context.Context, ev connector.ActionEvent, text string) {
	if err := b.chat.PostEphemeral(ctx, ev.ChannelID, ev.UserID, text); err != nil {
		b.logger.Warn("failed to post ephemeral message", "user", ev.UserID, "error", err)
	}
}

// OnSubmission validates the review modal, claims the draft and starts the
// create worker.
func (b *Bot) OnSubmission(ctx context.Context, ev connector.SubmissionEvent) map[string]string {
	key, ok := render.KeyFromCallback(ev.CallbackID)
	if !ok {
		return nil
	}
	b.logger.Info("review submitted", "key", key, "user", ev.UserID)

	edit := reviewEdit{
		Title:       strings.Join(strings.Fields(ev.Values[render.BlockTitle]), " "),
		Project:     strings.ToUpper(strings.TrimSpace(ev.Values[render.BlockProject])),
		Epic:        strings.ToUpper(strings.TrimSpace(ev.Values[render.BlockEpic])),
		IssueType:   strings.TrimSpace(ev.Values[render.BlockType]),
		Priority:    strings.TrimSpace(ev.Values[render.BlockPriority]),
		Description: ev.Values[render.BlockDescription],
	}
	if errs := edit.validate(); len(errs) > 0 {
		return errs
	}

	d, err := b.store.Update(key, func(d *protocol.Draft) error {
		switch d.Status {
		case protocol.DraftCreating:
			return errAlreadyCreating
		case protocol.DraftCreated:
			return errAlreadyCreated
		}
		edit.apply(d)
		d.Status = protocol.DraftCreating
		d.Error = ""
		return nil
	})
	switch {
	case errors.Is(err, draft.ErrNotFound), errors.Is(err, errAlreadyCreated):
		b.logger.Warn("submitted draft not found", "key", key)
		b.notify(ev.UserID, render.SubmitNotFound)
		return nil
	case errors.Is(err, errAlreadyCreating):
		b.logger.Info("duplicate submission ignored", "key", key)
		return nil
	case err != nil:
		b.logger.Error("failed to claim draft", "key", key, "error", err)
		return map[string]string{render.BlockTitle: "Could not save the draft, please try again."}
	}

	err = b.spawn("create", key, func(ctx context.Context, log *slog.Logger) error {
		return b.createWorker(ctx, log, d)
	})
	if err != nil {
		b.markFailed(d.Key, err)
		return map[string]string{render.BlockTitle: "The bot is shutting down, please try again shortly."}
	}
	return nil
}

// notify sends a DM from a background goroutine so interaction
// acknowledgements are not delayed.
func (b *Bot) notify(userID, text string) {
	err := b.spawn("notify", userID, func(ctx context.Context, log *slog.Logger) error {
		_, _, err := b.chat.PostMessage(ctx, userID, text, nil)
		return err
	})
	if err != nil {
		b.logger.Warn("notification dropped", "user", userID, "error", err)
	}
}

// reviewEdit holds the values of a submitted review modal.
type reviewEdit struct {
	Title       string
	Project     string
	Epic        string
	IssueType   string
	Priority    string
	Description string
}

func (e reviewEdit) validate() map[string]string {
	errs := make(map[string]string)
	if e.Title == "" {
		errs[render.BlockTitle] = "Title is required"
	}
	if !jira.ValidProject(e.Project) {
		errs[render.BlockProject] = "Enter a project key such as GOD"
	}
	if e.Epic != "" && !jira.ValidKey(e.Epic) {
		errs[render.BlockEpic] = "Enter an issue key such as GOD-123, or leave empty"
	}
	if e.IssueType == "" {
		errs[render.BlockType] = "Select a type"
	}
	return errs
}

func (e reviewEdit) apply(d *protocol.Draft) {
	d.Title = render.Truncate(e.Title, 255)
	d.Project = e.Project
	d.Epic = e.Epic
	d.IssueType = e.IssueType
	if e.Priority != "" {
		d.Priority = e.Priority
	}
	d.Description = e.Description
}
