package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/h1v3-io/ticketbot/internal/config"
	"github.com/h1v3-io/ticketbot/internal/connector"
	"github.com/h1v3-io/ticketbot/internal/render"
	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// autoWorker creates an issue straight away, reporting each stage in a DM
// that is edited in place.
func (b *Bot) autoWorker(ctx context.Context, log *slog.Logger, trig config.TriggerConfig, ev connector.ReactionEvent) (err error) {
	if err := b.chat.AddReaction(ctx, ev.ChannelID, ev.MessageTS, ReactionWorking); err != nil {
		log.Warn("failed to add working reaction", "error", err)
	}

	var dmChannel, dmTS string
	var d *protocol.Draft
	defer func() {
		if err == nil {
			return
		}
		cctx, cancel := detached(ctx)
		defer cancel()
		b.swapReaction(cctx, ev.ChannelID, ev.MessageTS, ReactionFailed)

		retryKey := ""
		if d != nil && d.IssueKey == "" {
			retryKey = d.Key
			b.markFailed(d.Key, err)
		}
		msg := render.Failed(err, retryKey)
		if dmTS != "" {
			if uerr := b.chat.UpdateMessage(cctx, dmChannel, dmTS, msg.Text, msg.Blocks); uerr == nil {
				return
			}
		}
		if _, _, perr := b.chat.PostMessage(cctx, ev.UserID, render.CreateError(err), nil); perr != nil {
			log.Error("failed to send error DM", "error", perr)
		}
	}()

	msg := render.AutoAnalyzing()
	dmChannel, dmTS, err = b.chat.PostMessage(ctx, ev.UserID, msg.Text, msg.Blocks)
	if err != nil {
		return fmt.Errorf("send progress DM: %w", err)
	}
	stage := func(m render.Message) {
		if err := b.chat.UpdateMessage(ctx, dmChannel, dmTS, m.Text, m.Blocks); err != nil {
			log.Warn("failed to update progress DM", "error", err)
		}
	}

	src, err := b.gather(ctx, log, ev)
	if err != nil {
		return err
	}

	stage(render.AutoGenerating())
	p, err := b.propose(ctx, trig, protocol.ModeAuto, src)
	if err != nil {
		return err
	}

	d = b.newDraft(trig, protocol.ModeAuto, ev, src, p)
	d.Status = protocol.DraftCreating
	d.DMChannel, d.DMTS = dmChannel, dmTS
	if err := b.store.Put(d); err != nil {
		d = nil
		return fmt.Errorf("store draft: %w", err)
	}

	stage(render.AutoSubmitting(d.Title))
	if d, err = b.submit(ctx, d); err != nil {
		return err
	}

	b.deliver(ctx, log, d)
	b.swapReaction(ctx, ev.ChannelID, ev.MessageTS, ReactionDone)
	return nil
}
