package bot

import (
	"context"
	"errors"
	"time"

	"github.com/h1v3-io/ticketbot/internal/draft"
	"github.com/h1v3-io/ticketbot/internal/render"
	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

var errInterrupted = errors.New("ticket creation was interrupted by a restart")

// Recover settles drafts left in the creating state by a previous process.
// Drafts whose issue was already created are retired; the rest are marked
// failed and their DM offers a retry.
func (b *Bot) Recover(ctx context.Context) (int, error) {
	stuck, err := b.store.List(draft.Filter{Status: draft.StatusPtr(protocol.DraftCreating)})
	if err != nil {
		return 0, err
	}
	for _, d := range stuck {
		if d.IssueKey != "" {
			b.logger.Info("recovered created draft", "key", d.Key, "issue", d.IssueKey)
			b.retire(d.Key)
			continue
		}
		b.logger.Warn("recovered interrupted draft", "key", d.Key)
		b.markFailed(d.Key, errInterrupted)
		if d.HasDM() {
			msg := render.Failed(errInterrupted, d.Key)
			if err := b.chat.UpdateMessage(ctx, d.DMChannel, d.DMTS, msg.Text, msg.Blocks); err != nil {
				b.logger.Warn("failed to update interrupted draft DM", "key", d.Key, "error", err)
			}
		}
	}
	return len(stuck), nil
}

// Sweep deletes drafts that have not changed for longer than the draft TTL.
// Drafts being created are left alone. The DM of an unused draft is
// replaced with an expiry notice.
func (b *Bot) Sweep(ctx context.Context, now time.Time) (int, error) {
	ttl := b.cfg.Bot.DraftTTL.Std()
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-ttl)
	old, err := b.store.List(draft.Filter{UpdatedBefore: cutoff})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, d := range old {
		if d.Status == protocol.DraftCreating {
			continue
		}
		// A submission may claim the draft after List; re-check under the store lock.
		var expired *protocol.Draft
		removed, err := b.store.DeleteIf(d.Key, func(cur *protocol.Draft) bool {
			if cur.Status == protocol.DraftCreating || !cur.UpdatedAt.Before(cutoff) {
				return false
			}
			expired = cur
			return true
		})
		if err != nil {
			b.logger.Warn("failed to delete expired draft", "key", d.Key, "error", err)
			continue
		}
		if !removed {
			continue
		}
		n++
		if expired.Status != protocol.DraftCreated && expired.HasDM() {
			msg := render.Expired(expired)
			if err := b.chat.UpdateMessage(ctx, expired.DMChannel, expired.DMTS, msg.Text, msg.Blocks); err != nil {
				b.logger.Debug("failed to update expired draft DM", "key", d.Key, "error", err)
			}
		}
	}
	b.metrics.ObserveExpired(n)
	if n > 0 {
		b.logger.Info("expired drafts removed", "count", n)
	}
	return n, nil
}
