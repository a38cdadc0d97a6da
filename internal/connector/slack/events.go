package slackconn

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/h1v3-io/ticketbot/internal/connector"
)

// Dispatcher converts Slack payloads into connector events. It is shared by
// the Socket Mode connector and the HTTP Events API endpoint.
type Dispatcher struct {
	handler  connector.Handler
	botID    string
	channels map[string]bool
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. Reactions by botID are ignored; a
// non-empty channel list restricts reactions to those channels.
func NewDispatcher(h connector.Handler, botID string, channels []string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{handler: h, botID: botID, logger: logger}
	if len(channels) > 0 {
		d.channels = make(map[string]bool, len(channels))
		for _, ch := range channels {
			d.channels[ch] = true
		}
	}
	return d
}

// EventsAPI handles an inner Events API event.
func (d *Dispatcher) EventsAPI(ctx context.Context, ev slackevents.EventsAPIEvent) {
	switch inner := ev.InnerEvent.Data.(type) {
	case *slackevents.ReactionAddedEvent:
		d.reaction(ctx, inner)
	default:
		d.logger.Debug("ignoring slack event", "type", ev.InnerEvent.Type)
	}
}

func (d *Dispatcher) reaction(ctx context.Context, ev *slackevents.ReactionAddedEvent) {
	if ev.User == "" || ev.User == d.botID {
		return
	}
	if d.channels != nil && !d.channels[ev.Item.Channel] {
		return
	}
	d.handler.OnReaction(ctx, connector.ReactionEvent{
		UserID:    ev.User,
		Reaction:  ev.Reaction,
		ItemType:  ev.Item.Type,
		ChannelID: ev.Item.Channel,
		MessageTS: ev.Item.Timestamp,
	})
}

// Interaction handles an interactivity payload. The returned value, when
// non-nil, must be sent back as the acknowledgement body.
func (d *Dispatcher) Interaction(ctx context.Context, cb slack.InteractionCallback) any {
	switch cb.Type {
	case slack.InteractionTypeBlockActions:
		for _, a := range cb.ActionCallback.BlockActions {
			d.handler.OnAction(ctx, actionEvent(cb, a))
		}
	case slack.InteractionTypeViewSubmission:
		errs := d.handler.OnSubmission(ctx, submissionEvent(cb))
		if len(errs) > 0 {
			return slack.NewErrorsViewSubmissionResponse(errs)
		}
	default:
		d.logger.Debug("ignoring slack interaction", "type", cb.Type)
	}
	return nil
}

func actionEvent(cb slack.InteractionCallback, a *slack.BlockAction) connector.ActionEvent {
	ev := connector.ActionEvent{
		ActionID:  a.ActionID,
		Value:     a.Value,
		UserID:    cb.User.ID,
		ChannelID: cb.Channel.ID,
		MessageTS: cb.Message.Timestamp,
		TriggerID: cb.TriggerID,
	}
	if ev.ChannelID == "" {
		ev.ChannelID = cb.Container.ChannelID
	}
	if ev.MessageTS == "" {
		ev.MessageTS = cb.Container.MessageTs
	}
	return ev
}

func submissionEvent(cb slack.InteractionCallback) connector.SubmissionEvent {
	ev := connector.SubmissionEvent{
		CallbackID:      cb.View.CallbackID,
		PrivateMetadata: cb.View.PrivateMetadata,
		UserID:          cb.User.ID,
		Values:          make(map[string]string),
	}
	if cb.View.State == nil {
		return ev
	}
	for blockID, actions := range cb.View.State.Values {
		for _, a := range actions {
			v := a.Value
			if v == "" {
				v = a.SelectedOption.Value
			}
			ev.Values[blockID] = v
		}
	}
	return ev
}
