// Package slackconn connects the bot to Slack: Socket Mode ingress, the
// event dispatcher shared with the HTTP endpoint, and a Web API client.
package slackconn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/h1v3-io/ticketbot/internal/connector"
)

// Connector receives Slack events over Socket Mode.
type Connector struct {
	socket     *socketmode.Client
	dispatcher *Dispatcher
	logger     *slog.Logger
	cancel     context.CancelFunc
}

// NewSocket creates a Socket Mode connector. api must carry an app-level
// token (slack.OptionAppLevelToken).
func NewSocket(api *slack.Client, dispatcher *Dispatcher, logger *slog.Logger) (*Connector, error) {
	if api == nil {
		return nil, fmt.Errorf("slack: socket mode: api client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		socket:     socketmode.New(api),
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

func (c *Connector) Name() string { return "slack-socket" }

// Start begins listening for events via Socket Mode. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.handleEvents(ctx)

	c.logger.Info("slack connector started (socket mode)")
	return c.socket.RunContext(ctx)
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.socket.Events:
			switch event.Type {
			case socketmode.EventTypeConnecting:
				c.logger.Debug("slack socket connecting")
			case socketmode.EventTypeConnected:
				c.logger.Info("slack socket connected")
			case socketmode.EventTypeConnectionError:
				c.logger.Warn("slack socket connection error", "data", event.Data)
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(ctx, event)
			case socketmode.EventTypeInteractive:
				c.handleInteractive(ctx, event)
			}
		}
	}
}

func (c *Connector) handleEventsAPI(ctx context.Context, event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	c.socket.Ack(*event.Request)
	c.dispatcher.EventsAPI(ctx, eventsAPIEvent)
}

func (c *Connector) handleInteractive(ctx context.Context, event socketmode.Event) {
	cb, ok := event.Data.(slack.InteractionCallback)
	if !ok {
		return
	}
	if cb.Type != slack.InteractionTypeViewSubmission {
		c.socket.Ack(*event.Request)
		c.dispatcher.Interaction(ctx, cb)
		return
	}
	// View submissions are acknowledged with the validation result.
	if resp := c.dispatcher.Interaction(ctx, cb); resp != nil {
		c.socket.Ack(*event.Request, resp)
		return
	}
	c.socket.Ack(*event.Request)
}

var _ connector.Connector = (*Connector)(nil)
