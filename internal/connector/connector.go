package connector

import "context"

// Connector is an ingress for chat platform events (Socket Mode, HTTP
// Events API).
type Connector interface {
	// Name returns the connector type (e.g. "slack-socket").
	Name() string
	// Start begins receiving events. Blocks until the context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
}

// ReactionEvent is an emoji reaction added to a message.
type ReactionEvent struct {
	UserID    string // who reacted
	Reaction  string // emoji name without colons
	ItemType  string // "message", "file", ...
	ChannelID string
	MessageTS string
}

// ActionEvent is a button press in a message.
type ActionEvent struct {
	ActionID  string
	Value     string
	UserID    string
	ChannelID string
	MessageTS string
	TriggerID string
}

// SubmissionEvent is a submitted modal. Values are keyed by block ID; each
// block holds one input, so the action ID is dropped.
type SubmissionEvent struct {
	CallbackID      string
	PrivateMetadata string
	UserID          string
	Values          map[string]string
}

// Handler receives chat events. Implementations must return quickly and do
// slow work in the background: the platform expects an acknowledgement
// within a few seconds.
type Handler interface {
	OnReaction(ctx context.Context, ev ReactionEvent)
	OnAction(ctx context.Context, ev ActionEvent)
	// OnSubmission returns per-block error messages to show in the modal.
	// An empty map closes the modal.
	OnSubmission(ctx context.Context, ev SubmissionEvent) map[string]string
}
