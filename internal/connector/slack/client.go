package slackconn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/slack-go/slack"

	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// ThreadLimit is the number of messages fetched for a conversation.
const ThreadLimit = 50

// Client wraps the Slack Web API calls the bot makes.
type Client struct {
	api    *slack.Client
	logger *slog.Logger
}

// NewClient wraps an API client.
func NewClient(api *slack.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}
}

// NewAPI builds the underlying slack-go client. apiURL is only set in tests.
func NewAPI(botToken, appToken, apiURL string) *slack.Client {
	var opts []slack.Option
	if appToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(appToken))
	}
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return slack.New(botToken, opts...)
}

// BotUserID returns the bot's own user ID.
func (c *Client) BotUserID(ctx context.Context) (string, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack: auth test: %w", err)
	}
	c.logger.Info("slack bot authorized", "user", resp.User, "team", resp.Team)
	return resp.UserID, nil
}

// ChannelName returns the name of a channel without the leading '#'.
func (c *Client) ChannelName(ctx context.Context, channelID string) (string, error) {
	ch, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		return "", fmt.Errorf("slack: channel info %s: %w", channelID, err)
	}
	return ch.Name, nil
}

// linkPattern matches Slack-encoded URLs: <https://x> and <https://x|label>.
var linkPattern = regexp.MustCompile(`<(https?://[^|>\s]+)(?:\|[^>]*)?>`)

// FetchThread returns the message and its replies formatted as
// "@Real Name: text" lines, along with file metadata and linked URLs.
func (c *Client) FetchThread(ctx context.Context, channelID, ts string) (*protocol.Thread, error) {
	msgs, _, _, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: ts,
		Limit:     ThreadLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("slack: conversation replies: %w", err)
	}

	names := make(map[string]string)
	seenLinks := make(map[string]bool)
	thread := &protocol.Thread{MessageCount: len(msgs)}
	lines := make([]string, 0, len(msgs))

	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("@%s: %s", c.authorName(ctx, m, names), m.Text))

		for _, f := range m.Files {
			thread.Files = append(thread.Files, protocol.FileRef{
				Name:     nonEmpty(f.Name, "unknown"),
				URL:      f.URLPrivate,
				Mode:     f.Mode,
				MimeType: f.Mimetype,
				Size:     f.Size,
			})
		}
		for _, match := range linkPattern.FindAllStringSubmatch(m.Text, -1) {
			if !seenLinks[match[1]] {
				seenLinks[match[1]] = true
				thread.Links = append(thread.Links, match[1])
			}
		}
	}
	thread.Conversation = strings.Join(lines, "\n")
	return thread, nil
}

// authorName resolves a message author's real name, caching per fetch.
// Lookups that fail resolve to "Unknown".
func (c *Client) authorName(ctx context.Context, m slack.Message, cache map[string]string) string {
	if m.User == "" {
		return nonEmpty(m.Username, "Unknown")
	}
	if name, ok := cache[m.User]; ok {
		return name
	}
	name := "Unknown"
	u, err := c.api.GetUserInfoContext(ctx, m.User)
	if err != nil {
		c.logger.Debug("user lookup failed", "user", m.User, "error", err)
	} else if u.RealName != "" {
		name = u.RealName
	} else if u.Profile.RealName != "" {
		name = u.Profile.RealName
	}
	cache[m.User] = name
	return name
}

// Permalink returns the web link to a message.
func (c *Client) Permalink(ctx context.Context, channelID, ts string) (string, error) {
	link, err := c.api.GetPermalinkContext(ctx, &slack.PermalinkParameters{Channel: channelID, Ts: ts})
	if err != nil {
		return "", fmt.Errorf("slack: permalink: %w", err)
	}
	return link, nil
}

// PostMessage posts blocks with fallback text. Posting to a user ID opens
// the DM with that user; the returned channel is the DM channel.
func (c *Client) PostMessage(ctx context.Context, channel, text string, blocks []slack.Block) (string, string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	ch, ts, err := c.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return "", "", fmt.Errorf("slack: post message: %w", err)
	}
	return ch, ts, nil
}

// UpdateMessage replaces the text and blocks of a message.
func (c *Client) UpdateMessage(ctx context.Context, channel, ts, text string, blocks []slack.Block) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	if _, _, _, err := c.api.UpdateMessageContext(ctx, channel, ts, opts...); err != nil {
		return fmt.Errorf("slack: update message: %w", err)
	}
	return nil
}

// PostEphemeral shows a message only to one user.
func (c *Client) PostEphemeral(ctx context.Context, channel, user, text string) error {
	if _, err := c.api.PostEphemeralContext(ctx, channel, user, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack: post ephemeral: %w", err)
	}
	return nil
}

// AddReaction adds an emoji reaction to a message.
func (c *Client) AddReaction(ctx context.Context, channel, ts, name string) error {
	if err := c.api.AddReactionContext(ctx, name, slack.NewRefToMessage(channel, ts)); err != nil {
		return fmt.Errorf("slack: add reaction %s: %w", name, err)
	}
	return nil
}

// RemoveReaction removes the bot's reaction. Failures are logged only.
func (c *Client) RemoveReaction(ctx context.Context, channel, ts, name string) {
	if err := c.api.RemoveReactionContext(ctx, name, slack.NewRefToMessage(channel, ts)); err != nil {
		c.logger.Debug("remove reaction failed", "reaction", name, "error", err)
	}
}

// OpenModal opens a modal for the interaction identified by triggerID.
func (c *Client) OpenModal(ctx context.Context, triggerID string, view slack.ModalViewRequest) error {
	if _, err := c.api.OpenViewContext(ctx, triggerID, view); err != nil {
		return fmt.Errorf("slack: open view: %w", err)
	}
	return nil
}

// DownloadFile writes a private file to w using the bot token.
func (c *Client) DownloadFile(ctx context.Context, url string, w io.Writer) error {
	if err := c.api.GetFileContext(ctx, url, w); err != nil {
		return fmt.Errorf("slack: download file: %w", err)
	}
	return nil
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
