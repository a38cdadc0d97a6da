// Package render builds the Slack Block Kit messages and modal the bot
// sends while a ticket moves from draft to Jira issue.
package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// Action IDs of the buttons on draft and failure messages. The button value
// is always the draft key.
const (
	ActionEdit   = "edit_ticket"
	ActionCancel = "cancel_ticket"
	ActionRetry  = "retry_ticket"
)

// ErrorChars is how much of an error message is shown to users.
const ErrorChars = 200

// Message is a rendered chat message: fallback text plus blocks.
type Message struct {
	Text   string
	Blocks []slack.Block
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func section(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(mrkdwn(text), nil, nil)
}

func fields(pairs ...string) *slack.SectionBlock {
	var objs []*slack.TextBlockObject
	for i := 0; i+1 < len(pairs); i += 2 {
		objs = append(objs, mrkdwn(fmt.Sprintf("*%s:* %s", pairs[i], pairs[i+1])))
	}
	return slack.NewSectionBlock(nil, objs, nil)
}

func contextLine(text string) *slack.ContextBlock {
	return slack.NewContextBlock("", mrkdwn(text))
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ErrorText shortens err for display.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	return Truncate(err.Error(), ErrorChars)
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// previewChars bounds the description excerpt shown in the draft DM.
const previewChars = 500

// Draft is the DM sent when a review-mode draft is ready.
func Draft(d *protocol.Draft) Message {
	blocks := []slack.Block{
		section(fmt.Sprintf("*🎫 New Ticket Draft*\n\n*%s*", d.Title)),
		fields("Type", d.IssueType, "Priority", d.Priority, "Files", fmt.Sprint(len(d.Files))),
	}
	if preview := strings.TrimSpace(d.Description); preview != "" {
		if utf8.RuneCountInString(preview) > previewChars {
			preview = Truncate(preview, previewChars) + "…"
		}
		blocks = append(blocks, contextLine(JiraToMrkdwn(preview)))
	}
	blocks = append(blocks, slack.NewActionBlock("",
		slack.NewButtonBlockElement(ActionEdit, d.Key, plain("✅ Review & Create")).WithStyle(slack.StylePrimary),
		slack.NewButtonBlockElement(ActionCancel, d.Key, plain("❌ Cancel")).WithStyle(slack.StyleDanger),
	))
	return Message{
		Text:   "New ticket draft: " + d.Title,
		Blocks: blocks,
	}
}

// Creating replaces the draft DM once the review modal was submitted.
func Creating(d *protocol.Draft) Message {
	return Message{
		Text: "Creating ticket: " + d.Title,
		Blocks: []slack.Block{
			section(fmt.Sprintf("*⏳ Creating Ticket...*\n\n*%s*", d.Title)),
			fields("Type", d.IssueType, "Priority", d.Priority),
			contextLine("Please wait..."),
		},
	}
}

// Uploading is shown while files are copied to a freshly created issue.
func Uploading(d *protocol.Draft, n int) Message {
	return Message{
		Text: fmt.Sprintf("Uploading files to %s...", d.IssueKey),
		Blocks: []slack.Block{
			section(fmt.Sprintf("*✅ %s Created!*\n\n*%s*", d.IssueKey, d.Title)),
			contextLine(fmt.Sprintf("📎 Uploading %d file(s)...", n)),
		},
	}
}

// Created is the final summary of a created issue.
func Created(d *protocol.Draft, uploaded, failed []string) Message {
	info := ""
	if len(uploaded) > 0 {
		info = fmt.Sprintf("📎 %d file(s) attached", len(uploaded))
	}
	if len(failed) > 0 {
		if info != "" {
			info += " | "
		}
		info += fmt.Sprintf("⚠️ %d failed", len(failed))
	}
	if info == "" {
		info = "No attachments"
	}
	return Message{
		Text: "Ticket Created: " + d.IssueKey,
		Blocks: []slack.Block{
			section(fmt.Sprintf("*✅ Ticket Created*\n\n*<%s|%s>*: %s", d.IssueURL, d.IssueKey, d.Title)),
			fields("Type", d.IssueType, "Priority", d.Priority, "Project", d.Project, "Epic", orNone(d.Epic)),
			contextLine(info),
		},
	}
}

// CreatedText is the plain DM sent when the summary message cannot be
// updated in place.
func CreatedText(d *protocol.Draft, uploaded, failed []string) string {
	s := fmt.Sprintf("✅ *Ticket Created:* <%s|%s>", d.IssueURL, d.IssueKey)
	if len(uploaded) > 0 {
		s += "\n📎 *Attached:* " + strings.Join(uploaded, ", ")
	}
	if len(failed) > 0 {
		s += "\n⚠️ *Failed to attach:* " + strings.Join(failed, ", ")
	}
	return s
}

// Cancelled replaces the draft DM after the user cancels it.
func Cancelled(title string) Message {
	if title == "" {
		title = "Draft"
	}
	return Message{
		Text: "🚫 Ticket Cancelled",
		Blocks: []slack.Block{
			section(fmt.Sprintf("*🚫 Ticket Cancelled*\n\n~%s~", title)),
			contextLine("React with 🎫 again to create a new draft"),
		},
	}
}

// Expired replaces the draft DM when the sweeper drops an unused draft.
func Expired(d *protocol.Draft) Message {
	return Message{
		Text: "⌛ Ticket draft expired",
		Blocks: []slack.Block{
			section(fmt.Sprintf("*⌛ Draft Expired*\n\n~%s~", d.Title)),
			contextLine("React with 🎫 again to create a new draft"),
		},
	}
}

// Failed reports a failed issue creation. A non-empty retryKey adds a
// button that reopens the review modal for that draft.
func Failed(err error, retryKey string) Message {
	msg := ErrorText(err)
	blocks := []slack.Block{
		section("*❌ Failed to Create Ticket*\n\n" + msg),
	}
	if retryKey != "" {
		blocks = append(blocks, slack.NewActionBlock("",
			slack.NewButtonBlockElement(ActionRetry, retryKey, plain("🔁 Review & Retry")).WithStyle(slack.StylePrimary),
			slack.NewButtonBlockElement(ActionCancel, retryKey, plain("❌ Cancel")).WithStyle(slack.StyleDanger),
		))
	} else {
		blocks = append(blocks, contextLine("Please try again or create manually"))
	}
	return Message{Text: "❌ Failed: " + msg, Blocks: blocks}
}

// Plain-text notices.
const (
	NotFoundEphemeral = "⚠️ Ticket not found. Please react with 🎫 again to generate a new draft."
	SubmitNotFound    = "❌ Ticket data not found. Please try again."
	AlreadyCreating   = "⏳ This ticket is already being created."
)

// GenerateError is the DM sent when a review draft could not be produced.
func GenerateError(err error) string {
	return "❌ Error generating ticket: " + ErrorText(err)
}

// CreateError is the DM sent when an issue could not be created and no
// draft message exists to update.
func CreateError(err error) string {
	return "❌ Failed to create ticket: " + ErrorText(err)
}
