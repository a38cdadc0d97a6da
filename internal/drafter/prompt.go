package drafter

import (
	"fmt"
	"strings"

	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

const reviewPrompt = `You convert Slack conversations into Jira tickets.

Return JSON with these fields:
{
  "title": "Clear, actionable title under 80 chars",
  "description": "Jira-formatted description using h2. for headers, * for bullets",
  "issue_type": %s,
  "priority": %q,
  "labels": ["relevant", "labels"]
}

Guidelines:
- Default to "Story" if unsure
- Bug: Something is broken or not working as expected
- Story: New feature or enhancement request
- Task: General work item, maintenance, or documentation
- Use Jira markup: h2. for headers, * for bullets, {code} for code blocks`

const autoPrompt = `You convert Slack conversations into Jira tickets.

Return JSON with these fields:
{
  "title": "Clear, actionable title under 80 chars",
  "description": "Jira-formatted description using h2. for headers, * for bullets"
}

Guidelines:
- Title should be a clear summary of what needs to be done
- Description should include context, requirements, and any relevant details
- Use Jira markup: h2. for headers, * for bullets, {code} for code blocks
- Extract key information from the conversation`

func (d *Drafter) systemPrompt(mode protocol.Mode) string {
	if mode == protocol.ModeAuto {
		return autoPrompt
	}
	quoted := make([]string, len(d.opts.IssueTypes))
	for i, t := range d.opts.IssueTypes {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	return fmt.Sprintf(reviewPrompt, strings.Join(quoted, " | "), d.opts.DefaultPriority)
}

// userContent renders the conversation and any linked page excerpts.
func userContent(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Channel: #%s\n\nConversation:\n%s", in.ChannelName, in.Conversation)
	for _, e := range in.Excerpts {
		title := e.Title
		if title == "" {
			title = e.URL
		}
		fmt.Fprintf(&b, "\n\nLinked page: %s (%s)\n%s", title, e.URL, e.Text)
	}
	return b.String()
}
