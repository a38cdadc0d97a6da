package render

import (
	"fmt"

	"github.com/slack-go/slack"
)

const autoHeader = "*⏳ Creating Jira Ticket...*\n\n"

// AutoAnalyzing is the first DM of an auto-created ticket.
func AutoAnalyzing() Message {
	return Message{
		Text:   "🎫 Creating ticket...",
		Blocks: []slack.Block{section(autoHeader + "Analyzing conversation...")},
	}
}

// AutoGenerating is shown while the language model writes the ticket.
func AutoGenerating() Message {
	return Message{
		Text:   "Generating ticket...",
		Blocks: []slack.Block{section(autoHeader + "Generating title and description...")},
	}
}

// AutoSubmitting is shown while the issue is created in Jira.
func AutoSubmitting(title string) Message {
	return Message{
		Text:   "Creating in Jira...",
		Blocks: []slack.Block{section(fmt.Sprintf("%s*%s*\n\nCreating in Jira...", autoHeader, title))},
	}
}
