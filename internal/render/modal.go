package render

import (
	"fmt"
	"slices"
	"strings"

	"github.com/slack-go/slack"

	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// CallbackPrefix starts the callback ID of every review modal; the draft
// key follows it.
const CallbackPrefix = "approve_ticket_"

// Block IDs of the review modal inputs.
const (
	BlockTitle       = "title"
	BlockProject     = "project"
	BlockEpic        = "epic"
	BlockType        = "type"
	BlockPriority    = "priority"
	BlockDescription = "description"
)

// DescriptionChars is the longest description a plain text input accepts.
const DescriptionChars = 3000

// ModalOptions lists the choices offered by the review modal selects.
type ModalOptions struct {
	IssueTypes []string
	Priorities []string
}

// KeyFromCallback extracts the draft key from a review modal callback ID.
func KeyFromCallback(callbackID string) (string, bool) {
	key, ok := strings.CutPrefix(callbackID, CallbackPrefix)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// ReviewModal builds the modal that lets the user edit a draft before it is
// created in Jira.
func ReviewModal(d *protocol.Draft, opts ModalOptions) slack.ModalViewRequest {
	title := textInput(BlockTitle+"_input", d.Title, false)
	project := textInput(BlockProject+"_input", d.Project, false)
	epic := textInput(BlockEpic+"_input", d.Epic, false)
	epic.Placeholder = plain(fmt.Sprintf("e.g., %s-12345 (leave empty for none)", nonEmpty(d.Project, "PROJ")))
	desc := textInput("desc_input", Truncate(d.Description, DescriptionChars), true)

	epicBlock := slack.NewInputBlock(BlockEpic, plain("Epic Link (Key)"), nil, epic)
	epicBlock.Optional = true

	blocks := []slack.Block{
		slack.NewInputBlock(BlockTitle, plain("Title"), nil, title),
		contextLine(fmt.Sprintf("📎 *%d file(s)* will be attached after creation", attachable(d.Files))),
		slack.NewDividerBlock(),
		slack.NewInputBlock(BlockProject, plain("Project Key"), nil, project),
		epicBlock,
		slack.NewDividerBlock(),
		slack.NewInputBlock(BlockType, plain("Type"), nil, selectInput("type_select", d.IssueType, opts.IssueTypes)),
		slack.NewInputBlock(BlockPriority, plain("Priority"), nil, selectInput("priority_select", d.Priority, opts.Priorities)),
		slack.NewInputBlock(BlockDescription, plain("Description"), nil, desc),
	}

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      CallbackPrefix + d.Key,
		PrivateMetadata: d.Key,
		Title:           plain("Review Ticket"),
		Submit:          plain("Create Ticket"),
		Close:           plain("Cancel"),
		Blocks:          slack.Blocks{BlockSet: blocks},
	}
}

func textInput(actionID, initial string, multiline bool) *slack.PlainTextInputBlockElement {
	el := slack.NewPlainTextInputBlockElement(nil, actionID)
	el.InitialValue = initial
	el.Multiline = multiline
	return el
}

// selectInput builds a static select. Slack rejects an initial option that is
// not among the options, so an unlisted current value is offered first.
func selectInput(actionID, current string, choices []string) *slack.SelectBlockElement {
	if current != "" && !slices.Contains(choices, current) {
		choices = append([]string{current}, choices...)
	}
	options := make([]*slack.OptionBlockObject, 0, len(choices))
	for _, c := range choices {
		options = append(options, slack.NewOptionBlockObject(c, plain(c), nil))
	}
	el := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, nil, actionID, options...)
	if current != "" {
		el.InitialOption = slack.NewOptionBlockObject(current, plain(current), nil)
	}
	return el
}

func attachable(files []protocol.FileRef) int {
	n := 0
	for _, f := range files {
		if !f.External() {
			n++
		}
	}
	return n
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
