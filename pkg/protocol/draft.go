package protocol

import "time"

// DraftStatus represents the lifecycle state of a ticket draft.
type DraftStatus string

const (
	DraftPending  DraftStatus = "pending"
	DraftCreating DraftStatus = "creating"
	DraftCreated  DraftStatus = "created"
	DraftFailed   DraftStatus = "failed"
)

// Valid reports whether s is a known status.
func (s DraftStatus) Valid() bool {
	switch s {
	case DraftPending, DraftCreating, DraftCreated, DraftFailed:
		return true
	}
	return false
}

// Mode selects how a draft becomes a tracker issue.
type Mode string

const (
	// ModeReview sends the draft to the reacting user for confirmation.
	ModeReview Mode = "review"
	// ModeAuto creates the issue immediately with fixed fields.
	ModeAuto Mode = "auto"
)

// FileRef describes a file attached to a chat message. Only metadata is kept;
// the content is fetched when the issue is created.
type FileRef struct {
	Name     string `json:"name"`
	URL      string `json:"url_private"`
	Mode     string `json:"mode,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	Size     int    `json:"size,omitempty"`
}

// External reports whether the file is hosted outside the chat platform
// and therefore cannot be downloaded.
func (f FileRef) External() bool {
	return f.Mode == "external"
}

// Draft is a proposed tracker issue generated from a chat thread.
type Draft struct {
	Key         string      `json:"key"`
	Mode        Mode        `json:"mode"`
	Status      DraftStatus `json:"status"`
	ChannelID   string      `json:"channel_id"`
	ChannelName string      `json:"channel_name,omitempty"`
	MessageTS   string      `json:"message_ts"`
	UserID      string      `json:"user_id"`
	Permalink   string      `json:"slack_link"`

	Title       string   `json:"title"`
	Description string   `json:"description"`
	IssueType   string   `json:"issue_type"`
	Priority    string   `json:"priority"`
	Labels      []string `json:"labels,omitempty"`
	Project     string   `json:"project"`
	Epic        string   `json:"epic,omitempty"`

	Files []FileRef `json:"files,omitempty"`

	// DM that shows the draft to the user; updated as the draft progresses.
	DMChannel string `json:"dm_channel,omitempty"`
	DMTS      string `json:"dm_ts,omitempty"`

	IssueKey string `json:"issue_key,omitempty"`
	IssueURL string `json:"issue_url,omitempty"`
	Error    string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DraftKey builds the store key for the message a reaction was added to.
func DraftKey(channelID, messageTS string) string {
	return channelID + "_" + messageTS
}

// HasDM reports whether the draft's DM message is known.
func (d *Draft) HasDM() bool {
	return d.DMChannel != "" && d.DMTS != ""
}

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	c := *d
	c.Labels = append([]string(nil), d.Labels...)
	c.Files = append([]FileRef(nil), d.Files...)
	return &c
}
