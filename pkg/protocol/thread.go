package protocol

// Thread is the conversation context fetched for a triggering message.
type Thread struct {
	// Conversation holds one "@Name: text" line per message.
	Conversation string
	Files        []FileRef
	// Links are URLs referenced in the messages, in order of appearance.
	Links        []string
	MessageCount int
}
