package conv

import "regexp"

// Role identifies who authored a log entry.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAgent || r == RoleSystem
}

// Message is one entry in the conversation log. Content grows append-only
// while Streaming is true; once Streaming flips to false the entry is frozen.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Streaming bool   `json:"streaming"`
	Emotion   string `json:"emotion,omitempty"`
}

// markerPattern matches inline expression markers the agent embeds in its
// replies, e.g. "[emo:happy]".
var markerPattern = regexp.MustCompile(`\[emo:[^\]]*\]`)

// StripMarkers removes inline emotion markers from text. Raw content keeps
// the markers; every reader-facing view goes through this.
func StripMarkers(text string) string {
	return markerPattern.ReplaceAllString(text, "")
}

// DisplayText returns the message content with markers stripped.
func (m Message) DisplayText() string {
	return StripMarkers(m.Content)
}
