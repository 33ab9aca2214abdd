// Package conversation holds the append-biased conversation log and the
// merge policy for streamed message events.
package conversation

import (
	"strconv"

	"github.com/nova-companion/nova-go/internal/model/conv"
	"github.com/nova-companion/nova-go/internal/model/event"
)

// ViewMode selects which roles a filtered view returns.
type ViewMode string

const (
	// ViewChat returns user and agent entries.
	ViewChat ViewMode = "chat"
	// ViewLog returns system entries only.
	ViewLog ViewMode = "log"
)

// Log is the ordered conversation history. Entries are never deleted;
// streamed entries are mutated in place until their terminal event closes
// them. Log is not safe for concurrent use: the session controller confines
// all access to its event loop.
type Log struct {
	entries []conv.Message
	seq     int
}

// NewLog returns an empty conversation log.
func NewLog() *Log {
	return &Log{}
}

// nextID assigns an entry identifier: the network-provided timestamp when
// the event carries one, otherwise a locally generated monotonic value.
func (l *Log) nextID(networkTime string) string {
	if networkTime != "" {
		return networkTime
	}
	l.seq++
	return "local-" + strconv.Itoa(l.seq)
}

// last returns a pointer to the most recent entry, or nil when empty.
func (l *Log) last() *conv.Message {
	if len(l.entries) == 0 {
		return nil
	}
	return &l.entries[len(l.entries)-1]
}

// closeStaleStreaming closes any streaming entry that is about to stop being
// the merge target. Keeps at most one streaming entry alive at a time; once
// closed an entry never reopens.
func (l *Log) closeStaleStreaming() {
	for i := range l.entries {
		l.entries[i].Streaming = false
	}
}

// ApplyMessage folds one inbound text event into the log and returns the
// affected entry. Chunk events extend the trailing streaming entry of the
// same role or open a new one; terminal events close it, attaching any
// trailing content and emotion tag.
func (l *Log) ApplyMessage(ev event.MessageEvent) conv.Message {
	last := l.last()

	switch ev.Format {
	case event.FormatChunk:
		if last != nil && last.Role == ev.Sender && last.Streaming {
			last.Content += ev.Content
			return *last
		}
		l.closeStaleStreaming()
		l.entries = append(l.entries, conv.Message{
			ID:        l.nextID(ev.Time),
			Role:      ev.Sender,
			Content:   ev.Content,
			Streaming: true,
		})
	case event.FormatTerminal:
		if last != nil && last.Role == ev.Sender && last.Streaming {
			last.Content += ev.Content
			last.Streaming = false
			if ev.Emotion != "" {
				last.Emotion = ev.Emotion
			}
			return *last
		}
		l.closeStaleStreaming()
		l.entries = append(l.entries, conv.Message{
			ID:      l.nextID(ev.Time),
			Role:    ev.Sender,
			Content: ev.Content,
			Emotion: ev.Emotion,
		})
	}
	return *l.last()
}

// AppendUser records a locally typed message as a closed entry. It never
// merges into an in-progress agent entry, which keeps streaming.
func (l *Log) AppendUser(content, timestamp string) conv.Message {
	msg := conv.Message{
		ID:      l.nextID(timestamp),
		Role:    conv.RoleUser,
		Content: content,
	}
	l.entries = append(l.entries, msg)
	return msg
}

// AppendSystem records a diagnostic entry visible in the log view.
func (l *Log) AppendSystem(content string) conv.Message {
	msg := conv.Message{
		ID:      l.nextID(""),
		Role:    conv.RoleSystem,
		Content: content,
	}
	l.entries = append(l.entries, msg)
	return msg
}

// Entries returns a copy of the full log in order.
func (l *Log) Entries() []conv.Message {
	return append([]conv.Message(nil), l.entries...)
}

// View returns the ordered subsequence matching the mode. Filtering never
// mutates the log.
func (l *Log) View(mode ViewMode) []conv.Message {
	out := make([]conv.Message, 0, len(l.entries))
	for _, msg := range l.entries {
		if mode == ViewLog {
			if msg.Role == conv.RoleSystem {
				out = append(out, msg)
			}
			continue
		}
		if msg.Role != conv.RoleSystem {
			out = append(out, msg)
		}
	}
	return out
}

// LastAgent returns the most recent agent entry, scanning backwards.
// Voice playback is attributed to it.
func (l *Log) LastAgent() (conv.Message, bool) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Role == conv.RoleAgent {
			return l.entries[i], true
		}
	}
	return conv.Message{}, false
}

// LastClosedAgentEmotion returns the emotion tag of the most recently
// closed agent entry that carries one.
func (l *Log) LastClosedAgentEmotion() (string, bool) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.Role == conv.RoleAgent && !e.Streaming && e.Emotion != "" {
			return e.Emotion, true
		}
	}
	return "", false
}

// Len reports the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}
