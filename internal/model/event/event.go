// Package event defines the wire format shared by the client and the agent:
// a small JSON protocol discriminated by "type"/"format" fields. Inbound
// payloads decode into a closed union; anything else is a decode error so
// callers can route it to the malformed-event path instead of guessing.
package event

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nova-companion/nova-go/internal/model/conv"
)

// Text format discriminators carried by message events.
const (
	FormatChunk    = "text_chunk"
	FormatTerminal = "text"
)

// Inbound is a decoded frame received from the agent.
type Inbound interface {
	inboundEvent() string
}

// MessageEvent carries a text fragment. Format is FormatChunk while the
// utterance is still in progress and FormatTerminal on the closing frame,
// which may also carry an emotion identifier.
type MessageEvent struct {
	Sender  conv.Role
	Format  string
	Content string
	Time    string
	Emotion string
}

func (MessageEvent) inboundEvent() string { return "message" }

// VoiceEvent carries synthesized speech audio, already base64-decoded.
type VoiceEvent struct {
	Audio []byte
}

func (VoiceEvent) inboundEvent() string { return "voice" }

type wireFrame struct {
	Type    string `json:"type"`
	Sender  string `json:"sender,omitempty"`
	Format  string `json:"format,omitempty"`
	Content string `json:"content"`
	Time    string `json:"time,omitempty"`
	Emotion string `json:"live2d_emotion,omitempty"`
}

// Decode parses one inbound frame. Unrecognized type/format combinations
// are errors, not silently-ignored frames.
func Decode(data []byte) (Inbound, error) {
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch frame.Type {
	case "message":
		if frame.Format != FormatChunk && frame.Format != FormatTerminal {
			return nil, fmt.Errorf("message frame has unknown format %q", frame.Format)
		}
		sender := conv.Role(frame.Sender)
		if !sender.Valid() {
			return nil, fmt.Errorf("message frame has unknown sender %q", frame.Sender)
		}
		return MessageEvent{
			Sender:  sender,
			Format:  frame.Format,
			Content: frame.Content,
			Time:    frame.Time,
			Emotion: frame.Emotion,
		}, nil
	case "voice":
		audio, err := base64.StdEncoding.DecodeString(frame.Content)
		if err != nil {
			return nil, fmt.Errorf("voice frame audio is not valid base64: %w", err)
		}
		return VoiceEvent{Audio: audio}, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", frame.Type)
	}
}

// TextSend is the outbound frame for a typed user message.
type TextSend struct {
	Sender  string `json:"sender"`
	Format  string `json:"format"`
	Content string `json:"content"`
	Time    string `json:"time"`
}

// VoiceSend is the outbound frame for a recorded user voice message.
// Content is the base64 encoding of the captured audio.
type VoiceSend struct {
	Sender  string `json:"sender"`
	Type    string `json:"type"`
	Format  string `json:"format"`
	Content string `json:"content"`
	Time    string `json:"time"`
}

// NewTextSend builds a user text frame stamped with the current time.
func NewTextSend(content string, now time.Time) TextSend {
	return TextSend{
		Sender:  string(conv.RoleUser),
		Format:  "text",
		Content: content,
		Time:    now.UTC().Format(time.RFC3339Nano),
	}
}

// NewVoiceSend builds a user voice frame from raw captured audio. The
// base64 conversion is byte-exact round-trippable.
func NewVoiceSend(audio []byte, now time.Time) VoiceSend {
	return VoiceSend{
		Sender:  string(conv.RoleUser),
		Type:    "voice",
		Format:  "audio",
		Content: base64.StdEncoding.EncodeToString(audio),
		Time:    now.UTC().Format(time.RFC3339Nano),
	}
}
