// Package avatar derives the renderer-facing animation signals from
// conversation and playback state. Everything here is pure: the session
// controller recomputes on each relevant mutation.
package avatar

import "strings"

// State is what the external renderer consumes. Rendering is entirely the
// renderer's concern; nothing here depends on it succeeding.
type State struct {
	Talking    bool   `json:"talking"`
	Emotion    string `json:"emotion"`
	Expression string `json:"expression"`
}

// Derive computes the next avatar state. Emotion is sticky: it only moves
// when a closed agent message carries a tag, and never reverts when talking
// stops.
func Derive(prev State, talking bool, latestEmotion string, tagged bool) State {
	next := State{Talking: talking, Emotion: prev.Emotion}
	if tagged {
		next.Emotion = latestEmotion
	}
	next.Expression = Expression(next.Emotion)
	return next
}

// expressions maps emotion identifiers to the renderer's expression names.
// These are the codes the companion prompt allows the model to emit.
var expressions = map[string]string{
	"happy":     "Happy",
	"sad":       "Sad",
	"angry":     "Angry",
	"surprised": "Surprised",
	"wink":      "Wink",
	"blush":     "Blush",
	"neutral":   "Normal",
}

// Expression resolves an emotion identifier to an expression name.
// Matching is case-insensitive; unrecognized identifiers pass through
// unchanged so new renderer expressions work without a client update.
func Expression(emotion string) string {
	if emotion == "" {
		return "Normal"
	}
	if name, ok := expressions[strings.ToLower(strings.TrimSpace(emotion))]; ok {
		return name
	}
	return emotion
}
