package avatar

import "testing"

func TestEmotionIsSticky(t *testing.T) {
	state := Derive(State{}, false, "", false)
	if state.Expression != "Normal" {
		t.Fatalf("initial expression = %q, want Normal", state.Expression)
	}

	state = Derive(state, true, "happy", true)
	if state.Emotion != "happy" || state.Expression != "Happy" || !state.Talking {
		t.Fatalf("state = %+v", state)
	}

	// Talking stops, emotion stays.
	state = Derive(state, false, "happy", true)
	if state.Talking || state.Emotion != "happy" {
		t.Fatalf("state = %+v, want sticky emotion", state)
	}

	// An untagged update never clears the emotion.
	state = Derive(state, true, "", false)
	if state.Emotion != "happy" {
		t.Fatalf("emotion = %q, want unchanged", state.Emotion)
	}
}

func TestExpressionLookup(t *testing.T) {
	cases := []struct {
		emotion string
		want    string
	}{
		{"", "Normal"},
		{"neutral", "Normal"},
		{"happy", "Happy"},
		{"HAPPY", "Happy"},
		{" blush ", "Blush"},
		{"pensive", "pensive"},
	}
	for _, tc := range cases {
		if got := Expression(tc.emotion); got != tc.want {
			t.Errorf("Expression(%q) = %q, want %q", tc.emotion, got, tc.want)
		}
	}
}
