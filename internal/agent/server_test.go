package agent

import (
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nova-companion/nova-go/internal/agent/respond"
	"github.com/nova-companion/nova-go/internal/agent/speech"
)

type wireFrame struct {
	Sender  string `json:"sender"`
	Type    string `json:"type"`
	Format  string `json:"format"`
	Content string `json:"content"`
	Time    string `json:"time"`
	Emotion string `json:"live2d_emotion"`
}

func dialAgent(t *testing.T, handler *Handler) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(NewRouter(handler))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wireFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// collectTurn reads one full reply: chunk frames, the terminal frame, then
// the voice frame.
func collectTurn(t *testing.T, conn *websocket.Conn) (text string, terminal, voice wireFrame) {
	t.Helper()
	for {
		frame := readFrame(t, conn)
		switch {
		case frame.Type == "message" && frame.Format == "text_chunk":
			text += frame.Content
		case frame.Type == "message" && frame.Format == "text":
			terminal = frame
		case frame.Type == "voice":
			voice = frame
			return text, terminal, voice
		default:
			t.Fatalf("unexpected frame: %+v", frame)
		}
	}
}

func TestTextTurnStreamsReplyWithEmotionAndVoice(t *testing.T) {
	script := &respond.ScriptedResponder{
		Replies:   []string{"看到你真开心！[emo:happy] 今天想聊点什么呢？"},
		ChunkSize: 4,
	}
	conn := dialAgent(t, BuildHandler(Options{Responder: script}))

	if err := conn.WriteJSON(map[string]string{
		"sender": "user", "format": "text", "content": "你好呀",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	text, terminal, voice := collectTurn(t, conn)

	if text != "看到你真开心！[emo:happy] 今天想聊点什么呢？" {
		t.Fatalf("streamed text = %q", text)
	}
	if terminal.Sender != "agent" || terminal.Content != "" {
		t.Fatalf("terminal frame = %+v, want empty agent terminal", terminal)
	}
	if terminal.Emotion != "happy" {
		t.Fatalf("terminal emotion = %q, want happy", terminal.Emotion)
	}

	audio, err := base64.StdEncoding.DecodeString(voice.Content)
	if err != nil {
		t.Fatalf("voice content is not base64: %v", err)
	}
	if len(audio) < 44 || string(audio[0:4]) != "RIFF" {
		t.Fatalf("voice payload is not a WAV clip (%d bytes)", len(audio))
	}
}

func TestVoiceTurnEchoesRecognizedText(t *testing.T) {
	script := &respond.ScriptedResponder{Replies: []string{"I heard you! [emo:wink]"}}
	conn := dialAgent(t, BuildHandler(Options{
		Responder:  script,
		Recognizer: speech.FixedRecognizer{Transcript: "turn on the lights"},
	}))

	if err := conn.WriteJSON(map[string]string{
		"sender": "user", "type": "voice", "format": "audio",
		"content": base64.StdEncoding.EncodeToString([]byte("captured-audio")),
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	echo := readFrame(t, conn)
	if echo.Sender != "user" || echo.Format != "text" || echo.Content != "turn on the lights" {
		t.Fatalf("echo frame = %+v, want recognized user text", echo)
	}

	text, terminal, _ := collectTurn(t, conn)
	if text != "I heard you! [emo:wink]" {
		t.Fatalf("streamed text = %q", text)
	}
	if terminal.Emotion != "wink" {
		t.Fatalf("terminal emotion = %q, want wink", terminal.Emotion)
	}
}

func TestMalformedVoicePayloadIsDropped(t *testing.T) {
	script := &respond.ScriptedResponder{Replies: []string{"ok [emo:happy]"}}
	conn := dialAgent(t, BuildHandler(Options{Responder: script}))

	// Bad base64 is dropped without a reply.
	if err := conn.WriteJSON(map[string]string{
		"sender": "user", "type": "voice", "format": "audio", "content": "not base64!!",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The next well-formed turn still works.
	if err := conn.WriteJSON(map[string]string{
		"sender": "user", "format": "text", "content": "hello",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	text, _, _ := collectTurn(t, conn)
	if text != "ok [emo:happy]" {
		t.Fatalf("streamed text = %q", text)
	}
}

func TestReplyEmotionFallsBackToAnalyzer(t *testing.T) {
	cases := []struct {
		reply string
		want  string
	}{
		{"看到你真开心！[emo:happy]", "happy"},
		{"[emo:blush] 讨厌啦", "blush"},
		{"今天真是太开心了", "happy"}, // no marker, keyword fallback
		{"明天的天气是多云。", ""},      // neutral, no tag
	}
	for _, tc := range cases {
		if got := replyEmotion(tc.reply); got != tc.want {
			t.Errorf("replyEmotion(%q) = %q, want %q", tc.reply, got, tc.want)
		}
	}
}
