package viewer

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nova-companion/nova-go/internal/avatar"
	"github.com/nova-companion/nova-go/internal/capture"
	"github.com/nova-companion/nova-go/internal/conversation"
	"github.com/nova-companion/nova-go/internal/model/conv"
	"github.com/nova-companion/nova-go/internal/session"
	"github.com/nova-companion/nova-go/internal/transport"
)

// fakeSession scripts session-controller responses for handler tests.
type fakeSession struct {
	avatarState avatar.State
	entries     []conv.Message
	connState   transport.State
	recording   bool

	sendErr   error
	startErr  error
	sent      []string
	starts    int
	stops     int
	interrupt int
}

func (f *fakeSession) Avatar() (avatar.State, error) { return f.avatarState, nil }

func (f *fakeSession) Transcript(mode conversation.ViewMode) ([]conv.Message, error) {
	out := []conv.Message{}
	for _, e := range f.entries {
		system := e.Role == conv.RoleSystem
		if (mode == conversation.ViewLog) == system {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSession) ConnectionState() (transport.State, error) { return f.connState, nil }
func (f *fakeSession) Speaking() (string, bool, error)           { return "", false, nil }
func (f *fakeSession) Recording() (bool, error)                  { return f.recording, nil }

func (f *fakeSession) SendText(text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSession) StartRecording(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}

func (f *fakeSession) StopRecording() error { f.stops++; return nil }
func (f *fakeSession) Interrupt() error     { f.interrupt++; return nil }

func TestGetAvatarReturnsCurrentState(t *testing.T) {
	sess := &fakeSession{avatarState: avatar.State{Talking: true, Emotion: "happy", Expression: "Happy"}}
	router := NewRouter(sess, NewHub())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/avatar", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var state avatar.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if state != sess.avatarState {
		t.Fatalf("state = %+v, want %+v", state, sess.avatarState)
	}
}

func TestConversationModes(t *testing.T) {
	sess := &fakeSession{entries: []conv.Message{
		{ID: "1", Role: conv.RoleSystem, Content: "connection established"},
		{ID: "2", Role: conv.RoleUser, Content: "hi"},
		{ID: "3", Role: conv.RoleAgent, Content: "hello"},
	}}
	router := NewRouter(sess, NewHub())

	fetch := func(query string) (int, map[string]json.RawMessage) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversation"+query, nil))
		var body map[string]json.RawMessage
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		return rec.Code, body
	}

	code, body := fetch("")
	if code != http.StatusOK {
		t.Fatalf("default mode status = %d, want 200", code)
	}
	var messages []conv.Message
	if err := json.Unmarshal(body["messages"], &messages); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("chat messages = %d, want 2", len(messages))
	}

	code, body = fetch("?mode=log")
	if code != http.StatusOK {
		t.Fatalf("log mode status = %d, want 200", code)
	}
	if err := json.Unmarshal(body["messages"], &messages); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != conv.RoleSystem {
		t.Fatalf("log messages = %+v, want the system entry", messages)
	}

	if code, _ := fetch("?mode=everything"); code != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d, want 400", code)
	}
}

func TestPostMessage(t *testing.T) {
	sess := &fakeSession{}
	router := NewRouter(sess, NewHub())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages",
		strings.NewReader(`{"content":"good evening"}`)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(sess.sent) != 1 || sess.sent[0] != "good evening" {
		t.Fatalf("sent = %v", sess.sent)
	}
}

func TestPostMessageErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"empty", session.ErrEmptyMessage, http.StatusBadRequest},
		{"disconnected", transport.ErrNotOpen, http.StatusConflict},
		{"stopped", session.ErrStopped, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewRouter(&fakeSession{sendErr: tc.err}, NewHub())
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages",
				strings.NewReader(`{"content":"x"}`)))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	router := NewRouter(&fakeSession{}, NewHub())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages",
		strings.NewReader(`not json`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid body status = %d, want 400", rec.Code)
	}
}

func TestRecordingEndpoints(t *testing.T) {
	sess := &fakeSession{}
	router := NewRouter(sess, NewHub())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording/start", nil))
	if rec.Code != http.StatusAccepted || sess.starts != 1 {
		t.Fatalf("start: status = %d, starts = %d", rec.Code, sess.starts)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording/stop", nil))
	if rec.Code != http.StatusAccepted || sess.stops != 1 {
		t.Fatalf("stop: status = %d, stops = %d", rec.Code, sess.stops)
	}

	busy := NewRouter(&fakeSession{startErr: capture.ErrBusy}, NewHub())
	rec = httptest.NewRecorder()
	busy.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording/start", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("busy start status = %d, want 409", rec.Code)
	}
}

func TestAvatarStreamDeliversUpdates(t *testing.T) {
	sess := &fakeSession{avatarState: avatar.State{Expression: "Normal"}}
	hub := NewHub()
	router := NewRouter(sess, hub)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/api/avatar/stream")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Publish(avatar.State{Talking: true, Emotion: "happy", Expression: "Happy"})
	}()

	scanner := bufio.NewScanner(resp.Body)
	deadline := time.AfterFunc(2*time.Second, func() { resp.Body.Close() })
	defer deadline.Stop()

	var states []avatar.State
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var state avatar.State
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &state); err != nil {
			t.Fatalf("decode sse payload %q: %v", line, err)
		}
		states = append(states, state)
		if len(states) == 2 {
			break
		}
	}
	if len(states) != 2 {
		t.Fatalf("states = %+v, want seed plus update", states)
	}
	if states[0].Expression != "Normal" {
		t.Fatalf("seed state = %+v", states[0])
	}
	if !states[1].Talking || states[1].Emotion != "happy" {
		t.Fatalf("update state = %+v", states[1])
	}
}

func TestHubDropsOldestForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	sub, cancel := hub.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer; publishing must never block.
	for i := 0; i < 50; i++ {
		hub.Publish(avatar.State{Emotion: "happy", Expression: "Happy", Talking: i%2 == 0})
	}
	final := avatar.State{Emotion: "sad", Expression: "Sad"}
	hub.Publish(final)

	var last avatar.State
	for {
		select {
		case state := <-sub:
			last = state
			continue
		default:
		}
		break
	}
	if last != final {
		t.Fatalf("last delivered = %+v, want the newest state", last)
	}
}
