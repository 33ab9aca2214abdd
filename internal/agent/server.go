// Package agent is the companion's server side: a websocket endpoint that
// accepts user text or voice, streams a persona reply back chunk by chunk,
// and follows it with synthesized speech.
package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nova-companion/nova-go/internal/agent/respond"
	"github.com/nova-companion/nova-go/internal/agent/speech"
	"github.com/nova-companion/nova-go/internal/analysis/emotion"
	"github.com/nova-companion/nova-go/internal/middleware"
)

// Handler serves the /ws/chat conversation endpoint.
type Handler struct {
	responder   respond.Responder
	synthesizer speech.Synthesizer
	recognizer  speech.Recognizer
	upgrader    websocket.Upgrader
}

// NewHandler assembles the chat handler from its providers.
func NewHandler(responder respond.Responder, synthesizer speech.Synthesizer, recognizer speech.Recognizer) *Handler {
	return &Handler{
		responder:   responder,
		synthesizer: synthesizer,
		recognizer:  recognizer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// NewRouter mounts the handler behind the standard middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes 注册WebSocket路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleChat)
}

// inboundFrame is what the client writes: a typed text message or a
// recorded voice message.
type inboundFrame struct {
	Sender  string `json:"sender"`
	Type    string `json:"type"`
	Format  string `json:"format"`
	Content string `json:"content"`
	Time    string `json:"time"`
}

// outboundFrame mirrors the client's inbound union.
type outboundFrame struct {
	Sender  string `json:"sender"`
	Type    string `json:"type"`
	Format  string `json:"format,omitempty"`
	Content string `json:"content"`
	Time    string `json:"time"`
	Emotion string `json:"live2d_emotion,omitempty"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[agent] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	log.Printf("[agent] connection opened id=%s remote=%s", connID, r.RemoteAddr)
	defer log.Printf("[agent] connection closed id=%s", connID)

	ctx := r.Context()
	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[agent] read error id=%s: %v", connID, err)
			}
			return
		}

		userText, ok := h.extractUserText(ctx, conn, connID, frame)
		if !ok {
			continue
		}
		if err := h.respondTurn(ctx, conn, connID, userText); err != nil {
			log.Printf("[agent] turn failed id=%s: %v", connID, err)
		}
	}
}

// extractUserText resolves the user's utterance from a frame. Voice frames
// are transcribed and the recognized text is echoed back as a closed user
// message, so the client's log shows what the agent heard.
func (h *Handler) extractUserText(ctx context.Context, conn *websocket.Conn, connID string, frame inboundFrame) (string, bool) {
	switch frame.Format {
	case "text":
		if strings.TrimSpace(frame.Content) == "" {
			return "", false
		}
		return frame.Content, true
	case "audio":
		audio, err := base64.StdEncoding.DecodeString(frame.Content)
		if err != nil {
			log.Printf("[agent] dropping voice frame with bad audio id=%s: %v", connID, err)
			return "", false
		}
		text, err := h.recognizer.Recognize(ctx, audio)
		if err != nil {
			log.Printf("[agent] recognition failed id=%s: %v", connID, err)
			return "", false
		}
		log.Printf("[agent] recognized text id=%s: %s", connID, text)
		h.send(conn, outboundFrame{
			Sender:  "user",
			Type:    "message",
			Format:  "text",
			Content: text,
			Time:    timestamp(),
		})
		return text, true
	default:
		log.Printf("[agent] dropping frame with unknown format %q id=%s", frame.Format, connID)
		return "", false
	}
}

var emotionMarker = regexp.MustCompile(`\[emo:([^\]]+)\]`)

// respondTurn streams one reply: chunk frames while the model produces
// text, a terminal frame carrying the expression tag, then the synthesized
// voice.
func (h *Handler) respondTurn(ctx context.Context, conn *websocket.Conn, connID string, userText string) error {
	stream, err := h.responder.Stream(ctx, userText)
	if err != nil {
		return err
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return recvErr
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content == "" {
			continue
		}
		h.send(conn, outboundFrame{
			Sender:  "agent",
			Type:    "message",
			Format:  "text_chunk",
			Content: chunk.Content,
			Time:    timestamp(),
		})
	}

	reply := ""
	if len(chunks) > 0 {
		merged, concatErr := schema.ConcatMessages(chunks)
		if concatErr != nil {
			return concatErr
		}
		reply = merged.Content
	}

	// The terminal frame closes the streamed entry; its content was already
	// delivered chunk by chunk.
	h.send(conn, outboundFrame{
		Sender:  "agent",
		Type:    "message",
		Format:  "text",
		Content: "",
		Time:    timestamp(),
		Emotion: replyEmotion(reply),
	})

	h.responder.Record(userText, reply)

	audio, err := h.synthesizer.Synthesize(ctx, reply)
	if err != nil {
		log.Printf("[agent] synthesis failed id=%s: %v", connID, err)
		return nil
	}
	h.send(conn, outboundFrame{
		Sender:  "agent",
		Type:    "voice",
		Format:  "audio",
		Content: base64.StdEncoding.EncodeToString(audio),
		Time:    timestamp(),
	})
	return nil
}

// replyEmotion picks the expression tag: the reply's first inline marker
// when present, otherwise the keyword analyzer's verdict when it is not
// neutral.
func replyEmotion(reply string) string {
	if m := emotionMarker.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	if decision := emotion.Analyze(reply); decision.Emotion != emotion.Neutral {
		return string(decision.Emotion)
	}
	return ""
}

func (h *Handler) send(conn *websocket.Conn, frame outboundFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		log.Printf("[agent] write failed: %v", err)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Options bundles provider selection for BuildHandler.
type Options struct {
	Responder   respond.Responder
	Synthesizer speech.Synthesizer
	Recognizer  speech.Recognizer
}

// BuildHandler fills in the built-in providers for everything Options
// leaves nil.
func BuildHandler(opts Options) *Handler {
	if opts.Responder == nil {
		opts.Responder = &respond.ScriptedResponder{}
	}
	if opts.Synthesizer == nil {
		opts.Synthesizer = speech.ToneSynthesizer{}
	}
	if opts.Recognizer == nil {
		opts.Recognizer = speech.FixedRecognizer{}
	}
	return NewHandler(opts.Responder, opts.Synthesizer, opts.Recognizer)
}
