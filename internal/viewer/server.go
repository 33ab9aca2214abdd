// Package viewer is the renderer-facing surface of the client: a local HTTP
// server the avatar front end polls and streams from. It holds no
// conversation state of its own; every request goes through the session
// controller, and a broken or slow renderer can never stall the session.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nova-companion/nova-go/internal/avatar"
	"github.com/nova-companion/nova-go/internal/capture"
	"github.com/nova-companion/nova-go/internal/conversation"
	"github.com/nova-companion/nova-go/internal/middleware"
	"github.com/nova-companion/nova-go/internal/model/conv"
	"github.com/nova-companion/nova-go/internal/session"
	"github.com/nova-companion/nova-go/internal/transport"
	"github.com/nova-companion/nova-go/pkg/utils"
)

// Session is what the viewer needs from the session controller.
type Session interface {
	Avatar() (avatar.State, error)
	Transcript(mode conversation.ViewMode) ([]conv.Message, error)
	ConnectionState() (transport.State, error)
	Speaking() (string, bool, error)
	Recording() (bool, error)
	SendText(text string) error
	StartRecording(ctx context.Context) error
	StopRecording() error
	Interrupt() error
}

// Server handles renderer requests against one session.
type Server struct {
	session Session
	hub     *Hub
}

// NewRouter wires the renderer API. hub carries live avatar updates; give
// its Publish to the session's avatar hook.
func NewRouter(sess Session, hub *Hub) http.Handler {
	s := &Server{session: sess, hub: hub}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Route("/api", func(api chi.Router) {
		api.Get("/avatar", s.handleAvatar)
		api.Get("/avatar/stream", s.handleAvatarStream)
		api.Get("/conversation", s.handleConversation)
		api.Get("/status", s.handleStatus)
		api.Post("/messages", s.handleSendMessage)
		api.Post("/recording/start", s.handleRecordingStart)
		api.Post("/recording/stop", s.handleRecordingStop)
		api.Post("/playback/interrupt", s.handleInterrupt)
	})
	return r
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	state, err := s.session.Avatar()
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, state)
}

func (s *Server) handleAvatarStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	updates, cancel := s.hub.Subscribe()
	defer cancel()

	// Seed the stream so a renderer sees the current pose before the first
	// change, even on a freshly started session.
	if state, err := s.session.Avatar(); err == nil {
		utils.SendSSEEvent(w, flusher, "avatar", state)
	}

	ctx := r.Context()
	log.Printf("[viewer] avatar stream opened from %s", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[viewer] avatar stream closed from %s", r.RemoteAddr)
			return
		case state := <-updates:
			utils.SendSSEEvent(w, flusher, "avatar", state)
		}
	}
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	mode := conversation.ViewMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = conversation.ViewChat
	}
	if mode != conversation.ViewChat && mode != conversation.ViewLog {
		utils.RespondError(w, http.StatusBadRequest, "mode must be chat or log")
		return
	}

	entries, err := s.session.Transcript(mode)
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"mode":     mode,
		"messages": entries,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	connState, err := s.session.ConnectionState()
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	speakingID, speaking, err := s.session.Speaking()
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	recording, err := s.session.Recording()
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"connection":        connState,
		"speaking":          speaking,
		"speakingMessageId": speakingID,
		"recording":         recording,
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch err := s.session.SendText(body.Content); {
	case err == nil:
		utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	case errors.Is(err, session.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, "message content is empty")
	case errors.Is(err, transport.ErrNotOpen):
		utils.RespondError(w, http.StatusConflict, "not connected to the agent")
	case errors.Is(err, session.ErrStopped):
		utils.RespondError(w, http.StatusServiceUnavailable, "session stopped")
	default:
		log.Printf("[viewer] send failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "send failed")
	}
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	// The gesture outlives this request, so acquisition does not ride on
	// the request context. Stop cancels a pending grant.
	switch err := s.session.StartRecording(context.Background()); {
	case err == nil:
		utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "recording"})
	case errors.Is(err, capture.ErrBusy):
		utils.RespondError(w, http.StatusConflict, "recording already in progress")
	case errors.Is(err, session.ErrStopped):
		utils.RespondError(w, http.StatusServiceUnavailable, "session stopped")
	default:
		log.Printf("[viewer] recording start failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "recording start failed")
	}
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if err := s.session.StopRecording(); err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "session stopped")
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "stopped"})
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Interrupt(); err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "session stopped")
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "interrupted"})
}
