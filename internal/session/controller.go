// Package session wires the transport channel, conversation log, playback
// controller, capture pipeline, and avatar deriver into one state machine.
// All core state lives on the Controller instance and every mutation runs
// on its single event loop, so components need no locking and teardown
// ordering is strict.
package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/nova-companion/nova-go/internal/avatar"
	"github.com/nova-companion/nova-go/internal/capture"
	"github.com/nova-companion/nova-go/internal/conversation"
	"github.com/nova-companion/nova-go/internal/model/conv"
	"github.com/nova-companion/nova-go/internal/model/event"
	"github.com/nova-companion/nova-go/internal/playback"
	"github.com/nova-companion/nova-go/internal/transport"
)

// ErrStopped is returned for commands issued after the session loop ended.
var ErrStopped = errors.New("session stopped")

// ErrEmptyMessage is returned for a typed send with no content.
var ErrEmptyMessage = errors.New("message is empty")

// Config carries the collaborators a Controller owns. No ambient state:
// everything the session touches comes in here.
type Config struct {
	Channel         *transport.Channel
	PlaybackFactory playback.DeviceFactory
	CaptureFactory  capture.DeviceFactory

	// OnAvatar receives every avatar state change. The renderer behind it
	// must never be able to disturb the session; panics are swallowed.
	OnAvatar func(avatar.State)

	// Now stamps outbound frames; defaults to time.Now.
	Now func() time.Time
}

// Controller is the session orchestrator and the outward command surface.
type Controller struct {
	channel  *transport.Channel
	log      *conversation.Log
	playback *playback.Controller
	capture  *capture.Pipeline

	avatarState avatar.State
	connState   transport.State
	onAvatar    func(avatar.State)
	now         func() time.Time

	dispatch chan func()
	done     chan struct{}
}

// New assembles a controller. The capture and playback factories may be nil
// in deployments without audio hardware; the related commands then fail
// softly with a logged system entry.
func New(cfg Config) *Controller {
	c := &Controller{
		channel:   cfg.Channel,
		log:       conversation.NewLog(),
		connState: transport.StateConnecting,
		onAvatar:  cfg.OnAvatar,
		now:       cfg.Now,
		dispatch:  make(chan func(), 128),
		done:      make(chan struct{}),
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.avatarState = avatar.Derive(avatar.State{}, false, "", false)

	c.playback = playback.NewController(cfg.PlaybackFactory, c.post, c.refreshAvatar, func(err error) {
		c.report("playback error: " + err.Error())
	})
	c.capture = capture.NewPipeline(cfg.CaptureFactory, c.post, c.emitVoice, func(err error) {
		c.report("microphone error: " + err.Error())
	})
	return c
}

// Run connects the channel and processes events until ctx is cancelled.
// Losing the connection does not end the session: commands keep working
// against local state and sends fail softly until shutdown.
func (c *Controller) Run(ctx context.Context) error {
	connectErr := c.channel.Connect(ctx)

	defer func() {
		c.playback.Interrupt()
		c.capture.Stop()
		close(c.done)
	}()

	notifications := c.channel.Notifications()
	cancelled := false
	for {
		select {
		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				if cancelled {
					return connectErr
				}
				continue
			}
			c.handleNotification(n)
		case fn := <-c.dispatch:
			fn()
		case <-ctx.Done():
			cancelled = true
			_ = c.channel.Close()
			if notifications == nil {
				return connectErr
			}
		}
	}
}

// post schedules fn onto the event loop without blocking the caller beyond
// queue admission. Used by device callbacks from their own goroutines.
func (c *Controller) post(fn func()) {
	select {
	case c.dispatch <- fn:
	case <-c.done:
	}
}

// do runs fn on the event loop and waits for it, so command methods observe
// a consistent state and get errors back.
func (c *Controller) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case c.dispatch <- func() { fn(); close(ran) }:
	case <-c.done:
		return ErrStopped
	}
	select {
	case <-ran:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// handleNotification folds one transport delivery into session state.
func (c *Controller) handleNotification(n transport.Notification) {
	switch n := n.(type) {
	case transport.StateChanged:
		c.connState = n.State
		switch n.State {
		case transport.StateOpen:
			c.report("connection established")
		case transport.StateClosed:
			if n.Err != nil {
				c.report("connection closed: " + n.Err.Error())
			} else {
				c.report("connection closed")
			}
		}
	case transport.Malformed:
		c.report("dropped malformed event: " + n.Err.Error())
	case transport.Received:
		c.handleInbound(n.Event)
	}
}

func (c *Controller) handleInbound(ev event.Inbound) {
	switch ev := ev.(type) {
	case event.MessageEvent:
		c.log.ApplyMessage(ev)
		c.refreshAvatar()
	case event.VoiceEvent:
		messageID := ""
		if last, ok := c.log.LastAgent(); ok {
			messageID = last.ID
		}
		if err := c.playback.Play(ev.Audio, messageID); err != nil {
			// already reported through the playback error hook
			log.Printf("[session] voice event not played: %v", err)
		}
	}
}

// SendText sends a typed user message. Any in-progress playback is
// interrupted first; the message is logged as a closed user entry only
// when the channel accepted it.
func (c *Controller) SendText(text string) error {
	var cmdErr error
	err := c.do(func() {
		c.playback.Interrupt()
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			cmdErr = ErrEmptyMessage
			return
		}
		frame := event.NewTextSend(trimmed, c.now())
		if sendErr := c.channel.Send(frame); sendErr != nil {
			c.report("send failed: " + sendErr.Error())
			cmdErr = sendErr
			return
		}
		c.log.AppendUser(trimmed, frame.Time)
		c.refreshAvatar()
	})
	if err != nil {
		return err
	}
	return cmdErr
}

// StartRecording begins a capture gesture. Agent speech is interrupted
// before any device is acquired: recording takes priority over playback.
func (c *Controller) StartRecording(ctx context.Context) error {
	var cmdErr error
	err := c.do(func() {
		c.playback.Interrupt()
		cmdErr = c.capture.Start(ctx)
	})
	if err != nil {
		return err
	}
	return cmdErr
}

// StopRecording ends the capture gesture; the encoded voice message is
// emitted once the device's tail chunks drain.
func (c *Controller) StopRecording() error {
	return c.do(func() {
		c.capture.Stop()
	})
}

// Interrupt stops any active playback. Safe when nothing is playing.
func (c *Controller) Interrupt() error {
	return c.do(func() {
		c.playback.Interrupt()
	})
}

// emitVoice runs on the loop when the capture pipeline finishes encoding.
func (c *Controller) emitVoice(encoded string) {
	frame := event.VoiceSend{
		Sender:  string(conv.RoleUser),
		Type:    "voice",
		Format:  "audio",
		Content: encoded,
		Time:    c.now().UTC().Format(time.RFC3339Nano),
	}
	if err := c.channel.Send(frame); err != nil {
		c.report("voice send failed: " + err.Error())
		return
	}
	c.report("[voice message sent]")
}

// report surfaces a diagnostic as a system-role log entry.
func (c *Controller) report(message string) {
	c.log.AppendSystem(message)
	c.refreshAvatar()
}

// refreshAvatar recomputes the derived avatar signals and pushes changes to
// the renderer hook.
func (c *Controller) refreshAvatar() {
	emotion, tagged := c.log.LastClosedAgentEmotion()
	next := avatar.Derive(c.avatarState, c.playback.Active(), emotion, tagged)
	if next == c.avatarState {
		return
	}
	c.avatarState = next
	if c.onAvatar != nil {
		c.notifyRenderer(next)
	}
}

// notifyRenderer shields the session from the renderer: a panicking
// subscriber must never affect session state.
func (c *Controller) notifyRenderer(state avatar.State) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[session] avatar renderer panic: %v", r)
		}
	}()
	c.onAvatar(state)
}

// Avatar returns the current derived avatar signals.
func (c *Controller) Avatar() (avatar.State, error) {
	var state avatar.State
	err := c.do(func() { state = c.avatarState })
	return state, err
}

// Transcript returns the filtered conversation view for the given mode,
// with inline emotion markers stripped from reader-facing content.
func (c *Controller) Transcript(mode conversation.ViewMode) ([]conv.Message, error) {
	var entries []conv.Message
	err := c.do(func() { entries = c.log.View(mode) })
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Content = conv.StripMarkers(entries[i].Content)
	}
	return entries, nil
}

// ConnectionState reports the transport lifecycle as last observed by the
// session loop.
func (c *Controller) ConnectionState() (transport.State, error) {
	var state transport.State
	err := c.do(func() { state = c.connState })
	return state, err
}

// Speaking reports the message id the active playback is attributed to.
func (c *Controller) Speaking() (string, bool, error) {
	var (
		id string
		ok bool
	)
	err := c.do(func() { id, ok = c.playback.Speaking() })
	return id, ok, err
}

// Recording reports whether a capture gesture is in progress.
func (c *Controller) Recording() (bool, error) {
	var recording bool
	err := c.do(func() { recording = c.capture.Recording() })
	return recording, err
}
