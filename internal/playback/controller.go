// Package playback owns audio-rendering exclusivity: at most one audio
// resource is ever live, and starting a new one always tears down the
// previous one first.
package playback

import (
	"fmt"
	"log"
)

// Device is one allocated audio-rendering resource.
type Device interface {
	// Stop halts rendering and releases the resource. Must be idempotent.
	Stop() error
}

// DeviceFactory starts rendering audio and returns the live resource.
// Implementations invoke done exactly once when rendering ends on its own
// or fails mid-play; done may be called from any goroutine.
type DeviceFactory func(audio []byte, done func(err error)) (Device, error)

// Controller mediates all playback. It is confined to the session loop;
// device completion callbacks re-enter through the schedule function given
// at construction, so every mutation stays serialized.
type Controller struct {
	newDevice DeviceFactory
	schedule  func(func())
	onChange  func()
	onError   func(error)

	active *playSession
}

// playSession is the at-most-one live playback resource with its message
// attribution.
type playSession struct {
	device    Device
	messageID string
}

// NewController wires a controller to its device factory. schedule must run
// the given function on the session loop; onChange fires after any
// attribution change; onError receives non-fatal playback failures.
func NewController(factory DeviceFactory, schedule func(func()), onChange func(), onError func(error)) *Controller {
	if onChange == nil {
		onChange = func() {}
	}
	if onError == nil {
		onError = func(err error) { log.Printf("[playback] %v", err) }
	}
	return &Controller{
		newDevice: factory,
		schedule:  schedule,
		onChange:  onChange,
		onError:   onError,
	}
}

// Play tears down any current session, then starts rendering audio
// attributed to the given message. The teardown completes before the new
// resource is acquired, so two devices are never live at once.
func (c *Controller) Play(audio []byte, messageID string) error {
	c.Interrupt()

	s := &playSession{messageID: messageID}
	device, err := c.newDevice(audio, func(playErr error) {
		c.schedule(func() { c.finish(s, playErr) })
	})
	if err != nil {
		err = fmt.Errorf("start playback: %w", err)
		c.onError(err)
		return err
	}
	s.device = device
	c.active = s
	c.onChange()
	return nil
}

// Interrupt stops and releases the current session, clearing attribution.
// No-op when nothing is playing.
func (c *Controller) Interrupt() {
	if c.active == nil {
		return
	}
	s := c.active
	c.active = nil
	if err := s.device.Stop(); err != nil {
		c.onError(fmt.Errorf("stop playback: %w", err))
	}
	c.onChange()
}

// finish handles natural completion. A completion racing a manual stop or a
// superseding Play finds its session already detached and does nothing, so
// release happens exactly once.
func (c *Controller) finish(s *playSession, playErr error) {
	if c.active != s {
		return
	}
	c.active = nil
	_ = s.device.Stop()
	if playErr != nil {
		c.onError(fmt.Errorf("playback failed: %w", playErr))
	}
	c.onChange()
}

// Speaking reports the message the active session is attributed to.
func (c *Controller) Speaking() (string, bool) {
	if c.active == nil {
		return "", false
	}
	return c.active.messageID, true
}

// Active reports whether a playback session is live.
func (c *Controller) Active() bool {
	return c.active != nil
}
