package playback

import (
	"errors"
	"testing"
)

// loop runs scheduled callbacks synchronously, standing in for the session
// event loop in these tests.
func loop(fn func()) { fn() }

type stubDevice struct {
	stops int
	done  func(err error)
}

func (d *stubDevice) Stop() error {
	d.stops++
	return nil
}

type recorder struct {
	devices []*stubDevice
	changes int
	errs    []error
	failOn  error
}

func (r *recorder) factory(audio []byte, done func(err error)) (Device, error) {
	if r.failOn != nil {
		return nil, r.failOn
	}
	d := &stubDevice{done: done}
	r.devices = append(r.devices, d)
	return d, nil
}

func (r *recorder) controller() *Controller {
	return NewController(r.factory, loop, func() { r.changes++ }, func(err error) { r.errs = append(r.errs, err) })
}

func TestPlayTracksAttribution(t *testing.T) {
	r := &recorder{}
	c := r.controller()

	if c.Active() {
		t.Fatal("idle controller reports active")
	}
	if err := c.Play([]byte("audio"), "msg-1"); err != nil {
		t.Fatalf("play: %v", err)
	}
	id, ok := c.Speaking()
	if !ok || id != "msg-1" {
		t.Fatalf("speaking = (%q, %v), want msg-1", id, ok)
	}
}

func TestNewPlayStopsThePrevious(t *testing.T) {
	r := &recorder{}
	c := r.controller()

	if err := c.Play([]byte("one"), "msg-1"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := c.Play([]byte("two"), "msg-2"); err != nil {
		t.Fatalf("play: %v", err)
	}

	if len(r.devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(r.devices))
	}
	if r.devices[0].stops == 0 {
		t.Fatal("first device was not stopped")
	}
	if id, _ := c.Speaking(); id != "msg-2" {
		t.Fatalf("speaking = %q, want msg-2", id)
	}
}

func TestInterruptIsIdempotent(t *testing.T) {
	r := &recorder{}
	c := r.controller()

	c.Interrupt()
	if err := c.Play([]byte("audio"), "msg-1"); err != nil {
		t.Fatalf("play: %v", err)
	}
	c.Interrupt()
	c.Interrupt()

	if c.Active() {
		t.Fatal("controller still active after interrupt")
	}
	if r.devices[0].stops != 1 {
		t.Fatalf("device stops = %d, want 1", r.devices[0].stops)
	}
}

func TestStaleCompletionIsIgnored(t *testing.T) {
	r := &recorder{}
	c := r.controller()

	if err := c.Play([]byte("one"), "msg-1"); err != nil {
		t.Fatalf("play: %v", err)
	}
	stale := r.devices[0].done
	c.Interrupt()
	if err := c.Play([]byte("two"), "msg-2"); err != nil {
		t.Fatalf("play: %v", err)
	}

	// The first device finishing late must not touch the second session.
	stale(nil)
	if !c.Active() {
		t.Fatal("stale completion cleared the live session")
	}
}

func TestCompletionErrorIsReported(t *testing.T) {
	r := &recorder{}
	c := r.controller()

	if err := c.Play([]byte("audio"), "msg-1"); err != nil {
		t.Fatalf("play: %v", err)
	}
	r.devices[0].done(errors.New("decoder blew up"))

	if c.Active() {
		t.Fatal("failed session still active")
	}
	if len(r.errs) != 1 {
		t.Fatalf("errors = %v, want one", r.errs)
	}
}

func TestFactoryFailureLeavesControllerIdle(t *testing.T) {
	r := &recorder{failOn: errors.New("no output device")}
	c := r.controller()

	if err := c.Play([]byte("audio"), "msg-1"); err == nil {
		t.Fatal("play should propagate the factory error")
	}
	if c.Active() {
		t.Fatal("controller active after a failed start")
	}
}
