// Package capture owns the microphone pipeline: acquisition, chunk
// buffering, and encoding of one recording gesture into a single
// transport-safe voice payload.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
)

// State is the capture pipeline phase.
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateRecording State = "recording"
	StateEncoding  State = "encoding"
)

// ErrBusy is returned when a recording is started while one is already in
// progress. The existing session is untouched; no second device is opened.
var ErrBusy = errors.New("recording already in progress")

// Device is an acquired microphone stream. Chunks delivers raw audio
// buffers in capture order and is closed once the device stops, after the
// final buffer has been delivered.
type Device interface {
	Chunks() <-chan []byte
	// Stop releases the device. Must be idempotent.
	Stop() error
}

// DeviceFactory acquires the microphone. It may block on a permission
// grant; the pipeline calls it off-loop and posts the result back.
type DeviceFactory func(ctx context.Context) (Device, error)

// Pipeline drives one recording at a time through
// Idle -> Acquiring -> Recording -> Encoding -> Idle. It is confined to the
// session loop; device callbacks re-enter through schedule.
type Pipeline struct {
	acquire  DeviceFactory
	schedule func(func())
	emit     func(encoded string)
	onError  func(error)

	state  State
	gen    int
	device Device
	chunks [][]byte
}

// NewPipeline wires the pipeline to its device factory. emit receives the
// base64-encoded recording when a gesture completes; onError receives
// non-fatal acquisition and device failures.
func NewPipeline(factory DeviceFactory, schedule func(func()), emit func(encoded string), onError func(error)) *Pipeline {
	if onError == nil {
		onError = func(err error) { log.Printf("[capture] %v", err) }
	}
	return &Pipeline{
		acquire:  factory,
		schedule: schedule,
		emit:     emit,
		onError:  onError,
		state:    StateIdle,
	}
}

// State returns the current pipeline phase.
func (p *Pipeline) State() State {
	return p.state
}

// Recording reports whether a capture session is live or being set up.
func (p *Pipeline) Recording() bool {
	return p.state == StateAcquiring || p.state == StateRecording
}

// Start begins a recording gesture. Rejected with ErrBusy while a session
// exists in any phase, so a second device is never opened.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.state != StateIdle {
		return ErrBusy
	}
	p.state = StateAcquiring
	p.chunks = nil
	gen := p.gen

	go func() {
		device, err := p.acquire(ctx)
		p.schedule(func() { p.acquired(gen, device, err) })
	}()
	return nil
}

// acquired finishes the Acquiring phase. A stale result (the gesture was
// cancelled while the grant was pending) releases the device immediately.
func (p *Pipeline) acquired(gen int, device Device, err error) {
	if gen != p.gen || p.state != StateAcquiring {
		if device != nil {
			_ = device.Stop()
		}
		return
	}
	if err != nil {
		p.state = StateIdle
		p.onError(fmt.Errorf("microphone acquisition failed: %w", err))
		return
	}
	p.device = device
	p.state = StateRecording

	go p.pump(gen, device)
}

// pump forwards device chunks onto the session loop and signals the end of
// the stream, preserving arrival order.
func (p *Pipeline) pump(gen int, device Device) {
	for chunk := range device.Chunks() {
		buf := chunk
		p.schedule(func() { p.addChunk(gen, buf) })
	}
	p.schedule(func() { p.drained(gen) })
}

func (p *Pipeline) addChunk(gen int, chunk []byte) {
	if gen != p.gen || len(chunk) == 0 {
		return
	}
	if p.state != StateRecording && p.state != StateEncoding {
		return
	}
	p.chunks = append(p.chunks, chunk)
}

// Stop ends the recording gesture. The device is released synchronously;
// encoding completes once the tail chunks have drained. Stopping with zero
// buffered chunks still emits an empty voice payload.
func (p *Pipeline) Stop() {
	switch p.state {
	case StateRecording:
		p.state = StateEncoding
		_ = p.device.Stop()
	case StateAcquiring:
		// Cancel a gesture whose permission grant is still pending.
		p.gen++
		p.state = StateIdle
	}
}

// drained runs after the device stream closed with every chunk delivered.
// It also covers a device dying mid-recording, which ends the gesture the
// same way a stop does.
func (p *Pipeline) drained(gen int) {
	if gen != p.gen {
		return
	}
	switch p.state {
	case StateRecording:
		log.Printf("[capture] device ended recording on its own")
		p.state = StateEncoding
		_ = p.device.Stop()
	case StateEncoding:
	default:
		return
	}
	p.finishEncoding()
}

// finishEncoding concatenates buffered chunks in arrival order and emits
// the base64 conversion. The conversion is byte-exact round-trippable.
func (p *Pipeline) finishEncoding() {
	total := 0
	for _, chunk := range p.chunks {
		total += len(chunk)
	}
	joined := make([]byte, 0, total)
	for _, chunk := range p.chunks {
		joined = append(joined, chunk...)
	}

	p.gen++
	p.device = nil
	p.chunks = nil
	p.state = StateIdle

	p.emit(base64.StdEncoding.EncodeToString(joined))
}
