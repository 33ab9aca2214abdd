package playback

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ffplayDevice renders one audio message through an ffplay child process.
// The agent sends WAV containers, which ffplay probes on its own.
type ffplayDevice struct {
	cmd      *exec.Cmd
	stopOnce sync.Once
	stopped  chan struct{}
}

// FFplayFactory returns a DeviceFactory backed by the ffplay binary.
func FFplayFactory() (DeviceFactory, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for audio playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	return startFFplay, nil
}

func startFFplay(audio []byte, done func(err error)) (Device, error) {
	cmd := exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}

	d := &ffplayDevice{cmd: cmd, stopped: make(chan struct{})}

	go func() {
		_, writeErr := stdin.Write(audio)
		_ = stdin.Close()
		waitErr := cmd.Wait()
		select {
		case <-d.stopped:
			// Interrupted locally; the kill-induced exit is not a failure.
			return
		default:
		}
		if writeErr != nil {
			done(fmt.Errorf("write audio to ffplay: %w", writeErr))
			return
		}
		done(waitErr)
	}()

	return d, nil
}

func (d *ffplayDevice) Stop() error {
	d.stopOnce.Do(func() {
		close(d.stopped)
		if d.cmd.Process != nil {
			_ = d.cmd.Process.Kill()
		}
	})
	return nil
}

// discardDevice swallows audio without rendering it, for deployments with
// no audio output. Completion fires immediately.
type discardDevice struct{}

func (discardDevice) Stop() error { return nil }

// DiscardFactory returns a factory whose devices drop the audio and
// complete at once, so exclusivity and attribution still behave normally.
func DiscardFactory() DeviceFactory {
	return func(audio []byte, done func(err error)) (Device, error) {
		go done(nil)
		return discardDevice{}, nil
	}
}
