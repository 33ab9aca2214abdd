package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
)

const micSampleRateHz = 16000

// ffmpegDevice captures the default microphone through an ffmpeg child
// process emitting a WAV stream on stdout.
type ffmpegDevice struct {
	cmd      *exec.Cmd
	chunks   chan []byte
	stopOnce sync.Once
}

// FFmpegFactory returns a DeviceFactory backed by the ffmpeg binary.
func FFmpegFactory() (DeviceFactory, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for microphone capture (install ffmpeg and ensure it is in PATH)")
	}
	return startFFmpeg, nil
}

func startFFmpeg(ctx context.Context) (Device, error) {
	args, err := micArgs(runtime.GOOS)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}

	d := &ffmpegDevice{cmd: cmd, chunks: make(chan []byte, 16)}

	go func() {
		defer close(d.chunks)
		buf := make([]byte, 4096)
		for {
			n, readErr := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				d.chunks <- chunk
			}
			if readErr != nil {
				_ = cmd.Wait()
				return
			}
		}
	}()

	return d, nil
}

func micArgs(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", micSampleRateHz),
			"-f", "wav", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", micSampleRateHz),
			"-f", "wav", "-",
		}, nil
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

// UnavailableFactory returns a factory that fails every acquisition, for
// deployments without a microphone. The pipeline reports the failure and
// returns to idle.
func UnavailableFactory() DeviceFactory {
	return func(ctx context.Context) (Device, error) {
		return nil, errors.New("no capture device configured")
	}
}

func (d *ffmpegDevice) Chunks() <-chan []byte {
	return d.chunks
}

func (d *ffmpegDevice) Stop() error {
	d.stopOnce.Do(func() {
		if d.cmd.Process != nil {
			_ = d.cmd.Process.Kill()
		}
	})
	return nil
}
