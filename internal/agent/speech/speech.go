// Package speech holds the agent's voice providers. The built-in
// implementations are deliberately simple stand-ins with real wire-correct
// output, so the full voice round trip works without external speech
// services.
package speech

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

// Synthesizer renders reply text into playable audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Recognizer transcribes captured user audio.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte) (string, error)
}

const (
	toneSampleRate = 16000
	toneFrequency  = 440.0
)

// ToneSynthesizer produces a PCM16 mono WAV sine tone whose length scales
// with the text, so playback duration roughly tracks utterance length.
type ToneSynthesizer struct {
	// MaxDuration caps the rendered clip; zero means 4 seconds.
	MaxDuration time.Duration
}

func (s ToneSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	maxDur := s.MaxDuration
	if maxDur <= 0 {
		maxDur = 4 * time.Second
	}

	// Roughly 80ms of audio per rune, clamped to something audible.
	dur := time.Duration(len([]rune(text))) * 80 * time.Millisecond
	if dur < 500*time.Millisecond {
		dur = 500 * time.Millisecond
	}
	if dur > maxDur {
		dur = maxDur
	}

	samples := int(float64(toneSampleRate) * dur.Seconds())
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		// Fade in and out to avoid clicks at the clip edges.
		envelope := 1.0
		fade := toneSampleRate / 50
		if i < fade {
			envelope = float64(i) / float64(fade)
		} else if samples-i < fade {
			envelope = float64(samples-i) / float64(fade)
		}
		v := math.Sin(2*math.Pi*toneFrequency*float64(i)/toneSampleRate) * envelope * 0.3
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16)))
	}

	return wrapWAV(pcm, toneSampleRate, 1), nil
}

// wrapWAV prefixes raw PCM16 data with a canonical RIFF/WAVE header.
func wrapWAV(pcm []byte, sampleRate, channels int) []byte {
	const headerSize = 44
	blockAlign := channels * 2
	byteRate := sampleRate * blockAlign

	buf := make([]byte, headerSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[headerSize:], pcm)
	return buf
}

// FixedRecognizer answers every transcription with the same text.
type FixedRecognizer struct {
	Transcript string
}

func (r FixedRecognizer) Recognize(ctx context.Context, audio []byte) (string, error) {
	if r.Transcript == "" {
		return "Hello, this is a test.", nil
	}
	return r.Transcript, nil
}
