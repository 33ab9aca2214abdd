package speech

import (
	"context"
	"encoding/binary"
	"testing"
	"time"
)

func TestToneSynthesizerProducesValidWAV(t *testing.T) {
	audio, err := ToneSynthesizer{}.Synthesize(context.Background(), "你好呀，很高兴见到你！")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(audio) <= 44 {
		t.Fatalf("audio too short: %d bytes", len(audio))
	}
	if string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE header")
	}
	if rate := binary.LittleEndian.Uint32(audio[24:28]); rate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", rate)
	}
	dataLen := binary.LittleEndian.Uint32(audio[40:44])
	if int(dataLen) != len(audio)-44 {
		t.Fatalf("data length %d does not match payload %d", dataLen, len(audio)-44)
	}
}

func TestToneSynthesizerScalesWithText(t *testing.T) {
	short, _ := ToneSynthesizer{}.Synthesize(context.Background(), "嗯")
	long, _ := ToneSynthesizer{}.Synthesize(context.Background(), "这是一段长得多的回复，应该对应更长的音频输出片段")
	if len(long) <= len(short) {
		t.Fatalf("long reply audio (%d) not longer than short reply audio (%d)", len(long), len(short))
	}

	capped, _ := ToneSynthesizer{MaxDuration: time.Second}.Synthesize(context.Background(),
		"一段远远超过上限时长的超长文本一段远远超过上限时长的超长文本一段远远超过上限时长的超长文本")
	maxBytes := 44 + 16000*2 + 16
	if len(capped) > maxBytes {
		t.Fatalf("capped audio = %d bytes, want at most ~%d", len(capped), maxBytes)
	}
}

func TestFixedRecognizer(t *testing.T) {
	text, err := FixedRecognizer{}.Recognize(context.Background(), []byte("anything"))
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "Hello, this is a test." {
		t.Fatalf("transcript = %q", text)
	}

	custom, _ := FixedRecognizer{Transcript: "自定义转写"}.Recognize(context.Background(), nil)
	if custom != "自定义转写" {
		t.Fatalf("transcript = %q", custom)
	}
}
