package shame

import (
	"context"
	"fmt"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/speech"
)

// SpeechSynthesizer 通过火山引擎语音服务朗读文案。
type SpeechSynthesizer struct {
	svc   *speech.Service
	voice string
}

// NewSpeechSynthesizer voice 为空时使用服务配置的默认音色。
func NewSpeechSynthesizer(svc *speech.Service, voice string) *SpeechSynthesizer {
	return &SpeechSynthesizer{svc: svc, voice: voice}
}

// Synthesize 实现 Synthesizer。
func (s *SpeechSynthesizer) Synthesize(ctx context.Context, text string) (*focus.AudioClip, error) {
	resp, err := s.svc.SynthesizeToBuffer(ctx, "", text, s.voice)
	if err != nil {
		return nil, fmt.Errorf("volcengine tts: %w", err)
	}
	return &focus.AudioClip{
		Format:     resp.Format,
		MIMEType:   mimeTypeFor(resp.Format),
		SampleRate: resp.SampleRate,
		Data:       resp.AudioData,
	}, nil
}

func mimeTypeFor(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "ogg_opus":
		return "audio/ogg"
	case "pcm":
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}
