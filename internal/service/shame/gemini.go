package shame

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/audio"
)

// NewGeminiClient 使用 API Key 创建 Gemini 客户端。baseURL 为空时使用官方地址。
func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

// GeminiTextGenerator 使用 Gemini 文本模型生成文案。
type GeminiTextGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiTextGenerator 创建文本生成器，model 为空时使用 gemini-2.5-flash。
func NewGeminiTextGenerator(client *genai.Client, model string, temperature float64) *GeminiTextGenerator {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiTextGenerator{client: client, model: model, temperature: float32(temperature)}
}

// GenerateText 实现 TextGenerator。
func (g *GeminiTextGenerator) GenerateText(ctx context.Context) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(UserPrompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return resp.Text(), nil
}

// GeminiSynthesizer 使用 Gemini TTS 模型朗读文案，输出 24kHz PCM 并封装为 WAV。
type GeminiSynthesizer struct {
	client *genai.Client
	model  string
	voice  string
}

// NewGeminiSynthesizer 创建语音合成器，voice 为空时使用 Fenrir。
func NewGeminiSynthesizer(client *genai.Client, model, voice string) *GeminiSynthesizer {
	if model == "" {
		model = "gemini-2.5-flash-preview-tts"
	}
	if voice == "" {
		voice = "Fenrir"
	}
	return &GeminiSynthesizer{client: client, model: model, voice: voice}
}

// Synthesize 实现 Synthesizer。
func (s *GeminiSynthesizer) Synthesize(ctx context.Context, text string) (*focus.AudioClip, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini tts: %w", err)
	}

	pcm := inlineAudio(resp)
	if len(pcm) == 0 {
		return nil, errors.New("gemini tts returned no audio")
	}
	return audio.ClipFromPCM16(pcm, audio.DefaultSampleRate), nil
}

func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return nil
	}
	for _, part := range content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data
		}
	}
	return nil
}
