package shame

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/shame-alarm/backend/internal/config"
	speechmodel "github.com/zhouzirui/shame-alarm/backend/internal/model/speech"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/speech"
)

// NewFromConfig 按 SHAME_TEXT_PROVIDER / SHAME_TTS_PROVIDER 组装生成器。
// 显式指定的提供方无法初始化时返回错误；auto 模式下缺少凭证则降级为兜底文案或纯文本。
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var gemini *genai.Client
	geminiClient := func() (*genai.Client, error) {
		if gemini != nil {
			return gemini, nil
		}
		if !cfg.Gemini.Enabled() {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		client, err := NewGeminiClient(ctx, cfg.Gemini.APIKey, "")
		if err != nil {
			return nil, err
		}
		gemini = client
		return client, nil
	}

	text, err := buildTextGenerator(ctx, cfg, geminiClient)
	if err != nil {
		return nil, err
	}
	voice, err := buildSynthesizer(cfg, logger, geminiClient)
	if err != nil {
		return nil, err
	}

	logger.Info("shame generator ready",
		zap.Bool("text", text != nil),
		zap.Bool("voice", voice != nil),
		zap.String("textProvider", TextProvider(cfg)),
		zap.String("ttsProvider", TTSProvider(cfg)),
	)
	return NewGenerator(text, voice, append([]Option{WithLogger(logger)}, opts...)...), nil
}

// TextProvider 解析 auto 之后实际使用的文本提供方。
func TextProvider(cfg *config.Config) string {
	if cfg.Shame.TextProvider != "auto" {
		return cfg.Shame.TextProvider
	}
	switch {
	case cfg.Gemini.Enabled():
		return "gemini"
	case cfg.AI.Enabled():
		return "ark"
	default:
		return "none"
	}
}

// TTSProvider 解析 auto 之后实际使用的语音提供方。
func TTSProvider(cfg *config.Config) string {
	if cfg.Shame.TTSProvider != "auto" {
		return cfg.Shame.TTSProvider
	}
	switch {
	case cfg.Gemini.Enabled():
		return "gemini"
	case cfg.Speech.Enabled:
		return "volcengine"
	default:
		return "none"
	}
}

func buildTextGenerator(ctx context.Context, cfg *config.Config, geminiClient func() (*genai.Client, error)) (TextGenerator, error) {
	switch TextProvider(cfg) {
	case "gemini":
		client, err := geminiClient()
		if err != nil {
			return nil, fmt.Errorf("gemini text provider: %w", err)
		}
		return NewGeminiTextGenerator(client, cfg.Gemini.TextModel, cfg.Shame.Temperature), nil
	case "ark":
		chatModel, err := cfg.AI.NewChatModel(ctx, cfg.Shame.Temperature)
		if err != nil {
			return nil, fmt.Errorf("ark text provider: %w", err)
		}
		return NewArkTextGenerator(ctx, chatModel)
	default:
		return nil, nil
	}
}

func buildSynthesizer(cfg *config.Config, logger *zap.Logger, geminiClient func() (*genai.Client, error)) (Synthesizer, error) {
	switch TTSProvider(cfg) {
	case "gemini":
		client, err := geminiClient()
		if err != nil {
			return nil, fmt.Errorf("gemini tts provider: %w", err)
		}
		return NewGeminiSynthesizer(client, cfg.Gemini.TTSModel, cfg.Gemini.Voice), nil
	case "volcengine":
		svc := speech.NewService(SpeechModelConfig(cfg.Speech), speech.WithLogger(logger.Named("tts")))
		if !svc.Configured() {
			return nil, fmt.Errorf("volcengine tts provider: %w", speech.ErrMissingCredentials)
		}
		return NewSpeechSynthesizer(svc, ""), nil
	default:
		return nil, nil
	}
}

// SpeechModelConfig 把环境配置转换为语音服务配置。
func SpeechModelConfig(cfg config.SpeechConfig) *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		AppID:       cfg.AppID,
		AccessToken: cfg.AccessToken,
		APIKey:      cfg.APIKey,
		TTSVoice:    cfg.TTSVoice,
		TTSSpeed:    cfg.TTSSpeed,
		TTSVolume:   cfg.TTSVolume,
		TTSLanguage: cfg.TTSLanguage,
		Timeout:     cfg.Timeout,
	}
}
