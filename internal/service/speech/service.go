package speech

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/speech"
)

// Service 语音合成服务
type Service struct {
	config    *speech.SpeechConfig
	ttsClient *VolcengineTTSClient
}

// Option 配置 Service
type Option func(*options)

type options struct {
	endpoint string
	logger   *zap.Logger
}

// WithEndpoint 覆盖 TTS WebSocket 地址
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewService 创建语音服务实例
func NewService(config *speech.SpeechConfig, opts ...Option) *Service {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return &Service{
		config:    config,
		ttsClient: NewVolcengineTTSClient(config, o.endpoint, o.logger),
	}
}

// Configured 是否具备调用凭证
func (s *Service) Configured() bool {
	_, _, err := resolveCredentials(s.config)
	return err == nil
}

// SynthesizeSpeech 文字转语音
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	return s.ttsClient.Synthesize(ctx, req)
}

// SynthesizeToBuffer 按默认参数合成一段文本
func (s *Service) SynthesizeToBuffer(ctx context.Context, sessionID, text, voice string) (*speech.TTSResponse, error) {
	return s.SynthesizeSpeech(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		Text:      strings.TrimSpace(text),
		Voice:     voice,
	})
}
