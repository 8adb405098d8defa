package shame

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

// TextGenerator 生成一条羞辱文案。
type TextGenerator interface {
	GenerateText(ctx context.Context) (string, error)
}

// Synthesizer 把文本合成为可播放的音频。
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*focus.AudioClip, error)
}

// Generator 组合文案与语音，任何失败都降级而不是报错。
type Generator struct {
	text    TextGenerator
	voice   Synthesizer
	intn    func(n int) int
	timeout time.Duration
	logger  *zap.Logger
}

// DefaultTimeout 单次生成（文案加语音）的总时限。
const DefaultTimeout = 20 * time.Second

// Option 配置 Generator。
type Option func(*Generator)

// WithLogger 设置日志。
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTimeout 覆盖单次生成的总时限，<= 0 表示不限制。
func WithTimeout(timeout time.Duration) Option {
	return func(g *Generator) {
		g.timeout = timeout
	}
}

// WithRandom 替换兜底文案的随机源，测试用。
func WithRandom(intn func(n int) int) Option {
	return func(g *Generator) {
		if intn != nil {
			g.intn = intn
		}
	}
}

// NewGenerator 创建生成器；text 或 voice 为 nil 表示该能力不可用。
func NewGenerator(text TextGenerator, voice Synthesizer, opts ...Option) *Generator {
	g := &Generator{
		text:    text,
		voice:   voice,
		intn:    rand.IntN,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate 总是返回非空文案；语音合成失败时只返回文本。每条路径只尝试一次。
func (g *Generator) Generate(ctx context.Context) focus.ShameContent {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	text, failed := g.generateText(ctx)
	content := focus.ShameContent{Text: text, Fallback: failed}

	if g.voice == nil {
		return content
	}
	clip, err := g.voice.Synthesize(ctx, SpeechPrefix+content.Text)
	if err != nil {
		g.logger.Warn("speech synthesis failed, continuing with text only", zap.Error(err))
		return content
	}
	if clip != nil && len(clip.Data) > 0 {
		content.Clip = clip
	}
	return content
}

// generateText 返回文案，以及模型调用是否失败。
func (g *Generator) generateText(ctx context.Context) (string, bool) {
	if g.text == nil {
		return g.fallback(), false
	}

	text, err := g.text.GenerateText(ctx)
	if err != nil {
		g.logger.Warn("shame text generation failed, use fallback", zap.Error(err))
		return g.fallback(), true
	}
	text = strings.TrimSpace(text)
	if text == "" {
		g.logger.Warn("shame text generation returned empty text, use fallback")
		return g.fallback(), true
	}
	return text, false
}

func (g *Generator) fallback() string {
	return fallbackInsults[g.intn(len(fallbackInsults))]
}
