package audio

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

var (
	// ErrNoDevice 当前没有可用的播放设备（浏览器未连接）。
	ErrNoDevice = errors.New("audio: no output device")
	// ErrClosed 音频上下文已关闭。
	ErrClosed = errors.New("audio: context closed")
)

// Sink 实际的音频输出设备。
type Sink interface {
	Resume(ctx context.Context) error
	StartTone(ctx context.Context, id string, tone Tone) error
	StopTone(ctx context.Context, id string) error
	PlayClip(ctx context.Context, clip focus.AudioClip) error
}

// State 音频上下文状态。
type State string

const (
	StateSuspended State = "suspended"
	StateRunning   State = "running"
	StateClosed    State = "closed"
)

// Context 包装一个输出设备及其 Suspended → Running 状态机。
// 创建一次后按引用传给 Coordinator，与会话阶段无关。
type Context struct {
	mu     sync.Mutex
	state  State
	sink   Sink
	logger *zap.Logger
}

// NewContext 创建处于 Suspended 状态的音频上下文。
func NewContext(sink Sink, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{state: StateSuspended, sink: sink, logger: logger}
}

// State 返回当前状态。
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume 请求设备恢复播放；失败时保持 Suspended。
func (c *Context) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateRunning:
		return nil
	}
	if c.sink == nil {
		return ErrNoDevice
	}
	if err := c.sink.Resume(ctx); err != nil {
		return err
	}
	c.state = StateRunning
	c.logger.Debug("audio context running")
	return nil
}

// Suspend 设备断开或浏览器挂起时回到 Suspended。
func (c *Context) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		c.state = StateSuspended
	}
}

// Close 关闭上下文，之后所有操作返回 ErrClosed。
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
}

// device 返回可用的设备；上下文挂起时先尝试恢复。
func (c *Context) device(ctx context.Context) (Sink, error) {
	if err := c.Resume(ctx); err != nil {
		return nil, err
	}
	return c.sink, nil
}
