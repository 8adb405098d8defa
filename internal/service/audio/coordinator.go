package audio

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

// Coordinator 对警报、语音片段和提示音排序，保证同一时刻至多一个警报。
type Coordinator struct {
	mu      sync.Mutex
	audio   *Context
	alarmID string
	logger  *zap.Logger
}

// NewCoordinator 基于给定音频上下文创建协调器。
func NewCoordinator(audioCtx *Context, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{audio: audioCtx, logger: logger}
}

// Context 返回协调器使用的音频上下文。
func (c *Coordinator) Context() *Context {
	return c.audio
}

// Resume 恢复音频上下文，通常在用户手势（开始专注）时调用。
func (c *Coordinator) Resume(ctx context.Context) error {
	return c.audio.Resume(ctx)
}

// StartAlarm 启动警报；已有警报时先停掉旧的。
func (c *Coordinator) StartAlarm(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sink, err := c.audio.device(ctx)
	if err != nil {
		return err
	}

	if c.alarmID != "" {
		if err := sink.StopTone(ctx, c.alarmID); err != nil {
			c.logger.Debug("stop previous alarm failed", zap.String("tone", c.alarmID), zap.Error(err))
		}
		c.alarmID = ""
	}

	id := uuid.NewString()
	if err := sink.StartTone(ctx, id, Siren()); err != nil {
		return err
	}
	c.alarmID = id
	return nil
}

// StopAlarm 停止当前警报，没有警报时什么也不做。
func (c *Coordinator) StopAlarm(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.alarmID == "" {
		return nil
	}
	id := c.alarmID
	c.alarmID = ""

	if c.audio.State() == StateClosed || c.audio.sink == nil {
		return nil
	}
	return c.audio.sink.StopTone(ctx, id)
}

// AlarmActive 报告是否有警报在播放。
func (c *Coordinator) AlarmActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alarmID != ""
}

// PlayClip 一次性播放语音片段，与警报互不影响。
func (c *Coordinator) PlayClip(ctx context.Context, clip *focus.AudioClip) error {
	if clip == nil || len(clip.Data) == 0 {
		return nil
	}
	sink, err := c.audio.device(ctx)
	if err != nil {
		return err
	}
	return sink.PlayClip(ctx, *clip)
}

// PlayChime 播放登录成功提示音。
func (c *Coordinator) PlayChime(ctx context.Context) error {
	sink, err := c.audio.device(ctx)
	if err != nil {
		return err
	}
	return sink.StartTone(ctx, uuid.NewString(), Chime())
}
