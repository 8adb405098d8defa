package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/service/audio"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/live"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/session"
)

// ControllerDeps 每个用户共享的服务。
type ControllerDeps struct {
	Hub        *live.Hub
	Generator  session.ContentGenerator
	Stats      session.StatsStore
	Clock      session.Clock
	MaxMinutes int
	Logger     *zap.Logger
}

// NewControllerFactory 为每个用户组装控制器：实时通道同时充当音频设备、
// 可见性来源和快照观察者，音频上下文在浏览器断开时回到挂起状态。
func NewControllerFactory(ctx context.Context, deps ControllerDeps) session.Factory {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(userID string) *session.Controller {
		channel := deps.Hub.Acquire(userID)
		audioCtx := audio.NewContext(channel, logger.Named("audio"))
		channel.OnAudioState(func(running bool) {
			if !running {
				audioCtx.Suspend()
			}
		})

		return session.NewController(ctx, session.Deps{
			UserID:     userID,
			Generator:  deps.Generator,
			Stats:      deps.Stats,
			Audio:      audio.NewCoordinator(audioCtx, logger.Named("audio")),
			Visibility: channel.Visibility(),
			Clock:      deps.Clock,
			Observer:   channel,
			Logger:     logger.Named("session"),
			MaxMinutes: deps.MaxMinutes,
			OnClose:    func() { deps.Hub.Release(userID) },
		})
	}
}
