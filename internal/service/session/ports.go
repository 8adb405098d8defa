package session

import (
	"context"
	"errors"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

// ErrNoSession 用户尚未建立会话。
var ErrNoSession = errors.New("session: not established")

// ContentGenerator 生成羞辱内容，必须总能返回。
type ContentGenerator interface {
	Generate(ctx context.Context) focus.ShameContent
}

// StatsStore 按用户读写统计。
type StatsStore interface {
	Read(ctx context.Context, userID string) focus.UserStats
	RecordSuccess(ctx context.Context, userID string, minutes int) (focus.UserStats, error)
	RecordShame(ctx context.Context, userID string) focus.UserStats
	SetSocialLinked(ctx context.Context, userID string, linked bool) focus.UserStats
}

// AudioCoordinator 控制器需要的音频原语。
type AudioCoordinator interface {
	Resume(ctx context.Context) error
	StartAlarm(ctx context.Context) error
	StopAlarm(ctx context.Context) error
	PlayClip(ctx context.Context, clip *focus.AudioClip) error
	PlayChime(ctx context.Context) error
}

// Observer 在每次状态变更后收到快照。
// Notify 在控制器锁内调用，实现不得回调控制器，也不应阻塞。
type Observer interface {
	Notify(snapshot focus.Snapshot)
}

// ObserverFunc 函数适配器。
type ObserverFunc func(focus.Snapshot)

// Notify 实现 Observer。
func (f ObserverFunc) Notify(s focus.Snapshot) { f(s) }
