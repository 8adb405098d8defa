package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

const (
	tickInterval  = time.Second
	postingAfter  = 3 * time.Second
	postedAfter   = 5500 * time.Millisecond
	defaultMaxMin = 180
)

// Deps 控制器依赖。Generator、Stats、Audio 为必填。
type Deps struct {
	UserID     string
	Generator  ContentGenerator
	Stats      StatsStore
	Audio      AudioCoordinator
	Visibility *Visibility
	Clock      Clock
	Observer   Observer
	Logger     *zap.Logger
	MaxMinutes int
	// OnClose 在 Close 完成后调用一次，用于释放按用户分配的资源。
	OnClose func()
}

// prefetch 一次空闲期内的后台预生成。
type prefetch struct {
	done    chan struct{}
	content focus.ShameContent
	idleGen uint64
}

// Controller 单个用户的专注会话状态机。
// 所有状态迁移及其副作用（音频指令、统计写入）都在 mu 内完成；
// 只有内容生成在锁外进行，期间以 starting 标记占位。
type Controller struct {
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	userID     string
	generator  ContentGenerator
	stats      StatsStore
	audio      AudioCoordinator
	visibility *Visibility
	clock      Clock
	observer   Observer
	logger     *zap.Logger
	maxMinutes int
	onClose    func()

	identity  focus.Identity
	phase     focus.Phase
	stage     focus.ShameStage
	starting  bool
	cfg       *focus.SessionConfig
	remaining int
	content   *focus.ShameContent
	pending   *prefetch
	userStats focus.UserStats
	closed    bool

	// episode 每次迁移自增，定时器回调据此丢弃过期事件
	episode uint64
	// idleGen 每进入或离开一次 Idle 自增，用于作废过期的预生成结果
	idleGen uint64

	tick        Timer
	stageTimers []Timer
	unsubscribe func()
}

// NewController 创建处于 Onboarding 阶段的控制器。
func NewController(parent context.Context, deps Deps) *Controller {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	c := &Controller{
		ctx:        ctx,
		cancel:     cancel,
		userID:     deps.UserID,
		generator:  deps.Generator,
		stats:      deps.Stats,
		audio:      deps.Audio,
		visibility: deps.Visibility,
		clock:      deps.Clock,
		observer:   deps.Observer,
		logger:     deps.Logger,
		maxMinutes: deps.MaxMinutes,
		onClose:    deps.OnClose,
		phase:      focus.PhaseOnboarding,
		userStats:  focus.DefaultStats(),
	}
	if c.userID == "" {
		c.userID = focus.GuestUserID
	}
	if c.visibility == nil {
		c.visibility = NewVisibility()
	}
	if c.clock == nil {
		c.clock = RealClock()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.maxMinutes == 0 {
		c.maxMinutes = defaultMaxMin
	}
	c.logger = c.logger.With(zap.String("user", c.userID))
	return c
}

// UserID 控制器所属用户。
func (c *Controller) UserID() string {
	return c.userID
}

// Visibility 返回控制器监听的可见性信号源。
func (c *Controller) Visibility() *Visibility {
	return c.visibility
}

// Snapshot 返回当前只读视图。
func (c *Controller) Snapshot() focus.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Establish 身份建立：Onboarding → Idle，对齐社交绑定标记，播放提示音并开始预生成。
// 已离开 Onboarding 时只刷新身份与统计，返回 false。
func (c *Controller) Establish(ctx context.Context, identity focus.Identity) (focus.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.snapshotLocked(), false
	}

	identity.UserID = c.userID
	c.identity = identity
	if identity.SocialLinked {
		c.userStats = c.stats.SetSocialLinked(ctx, c.userID, true)
	} else {
		c.userStats = c.stats.Read(ctx, c.userID)
	}

	if c.phase != focus.PhaseOnboarding {
		c.notifyLocked()
		return c.snapshotLocked(), false
	}

	c.phase = focus.PhaseIdle
	c.idleGen++
	if err := c.audio.PlayChime(ctx); err != nil {
		c.logger.Debug("login chime not played", zap.Error(err))
	}
	c.logger.Info("session established", zap.Bool("socialLinked", identity.SocialLinked))
	c.schedulePrefetchLocked()
	c.notifyLocked()
	return c.snapshotLocked(), true
}

// Refresh 重新读取统计并推送快照，用于资料在会话之外被修改之后。
func (c *Controller) Refresh(ctx context.Context) focus.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.userStats = c.stats.Read(ctx, c.userID)
		c.notifyLocked()
	}
	return c.snapshotLocked()
}

// SignOut 身份清除：从任意阶段回到 Onboarding。
func (c *Controller) SignOut() (focus.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.phase == focus.PhaseOnboarding {
		return c.snapshotLocked(), false
	}

	c.teardownLocked()
	c.phase = focus.PhaseOnboarding
	c.identity = focus.Identity{}
	c.logger.Info("session cleared")
	c.notifyLocked()
	return c.snapshotLocked(), true
}

// Start 以给定配置开始专注。仅在 Idle 且没有进行中的开始请求时生效。
// 优先使用预生成内容，其次等待进行中的预生成，最后同步生成。
func (c *Controller) Start(ctx context.Context, cfg focus.SessionConfig) (focus.Snapshot, bool, error) {
	if err := cfg.Validate(c.maxMinutes); err != nil {
		return c.Snapshot(), false, err
	}

	c.mu.Lock()
	if c.closed || c.phase != focus.PhaseIdle || c.starting {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, false, nil
	}
	c.starting = true
	token := c.idleGen
	cached, pending := c.content, c.pending
	c.notifyLocked()
	c.mu.Unlock()

	if err := c.audio.Resume(ctx); err != nil {
		c.logger.Warn("audio context resume failed, session continues silently", zap.Error(err))
	}

	content := c.obtainContent(cached, pending)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.starting = false
	if c.closed || c.phase != focus.PhaseIdle || c.idleGen != token {
		// 等待期间被登出或关闭
		c.notifyLocked()
		return c.snapshotLocked(), false, nil
	}

	c.idleGen++
	c.pending = nil
	c.content = &content
	c.cfg = &cfg
	c.remaining = cfg.Seconds()
	c.phase = focus.PhaseCounting
	c.episode++

	ep := c.episode
	c.unsubscribe = c.visibility.Subscribe(func(hidden bool) { c.onVisibility(ep, hidden) })
	c.armTickLocked(ep)

	c.logger.Info("focus started", zap.Int("minutes", cfg.DurationMinutes), zap.Bool("strict", cfg.StrictMode))
	c.notifyLocked()
	return c.snapshotLocked(), true, nil
}

func (c *Controller) obtainContent(cached *focus.ShameContent, pending *prefetch) focus.ShameContent {
	if cached != nil {
		return *cached
	}
	if pending != nil {
		select {
		case <-pending.done:
			return pending.content
		case <-c.ctx.Done():
			return c.generator.Generate(c.ctx)
		}
	}
	return c.generator.Generate(c.ctx)
}

// Cancel 主动放弃：Counting → Shaming，其余阶段为空操作。
func (c *Controller) Cancel() (focus.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.phase != focus.PhaseCounting {
		return c.snapshotLocked(), false
	}
	c.shameLocked("give up")
	return c.snapshotLocked(), true
}

// Reset 从 Succeeded 或已发布的 Shaming 回到 Idle，并开始下一次预生成。
func (c *Controller) Reset() (focus.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resettable := c.phase == focus.PhaseSucceeded ||
		(c.phase == focus.PhaseShaming && c.stage == focus.StagePosted)
	if c.closed || !resettable {
		return c.snapshotLocked(), false
	}

	c.teardownLocked()
	c.phase = focus.PhaseIdle
	c.schedulePrefetchLocked()
	c.notifyLocked()
	return c.snapshotLocked(), true
}

// Close 释放定时器与订阅，并等待后台预生成退出。
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.teardownLocked()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *Controller) onVisibility(ep uint64, hidden bool) {
	if !hidden {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.episode != ep || c.phase != focus.PhaseCounting {
		return
	}
	if c.cfg == nil || !c.cfg.StrictMode {
		return
	}
	c.shameLocked("page hidden")
}

func (c *Controller) armTickLocked(ep uint64) {
	c.tick = c.clock.AfterFunc(tickInterval, func() { c.onTick(ep) })
}

func (c *Controller) onTick(ep uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.episode != ep || c.phase != focus.PhaseCounting {
		return
	}

	c.remaining--
	if c.remaining > 0 {
		c.armTickLocked(ep)
		c.notifyLocked()
		return
	}
	c.succeedLocked()
}

// succeedLocked 倒计时归零。一旦进入 Succeeded，本轮不可能再被羞辱。
func (c *Controller) succeedLocked() {
	c.remaining = 0
	c.phase = focus.PhaseSucceeded
	c.episode++
	c.stopTimersLocked()
	c.dropVisibilityLocked()

	if err := c.audio.StopAlarm(c.ctx); err != nil {
		c.logger.Debug("stop alarm failed", zap.Error(err))
	}

	minutes := c.cfg.DurationMinutes
	updated, err := c.stats.RecordSuccess(c.ctx, c.userID, minutes)
	if err != nil {
		c.logger.Warn("record success failed", zap.Error(err))
	} else {
		c.userStats = updated
	}
	c.logger.Info("focus succeeded", zap.Int("minutes", minutes))
	c.notifyLocked()
}

// shameLocked 进入 Shaming：记账、拉响警报、播放语音，并按时间推进子阶段。
func (c *Controller) shameLocked(reason string) {
	c.phase = focus.PhaseShaming
	c.stage = focus.StageAlarm
	c.episode++
	c.stopTimersLocked()
	c.dropVisibilityLocked()

	c.userStats = c.stats.RecordShame(c.ctx, c.userID)

	if err := c.audio.StartAlarm(c.ctx); err != nil {
		c.logger.Warn("start alarm failed", zap.Error(err))
	}
	if c.content != nil && c.content.HasAudio() {
		if err := c.audio.PlayClip(c.ctx, c.content.Clip); err != nil {
			c.logger.Warn("play shame clip failed", zap.Error(err))
		}
	}

	ep := c.episode
	c.stageTimers = append(c.stageTimers,
		c.clock.AfterFunc(postingAfter, func() { c.onStage(ep, focus.StagePosting) }),
		c.clock.AfterFunc(postedAfter, func() { c.onStage(ep, focus.StagePosted) }),
	)

	c.logger.Info("focus failed, shaming", zap.String("reason", reason))
	c.notifyLocked()
}

func (c *Controller) onStage(ep uint64, stage focus.ShameStage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.episode != ep || c.phase != focus.PhaseShaming {
		return
	}
	if stage == focus.StagePosting {
		// 警报只响到 3 秒，与整个羞辱流程的时长无关
		if err := c.audio.StopAlarm(c.ctx); err != nil {
			c.logger.Debug("stop alarm failed", zap.Error(err))
		}
	}
	c.stage = stage
	c.notifyLocked()
}

func (c *Controller) schedulePrefetchLocked() {
	if c.closed || c.phase != focus.PhaseIdle || c.content != nil || c.pending != nil {
		return
	}

	p := &prefetch{done: make(chan struct{}), idleGen: c.idleGen}
	c.pending = p
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		content := c.generator.Generate(c.ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		p.content = content
		close(p.done)
		if c.pending != p {
			return
		}
		c.pending = nil
		if content.Fallback {
			// 生成失败不入缓存，Start 时重新生成
			c.logger.Debug("prefetch fell back, leaving cache empty")
			return
		}
		// 正在 Start 的调用会直接取 p.content
		if !c.closed && !c.starting && c.phase == focus.PhaseIdle && c.idleGen == p.idleGen {
			c.content = &content
		}
	}()
}

// teardownLocked 停止定时器、退订、停警报并清空本轮数据。
func (c *Controller) teardownLocked() {
	c.episode++
	c.idleGen++
	c.stopTimersLocked()
	c.dropVisibilityLocked()
	if err := c.audio.StopAlarm(c.ctx); err != nil {
		c.logger.Debug("stop alarm failed", zap.Error(err))
	}
	c.stage = focus.StageNone
	c.cfg = nil
	c.remaining = 0
	c.content = nil
	c.pending = nil
}

func (c *Controller) stopTimersLocked() {
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
	for _, t := range c.stageTimers {
		t.Stop()
	}
	c.stageTimers = nil
}

func (c *Controller) dropVisibilityLocked() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Controller) snapshotLocked() focus.Snapshot {
	snap := focus.Snapshot{
		UserID:           c.userID,
		Phase:            c.phase,
		ShameStage:       c.stage,
		Loading:          c.starting,
		RemainingSeconds: c.remaining,
		Stats:            c.userStats.Clone(),
	}
	if c.cfg != nil {
		cfg := *c.cfg
		snap.Config = &cfg
	}
	if c.phase == focus.PhaseShaming && c.content != nil {
		snap.ShameText = c.content.Text
		snap.ShameHasAudio = c.content.HasAudio()
	}
	return snap
}

func (c *Controller) notifyLocked() {
	if c.observer != nil {
		c.observer.Notify(c.snapshotLocked())
	}
}
