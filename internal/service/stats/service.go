package stats

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

// Service 统计数据的读写入口，所有方法都显式接收用户 ID。
// 进程内缓存是权威值：后端读写失败只记录日志，不影响返回结果。
// 每个用户的加载与落盘互相串行，不同用户之间互不阻塞。
type Service struct {
	mu      sync.Mutex // 只保护 records
	backend Backend
	records map[string]*record

	loc     *time.Location
	now     func() time.Time
	timeout time.Duration
	logger  *zap.Logger
}

// Option 配置 Service。
type Option func(*Service)

// WithLocation 设置判定“今天”所用的时区，默认 UTC。
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock 替换时间源，测试用。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTimeout 限制单次后端调用的耗时。
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.timeout = timeout
	}
}

// WithLogger 设置日志。
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService 创建统计服务，backend 为空时使用内存后端。
func NewService(backend Backend, opts ...Option) *Service {
	if backend == nil {
		backend = newMemoryBackend()
	}
	s := &Service{
		backend: backend,
		records: make(map[string]*record),
		loc:     time.UTC,
		now:     time.Now,
		timeout: 5 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// record 单个用户的缓存。
// loaded 为 false 时后端中的文档尚未确认，期间的修改只记在 pending 里，
// 等加载成功后重放到真实文档上再落盘，避免用默认值覆盖历史数据。
type record struct {
	mu      sync.Mutex
	stats   focus.UserStats
	loaded  bool
	pending []func(*focus.UserStats)
}

// Read 返回用户统计，新用户得到默认值。
func (s *Service) Read(ctx context.Context, userID string) focus.UserStats {
	rec := s.record(userID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	s.loadLocked(ctx, userID, rec)
	return rec.stats.Clone()
}

// RecordSuccess 累加专注分钟并更新连续天数。
func (s *Service) RecordSuccess(ctx context.Context, userID string, minutes int) (focus.UserStats, error) {
	if minutes <= 0 {
		return focus.UserStats{}, ErrInvalidMinutes
	}
	today := civil.DateOf(s.now().In(s.loc))
	return s.update(ctx, userID, func(st *focus.UserStats) {
		st.TotalFocusMinutes += minutes
		st.CurrentStreakDays = nextStreak(st.CurrentStreakDays, st.LastFocusDate, today)
		st.LastFocusDate = &today
	}), nil
}

// RecordShame 羞辱次数加一，连续天数清零，总时长和日期不变。
func (s *Service) RecordShame(ctx context.Context, userID string) focus.UserStats {
	return s.update(ctx, userID, func(st *focus.UserStats) {
		st.ShameCount++
		st.CurrentStreakDays = 0
	})
}

// SetSocialLinked 幂等地设置社交账号绑定标记。
func (s *Service) SetSocialLinked(ctx context.Context, userID string, linked bool) focus.UserStats {
	return s.update(ctx, userID, func(st *focus.UserStats) {
		st.SocialLinked = linked
	})
}

// UpdateProfile 修改昵称与头像，avatarRef 为空表示清除头像。
func (s *Service) UpdateProfile(ctx context.Context, userID, username string, avatarRef *string) (focus.UserStats, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return focus.UserStats{}, ErrInvalidProfile
	}
	var avatar *string
	if avatarRef != nil && strings.TrimSpace(*avatarRef) != "" {
		val := strings.TrimSpace(*avatarRef)
		avatar = &val
	}
	return s.update(ctx, userID, func(st *focus.UserStats) {
		st.Username = username
		st.AvatarRef = avatar
	}), nil
}

// Close 关闭后端。
func (s *Service) Close() error {
	return s.backend.Close()
}

func (s *Service) record(userID string) *record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		rec = &record{stats: focus.DefaultStats()}
		s.records[userID] = rec
	}
	return rec
}

func (s *Service) update(ctx context.Context, userID string, mutate func(*focus.UserStats)) focus.UserStats {
	rec := s.record(userID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	s.loadLocked(ctx, userID, rec)
	mutate(&rec.stats)
	if !rec.loaded {
		rec.pending = append(rec.pending, mutate)
		s.logger.Warn("stats not loaded yet, deferring save", zap.String("user", userID), zap.Int("pending", len(rec.pending)))
		return rec.stats.Clone()
	}
	s.saveLocked(ctx, userID, rec.stats)
	return rec.stats.Clone()
}

// loadLocked 在文档未确认时尝试读取后端，调用方持有 rec.mu。
func (s *Service) loadLocked(ctx context.Context, userID string, rec *record) {
	if rec.loaded {
		return
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	doc, found, err := s.backend.Load(opCtx, userID)
	if err != nil {
		s.logger.Warn("load stats failed, serving in-memory value", zap.String("user", userID), zap.Error(err))
		return
	}

	st := focus.DefaultStats()
	if found {
		// 解码到默认值之上，缺失字段保持默认
		if err := json.Unmarshal(doc, &st); err != nil {
			s.logger.Warn("decode stats failed, using defaults", zap.String("user", userID), zap.Error(err))
			st = focus.DefaultStats()
		}
	}

	pending := rec.pending
	for _, mutate := range pending {
		mutate(&st)
	}
	rec.stats = st
	rec.loaded = true
	rec.pending = nil

	if len(pending) > 0 {
		s.saveLocked(ctx, userID, st)
	}
}

func (s *Service) saveLocked(ctx context.Context, userID string, st focus.UserStats) {
	doc, err := json.Marshal(st)
	if err != nil {
		s.logger.Error("encode stats failed", zap.String("user", userID), zap.Error(err))
		return
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.backend.Save(opCtx, userID, doc); err != nil {
		s.logger.Warn("save stats failed, keeping in-memory value", zap.String("user", userID), zap.Error(err))
	}
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	// 会话已结束的请求上下文不应阻止落盘
	ctx = context.WithoutCancel(ctx)
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
