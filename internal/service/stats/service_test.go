package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/redis/go-redis/v9"
	"github.com/supabase-community/supabase-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) addDays(n int) { c.now = c.now.AddDate(0, 0, n) }

func newTestService(t *testing.T, backend Backend) (*Service, *stepClock) {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)}
	return NewService(backend, WithClock(clock.Now)), clock
}

func TestReadReturnsDefaultsForNewUser(t *testing.T) {
	svc, _ := newTestService(t, nil)

	st := svc.Read(context.Background(), "alice")
	assert.Equal(t, focus.DefaultStats(), st)
}

func TestRecordSuccessFreshUser(t *testing.T) {
	svc, _ := newTestService(t, nil)

	st, err := svc.RecordSuccess(context.Background(), "alice", 25)
	require.NoError(t, err)
	assert.Equal(t, 25, st.TotalFocusMinutes)
	assert.Equal(t, 1, st.CurrentStreakDays)
	assert.Equal(t, 0, st.ShameCount)
	require.NotNil(t, st.LastFocusDate)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.March, Day: 9}, *st.LastFocusDate)
}

func TestRecordSuccessRejectsNonPositiveMinutes(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.RecordSuccess(context.Background(), "alice", 0)
	assert.ErrorIs(t, err, ErrInvalidMinutes)
	assert.Equal(t, 0, svc.Read(context.Background(), "alice").TotalFocusMinutes)
}

func TestStreakProgression(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, nil)

	st, _ := svc.RecordSuccess(ctx, "u", 10)
	assert.Equal(t, 1, st.CurrentStreakDays)

	st, _ = svc.RecordSuccess(ctx, "u", 10)
	assert.Equal(t, 1, st.CurrentStreakDays, "same day keeps streak")

	clock.addDays(1)
	st, _ = svc.RecordSuccess(ctx, "u", 10)
	assert.Equal(t, 2, st.CurrentStreakDays)

	clock.addDays(1)
	st, _ = svc.RecordSuccess(ctx, "u", 10)
	assert.Equal(t, 3, st.CurrentStreakDays)

	clock.addDays(2)
	st, _ = svc.RecordSuccess(ctx, "u", 10)
	assert.Equal(t, 1, st.CurrentStreakDays, "gap resets to one")
	assert.Equal(t, 50, st.TotalFocusMinutes)
}

func TestRecordShameResetsStreakOnly(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, nil)

	_, _ = svc.RecordSuccess(ctx, "u", 30)
	clock.addDays(1)
	before, _ := svc.RecordSuccess(ctx, "u", 15)
	require.Equal(t, 2, before.CurrentStreakDays)

	st := svc.RecordShame(ctx, "u")
	assert.Equal(t, 0, st.CurrentStreakDays)
	assert.Equal(t, 1, st.ShameCount)
	assert.Equal(t, 45, st.TotalFocusMinutes)
	assert.Equal(t, before.LastFocusDate, st.LastFocusDate)

	st = svc.RecordShame(ctx, "u")
	assert.Equal(t, 2, st.ShameCount)
	assert.Equal(t, 45, st.TotalFocusMinutes)
}

func TestNextStreak(t *testing.T) {
	today := civil.Date{Year: 2026, Month: time.January, Day: 1}
	yesterday := today.AddDays(-1)
	lastWeek := today.AddDays(-7)

	tests := []struct {
		name    string
		current int
		last    *civil.Date
		want    int
	}{
		{"first ever", 0, nil, 1},
		{"same day", 4, &today, 4},
		{"same day after shame", 0, &today, 0},
		{"across year boundary", 4, &yesterday, 5},
		{"after shame yesterday", 0, &yesterday, 1},
		{"long gap", 9, &lastWeek, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextStreak(tt.current, tt.last, today))
		})
	}
}

func TestStreakUsesConfiguredLocation(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	// 2026-03-09 20:00 UTC 在东八区已是 3 月 10 日
	now := time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC)
	svc := NewService(nil, WithLocation(shanghai), WithClock(func() time.Time { return now }))

	st, err := svc.RecordSuccess(context.Background(), "u", 5)
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.March, Day: 10}, *st.LastFocusDate)
}

func TestSetSocialLinkedIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	first := svc.SetSocialLinked(ctx, "u", true)
	second := svc.SetSocialLinked(ctx, "u", true)
	assert.True(t, first.SocialLinked)
	assert.Equal(t, first, second)

	assert.False(t, svc.SetSocialLinked(ctx, "u", false).SocialLinked)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	avatar := " https://example.com/a.png "
	st, err := svc.UpdateProfile(ctx, "u", " Zed ", &avatar)
	require.NoError(t, err)
	assert.Equal(t, "Zed", st.Username)
	require.NotNil(t, st.AvatarRef)
	assert.Equal(t, "https://example.com/a.png", *st.AvatarRef)

	st, err = svc.UpdateProfile(ctx, "u", "Zed", nil)
	require.NoError(t, err)
	assert.Nil(t, st.AvatarRef)

	_, err = svc.UpdateProfile(ctx, "u", "   ", nil)
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestUsersAreIsolated(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, _ = svc.RecordSuccess(ctx, "a", 20)
	svc.RecordShame(ctx, "b")

	assert.Equal(t, 20, svc.Read(ctx, "a").TotalFocusMinutes)
	assert.Equal(t, 0, svc.Read(ctx, "a").ShameCount)
	assert.Equal(t, 0, svc.Read(ctx, "b").TotalFocusMinutes)
	assert.Equal(t, 1, svc.Read(ctx, "b").ShameCount)
}

func TestReturnedStatsDoNotAliasCache(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	st, _ := svc.RecordSuccess(ctx, "u", 5)
	st.LastFocusDate.Day = 1

	again := svc.Read(ctx, "u")
	assert.Equal(t, 9, again.LastFocusDate.Day)
}

func TestPartialDocumentMergesOntoDefaults(t *testing.T) {
	backend := newMemoryBackend()
	require.NoError(t, backend.Save(context.Background(), "u", []byte(`{"totalFocusMinutes":42,"lastFocusDate":"2026-03-08"}`)))

	svc, _ := newTestService(t, backend)
	st := svc.Read(context.Background(), "u")
	assert.Equal(t, focus.DefaultUsername, st.Username)
	assert.Equal(t, 42, st.TotalFocusMinutes)

	next, err := svc.RecordSuccess(context.Background(), "u", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, next.CurrentStreakDays)
}

func TestCorruptDocumentFallsBackToDefaults(t *testing.T) {
	backend := newMemoryBackend()
	require.NoError(t, backend.Save(context.Background(), "u", []byte(`{not json`)))

	svc, _ := newTestService(t, backend)
	assert.Equal(t, focus.DefaultStats(), svc.Read(context.Background(), "u"))
}

func TestStatsPersistAcrossServices(t *testing.T) {
	backend := newMemoryBackend()
	ctx := context.Background()

	first, _ := newTestService(t, backend)
	_, _ = first.RecordSuccess(ctx, "u", 25)
	first.RecordShame(ctx, "u")

	second, _ := newTestService(t, backend)
	st := second.Read(ctx, "u")
	assert.Equal(t, 25, st.TotalFocusMinutes)
	assert.Equal(t, 1, st.ShameCount)
}

type failingBackend struct {
	saves int
}

var errBackendDown = errors.New("backend down")

func (b *failingBackend) Load(context.Context, string) ([]byte, bool, error) {
	return nil, false, errBackendDown
}

func (b *failingBackend) Save(context.Context, string, []byte) error {
	b.saves++
	return errBackendDown
}

func (b *failingBackend) Close() error { return nil }

func TestBackendFailureKeepsInMemoryValue(t *testing.T) {
	backend := &failingBackend{}
	svc, _ := newTestService(t, backend)
	ctx := context.Background()

	st, err := svc.RecordSuccess(ctx, "u", 25)
	require.NoError(t, err)
	assert.Equal(t, 25, st.TotalFocusMinutes)

	st = svc.RecordShame(ctx, "u")
	assert.Equal(t, 1, st.ShameCount)
	assert.Equal(t, 25, svc.Read(ctx, "u").TotalFocusMinutes)
	// 文档未确认前不落盘，否则会覆盖后端中的历史数据
	assert.Zero(t, backend.saves)
}

// flakyBackend 前 failLoads 次 Load 失败，其余委托给内存后端。
type flakyBackend struct {
	*memoryBackend
	mu        sync.Mutex
	failLoads int
}

func (b *flakyBackend) Load(ctx context.Context, userID string) ([]byte, bool, error) {
	b.mu.Lock()
	if b.failLoads > 0 {
		b.failLoads--
		b.mu.Unlock()
		return nil, false, errBackendDown
	}
	b.mu.Unlock()
	return b.memoryBackend.Load(ctx, userID)
}

func persisted(t *testing.T, backend Backend, userID string) focus.UserStats {
	t.Helper()
	doc, found, err := backend.Load(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, found)
	var st focus.UserStats
	require.NoError(t, json.Unmarshal(doc, &st))
	return st
}

func TestLoadFailureNeverOverwritesStoredHistory(t *testing.T) {
	mem := newMemoryBackend()
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, "u", []byte(`{"totalFocusMinutes":500,"shameCount":7,"currentStreakDays":3}`)))

	backend := &flakyBackend{memoryBackend: mem, failLoads: 1}
	svc, _ := newTestService(t, backend)

	svc.RecordShame(ctx, "u")
	stored := persisted(t, mem, "u")
	assert.Equal(t, 500, stored.TotalFocusMinutes)
	assert.Equal(t, 7, stored.ShameCount)

	// 下一次调用重新加载，并把期间的修改重放到真实文档上
	st := svc.Read(ctx, "u")
	assert.Equal(t, 500, st.TotalFocusMinutes)
	assert.Equal(t, 8, st.ShameCount)
	assert.Equal(t, 0, st.CurrentStreakDays)

	stored = persisted(t, mem, "u")
	assert.Equal(t, 500, stored.TotalFocusMinutes)
	assert.Equal(t, 8, stored.ShameCount)

	st, err := svc.RecordSuccess(ctx, "u", 10)
	require.NoError(t, err)
	assert.Equal(t, 510, st.TotalFocusMinutes)
	assert.Equal(t, 510, persisted(t, mem, "u").TotalFocusMinutes)
}

// stuckBackend 指定用户的 Save 一直阻塞，直到 release 关闭，且不理会 ctx。
type stuckBackend struct {
	*memoryBackend
	stuckUser string
	started   chan struct{}
	release   chan struct{}
}

func (b *stuckBackend) Save(ctx context.Context, userID string, doc []byte) error {
	if userID == b.stuckUser {
		close(b.started)
		<-b.release
	}
	return b.memoryBackend.Save(ctx, userID, doc)
}

func TestSlowSaveDoesNotBlockOtherUsers(t *testing.T) {
	backend := &stuckBackend{
		memoryBackend: newMemoryBackend(),
		stuckUser:     "slow",
		started:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	svc := NewService(backend, WithTimeout(100*time.Millisecond))
	ctx := context.Background()

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		svc.RecordShame(ctx, "slow")
	}()
	<-backend.started

	otherDone := make(chan focus.UserStats, 1)
	go func() {
		otherDone <- svc.RecordShame(ctx, "other")
	}()

	select {
	case st := <-otherDone:
		assert.Equal(t, 1, st.ShameCount)
	case <-time.After(time.Second):
		t.Fatal("stats call for another user blocked behind a slow save")
	}

	close(backend.release)
	<-slowDone
	assert.Equal(t, 1, svc.Read(ctx, "slow").ShameCount)
}

func TestSupabaseBackendHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client, err := supabase.NewClient(server.URL, "eyJ-test-key", nil)
	require.NoError(t, err)
	backend, err := NewBackend(StoreTypeSupabase, WithSupabaseClient(client))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = backend.Save(ctx, "u", []byte(`{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	_, _, err = backend.Load(ctx, "u")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnreachableRedisDoesNotFailSession(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	backend, err := NewBackend(StoreTypeRedis, WithRedisClient(client))
	require.NoError(t, err)
	defer backend.Close()

	svc := NewService(backend, WithTimeout(time.Second))
	ctx := context.Background()

	st, err := svc.RecordSuccess(ctx, "u", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, st.TotalFocusMinutes)
	assert.Equal(t, 10, svc.Read(ctx, "u").TotalFocusMinutes)
}

func TestNewBackendValidation(t *testing.T) {
	_, err := NewBackend(StoreTypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBackend(StoreTypeSupabase)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBackend(StoreTypeSQLite)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBackend(StoreType("etcd"))
	assert.ErrorIs(t, err, ErrInvalidStoreType)

	backend, err := NewBackend(StoreTypeMemory)
	require.NoError(t, err)
	assert.NoError(t, backend.Close())
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "stats.db"))
	require.NoError(t, err)

	backend, err := NewBackend(StoreTypeSQLite, WithSQLDB(db))
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	_, found, err := backend.Load(ctx, "u")
	require.NoError(t, err)
	assert.False(t, found)

	svc, _ := newTestService(t, backend)
	_, err = svc.RecordSuccess(ctx, "u", 30)
	require.NoError(t, err)
	svc.RecordShame(ctx, "u")

	reloaded, _ := newTestService(t, backend)
	st := reloaded.Read(ctx, "u")
	assert.Equal(t, 30, st.TotalFocusMinutes)
	assert.Equal(t, 1, st.ShameCount)
	assert.Equal(t, 0, st.CurrentStreakDays)
}
