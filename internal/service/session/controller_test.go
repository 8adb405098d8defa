package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/shame"
)

func TestFreshUserCompletesSession(t *testing.T) {
	h := newHarness(t)
	h.establish(t, false)

	h.start(t, 25, false)
	assert.Equal(t, 1500, h.ctrl.Snapshot().RemainingSeconds)

	h.clock.Advance(25*time.Minute - time.Second)
	snap := h.ctrl.Snapshot()
	assert.Equal(t, focus.PhaseCounting, snap.Phase)
	assert.Equal(t, 1, snap.RemainingSeconds)

	h.clock.Advance(time.Second)
	snap = h.ctrl.Snapshot()
	assert.Equal(t, focus.PhaseSucceeded, snap.Phase)
	assert.Equal(t, 0, snap.RemainingSeconds)
	assert.Equal(t, 25, snap.Stats.TotalFocusMinutes)
	assert.Equal(t, 1, snap.Stats.CurrentStreakDays)
	assert.Equal(t, 0, snap.Stats.ShameCount)
	assert.Empty(t, snap.ShameText)

	// 成功后不会再有任何定时器
	assert.Zero(t, h.clock.Pending())
	h.clock.Advance(time.Hour)
	assert.Equal(t, 25, h.ctrl.Snapshot().Stats.TotalFocusMinutes)
	assert.Equal(t, 1, h.observer.count(focus.PhaseSucceeded))
}

func TestStrictModeHiddenTriggersShame(t *testing.T) {
	h := newHarness(t)
	h.establish(t, false)

	// 先攒一天连胜
	h.start(t, 1, false)
	h.clock.Advance(time.Minute)
	require.Equal(t, 1, h.ctrl.Snapshot().Stats.CurrentStreakDays)
	_, ok := h.ctrl.Reset()
	require.True(t, ok)
	waitPrefetched(t, h.ctrl)

	h.start(t, 10, true)
	h.clock.Advance(2 * time.Second)
	h.vis.Publish(true)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, focus.PhaseShaming, snap.Phase)
	assert.Equal(t, focus.StageAlarm, snap.ShameStage)
	assert.Equal(t, "Pathetic.", snap.ShameText)
	assert.Equal(t, 1, snap.Stats.ShameCount)
	assert.Equal(t, 0, snap.Stats.CurrentStreakDays)
	assert.Equal(t, 1, snap.Stats.TotalFocusMinutes)
	assert.True(t, h.audio.active())

	h.clock.Advance(3 * time.Second)
	snap = h.ctrl.Snapshot()
	assert.Equal(t, focus.StagePosting, snap.ShameStage)
	assert.False(t, h.audio.active())

	h.clock.Advance(2500 * time.Millisecond)
	assert.Equal(t, focus.StagePosted, h.ctrl.Snapshot().ShameStage)

	snap, ok = h.ctrl.Reset()
	require.True(t, ok)
	assert.Equal(t, focus.PhaseIdle, snap.Phase)
	assert.Empty(t, snap.ShameText)
	assert.Nil(t, snap.Config)
}

func TestHiddenIgnoredWithoutStrictMode(t *testing.T) {
	h := newHarness(t)
	h.establish(t, false)
	h.start(t, 5, false)

	h.vis.Publish(true)
	h.vis.Publish(false)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, focus.PhaseCounting, snap.Phase)
	assert.Equal(t, 0, snap.Stats.ShameCount)
}

func TestVisibleEventNeverShames(t *testing.T) {
	h := newHarness(t)
	h.establish(t, false)
	h.start(t, 5, true)

	h.vis.Publish(false)
	assert.Equal(t, focus.PhaseCounting, h.ctrl.Snapshot().Phase)
}

func TestCancelIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.establish(t, false)
	h.start(t, 5, true)

	_, first := h.ctrl.Cancel()
	_, second := h.ctrl.Cancel()
	h.vis.Publish(true)

	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, 1, h.ctrl.Snapshot().Stats.ShameCount)
	assert.Equal(t, 1, h.audio.alarmStarts)
}

func TestConcurrentFailureSourcesShameOnce(t *testing.T) {
	h := newHarness(t)
	h.establish(t, false)
	h.start(t, 5, true)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.ctrl.Cancel()
		}()
		go func() {
			defer wg.Done()
			h.vis.Publish(true)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.ctrl.Snapshot().Stats.ShameCount)
	assert.Equal(t, 1, h.observer.count(focus.PhaseShaming))
}

func TestNoShameAfterSuccess(t *testing.T) {
	h := newHarness(t)
	h.establish(t, false)
	h.start(t, 1, true)
	h.clock.Advance(time.Minute)

	_, cancelled := h.ctrl.Cancel()
	h.vis.Publish(true)

	snap := h.ctrl.Snapshot()
	assert.False(t, cancelled)
	assert.Equal(t, focus.PhaseSucceeded, snap.Phase)
	assert.Equal(t, 0, snap.Stats.ShameCount)
	assert.Zero(t, h.vis.Subscribers())
}

func TestVisibilitySubscribedOnlyWhileCounting(t *testing.T) {
	h := newHarness(t)
	assert.Zero(t, h.vis.Subscribers())

	h.establish(t, false)
	assert.Zero(t, h.vis.Subscribers())

	h.start(t, 5, false)
	assert.Equal(t, 1, h.vis.Subscribers())

	h.ctrl.Cancel()
	assert.Zero(t, h.vis.Subscribers())
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t)

	// Onboarding 阶段不能开始
	_, applied, err := h.ctrl.Start(context.Background(), focus.SessionConfig{DurationMinutes: 5})
	require.NoError(t, err)
	assert.False(t, applied)

	h.establish(t, false)

	_, applied, err = h.ctrl.Start(context.Background(), focus.SessionConfig{DurationMinutes: 0})
	assert.ErrorIs(t, err, focus.ErrInvalidDuration)
	assert.False(t, applied)

	_, _, err = h.ctrl.Start(context.Background(), focus.SessionConfig{DurationMinutes: 181})
	assert.ErrorIs(t, err, focus.ErrInvalidDuration)
	assert.Equal(t, focus.PhaseIdle, h.ctrl.Snapshot().Phase)

	h.start(t, 5, false)
	_, applied, err = h.ctrl.Start(context.Background(), focus.SessionConfig{DurationMinutes: 5})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestStartUsesPrefetchedContent(t *testing.T) {
	h := newHarness(t)
	h.establish(t, false)
	require.Equal(t, 1, h.gen.Calls())

	h.start(t, 5, false)
	assert.Equal(t, 1, h.gen.Calls())

	h.ctrl.Cancel()
	assert.Equal(t, "Pathetic.", h.ctrl.Snapshot().ShameText)
}

func TestFailedPrefetchIsNotCached(t *testing.T) {
	h := newHarness(t)
	h.gen.mu.Lock()
	h.gen.content = focus.ShameContent{Text: "You are a disappointment.", Fallback: true}
	h.gen.mu.Unlock()

	_, applied := h.ctrl.Establish(context.Background(), focus.Identity{UserID: "guest"})
	require.True(t, applied)
	require.Eventually(t, func() bool {
		h.ctrl.mu.Lock()
		defer h.ctrl.mu.Unlock()
		return h.ctrl.pending == nil
	}, time.Second, time.Millisecond)
	require.Equal(t, 1, h.gen.Calls())
	h.ctrl.mu.Lock()
	cached := h.ctrl.content
	h.ctrl.mu.Unlock()
	require.Nil(t, cached)

	h.gen.mu.Lock()
	h.gen.content = focus.ShameContent{Text: "Fresh insult."}
	h.gen.mu.Unlock()

	h.start(t, 5, false)
	assert.Equal(t, 2, h.gen.Calls())

	h.ctrl.Cancel()
	assert.Equal(t, "Fresh insult.", h.ctrl.Snapshot().ShameText)
}

func TestStartWaitsForInflightPrefetch(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.gen.gate = gate

	_, applied := h.ctrl.Establish(context.Background(), focus.Identity{UserID: "guest"})
	require.True(t, applied)

	type result struct {
		snap    focus.Snapshot
		applied bool
	}
	done := make(chan result, 1)
	go func() {
		snap, applied, _ := h.ctrl.Start(context.Background(), focus.SessionConfig{DurationMinutes: 5})
		done <- result{snap, applied}
	}()

	require.Eventually(t, func() bool { return h.ctrl.Snapshot().Loading }, 2*time.Second, time.Millisecond)

	// 加载期间的第二次开始被忽略
	_, again, err := h.ctrl.Start(context.Background(), focus.SessionConfig{DurationMinutes: 5})
	require.NoError(t, err)
	assert.False(t, again)

	close(gate)
	res := <-done
	assert.True(t, res.applied)
	assert.Equal(t, focus.PhaseCounting, res.snap.Phase)
	assert.False(t, res.snap.Loading)
	assert.Equal(t, 1, h.gen.Calls())
}

func TestGeneratorFailureStillStarts(t *testing.T) {
	h := newHarness(t)
	gen := shame.NewGenerator(failingText{}, nil)
	ctrl := NewController(context.Background(), Deps{
		Generator:  gen,
		Stats:      h.stats,
		Audio:      h.audio,
		Visibility: h.vis,
		Clock:      h.clock,
	})
	t.Cleanup(ctrl.Close)

	// 未经预生成直接开始：同步生成失败后使用兜底文案
	ctrl.mu.Lock()
	ctrl.phase = focus.PhaseIdle
	ctrl.mu.Unlock()

	snap, applied, err := ctrl.Start(context.Background(), focus.SessionConfig{DurationMinutes: 5})
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, focus.PhaseCounting, snap.Phase)

	snap, _ = ctrl.Cancel()
	assert.True(t, shame.IsFallback(snap.ShameText))
	assert.False(t, snap.ShameHasAudio)
}

func TestAudioResumeFailureDoesNotBlockStart(t *testing.T) {
	h := newHarness(t)
	h.audio.resumeErr = errors.New("no device")
	h.establish(t, false)

	h.start(t, 5, false)
	assert.Equal(t, 1, h.audio.resumes)
}

func TestShamePlaysClipWhenPresent(t *testing.T) {
	h := newHarness(t)
	h.gen.content = focus.ShameContent{
		Text: "Pathetic.",
		Clip: &focus.AudioClip{Format: "wav", MIMEType: "audio/wav", Data: []byte{1, 2}},
	}
	h.establish(t, false)
	h.start(t, 5, false)

	snap, _ := h.ctrl.Cancel()
	assert.True(t, snap.ShameHasAudio)
	assert.Equal(t, 1, h.audio.clips)
}

func TestResetGuards(t *testing.T) {
	h := newHarness(t)
	h.establish(t, false)

	_, ok := h.ctrl.Reset()
	assert.False(t, ok, "idle")

	h.start(t, 5, false)
	_, ok = h.ctrl.Reset()
	assert.False(t, ok, "counting")

	h.ctrl.Cancel()
	_, ok = h.ctrl.Reset()
	assert.False(t, ok, "alarm stage")

	h.clock.Advance(postingAfter)
	_, ok = h.ctrl.Reset()
	assert.False(t, ok, "posting stage")

	h.clock.Advance(postedAfter - postingAfter)
	_, ok = h.ctrl.Reset()
	assert.True(t, ok)

	// 回到 Idle 后重新预生成
	waitPrefetched(t, h.ctrl)
	assert.Equal(t, 2, h.gen.Calls())
}

func TestSignOutTearsDown(t *testing.T) {
	h := newHarness(t)
	h.establish(t, false)
	h.start(t, 5, true)
	h.ctrl.Cancel()
	require.True(t, h.audio.active())

	snap, ok := h.ctrl.SignOut()
	require.True(t, ok)
	assert.Equal(t, focus.PhaseOnboarding, snap.Phase)
	assert.Equal(t, focus.StageNone, snap.ShameStage)
	assert.False(t, h.audio.active())
	assert.Zero(t, h.clock.Pending())
	assert.Zero(t, h.vis.Subscribers())

	_, ok = h.ctrl.SignOut()
	assert.False(t, ok)
}

func TestSignOutDuringStartAbandonsStart(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.gen.gate = gate

	_, applied := h.ctrl.Establish(context.Background(), focus.Identity{UserID: "guest"})
	require.True(t, applied)

	done := make(chan bool, 1)
	go func() {
		_, applied, _ := h.ctrl.Start(context.Background(), focus.SessionConfig{DurationMinutes: 5})
		done <- applied
	}()
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().Loading }, 2*time.Second, time.Millisecond)

	h.ctrl.SignOut()
	close(gate)

	assert.False(t, <-done)
	snap := h.ctrl.Snapshot()
	assert.Equal(t, focus.PhaseOnboarding, snap.Phase)
	assert.Zero(t, h.clock.Pending())
	assert.Zero(t, h.vis.Subscribers())
}

func TestEstablishReconcilesSocialFlag(t *testing.T) {
	h := newHarness(t)

	snap, applied := h.ctrl.Establish(context.Background(), focus.Identity{UserID: "guest", SocialLinked: true})
	require.True(t, applied)
	assert.Equal(t, focus.PhaseIdle, snap.Phase)
	assert.True(t, snap.Stats.SocialLinked)
	assert.Equal(t, 1, h.audio.chimes)

	// 再次建立只刷新身份；未绑定不会清除已有标记
	snap, applied = h.ctrl.Establish(context.Background(), focus.Identity{UserID: "guest"})
	assert.False(t, applied)
	assert.True(t, snap.Stats.SocialLinked)
	assert.Equal(t, 1, h.audio.chimes)
}

func TestCountdownSucceedsExactlyOnce(t *testing.T) {
	for _, minutes := range []int{1, 2, 7} {
		h := newHarness(t)
		h.establish(t, false)

		h.start(t, minutes, false)
		h.clock.Advance(time.Duration(minutes) * time.Minute)
		h.clock.Advance(10 * time.Second)

		snap := h.ctrl.Snapshot()
		assert.Equal(t, focus.PhaseSucceeded, snap.Phase, "minutes=%d", minutes)
		assert.Equal(t, minutes, snap.Stats.TotalFocusMinutes, "minutes=%d", minutes)
		assert.Equal(t, 1, h.observer.count(focus.PhaseSucceeded), "minutes=%d", minutes)
	}
}

func TestCloseStopsPrefetch(t *testing.T) {
	h := newHarness(t)
	h.gen.gate = make(chan struct{})

	_, applied := h.ctrl.Establish(context.Background(), focus.Identity{UserID: "guest"})
	require.True(t, applied)

	// 阻塞的预生成在关闭时随上下文取消退出
	h.ctrl.Close()
	h.ctrl.Close()

	_, applied, err := h.ctrl.Start(context.Background(), focus.SessionConfig{DurationMinutes: 5})
	require.NoError(t, err)
	assert.False(t, applied)
}

type failingText struct{}

func (failingText) GenerateText(context.Context) (string, error) {
	return "", errors.New("quota exceeded")
}
