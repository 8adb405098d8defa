package session

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock 手动推进的时钟，到期回调按时间顺序在锁外执行。
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), seq: c.seq, f: f}
	c.seq++
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance 推进时间并依次触发到期的定时器，包括回调中新建的定时器。
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		due := make([]*fakeTimer, 0)
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.when.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].when.Equal(due[j].when) {
				return due[i].seq < due[j].seq
			}
			return due[i].when.Before(due[j].when)
		})
		next := due[0]
		next.fired = true
		c.now = next.when
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = target

	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
	c.mu.Unlock()
}

// Pending 尚未触发且未停止的定时器数量。
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeGenerator 可选地阻塞在 gate 上，直到被放行或上下文取消。
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	content focus.ShameContent
	gate    chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context) focus.ShameContent {
	g.mu.Lock()
	g.calls++
	gate := g.gate
	content := g.content
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	return content
}

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeAudio 记录音频指令。
type fakeAudio struct {
	mu          sync.Mutex
	resumeErr   error
	resumes     int
	alarmStarts int
	alarmStops  int
	alarmActive bool
	clips       int
	chimes      int
}

func (a *fakeAudio) Resume(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resumes++
	return a.resumeErr
}

func (a *fakeAudio) StartAlarm(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alarmStarts++
	a.alarmActive = true
	return nil
}

func (a *fakeAudio) StopAlarm(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.alarmActive {
		a.alarmStops++
	}
	a.alarmActive = false
	return nil
}

func (a *fakeAudio) PlayClip(_ context.Context, clip *focus.AudioClip) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if clip != nil {
		a.clips++
	}
	return nil
}

func (a *fakeAudio) PlayChime(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chimes++
	return nil
}

func (a *fakeAudio) active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alarmActive
}

// recordingObserver 记录每次通知的阶段。
type recordingObserver struct {
	mu     sync.Mutex
	phases []focus.Phase
}

func (o *recordingObserver) Notify(s focus.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, s.Phase)
}

func (o *recordingObserver) count(phase focus.Phase) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for i, p := range o.phases {
		// 只统计进入该阶段的那一次
		if p == phase && (i == 0 || o.phases[i-1] != phase) {
			n++
		}
	}
	return n
}

type harness struct {
	ctrl     *Controller
	clock    *fakeClock
	gen      *fakeGenerator
	audio    *fakeAudio
	stats    *stats.Service
	vis      *Visibility
	observer *recordingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    newFakeClock(),
		gen:      &fakeGenerator{content: focus.ShameContent{Text: "Pathetic."}},
		audio:    &fakeAudio{},
		vis:      NewVisibility(),
		observer: &recordingObserver{},
	}
	h.stats = stats.NewService(nil, stats.WithClock(h.clock.Now))
	h.ctrl = h.build(t, "guest")
	return h
}

func (h *harness) build(t *testing.T, userID string) *Controller {
	t.Helper()
	ctrl := NewController(context.Background(), Deps{
		UserID:     userID,
		Generator:  h.gen,
		Stats:      h.stats,
		Audio:      h.audio,
		Visibility: h.vis,
		Clock:      h.clock,
		Observer:   h.observer,
	})
	t.Cleanup(ctrl.Close)
	return ctrl
}

// establish 建立身份并等待预生成完成。
func (h *harness) establish(t *testing.T, linked bool) {
	t.Helper()
	_, applied := h.ctrl.Establish(context.Background(), focus.Identity{UserID: "guest", SocialLinked: linked})
	if !applied {
		t.Fatal("establish not applied")
	}
	waitPrefetched(t, h.ctrl)
}

func waitPrefetched(t *testing.T, ctrl *Controller) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctrl.mu.Lock()
		ready := ctrl.content != nil
		ctrl.mu.Unlock()
		if ready {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("prefetch did not complete")
}

func (h *harness) start(t *testing.T, minutes int, strict bool) {
	t.Helper()
	snap, applied, err := h.ctrl.Start(context.Background(), focus.SessionConfig{DurationMinutes: minutes, StrictMode: strict})
	if err != nil || !applied {
		t.Fatalf("start: applied=%v err=%v", applied, err)
	}
	if snap.Phase != focus.PhaseCounting {
		t.Fatalf("phase = %s", snap.Phase)
	}
}
