package session

import "sync"

// Visibility 页面可见性信号的发布订阅点，每个浏览器会话一个。
type Visibility struct {
	mu   sync.Mutex
	next int
	subs map[int]func(hidden bool)
}

// NewVisibility 创建信号源。
func NewVisibility() *Visibility {
	return &Visibility{subs: make(map[int]func(hidden bool))}
}

// Subscribe 注册回调，返回的函数用于退订，可重复调用。
func (v *Visibility) Subscribe(fn func(hidden bool)) (unsubscribe func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.next
	v.next++
	v.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}

// Publish 通知所有订阅者。回调在锁外执行。
func (v *Visibility) Publish(hidden bool) {
	v.mu.Lock()
	fns := make([]func(bool), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(hidden)
	}
}

// Subscribers 当前订阅数。
func (v *Visibility) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}
