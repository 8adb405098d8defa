package session

import (
	"context"
	"sync"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

// Factory 为新用户创建控制器。
type Factory func(userID string) *Controller

// Registry 按用户 ID 管理控制器。
type Registry struct {
	mu          sync.Mutex
	factory     Factory
	controllers map[string]*Controller
	closed      bool
}

// NewRegistry 创建注册表。
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:     factory,
		controllers: make(map[string]*Controller),
	}
}

// Establish 获取或创建用户的控制器并建立身份。
func (r *Registry) Establish(ctx context.Context, identity focus.Identity) (*Controller, focus.Snapshot, bool, error) {
	if identity.UserID == "" {
		identity.UserID = focus.GuestUserID
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, focus.Snapshot{}, false, ErrNoSession
	}
	ctrl, ok := r.controllers[identity.UserID]
	if !ok {
		ctrl = r.factory(identity.UserID)
		r.controllers[identity.UserID] = ctrl
	}
	r.mu.Unlock()

	snap, applied := ctrl.Establish(ctx, identity)
	return ctrl, snap, applied, nil
}

// Get 返回已建立的控制器。
func (r *Registry) Get(userID string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctrl, ok := r.controllers[userID]
	if !ok {
		return nil, ErrNoSession
	}
	return ctrl, nil
}

// Clear 登出并释放用户的控制器。
func (r *Registry) Clear(userID string) (focus.Snapshot, error) {
	r.mu.Lock()
	ctrl, ok := r.controllers[userID]
	delete(r.controllers, userID)
	r.mu.Unlock()

	if !ok {
		return focus.Snapshot{}, ErrNoSession
	}
	snap, _ := ctrl.SignOut()
	ctrl.Close()
	return snap, nil
}

// Len 当前控制器数量。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// Close 关闭所有控制器。
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	controllers := make([]*Controller, 0, len(r.controllers))
	for _, ctrl := range r.controllers {
		controllers = append(controllers, ctrl)
	}
	r.controllers = make(map[string]*Controller)
	r.mu.Unlock()

	for _, ctrl := range controllers {
		ctrl.Close()
	}
}
