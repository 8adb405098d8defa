package live

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

// Hub 按用户管理实时通道。
// 通道按引用计数持有：控制器、websocket 连接和快照订阅各占一个引用，
// 全部释放后通道被移除。
type Hub struct {
	mu       sync.Mutex
	channels map[string]*hubEntry
	logger   *zap.Logger
}

type hubEntry struct {
	channel *Channel
	refs    int
}

// NewHub 创建通道集合。
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{channels: make(map[string]*hubEntry), logger: logger}
}

// Acquire 获取或创建用户的通道并占用一个引用，用完后调用 Release。
func (h *Hub) Acquire(userID string) *Channel {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.channels[userID]
	if !ok {
		entry = &hubEntry{channel: NewChannel(userID, h.logger)}
		h.channels[userID] = entry
	}
	entry.refs++
	return entry.channel
}

// Release 归还一个引用，归零时移除通道。
func (h *Hub) Release(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.channels[userID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(h.channels, userID)
		h.logger.Debug("live channel released", zap.String("user", userID))
	}
}

// Lookup 返回已存在的通道。
func (h *Hub) Lookup(userID string) (*Channel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.channels[userID]
	if !ok {
		return nil, false
	}
	return entry.channel, true
}

// Len 通道数量。
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

// Watch 订阅用户的快照流，返回的函数同时取消订阅并归还引用。
func (h *Hub) Watch(userID string) (<-chan focus.Snapshot, func()) {
	updates, stop := h.Acquire(userID).Watch()
	var once sync.Once
	return updates, func() {
		once.Do(func() {
			stop()
			h.Release(userID)
		})
	}
}
