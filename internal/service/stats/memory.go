package stats

import (
	"context"
	"sync"
)

// memoryBackend 进程内存储，重启后数据丢失。
type memoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{docs: make(map[string][]byte)}
}

func (b *memoryBackend) Load(ctx context.Context, userID string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	doc, ok := b.docs[userID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), doc...), true, nil
}

func (b *memoryBackend) Save(ctx context.Context, userID string, doc []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.docs[userID] = append([]byte(nil), doc...)
	return nil
}

func (b *memoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.docs = make(map[string][]byte)
	return nil
}
