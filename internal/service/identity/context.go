package identity

import (
	"context"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

type contextKey struct{}

// WithIdentity 把已解析的身份放入上下文。
func WithIdentity(ctx context.Context, id focus.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext 取出身份。
func FromContext(ctx context.Context) (focus.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(focus.Identity)
	return id, ok
}
