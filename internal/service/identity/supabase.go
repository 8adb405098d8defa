package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

// socialProvider 视为“已绑定社交账号”的身份提供方。
const socialProvider = "twitter"

// UserFetcher 用访问令牌查询当前用户。
type UserFetcher func(ctx context.Context, token string) (*types.UserResponse, error)

// SupabaseResolver 通过 Supabase Auth 校验访问令牌。
type SupabaseResolver struct {
	fetch  UserFetcher
	logger *zap.Logger
}

// NewSupabaseResolver 基于 supabase 客户端的 Auth 接口创建解析器。
func NewSupabaseResolver(client *supabase.Client, logger *zap.Logger) (*SupabaseResolver, error) {
	if client == nil || client.Auth == nil {
		return nil, errors.New("identity: supabase auth client is required")
	}
	fetch := func(_ context.Context, token string) (*types.UserResponse, error) {
		return client.Auth.WithToken(token).GetUser()
	}
	return NewSupabaseResolverWithFetcher(fetch, logger), nil
}

// NewSupabaseResolverWithFetcher 使用自定义的用户查询函数。
func NewSupabaseResolverWithFetcher(fetch UserFetcher, logger *zap.Logger) *SupabaseResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupabaseResolver{fetch: fetch, logger: logger}
}

// Resolve 实现 Resolver。令牌缺失返回 ErrNoCredentials，无效返回 ErrUnauthenticated。
func (s *SupabaseResolver) Resolve(ctx context.Context, r *http.Request) (focus.Identity, error) {
	token := bearerToken(r)
	if token == "" {
		return focus.Identity{}, ErrNoCredentials
	}

	user, err := s.fetch(ctx, token)
	if err != nil {
		s.logger.Debug("supabase token rejected", zap.Error(err))
		return focus.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if user == nil {
		return focus.Identity{}, ErrUnauthenticated
	}
	return identityFromUser(&user.User), nil
}

func identityFromUser(user *types.User) focus.Identity {
	id := focus.Identity{UserID: user.ID.String()}
	for _, linked := range user.Identities {
		if strings.EqualFold(linked.Provider, socialProvider) {
			id.SocialLinked = true
			break
		}
	}
	return id
}
