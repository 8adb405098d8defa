package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/zhouzirui/shame-alarm/backend/internal/model/focus"
)

var (
	// ErrUnauthenticated 请求没有携带可识别的身份，或凭证无效。
	ErrUnauthenticated = errors.New("identity: unauthenticated")
	// ErrNoCredentials 请求未携带该解析器识别的凭证，Chain 会继续尝试下一个。
	ErrNoCredentials = fmt.Errorf("%w: no credentials", ErrUnauthenticated)
)

const (
	// HeaderUserID 直接声明用户标识的请求头，供本地开发和测试使用。
	HeaderUserID = "X-User-ID"
	// HeaderSocialLinked 配合 HeaderUserID 声明社交绑定状态。
	HeaderSocialLinked = "X-Social-Linked"

	// 浏览器的 EventSource 与 WebSocket 无法设置请求头，改用查询参数
	queryUserID      = "userId"
	queryAccessToken = "access_token"
)

// Resolver 从请求中解析身份。
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (focus.Identity, error)
}

// ResolverFunc 函数适配器。
type ResolverFunc func(ctx context.Context, r *http.Request) (focus.Identity, error)

// Resolve 实现 Resolver。
func (f ResolverFunc) Resolve(ctx context.Context, r *http.Request) (focus.Identity, error) {
	return f(ctx, r)
}

// HeaderResolver 信任请求头中的用户标识。AllowGuest 为 true 时缺省为访客。
type HeaderResolver struct {
	AllowGuest bool
}

// Resolve 实现 Resolver。
func (h HeaderResolver) Resolve(_ context.Context, r *http.Request) (focus.Identity, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		userID = strings.TrimSpace(r.URL.Query().Get(queryUserID))
	}
	if userID == "" {
		if !h.AllowGuest {
			return focus.Identity{}, ErrNoCredentials
		}
		return focus.Identity{UserID: focus.GuestUserID}, nil
	}

	linked, _ := strconv.ParseBool(r.Header.Get(HeaderSocialLinked))
	return focus.Identity{UserID: userID, SocialLinked: linked}, nil
}

// Chain 依次尝试多个解析器，跳过未携带对应凭证的情况。
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, r *http.Request) (focus.Identity, error) {
		for _, resolver := range resolvers {
			if resolver == nil {
				continue
			}
			id, err := resolver.Resolve(ctx, r)
			if errors.Is(err, ErrNoCredentials) {
				continue
			}
			return id, err
		}
		return focus.Identity{}, ErrNoCredentials
	})
}

// bearerToken 从 Authorization 头或查询参数中取出访问令牌。
func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get(queryAccessToken))
}
