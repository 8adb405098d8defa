package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/service/identity"
	"github.com/zhouzirui/shame-alarm/backend/pkg/utils"
)

// Identity 解析请求身份并放入上下文，无法识别时返回 401。
func Identity(resolver identity.Resolver, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				logger.Debug("identity rejected", zap.String("path", r.URL.Path), zap.Error(err))
				utils.RespondError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
		})
	}
}
