package app

import (
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/config"
	"github.com/zhouzirui/shame-alarm/backend/internal/logging"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/identity"
)

// NewResolver 组装身份解析链。sb 为 nil 表示未配置 Supabase。
func NewResolver(cfg config.AuthConfig, sb *supabase.Client, logger *zap.Logger) (identity.Resolver, error) {
	logger = logging.OrNop(logger)
	if sb == nil {
		return BuildResolver(cfg, nil, logger), nil
	}
	tokenResolver, err := identity.NewSupabaseResolver(sb, logger.Named("identity"))
	if err != nil {
		return nil, err
	}
	return BuildResolver(cfg, tokenResolver, logger), nil
}

// BuildResolver 有令牌解析器时只认访问令牌，请求头身份需显式打开；
// 没有令牌解析器时回退到请求头与访客身份。
func BuildResolver(cfg config.AuthConfig, tokenResolver identity.Resolver, logger *zap.Logger) identity.Resolver {
	logger = logging.OrNop(logger)

	if tokenResolver == nil {
		logger.Info("Supabase 未配置，使用请求头或访客身份")
		return identity.HeaderResolver{AllowGuest: true}
	}

	if cfg.AllowHeaderIdentity {
		logger.Warn("header identity enabled alongside supabase auth, do not use in production")
		return identity.Chain(tokenResolver, identity.HeaderResolver{})
	}

	logger.Info("supabase auth enabled")
	return tokenResolver
}
