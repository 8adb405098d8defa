package app

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/supabase-community/supabase-go"

	"github.com/zhouzirui/shame-alarm/backend/internal/config"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/stats"
)

// NewSupabaseClient 未配置 Supabase 时返回 nil。
func NewSupabaseClient(cfg config.SupabaseConfig) (*supabase.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := supabase.NewClient(cfg.URL, cfg.AnonKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return client, nil
}

// NewStatsBackend 按 STATS_STORE 创建统计存储后端。
func NewStatsBackend(cfg config.StoreConfig, sb *supabase.Client) (stats.Backend, error) {
	storeType := stats.StoreType(cfg.Type)

	switch storeType {
	case stats.StoreTypeRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return stats.NewBackend(storeType,
			stats.WithRedisClient(redis.NewClient(opts)),
			stats.WithRedisTTL(cfg.RedisTTL),
		)

	case stats.StoreTypeSupabase:
		if sb == nil {
			return nil, fmt.Errorf("%w: supabase store requires SUPABASE_URL and SUPABASE_ANON_KEY", stats.ErrInvalidConfig)
		}
		return stats.NewBackend(storeType, stats.WithSupabaseClient(sb))

	case stats.StoreTypeSQLite:
		db, err := stats.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		backend, err := stats.NewBackend(storeType, stats.WithSQLDB(db))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return backend, nil

	default:
		return stats.NewBackend(storeType)
	}
}
