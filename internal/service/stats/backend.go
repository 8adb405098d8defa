package stats

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/supabase-community/supabase-go"
)

// StoreType 统计数据的持久化后端类型。
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeSupabase StoreType = "supabase"
	StoreTypeSQLite   StoreType = "sqlite"
)

// keyPrefix 与浏览器端 localStorage 的键名保持一致。
const keyPrefix = "shame_alarm_stats_"

// Backend 按用户保存一份 JSON 文档。
// Load 在文档不存在时返回 found=false 且 err=nil。
type Backend interface {
	Load(ctx context.Context, userID string) (doc []byte, found bool, err error)
	Save(ctx context.Context, userID string, doc []byte) error
	Close() error
}

// BackendOption 配置 NewBackend 的函数式选项。
type BackendOption func(*backendConfig)

type backendConfig struct {
	redisClient    *redis.Client
	redisTTL       time.Duration
	supabaseClient *supabase.Client
	supabaseTable  string
	sqlDB          *sql.DB
}

// WithRedisClient 指定 redis 后端使用的客户端。
func WithRedisClient(client *redis.Client) BackendOption {
	return func(c *backendConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL 设置 redis 键的过期时间，0 表示永不过期。
func WithRedisTTL(ttl time.Duration) BackendOption {
	return func(c *backendConfig) {
		c.redisTTL = ttl
	}
}

// WithSupabaseClient 指定 supabase 后端使用的客户端。
func WithSupabaseClient(client *supabase.Client) BackendOption {
	return func(c *backendConfig) {
		c.supabaseClient = client
	}
}

// WithSupabaseTable 覆盖默认表名 user_stats。
func WithSupabaseTable(table string) BackendOption {
	return func(c *backendConfig) {
		c.supabaseTable = table
	}
}

// WithSQLDB 指定 sqlite 后端使用的数据库句柄，见 OpenSQLite。
func WithSQLDB(db *sql.DB) BackendOption {
	return func(c *backendConfig) {
		c.sqlDB = db
	}
}

// NewBackend 根据类型创建存储后端。
// redis/supabase/sqlite 需要对应的 With* 选项，否则返回 ErrInvalidConfig。
func NewBackend(storeType StoreType, opts ...BackendOption) (Backend, error) {
	cfg := &backendConfig{supabaseTable: "user_stats"}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory:
		return newMemoryBackend(), nil

	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisBackend{client: cfg.redisClient, ttl: cfg.redisTTL}, nil

	case StoreTypeSupabase:
		if cfg.supabaseClient == nil || cfg.supabaseTable == "" {
			return nil, ErrInvalidConfig
		}
		return &supabaseBackend{client: cfg.supabaseClient, table: cfg.supabaseTable}, nil

	case StoreTypeSQLite:
		if cfg.sqlDB == nil {
			return nil, ErrInvalidConfig
		}
		return newSQLiteBackend(cfg.sqlDB)

	default:
		return nil, ErrInvalidStoreType
	}
}
