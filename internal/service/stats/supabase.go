package stats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// statsRow 对应 supabase 表 user_stats(user_id text primary key, stats jsonb)。
type statsRow struct {
	UserID string          `json:"user_id"`
	Stats  json.RawMessage `json:"stats"`
}

type supabaseBackend struct {
	client *supabase.Client
	table  string
}

func (b *supabaseBackend) Load(ctx context.Context, userID string) ([]byte, bool, error) {
	var rows []statsRow
	err := runWithContext(ctx, func() error {
		var fetched []statsRow
		if _, err := b.client.From(b.table).
			Select("user_id,stats", "", false).
			Eq("user_id", userID).
			ExecuteTo(&fetched); err != nil {
			return err
		}
		rows = fetched
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to load stats: %w", err)
	}
	if len(rows) == 0 || len(rows[0].Stats) == 0 {
		return nil, false, nil
	}
	return []byte(rows[0].Stats), true, nil
}

func (b *supabaseBackend) Save(ctx context.Context, userID string, doc []byte) error {
	row := statsRow{UserID: userID, Stats: json.RawMessage(doc)}
	err := runWithContext(ctx, func() error {
		_, _, err := b.client.From(b.table).
			Upsert(row, "user_id", "minimal", "").
			Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// Close supabase 客户端基于 HTTP，无需释放。
func (b *supabaseBackend) Close() error {
	return nil
}

// runWithContext postgrest 请求不接收 context，在 ctx 结束时放弃等待。
// 已发出的请求仍会在后台完成。
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
