package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// OpenSQLite 打开（必要时创建）sqlite 数据库文件。
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite 单写者；":memory:" 下多连接会各自拿到独立的库
	db.SetMaxOpenConns(1)
	return db, nil
}

type sqliteBackend struct {
	db *sql.DB
}

func newSQLiteBackend(db *sql.DB) (*sqliteBackend, error) {
	b := &sqliteBackend{db: db}
	if err := b.migrate(); err != nil {
		return nil, fmt.Errorf("migrate sqlite stats: %w", err)
	}
	return b, nil
}

func (b *sqliteBackend) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_stats (
			user_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) Load(ctx context.Context, userID string) ([]byte, bool, error) {
	var payload string
	err := b.db.QueryRowContext(ctx,
		`SELECT payload FROM user_stats WHERE user_id = ?`, userID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(payload), true, nil
}

func (b *sqliteBackend) Save(ctx context.Context, userID string, doc []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO user_stats (user_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		userID, string(doc), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
