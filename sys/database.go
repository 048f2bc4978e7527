package sys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// --- Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS chat_settings (
			chat_id INTEGER PRIMARY KEY,
			rtmp_url TEXT NOT NULL,
			rtmp_key TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
		DB = nil
	}
}

// --- Bot Persistence ---

func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Chat Settings ---

// RTMPEndpoint is the ingest a chat's voice chat accepts its stream on.
type RTMPEndpoint struct {
	URL string
	Key string
}

// Target joins URL and key the way ffmpeg's flv muxer expects them.
func (e RTMPEndpoint) Target() string {
	if e.Key == "" {
		return e.URL
	}
	if len(e.URL) > 0 && e.URL[len(e.URL)-1] == '/' {
		return e.URL + e.Key
	}
	return e.URL + "/" + e.Key
}

func SetChatEndpoint(ctx context.Context, chatID int64, ep RTMPEndpoint) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO chat_settings (chat_id, rtmp_url, rtmp_key) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET rtmp_url = excluded.rtmp_url, rtmp_key = excluded.rtmp_key, updated_at = CURRENT_TIMESTAMP
	`, chatID, ep.URL, ep.Key)
	return err
}

// GetChatEndpoint returns the endpoint stored for chatID, if any.
func GetChatEndpoint(ctx context.Context, chatID int64) (RTMPEndpoint, bool, error) {
	var ep RTMPEndpoint
	err := DB.QueryRowContext(ctx, "SELECT rtmp_url, rtmp_key FROM chat_settings WHERE chat_id = ?", chatID).Scan(&ep.URL, &ep.Key)
	if errors.Is(err, sql.ErrNoRows) {
		return RTMPEndpoint{}, false, nil
	}
	if err != nil {
		return RTMPEndpoint{}, false, err
	}
	return ep, true, nil
}

func DeleteChatEndpoint(ctx context.Context, chatID int64) error {
	_, err := DB.ExecContext(ctx, "DELETE FROM chat_settings WHERE chat_id = ?", chatID)
	return err
}

// ResolveEndpoint prefers the chat's own endpoint and falls back to RTMP_URL/RTMP_KEY.
func ResolveEndpoint(ctx context.Context, chatID int64) (RTMPEndpoint, bool, error) {
	if DB != nil {
		ep, ok, err := GetChatEndpoint(ctx, chatID)
		if err != nil {
			return RTMPEndpoint{}, false, err
		}
		if ok {
			return ep, true, nil
		}
	}
	if GlobalConfig != nil && GlobalConfig.RTMPURL != "" {
		return RTMPEndpoint{URL: GlobalConfig.RTMPURL, Key: GlobalConfig.RTMPKey}, true, nil
	}
	return RTMPEndpoint{}, false, nil
}
