package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

// Well-known keys of the bot_state table.
const (
	KeyRecentReplies = "recent_replies"

	// CursorNotificationsSeen holds the indexedAt of the newest handled
	// notification, followed by the URIs handled at that instant.
	CursorNotificationsSeen = "cursor.notifications_seen"
	// CursorTimelineNewest is the same for the home timeline.
	CursorTimelineNewest = "cursor.timeline_newest"
)

// Clock is overridable in tests.
var Clock = func() time.Time { return time.Now().UTC() }

// LoadBotState reads the persisted state, or an empty state on first run.
func (s *Store) LoadBotState(ctx context.Context) (*core.BotState, error) {
	log, err := s.LoadEventLog(ctx)
	if err != nil {
		return nil, err
	}
	state := core.NewBotState()
	state.RecentReplies = log
	return state, nil
}

// LoadEventLog reads the recent reply log. A missing row is an empty log.
func (s *Store) LoadEventLog(ctx context.Context) (core.EventLog, error) {
	raw, ok, err := s.getValue(ctx, KeyRecentReplies)
	if err != nil {
		return nil, fmt.Errorf("load reply log: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return core.EventLog{}, nil
	}

	var log core.EventLog
	if err := json.Unmarshal([]byte(raw), &log); err != nil {
		return nil, fmt.Errorf("decode reply log: %w", err)
	}
	if log == nil {
		log = core.EventLog{}
	}
	return log, nil
}

// SaveEventLog replaces the persisted reply log.
func (s *Store) SaveEventLog(ctx context.Context, log core.EventLog) error {
	if log == nil {
		log = core.EventLog{}
	}
	payload, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encode reply log: %w", err)
	}
	if err := s.setValue(ctx, KeyRecentReplies, string(payload)); err != nil {
		return fmt.Errorf("store reply log: %w", err)
	}
	return nil
}

// GetCursor returns a poll cursor, or "" when none was stored.
func (s *Store) GetCursor(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("cursor name is required")
	}
	value, _, err := s.getValue(ctx, name)
	if err != nil {
		return "", fmt.Errorf("load cursor %s: %w", name, err)
	}
	return value, nil
}

// SetCursor persists a poll cursor.
func (s *Store) SetCursor(ctx context.Context, name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("cursor name is required")
	}
	if err := s.setValue(ctx, name, value); err != nil {
		return fmt.Errorf("store cursor %s: %w", name, err)
	}
	return nil
}

func (s *Store) getValue(ctx context.Context, key string) (string, bool, error) {
	if err := s.ready(); err != nil {
		return "", false, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var value string
	row := s.DB.QueryRowContext(ctx, s.rebind(`SELECT value FROM bot_state WHERE key = ?`), key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) setValue(ctx context.Context, key, value string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO bot_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`), key, value, Clock().Unix())
	return err
}
