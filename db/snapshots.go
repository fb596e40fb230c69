package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okatz/steamwatch/monitor"
)

// Store implements the monitor's StatusStore and InventoryStore contracts
// over Postgres. Trackings are written by the external command layer; this
// package only adds the helpers that layer needs.
type Store struct {
	DB *sql.DB
}

// Trackings returns which chats track which accounts: steam id → chat ids.
func (s *Store) Trackings(ctx context.Context) (map[string][]int64, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT steam_id, chat_id FROM trackings ORDER BY steam_id, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("query trackings: %w", err)
	}
	defer rows.Close()
	out := make(map[string][]int64)
	for rows.Next() {
		var steamID string
		var chatID int64
		if err := rows.Scan(&steamID, &chatID); err != nil {
			return nil, fmt.Errorf("scan tracking: %w", err)
		}
		out[steamID] = append(out[steamID], chatID)
	}
	return out, rows.Err()
}

// AddTracking binds an account to a chat (idempotent).
func (s *Store) AddTracking(ctx context.Context, chatID int64, steamID, alias string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO trackings (chat_id, steam_id, alias, created_at)
		VALUES ($1,$2,$3,NOW()) ON CONFLICT (chat_id, steam_id) DO NOTHING`, chatID, steamID, alias)
	return err
}

// RemoveTracking unbinds an account from a chat and drops its snapshot.
func (s *Store) RemoveTracking(ctx context.Context, chatID int64, steamID string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM trackings WHERE chat_id=$1 AND steam_id=$2`, chatID, steamID); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx, `DELETE FROM status_snapshots WHERE chat_id=$1 AND steam_id=$2`, chatID, steamID)
	return err
}

// ReadSnapshot returns the last-known status for a (chat, account) pair.
// The second return is false when no snapshot exists yet.
func (s *Store) ReadSnapshot(ctx context.Context, chatID int64, steamID string) (monitor.AccountStatus, bool, error) {
	var st monitor.AccountStatus
	var displayName, gameID, gameName sql.NullString
	var presence int
	var startedAt sql.NullTime
	err := s.DB.QueryRowContext(ctx, `SELECT display_name, presence, game_id, game_name, game_started_at
		FROM status_snapshots WHERE chat_id=$1 AND steam_id=$2`, chatID, steamID).
		Scan(&displayName, &presence, &gameID, &gameName, &startedAt)
	if err == sql.ErrNoRows {
		return monitor.AccountStatus{}, false, nil
	}
	if err != nil {
		return monitor.AccountStatus{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	st.AccountID = steamID
	st.DisplayName = displayName.String
	st.Presence = monitor.PresenceState(presence)
	st.GameID = gameID.String
	st.GameName = gameName.String
	if startedAt.Valid {
		st.GameStartedAt = startedAt.Time.UTC()
	}
	return st, true, nil
}

// WriteSnapshot upserts the status for a (chat, account) pair.
func (s *Store) WriteSnapshot(ctx context.Context, chatID int64, steamID string, st monitor.AccountStatus) error {
	var startedAt any
	if !st.GameStartedAt.IsZero() {
		startedAt = st.GameStartedAt.UTC()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO status_snapshots
		(chat_id, steam_id, display_name, presence, game_id, game_name, game_started_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		ON CONFLICT (chat_id, steam_id) DO UPDATE SET
			display_name=EXCLUDED.display_name,
			presence=EXCLUDED.presence,
			game_id=EXCLUDED.game_id,
			game_name=EXCLUDED.game_name,
			game_started_at=EXCLUDED.game_started_at,
			updated_at=NOW()`,
		chatID, steamID, st.DisplayName, int(st.Presence), st.GameID, st.GameName, startedAt)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// ReadInventory returns the last-known owned-item-id set for an account.
// The second return is false when no snapshot exists yet (cold start).
func (s *Store) ReadInventory(ctx context.Context, steamID string) (map[string]struct{}, bool, error) {
	var raw []byte
	err := s.DB.QueryRowContext(ctx, `SELECT item_ids FROM inventory_snapshots WHERE steam_id=$1`, steamID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read inventory: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, fmt.Errorf("decode inventory: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, true, nil
}

// WriteInventory replaces the owned-item-id set for an account wholesale.
func (s *Store) WriteInventory(ctx context.Context, steamID string, items map[string]struct{}) error {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO inventory_snapshots (steam_id, item_ids, updated_at)
		VALUES ($1,$2,NOW())
		ON CONFLICT (steam_id) DO UPDATE SET item_ids=EXCLUDED.item_ids, updated_at=NOW()`, steamID, raw)
	if err != nil {
		return fmt.Errorf("write inventory: %w", err)
	}
	return nil
}

// LastHeartbeat reads a job's last-run time from kv; zero time when unset.
func (s *Store) LastHeartbeat(ctx context.Context, job string) (time.Time, error) {
	v, err := GetKV(ctx, s.DB, "job_"+job+"_last")
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse heartbeat: %w", err)
	}
	return t, nil
}
