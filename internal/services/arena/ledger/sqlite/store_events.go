package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
)

// ArchiveEvents stores a finished game's events for audit. Re-archiving the
// same sequence numbers replaces them.
func (s *Store) ArchiveEvents(ctx context.Context, gameID uint64, events []engine.Event) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO game_events (game_id, seq, kind, player, payload, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare archive: %w", err)
	}
	defer stmt.Close()

	now := toMillis(time.Now())
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", ev.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, int64(gameID), ev.Seq, string(ev.Kind), ev.Player, string(payload), now); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

// ListEvents returns a game's archived events in sequence order.
func (s *Store) ListEvents(ctx context.Context, gameID uint64) ([]engine.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT payload FROM game_events WHERE game_id = ? ORDER BY seq`, int64(gameID))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []engine.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev engine.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
