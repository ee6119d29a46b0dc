// Package sqlite provides a SQLite-backed local ledger. It implements the
// settlement gateway for single-host deployments and archives game events.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	sqlitemigrate "github.com/louisbranch/agentopoly/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/agentopoly/internal/random"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger/sqlite/migrations"
)

// Store persists ledger state in SQLite.
type Store struct {
	sqlDB *sql.DB
	// writeMu serializes multi-statement writes.
	writeMu sync.Mutex
	feed    ledger.StartedFeed
	newSeed func() ([32]byte, error)
}

var (
	_ ledger.Gateway = (*Store)(nil)
	_ ledger.Joiner  = (*Store)(nil)
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite ledger and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, newSeed: random.NewSeed}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func newTxRef() ledger.TxRef {
	return ledger.TxRef("local-" + uuid.NewString())
}

// CreateOpenGame inserts an empty open game.
func (s *Store) CreateOpenGame(ctx context.Context) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO games (status, created_at) VALUES (?, ?)`,
		string(ledger.GameOpen), toMillis(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("create game: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create game id: %w", err)
	}
	return uint64(id), nil
}

// JoinGame seats address in an open game. The fourth join starts the game
// with a fresh random seed and notifies OnGameStarted subscribers.
func (s *Store) JoinGame(ctx context.Context, gameID uint64, address string) (ledger.Game, error) {
	if err := s.ready(ctx); err != nil {
		return ledger.Game{}, err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return ledger.Game{}, fmt.Errorf("address is required")
	}

	s.writeMu.Lock()
	started, seed, err := s.joinGame(ctx, gameID, address)
	s.writeMu.Unlock()
	if err != nil {
		return ledger.Game{}, err
	}
	if started {
		s.feed.Publish(gameID, seed)
	}
	return s.GetGame(ctx, gameID)
}

func (s *Store) joinGame(ctx context.Context, gameID uint64, address string) (bool, [32]byte, error) {
	var seed [32]byte
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, seed, fmt.Errorf("begin join: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM games WHERE id = ?`, int64(gameID)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, seed, ledger.ErrNotFound
	}
	if err != nil {
		return false, seed, fmt.Errorf("load game: %w", err)
	}
	if ledger.GameStatus(status) != ledger.GameOpen {
		return false, seed, ledger.ErrGameNotOpen
	}

	var seats int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM game_players WHERE game_id = ?`, int64(gameID)).Scan(&seats); err != nil {
		return false, seed, fmt.Errorf("count players: %w", err)
	}
	now := toMillis(time.Now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO game_players (game_id, seat, address, joined_at) VALUES (?, ?, ?, ?)`,
		int64(gameID), seats, address, now,
	); err != nil {
		if isUniqueViolation(err) {
			return false, seed, ledger.ErrAlreadyJoined
		}
		return false, seed, fmt.Errorf("insert player: %w", err)
	}

	started := seats+1 == ledger.Seats
	if started {
		seed, err = s.newSeed()
		if err != nil {
			return false, seed, fmt.Errorf("generate seed: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE games SET status = ?, seed = ?, started_at = ? WHERE id = ?`,
			string(ledger.GameStarted), seed[:], now, int64(gameID),
		); err != nil {
			return false, seed, fmt.Errorf("start game: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, seed, fmt.Errorf("commit join: %w", err)
	}
	return started, seed, nil
}

// GetGame returns one game with its seated players in seat order.
func (s *Store) GetGame(ctx context.Context, gameID uint64) (ledger.Game, error) {
	if err := s.ready(ctx); err != nil {
		return ledger.Game{}, err
	}
	var (
		status    string
		seed      []byte
		createdAt int64
		startedAt sql.NullInt64
		winner    sql.NullInt64
		logHash   []byte
		settleTx  sql.NullString
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT g.status, g.seed, g.created_at, g.started_at, st.winner, st.log_hash, st.tx_ref
		   FROM games g
		   LEFT JOIN settlements st ON st.game_id = g.id
		  WHERE g.id = ?`,
		int64(gameID),
	).Scan(&status, &seed, &createdAt, &startedAt, &winner, &logHash, &settleTx)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Game{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Game{}, fmt.Errorf("get game: %w", err)
	}

	game := ledger.Game{
		ID:        gameID,
		Status:    ledger.GameStatus(status),
		Winner:    -1,
		SettleTx:  ledger.TxRef(settleTx.String),
		CreatedAt: fromMillis(createdAt),
	}
	copy(game.Seed[:], seed)
	copy(game.LogHash[:], logHash)
	if startedAt.Valid {
		game.StartedAt = fromMillis(startedAt.Int64)
	}
	if winner.Valid {
		game.Winner = int(winner.Int64)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT address FROM game_players WHERE game_id = ? ORDER BY seat`, int64(gameID))
	if err != nil {
		return ledger.Game{}, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return ledger.Game{}, fmt.Errorf("scan player: %w", err)
		}
		game.Players = append(game.Players, address)
	}
	if err := rows.Err(); err != nil {
		return ledger.Game{}, fmt.Errorf("iterate players: %w", err)
	}
	return game, nil
}

// GetOpenGameIDs lists games still accepting players, oldest first.
func (s *Store) GetOpenGameIDs(ctx context.Context) ([]uint64, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id FROM games WHERE status = ? ORDER BY id`, string(ledger.GameOpen))
	if err != nil {
		return nil, fmt.Errorf("list open games: %w", err)
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan open game: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open games: %w", err)
	}
	return ids, nil
}

// requireStarted fails unless the game exists, started and is unsettled.
func requireStarted(ctx context.Context, tx *sql.Tx, gameID uint64) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM games WHERE id = ?`, int64(gameID)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load game: %w", err)
	}
	switch ledger.GameStatus(status) {
	case ledger.GameStarted:
		return nil
	case ledger.GameSettled:
		return ledger.ErrAlreadySettled
	default:
		return ledger.ErrGameNotStarted
	}
}

// WriteCheckpoint appends a checkpoint newer than every stored one.
func (s *Store) WriteCheckpoint(ctx context.Context, gameID uint64, round int, players, properties uint256.Int, meta uint64) (ledger.TxRef, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin checkpoint: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireStarted(ctx, tx, gameID); err != nil {
		return "", err
	}
	var latest sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(round) FROM checkpoints WHERE game_id = ?`, int64(gameID)).Scan(&latest); err != nil {
		return "", fmt.Errorf("load latest round: %w", err)
	}
	if latest.Valid && int(latest.Int64) >= round {
		return "", ledger.ErrStaleRound
	}

	ref := newTxRef()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (game_id, round, players, properties, meta, tx_ref, written_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(gameID), round, players.Hex(), properties.Hex(), int64(meta), string(ref), toMillis(time.Now()),
	); err != nil {
		if isUniqueViolation(err) {
			return "", ledger.ErrStaleRound
		}
		return "", fmt.Errorf("insert checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit checkpoint: %w", err)
	}
	return ref, nil
}

// GetCheckpoint returns the highest-round checkpoint.
func (s *Store) GetCheckpoint(ctx context.Context, gameID uint64) (ledger.Checkpoint, error) {
	if err := s.ready(ctx); err != nil {
		return ledger.Checkpoint{}, err
	}
	var (
		round         int
		playersHex    string
		propertiesHex string
		meta          int64
		txRef         string
		writtenAt     int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT round, players, properties, meta, tx_ref, written_at
		   FROM checkpoints
		  WHERE game_id = ?
		  ORDER BY round DESC
		  LIMIT 1`,
		int64(gameID),
	).Scan(&round, &playersHex, &propertiesHex, &meta, &txRef, &writtenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Checkpoint{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Checkpoint{}, fmt.Errorf("get checkpoint: %w", err)
	}
	players, err := uint256.FromHex(playersHex)
	if err != nil {
		return ledger.Checkpoint{}, fmt.Errorf("decode players word: %w", err)
	}
	properties, err := uint256.FromHex(propertiesHex)
	if err != nil {
		return ledger.Checkpoint{}, fmt.Errorf("decode properties word: %w", err)
	}
	return ledger.Checkpoint{
		GameID:     gameID,
		Round:      round,
		Players:    *players,
		Properties: *properties,
		Meta:       uint64(meta),
		TxRef:      ledger.TxRef(txRef),
		WrittenAt:  fromMillis(writtenAt),
	}, nil
}

// SettleGame records the outcome once. The winner must hold a seat.
func (s *Store) SettleGame(ctx context.Context, gameID uint64, winnerAddress string, logHash [32]byte) (ledger.TxRef, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin settlement: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireStarted(ctx, tx, gameID); err != nil {
		return "", err
	}
	var winner int
	err = tx.QueryRowContext(ctx,
		`SELECT seat FROM game_players WHERE game_id = ? AND address = ?`, int64(gameID), winnerAddress,
	).Scan(&winner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ledger.ErrUnknownWinner
	}
	if err != nil {
		return "", fmt.Errorf("load winner seat: %w", err)
	}
	ref := newTxRef()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO settlements (game_id, winner, log_hash, tx_ref, settled_at) VALUES (?, ?, ?, ?, ?)`,
		int64(gameID), winner, logHash[:], string(ref), toMillis(time.Now()),
	); err != nil {
		if isUniqueViolation(err) {
			return "", ledger.ErrAlreadySettled
		}
		return "", fmt.Errorf("insert settlement: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE games SET status = ? WHERE id = ?`, string(ledger.GameSettled), int64(gameID),
	); err != nil {
		return "", fmt.Errorf("mark settled: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit settlement: %w", err)
	}
	return ref, nil
}

// OnGameStarted subscribes to games filled through JoinGame.
func (s *Store) OnGameStarted(fn ledger.StartedFunc) func() {
	return s.feed.Subscribe(fn)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
