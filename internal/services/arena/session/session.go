// Package session runs one live game: it owns the engine, prompts agents,
// auto-plays on timeout and reports checkpoints and the result to the ledger.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
	"github.com/louisbranch/agentopoly/internal/platform/timeouts"
	"github.com/louisbranch/agentopoly/internal/services/arena/checkpoint"
	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
)

const tracerName = "github.com/louisbranch/agentopoly/internal/services/arena/session"

var (
	// ErrUnknownPlayer is returned for an address that holds no seat.
	ErrUnknownPlayer = apperrors.New(apperrors.CodeUnknownPlayer, "address is not seated in this game")
	// ErrNotStarted is reported for actions sent before all agents attach.
	ErrNotStarted = apperrors.New(apperrors.CodeNotStarted, "game has not started")
	// ErrClosed is returned once the session has been shut down.
	ErrClosed = apperrors.New(apperrors.CodeGameEnded, "session closed")
)

// Conn is an attached agent or spectator connection.
type Conn interface {
	Send(frame Frame) error
	Close() error
}

// EventArchive stores the full event log of a finished game.
type EventArchive interface {
	ArchiveEvents(ctx context.Context, gameID uint64, events []engine.Event) error
}

// Config describes one session.
type Config struct {
	GameID    uint64
	Addresses [engine.PlayerCount]string
	Seed      [32]byte

	// Checkpoint restores the engine from ledger words instead of a fresh game.
	Checkpoint *checkpoint.Words

	// Gateway receives checkpoints and the settlement. Nil runs the game
	// locally without either.
	Gateway ledger.Gateway
	Archive EventArchive

	TurnTimeout    time.Duration
	ActionDelay    time.Duration
	SettleAttempts int
	SettleBackoff  time.Duration

	Logf func(format string, args ...any)
}

// Session is a single-writer wrapper around an engine.
type Session struct {
	cfg    Config
	logf   func(format string, args ...any)
	tracer trace.Tracer
	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	engine          *engine.Engine
	agents          map[string]Conn
	spectators      map[Conn]struct{}
	started         bool
	ending          bool
	closed          bool
	generation      uint64
	timer           *time.Timer
	log             EventLog
	history         []engine.Event
	checkpointRound int

	checkpointMu sync.Mutex
	writtenRound int

	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

// New builds a session. It does not prompt anyone until all agents attach
// or Start is called.
func New(cfg Config) (*Session, error) {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = timeouts.Turn
	}
	if cfg.SettleAttempts <= 0 {
		cfg.SettleAttempts = timeouts.SettleAttempts
	}
	if cfg.SettleBackoff <= 0 {
		cfg.SettleBackoff = timeouts.SettleBackoff
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}

	var (
		eng *engine.Engine
		err error
	)
	if cfg.Checkpoint != nil {
		eng, err = engine.Restore(cfg.Addresses, cfg.Seed[:], *cfg.Checkpoint)
	} else {
		eng, err = engine.New(cfg.Addresses, cfg.Seed[:])
	}
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", cfg.GameID, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:             cfg,
		logf:            cfg.Logf,
		tracer:          otel.Tracer(tracerName),
		ctx:             ctx,
		cancel:          cancel,
		engine:          eng,
		agents:          make(map[string]Conn),
		spectators:      make(map[Conn]struct{}),
		checkpointRound: eng.Round(),
		writtenRound:    eng.Round(),
		done:            make(chan struct{}),
	}, nil
}

// GameID returns the ledger game id, or the slot id in local mode.
func (s *Session) GameID() uint64 { return s.cfg.GameID }

// Addresses returns the seated addresses in seat order.
func (s *Session) Addresses() [engine.PlayerCount]string { return s.cfg.Addresses }

// Done is closed once the game has ended and its result has been reported,
// or when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current snapshot.
func (s *Session) State() engine.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// LogHash returns the rolling hash over every event this session produced.
func (s *Session) LogHash() [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Hash()
}

// ConnectAgent attaches conn to the seat held by address. A second
// connection for the same seat replaces the first. The session begins once
// all seats are attached.
func (s *Session) ConnectAgent(address string, conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	idx := s.engine.PlayerIndex(address)
	if idx < 0 {
		return ErrUnknownPlayer
	}
	address = s.engine.Player(idx).Address
	if prev, ok := s.agents[address]; ok && prev != conn {
		_ = prev.Close()
	}
	s.agents[address] = conn
	s.logf("session %d: agent %s attached as player %d", s.cfg.GameID, address, idx)

	s.send(conn, snapshotFrame(s.engine.Snapshot()))
	if !s.started {
		if len(s.agents) == engine.PlayerCount {
			s.begin()
		}
		return nil
	}
	if !s.ending && s.engine.ActingPlayer() == idx {
		s.send(conn, s.yourTurnFrame())
	}
	return nil
}

// ConnectSpectator attaches a read-only connection.
func (s *Session) ConnectSpectator(conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.spectators[conn] = struct{}{}
	s.send(conn, snapshotFrame(s.engine.Snapshot()))
	return nil
}

// Disconnect detaches conn. A dropped agent keeps its seat and the turn
// timer plays for it.
func (s *Session) Disconnect(conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detach(conn)
}

// Start begins the game without waiting for every agent.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.begin()
}

// Close stops the timer, waits for in-flight ledger calls and closes every
// connection.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimer()
	s.generation++
	conns := s.conns()
	s.agents = make(map[string]Conn)
	s.spectators = make(map[Conn]struct{})
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	for _, c := range conns {
		_ = c.Close()
	}
	s.finish()
}

func (s *Session) begin() {
	s.started = true
	s.logf("session %d: game started (round %d)", s.cfg.GameID, s.engine.Round())
	if s.engine.Status() == engine.StatusEnded {
		s.endGame()
		return
	}
	s.prompt()
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// conns lists every attached connection. Callers hold mu.
func (s *Session) conns() []Conn {
	out := make([]Conn, 0, len(s.agents)+len(s.spectators))
	for _, c := range s.agents {
		out = append(out, c)
	}
	for c := range s.spectators {
		out = append(out, c)
	}
	return out
}

func (s *Session) detach(conn Conn) {
	for address, c := range s.agents {
		if c == conn {
			delete(s.agents, address)
			s.logf("session %d: agent %s detached", s.cfg.GameID, address)
		}
	}
	delete(s.spectators, conn)
}

// send writes one frame; a failing connection is detached. Callers hold mu.
func (s *Session) send(conn Conn, frame Frame) {
	if conn == nil {
		return
	}
	if err := conn.Send(frame); err != nil {
		s.logf("session %d: send %s: %v", s.cfg.GameID, frame.Type, err)
		s.detach(conn)
	}
}

func (s *Session) broadcast(frame Frame) {
	for _, c := range s.conns() {
		s.send(c, frame)
	}
}

func (s *Session) sendError(conn Conn, err error) {
	s.send(conn, ErrorFrame(err))
}

func (s *Session) yourTurnFrame() Frame {
	return Frame{Type: FrameYourTurn, Payload: YourTurnPayload{
		Snapshot:     s.engine.Snapshot(),
		LegalActions: s.engine.LegalActions(),
	}}
}
