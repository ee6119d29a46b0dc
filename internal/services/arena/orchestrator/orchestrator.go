// Package orchestrator routes agent and spectator connections to pre-game
// lobbies or running sessions, in fixed-slot or ledger-addressed mode.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
	"github.com/louisbranch/agentopoly/internal/random"
	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
	"github.com/louisbranch/agentopoly/internal/services/arena/session"
)

// Mode selects how games are addressed.
type Mode string

const (
	// ModeLocal runs a fixed number of slots without a ledger.
	ModeLocal Mode = "local"
	// ModeLedger keys sessions by ledger game id.
	ModeLedger Mode = "ledger"
)

var (
	// ErrGameNotFound is returned for an id with no slot or ledger record.
	ErrGameNotFound = apperrors.New(apperrors.CodeNotFound, "game not found")
	// ErrSeatTaken is returned when an address is already seated in a lobby.
	ErrSeatTaken = apperrors.New(apperrors.CodeSeatTaken, "address already seated")
	// ErrLobbyFull is returned when every seat is taken.
	ErrLobbyFull = apperrors.New(apperrors.CodeLobbyFull, "lobby is full")
	// ErrSpectator is reported when a spectator connection sends an action.
	ErrSpectator = apperrors.New(apperrors.CodeUnknownPlayer, "spectators cannot act")
	// ErrNotAttached is reported for a connection the orchestrator never saw.
	ErrNotAttached = apperrors.New(apperrors.CodeNotFound, "connection is not attached to a game")
	// ErrLedgerOnly is returned by ledger operations in local mode.
	ErrLedgerOnly = apperrors.New(apperrors.CodeUnsupported, "operation requires ledger mode")
	// ErrClosed is returned after Close.
	ErrClosed = apperrors.New(apperrors.CodeUnknown, "orchestrator closed")
)

// Config controls the orchestrator and the sessions it spawns.
type Config struct {
	Mode  Mode
	Slots int

	// Gateway is required in ledger mode and ignored in local mode.
	Gateway ledger.Gateway
	Archive session.EventArchive

	TurnTimeout    time.Duration
	ActionDelay    time.Duration
	SettleAttempts int
	SettleBackoff  time.Duration

	NewSeed func() ([32]byte, error)
	Logf    func(format string, args ...any)
}

// Orchestrator owns every lobby and session of one arena process.
type Orchestrator struct {
	cfg    Config
	logf   func(format string, args ...any)
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	slots       []*slot
	games       map[uint64]*session.Session
	bindings    map[session.Conn]*binding
	unsubscribe func()
	closed      bool

	wg sync.WaitGroup
}

// slot is one fixed-slot occupant: a lobby or a running session.
type slot struct {
	id      uint64
	lobby   *lobby
	session *session.Session
}

// binding records where a connection is attached.
type binding struct {
	gameID  uint64
	address string
	slot    *slot
	session *session.Session
}

// New builds an orchestrator. In ledger mode it subscribes to game starts so
// sessions spawn as soon as the ledger seats the fourth player.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeLocal
	}
	if cfg.NewSeed == nil {
		cfg.NewSeed = random.NewSeed
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:      cfg,
		logf:     cfg.Logf,
		ctx:      ctx,
		cancel:   cancel,
		games:    make(map[uint64]*session.Session),
		bindings: make(map[session.Conn]*binding),
	}

	switch cfg.Mode {
	case ModeLocal:
		if cfg.Slots <= 0 {
			cancel()
			return nil, fmt.Errorf("local mode needs at least one slot, got %d", cfg.Slots)
		}
		o.slots = make([]*slot, cfg.Slots)
		for i := range o.slots {
			o.slots[i] = &slot{id: uint64(i), lobby: newLobby()}
		}
	case ModeLedger:
		if cfg.Gateway == nil {
			cancel()
			return nil, errors.New("ledger mode needs a gateway")
		}
		o.unsubscribe = cfg.Gateway.OnGameStarted(o.onGameStarted)
	default:
		cancel()
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	return o, nil
}

// Mode reports the addressing mode.
func (o *Orchestrator) Mode() Mode { return o.cfg.Mode }

// Attach routes conn to the lobby or session for gameID. An empty address
// attaches a spectator.
func (o *Orchestrator) Attach(ctx context.Context, gameID uint64, address string, conn session.Conn) error {
	address = strings.TrimSpace(address)
	if o.cfg.Mode == ModeLedger {
		sess, err := o.ledgerSession(ctx, gameID)
		if err != nil {
			return err
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed {
			return ErrClosed
		}
		return o.attachSession(sess, gameID, address, conn)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if gameID >= uint64(len(o.slots)) {
		return ErrGameNotFound
	}
	sl := o.slots[gameID]
	if sl.session != nil {
		return o.attachSession(sl.session, gameID, address, conn)
	}

	if address == "" {
		sl.lobby.spectators[conn] = struct{}{}
		o.bindings[conn] = &binding{gameID: gameID, slot: sl}
		return nil
	}
	if err := sl.lobby.seat(address, conn); err != nil {
		return err
	}
	o.bindings[conn] = &binding{gameID: gameID, address: address, slot: sl}
	o.logf("slot %d: %s seated (%d/%d)", sl.id, address, len(sl.lobby.seats), engine.PlayerCount)
	if sl.lobby.full() {
		if err := o.promote(sl); err != nil {
			sl.lobby.leave(conn)
			delete(o.bindings, conn)
			return err
		}
	}
	return nil
}

// attachSession attaches conn to a running session. Callers hold mu.
func (o *Orchestrator) attachSession(sess *session.Session, gameID uint64, address string, conn session.Conn) error {
	var err error
	if address == "" {
		err = sess.ConnectSpectator(conn)
	} else {
		err = sess.ConnectAgent(address, conn)
	}
	if err != nil {
		return err
	}
	o.bindings[conn] = &binding{gameID: gameID, address: address, session: sess}
	return nil
}

// promote replaces a full lobby with a freshly seeded session and moves
// every lobby connection onto it. Callers hold mu.
func (o *Orchestrator) promote(sl *slot) error {
	seed, err := o.cfg.NewSeed()
	if err != nil {
		return fmt.Errorf("slot %d: seed: %w", sl.id, err)
	}
	var addresses [engine.PlayerCount]string
	copy(addresses[:], sl.lobby.addresses())

	sess, err := session.New(o.sessionConfig(sl.id, addresses, seed))
	if err != nil {
		return fmt.Errorf("slot %d: %w", sl.id, err)
	}
	lb := sl.lobby
	sl.lobby = nil
	sl.session = sess
	o.logf("slot %d: lobby full, game starting", sl.id)

	for c := range lb.spectators {
		if err := sess.ConnectSpectator(c); err != nil {
			o.logf("slot %d: move spectator: %v", sl.id, err)
		}
		o.bindings[c] = &binding{gameID: sl.id, session: sess}
	}
	for _, seat := range lb.seats {
		if err := sess.ConnectAgent(seat.address, seat.conn); err != nil {
			o.logf("slot %d: move agent %s: %v", sl.id, seat.address, err)
		}
		o.bindings[seat.conn] = &binding{gameID: sl.id, address: seat.address, session: sess}
	}

	o.watch(sess, func() {
		if sl.session == sess {
			sl.session = nil
			sl.lobby = newLobby()
			o.logf("slot %d: game over, lobby reopened", sl.id)
		}
	})
	return nil
}

func (o *Orchestrator) sessionConfig(gameID uint64, addresses [engine.PlayerCount]string, seed [32]byte) session.Config {
	cfg := session.Config{
		GameID:         gameID,
		Addresses:      addresses,
		Seed:           seed,
		TurnTimeout:    o.cfg.TurnTimeout,
		ActionDelay:    o.cfg.ActionDelay,
		SettleAttempts: o.cfg.SettleAttempts,
		SettleBackoff:  o.cfg.SettleBackoff,
		Logf:           o.logf,
	}
	if o.cfg.Mode == ModeLedger {
		cfg.Gateway = o.cfg.Gateway
		cfg.Archive = o.cfg.Archive
	}
	return cfg
}

// watch releases sess once it is done. onEnd runs under mu. Callers hold mu.
func (o *Orchestrator) watch(sess *session.Session, onEnd func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		select {
		case <-sess.Done():
		case <-o.ctx.Done():
			return
		}
		o.mu.Lock()
		onEnd()
		for c, b := range o.bindings {
			if b.session == sess {
				delete(o.bindings, c)
			}
		}
		o.mu.Unlock()
		sess.Close()
	}()
}

// Act forwards an action from conn to its session. Every outcome is
// reported to conn as a frame.
func (o *Orchestrator) Act(conn session.Conn, action engine.Action) error {
	o.mu.Lock()
	b, ok := o.bindings[conn]
	var (
		sess    *session.Session
		address string
	)
	if ok {
		sess = b.session
		address = b.address
	}
	o.mu.Unlock()

	var err error
	switch {
	case !ok:
		err = ErrNotAttached
	case address == "":
		err = ErrSpectator
	case sess == nil:
		err = session.ErrNotStarted
	default:
		return sess.HandleAction(address, action)
	}
	_ = conn.Send(session.ErrorFrame(err))
	return err
}

// Detach forgets conn. A lobby seat held by conn is freed; a session seat is
// kept and auto-played.
func (o *Orchestrator) Detach(conn session.Conn) {
	o.mu.Lock()
	b, ok := o.bindings[conn]
	delete(o.bindings, conn)
	var sess *session.Session
	if ok {
		sess = b.session
		if sess == nil && b.slot != nil && b.slot.lobby != nil {
			b.slot.lobby.leave(conn)
		}
	}
	o.mu.Unlock()

	if sess != nil {
		sess.Disconnect(conn)
	}
}

// Close shuts every session down and closes lobby connections.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	var (
		sessions []*session.Session
		conns    []session.Conn
	)
	for _, sl := range o.slots {
		if sl.session != nil {
			sessions = append(sessions, sl.session)
		}
		if sl.lobby != nil {
			conns = append(conns, sl.lobby.conns()...)
		}
	}
	for _, sess := range o.games {
		sessions = append(sessions, sess)
	}
	o.bindings = make(map[session.Conn]*binding)
	unsubscribe := o.unsubscribe
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	o.cancel()
	for _, sess := range sessions {
		sess.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	o.wg.Wait()
}
