package orchestrator_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger/ledgertest"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger/sqlite"
	"github.com/louisbranch/agentopoly/internal/services/arena/orchestrator"
	"github.com/louisbranch/agentopoly/internal/services/arena/session"
)

var testAddresses = [engine.PlayerCount]string{"0xa0", "0xa1", "0xa2", "0xa3"}

type fakeConn struct {
	mu     sync.Mutex
	frames []session.Frame
	closed bool
}

func (c *fakeConn) Send(frame session.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) count(typ string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.Type == typ {
			n++
		}
	}
	return n
}

func fixedSeed() ([32]byte, error) {
	var seed [32]byte
	seed[0] = 1
	return seed, nil
}

func newLocal(t *testing.T, slots int, turn time.Duration) *orchestrator.Orchestrator {
	t.Helper()
	o, err := orchestrator.New(orchestrator.Config{
		Mode:        orchestrator.ModeLocal,
		Slots:       slots,
		TurnTimeout: turn,
		NewSeed:     fixedSeed,
		Logf:        t.Logf,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(o.Close)
	return o
}

func newLedger(t *testing.T, gw ledger.Gateway) *orchestrator.Orchestrator {
	t.Helper()
	o, err := orchestrator.New(orchestrator.Config{
		Mode:        orchestrator.ModeLedger,
		Gateway:     gw,
		TurnTimeout: time.Hour,
		Logf:        t.Logf,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(o.Close)
	return o
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := orchestrator.New(orchestrator.Config{Mode: orchestrator.ModeLocal}); err == nil {
		t.Fatal("expected error for zero slots")
	}
	if _, err := orchestrator.New(orchestrator.Config{Mode: orchestrator.ModeLedger}); err == nil {
		t.Fatal("expected error for missing gateway")
	}
	if _, err := orchestrator.New(orchestrator.Config{Mode: "chain", Slots: 1}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestFourthSeatPromotesLobby(t *testing.T) {
	o := newLocal(t, 2, time.Hour)
	ctx := context.Background()

	spectator := &fakeConn{}
	if err := o.Attach(ctx, 0, "", spectator); err != nil {
		t.Fatalf("attach spectator: %v", err)
	}
	var conns [engine.PlayerCount]*fakeConn
	for i := 0; i < 3; i++ {
		conns[i] = &fakeConn{}
		if err := o.Attach(ctx, 0, testAddresses[i], conns[i]); err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
	}
	if _, ok := o.LiveState(0); ok {
		t.Fatal("session running before the lobby filled")
	}
	if err := o.Act(conns[0], engine.Action{Type: engine.ActionRollDice}); !errors.Is(err, session.ErrNotStarted) {
		t.Fatalf("act in lobby err = %v, want %v", err, session.ErrNotStarted)
	}
	if got := conns[0].count(session.FrameError); got != 1 {
		t.Fatalf("error frames = %d, want 1", got)
	}

	conns[3] = &fakeConn{}
	if err := o.Attach(ctx, 0, testAddresses[3], conns[3]); err != nil {
		t.Fatalf("attach 3: %v", err)
	}

	state, ok := o.LiveState(0)
	if !ok {
		t.Fatal("no session after the fourth seat")
	}
	if state.Turn != 0 || state.CurrentPlayer != 0 {
		t.Fatalf("turn/current = %d/%d, want 0/0", state.Turn, state.CurrentPlayer)
	}
	if got := conns[0].count(session.FrameYourTurn); got != 1 {
		t.Fatalf("player 0 yourTurn = %d, want 1", got)
	}
	if got := spectator.count(session.FrameSnapshot); got == 0 {
		t.Fatal("spectator was not moved onto the session")
	}

	if err := o.Act(conns[0], engine.Action{Type: engine.ActionRollDice}); err != nil {
		t.Fatalf("roll: %v", err)
	}
	if got := spectator.count(session.FrameEvents); got != 1 {
		t.Fatalf("spectator events = %d, want 1", got)
	}
	if err := o.Act(spectator, engine.Action{Type: engine.ActionEndTurn}); !errors.Is(err, orchestrator.ErrSpectator) {
		t.Fatalf("spectator act err = %v, want %v", err, orchestrator.ErrSpectator)
	}

	ids, err := o.OpenGameIDs(ctx)
	if err != nil {
		t.Fatalf("open ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("open ids = %v, want [1]", ids)
	}
}

func TestLobbySeatRules(t *testing.T) {
	o := newLocal(t, 1, time.Hour)
	ctx := context.Background()

	if err := o.Attach(ctx, 3, "0xa0", &fakeConn{}); !errors.Is(err, orchestrator.ErrGameNotFound) {
		t.Fatalf("unknown slot err = %v, want %v", err, orchestrator.ErrGameNotFound)
	}

	first := &fakeConn{}
	if err := o.Attach(ctx, 0, "0xa0", first); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := o.Attach(ctx, 0, " 0xa0 ", &fakeConn{}); !errors.Is(err, orchestrator.ErrSeatTaken) {
		t.Fatalf("duplicate err = %v, want %v", err, orchestrator.ErrSeatTaken)
	}
	if err := o.Attach(ctx, 0, "0xa1", &fakeConn{}); err != nil {
		t.Fatalf("attach second: %v", err)
	}

	info, err := o.GameStatus(ctx, 0)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if info.Status != orchestrator.StatusOpen || len(info.Players) != 2 {
		t.Fatalf("info = %+v, want OPEN with 2 players", info)
	}

	o.Detach(first)
	info, err = o.GameStatus(ctx, 0)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(info.Players) != 1 || info.Players[0] != "0xa1" {
		t.Fatalf("players after detach = %v, want [0xa1]", info.Players)
	}
	if err := o.Attach(ctx, 0, "0xa0", &fakeConn{}); err != nil {
		t.Fatalf("re-seat after detach: %v", err)
	}
}

func TestRunningSessionRejectsStrangers(t *testing.T) {
	o := newLocal(t, 1, time.Hour)
	ctx := context.Background()
	for _, addr := range testAddresses {
		if err := o.Attach(ctx, 0, addr, &fakeConn{}); err != nil {
			t.Fatalf("attach %s: %v", addr, err)
		}
	}
	if err := o.Attach(ctx, 0, "0xstranger", &fakeConn{}); !errors.Is(err, session.ErrUnknownPlayer) {
		t.Fatalf("stranger err = %v, want %v", err, session.ErrUnknownPlayer)
	}
	info, err := o.GameStatus(ctx, 0)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if info.Status != orchestrator.StatusStarted || !info.Live {
		t.Fatalf("info = %+v, want live STARTED", info)
	}
}

func TestSlotReopensAfterGameEnds(t *testing.T) {
	o := newLocal(t, 1, time.Millisecond)
	ctx := context.Background()
	var conns [engine.PlayerCount]*fakeConn
	for i, addr := range testAddresses {
		conns[i] = &fakeConn{}
		if err := o.Attach(ctx, 0, addr, conns[i]); err != nil {
			t.Fatalf("attach %s: %v", addr, err)
		}
	}

	eventually(t, "slot to reopen", func() bool {
		ids, err := o.OpenGameIDs(ctx)
		return err == nil && len(ids) == 1
	})
	if got := conns[0].count(session.FrameGameEnded); got != 1 {
		t.Fatalf("gameEnded frames = %d, want 1", got)
	}
	eventually(t, "finished game connections to close", conns[0].isClosed)
	if _, ok := o.LiveState(0); ok {
		t.Fatal("slot still reports a live session")
	}
	if err := o.Attach(ctx, 0, testAddresses[0], &fakeConn{}); err != nil {
		t.Fatalf("seat in reopened lobby: %v", err)
	}
}

func TestLedgerModeRouting(t *testing.T) {
	gw := ledgertest.NewFake()
	gw.PutGame(ledger.Game{ID: 4, Status: ledger.GameOpen, Winner: -1})
	gw.PutGame(ledger.Game{ID: 5, Status: ledger.GameStarted, Players: testAddresses[:], Seed: [32]byte{5}, Winner: -1})
	o := newLedger(t, gw)
	ctx := context.Background()

	if err := o.Attach(ctx, 99, "", &fakeConn{}); !errors.Is(err, orchestrator.ErrGameNotFound) {
		t.Fatalf("unknown id err = %v, want %v", err, orchestrator.ErrGameNotFound)
	}
	if err := o.Attach(ctx, 4, testAddresses[0], &fakeConn{}); !errors.Is(err, ledger.ErrGameNotStarted) {
		t.Fatalf("open game err = %v, want %v", err, ledger.ErrGameNotStarted)
	}

	spectator := &fakeConn{}
	if err := o.Attach(ctx, 5, "", spectator); err != nil {
		t.Fatalf("attach spectator: %v", err)
	}
	if spectator.count(session.FrameSnapshot) != 1 {
		t.Fatal("spectator got no snapshot")
	}
	state, ok := o.LiveState(5)
	if !ok || state.Round != 0 {
		t.Fatalf("live state = %+v, %v", state, ok)
	}

	info, err := o.GameStatus(ctx, 5)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if info.Status != orchestrator.StatusStarted || !info.Live || len(info.Players) != 4 {
		t.Fatalf("info = %+v", info)
	}
	ids, err := o.OpenGameIDs(ctx)
	if err != nil {
		t.Fatalf("open ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != 4 {
		t.Fatalf("open ids = %v, want [4]", ids)
	}
	if _, err := o.JoinGame(ctx, 4, "0xa0"); !errors.Is(err, ledger.ErrJoinUnsupported) {
		t.Fatalf("join err = %v, want %v", err, ledger.ErrJoinUnsupported)
	}
}

func TestLedgerModeRecoversFromCheckpoint(t *testing.T) {
	seed := [32]byte{9}
	eng, err := engine.New(testAddresses, seed[:])
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	for eng.Round() < 3 || eng.Auction().Active {
		if eng.Status() == engine.StatusEnded {
			t.Fatal("game ended early")
		}
		if _, err := eng.AutoPlay(); err != nil {
			t.Fatalf("autoplay: %v", err)
		}
	}
	words, err := eng.Checkpoint()
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	gw := ledgertest.NewFake()
	gw.PutGame(ledger.Game{ID: 8, Status: ledger.GameStarted, Players: testAddresses[:], Seed: seed, Winner: -1})
	gw.PutCheckpoint(ledger.Checkpoint{
		GameID:     8,
		Round:      words.Round(),
		Players:    words.Players,
		Properties: words.Properties,
		Meta:       words.Meta,
	})
	o := newLedger(t, gw)

	if err := o.Attach(context.Background(), 8, testAddresses[1], &fakeConn{}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	state, ok := o.LiveState(8)
	if !ok {
		t.Fatal("no live session")
	}
	if state.Round != eng.Round() || state.CurrentPlayer != eng.CurrentPlayer() {
		t.Fatalf("round/current = %d/%d, want %d/%d", state.Round, state.CurrentPlayer, eng.Round(), eng.CurrentPlayer())
	}
	for i := range state.Players {
		if state.Players[i].Cash != eng.Player(i).Cash {
			t.Fatalf("player %d cash = %d, want %d", i, state.Players[i].Cash, eng.Player(i).Cash)
		}
	}
}

func TestLedgerStartSpawnsSession(t *testing.T) {
	gw := ledgertest.NewFake()
	o := newLedger(t, gw)
	ctx := context.Background()

	id, err := o.CreateGame(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gw.StartGame(id, testAddresses, [32]byte{3})

	eventually(t, "session spawn", func() bool {
		_, ok := o.LiveState(id)
		return ok
	})
}

func TestLocalModeRejectsLedgerOperations(t *testing.T) {
	o := newLocal(t, 1, time.Hour)
	if _, err := o.CreateGame(context.Background()); !errors.Is(err, orchestrator.ErrLedgerOnly) {
		t.Fatalf("create err = %v, want %v", err, orchestrator.ErrLedgerOnly)
	}
	if _, err := o.JoinGame(context.Background(), 0, "0xa0"); !errors.Is(err, orchestrator.ErrLedgerOnly) {
		t.Fatalf("join err = %v, want %v", err, orchestrator.ErrLedgerOnly)
	}
}

func TestJoinThroughSQLiteLedgerStartsSession(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	o := newLedger(t, store)
	ctx := context.Background()

	id, err := o.CreateGame(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i, addr := range testAddresses {
		info, err := o.JoinGame(ctx, id, addr)
		if err != nil {
			t.Fatalf("join %s: %v", addr, err)
		}
		if len(info.Players) != i+1 {
			t.Fatalf("players after join %d = %v", i, info.Players)
		}
	}

	eventually(t, "session spawn", func() bool {
		_, ok := o.LiveState(id)
		return ok
	})
	agent := &fakeConn{}
	if err := o.Attach(ctx, id, testAddresses[0], agent); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if agent.count(session.FrameSnapshot) != 1 {
		t.Fatal("agent got no snapshot")
	}
}
