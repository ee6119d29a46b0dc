package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
	"github.com/louisbranch/agentopoly/internal/services/arena/checkpoint"
	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger/ledgertest"
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

func (c *fakeConn) ofType(typ string) []session.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []session.Frame
	for _, f := range c.frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

// waitFor polls until the connection has received n frames of typ.
func (c *fakeConn) waitFor(t *testing.T, typ string, n int) []session.Frame {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if frames := c.ofType(typ); len(frames) >= n {
			return frames
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s frames, have %d", n, typ, len(c.ofType(typ)))
	return nil
}

type fakeArchive struct {
	mu     sync.Mutex
	gameID uint64
	events []engine.Event
}

func (a *fakeArchive) ArchiveEvents(ctx context.Context, gameID uint64, events []engine.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gameID = gameID
	a.events = append(a.events, events...)
	return nil
}

func (a *fakeArchive) archived() []engine.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]engine.Event(nil), a.events...)
}

func testSeed(n int) [32]byte {
	var seed [32]byte
	seed[0] = byte(n)
	seed[1] = byte(n >> 8)
	return seed
}

func newSession(t *testing.T, cfg session.Config) *session.Session {
	t.Helper()
	if cfg.Addresses == ([engine.PlayerCount]string{}) {
		cfg.Addresses = testAddresses
	}
	if cfg.TurnTimeout == 0 {
		cfg.TurnTimeout = time.Hour
	}
	cfg.Logf = t.Logf
	s, err := session.New(cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func attachAll(t *testing.T, s *session.Session) [engine.PlayerCount]*fakeConn {
	t.Helper()
	var conns [engine.PlayerCount]*fakeConn
	for i, addr := range testAddresses {
		conns[i] = &fakeConn{}
		if err := s.ConnectAgent(addr, conns[i]); err != nil {
			t.Fatalf("connect %s: %v", addr, err)
		}
	}
	return conns
}

func waitDone(t *testing.T, s *session.Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("session never finished")
	}
}

// lateGame holds checkpoint words for a game still running near the round
// cap, the rounds at which a checkpoint is due and the auto-played winner.
type lateGame struct {
	seed   [32]byte
	words  checkpoint.Words
	rounds []int
	winner int
}

func findLateGame(t *testing.T, round int) lateGame {
	t.Helper()
	for n := 1; n < 200; n++ {
		seed := testSeed(n)
		eng, err := engine.New(testAddresses, seed[:])
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}
		for eng.Status() != engine.StatusEnded && (eng.Round() < round || eng.Auction().Active) {
			if _, err := eng.AutoPlay(); err != nil {
				t.Fatalf("autoplay: %v", err)
			}
		}
		if eng.Status() == engine.StatusEnded {
			continue
		}
		words, err := eng.Checkpoint()
		if err != nil {
			t.Fatalf("checkpoint: %v", err)
		}

		sim, err := engine.Restore(testAddresses, seed[:], words)
		if err != nil {
			t.Fatalf("restore: %v", err)
		}
		game := lateGame{seed: seed, words: words}
		last := sim.Round()
		for sim.Status() != engine.StatusEnded {
			if _, err := sim.AutoPlay(); err != nil {
				t.Fatalf("autoplay: %v", err)
			}
			if sim.Status() != engine.StatusEnded && sim.Round() > last {
				last = sim.Round()
				game.rounds = append(game.rounds, last)
			}
		}
		game.winner = sim.Winner()
		return game
	}
	t.Fatalf("no seed reaches round %d", round)
	return lateGame{}
}

func TestConnectAgentUnknownAddress(t *testing.T) {
	s := newSession(t, session.Config{GameID: 1, Seed: testSeed(1)})
	err := s.ConnectAgent("0xnobody", &fakeConn{})
	if !errors.Is(err, session.ErrUnknownPlayer) {
		t.Fatalf("err = %v, want %v", err, session.ErrUnknownPlayer)
	}
}

func TestSessionBeginsWhenAllAgentsAttach(t *testing.T) {
	s := newSession(t, session.Config{GameID: 1, Seed: testSeed(1)})

	first := &fakeConn{}
	if err := s.ConnectAgent(testAddresses[0], first); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := len(first.ofType(session.FrameSnapshot)); got != 1 {
		t.Fatalf("snapshots on attach = %d, want 1", got)
	}
	if got := len(first.ofType(session.FrameYourTurn)); got != 0 {
		t.Fatalf("yourTurn before start = %d, want 0", got)
	}

	err := s.HandleAction(testAddresses[0], engine.Action{Type: engine.ActionRollDice})
	if !errors.Is(err, session.ErrNotStarted) {
		t.Fatalf("action before start err = %v, want %v", err, session.ErrNotStarted)
	}
	if got := len(first.ofType(session.FrameError)); got != 1 {
		t.Fatalf("error frames = %d, want 1", got)
	}

	conns := [engine.PlayerCount]*fakeConn{first}
	for i := 1; i < engine.PlayerCount; i++ {
		conns[i] = &fakeConn{}
		if err := s.ConnectAgent(testAddresses[i], conns[i]); err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
	}

	turns := conns[0].ofType(session.FrameYourTurn)
	if len(turns) != 1 {
		t.Fatalf("yourTurn frames = %d, want 1", len(turns))
	}
	payload := turns[0].Payload.(session.YourTurnPayload)
	if len(payload.LegalActions) == 0 || payload.LegalActions[0] != engine.ActionRollDice {
		t.Fatalf("legal actions = %v, want rollDice first", payload.LegalActions)
	}
	for i := 1; i < engine.PlayerCount; i++ {
		if got := len(conns[i].ofType(session.FrameYourTurn)); got != 0 {
			t.Fatalf("player %d yourTurn = %d, want 0", i, got)
		}
	}
}

func TestIllegalActionRepromptsSender(t *testing.T) {
	s := newSession(t, session.Config{GameID: 1, Seed: testSeed(1)})
	conns := attachAll(t, s)
	before := s.State()

	err := s.HandleAction(testAddresses[0], engine.Action{Type: engine.ActionBuyProperty})
	if apperrors.CodeOf(err) != apperrors.CodeWrongPhase {
		t.Fatalf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeWrongPhase)
	}
	errs := conns[0].ofType(session.FrameError)
	if len(errs) != 1 {
		t.Fatalf("error frames = %d, want 1", len(errs))
	}
	if code := errs[0].Payload.(session.ErrorPayload).Code; code != string(apperrors.CodeWrongPhase) {
		t.Fatalf("error code = %s, want %s", code, apperrors.CodeWrongPhase)
	}
	if got := len(conns[0].ofType(session.FrameYourTurn)); got != 2 {
		t.Fatalf("yourTurn frames = %d, want 2", got)
	}

	err = s.HandleAction(testAddresses[2], engine.Action{Type: engine.ActionRollDice})
	if !errors.Is(err, engine.ErrNotYourTurn) {
		t.Fatalf("err = %v, want %v", err, engine.ErrNotYourTurn)
	}
	if got := len(conns[2].ofType(session.FrameYourTurn)); got != 0 {
		t.Fatalf("non-acting player re-prompted %d times", got)
	}

	after := s.State()
	if after.Turn != before.Turn || after.Players != before.Players {
		t.Fatal("rejected actions changed the state")
	}
}

func TestAcceptedActionBroadcastsEvents(t *testing.T) {
	s := newSession(t, session.Config{GameID: 1, Seed: testSeed(1)})
	conns := attachAll(t, s)
	spectator := &fakeConn{}
	if err := s.ConnectSpectator(spectator); err != nil {
		t.Fatalf("spectator: %v", err)
	}

	if err := s.HandleAction(testAddresses[0], engine.Action{Type: engine.ActionRollDice}); err != nil {
		t.Fatalf("roll: %v", err)
	}

	for i, c := range append(conns[:], spectator) {
		frames := c.ofType(session.FrameEvents)
		if len(frames) != 1 {
			t.Fatalf("conn %d events frames = %d, want 1", i, len(frames))
		}
		events := frames[0].Payload.(session.EventsPayload).Events
		if len(events) == 0 || events[0].Kind != engine.EventDiceRolled {
			t.Fatalf("conn %d first event = %+v, want diceRolled", i, events)
		}
		for j, ev := range events {
			if ev.Seq != j {
				t.Fatalf("event %d seq = %d", j, ev.Seq)
			}
		}
	}
	if s.LogHash() == ([32]byte{}) {
		t.Fatal("log hash not updated")
	}
}

func TestDisconnectedAgentStopsReceiving(t *testing.T) {
	s := newSession(t, session.Config{GameID: 1, Seed: testSeed(1)})
	conns := attachAll(t, s)
	s.Disconnect(conns[1])

	if err := s.HandleAction(testAddresses[0], engine.Action{Type: engine.ActionRollDice}); err != nil {
		t.Fatalf("roll: %v", err)
	}
	if got := len(conns[1].ofType(session.FrameEvents)); got != 0 {
		t.Fatalf("detached agent got %d events frames", got)
	}
	if got := len(conns[2].ofType(session.FrameEvents)); got != 1 {
		t.Fatalf("attached agent got %d events frames, want 1", got)
	}
}

func TestTurnTimerAutoPlays(t *testing.T) {
	s := newSession(t, session.Config{GameID: 1, Seed: testSeed(1), TurnTimeout: 5 * time.Millisecond})
	conns := attachAll(t, s)

	frames := conns[3].waitFor(t, session.FrameEvents, 1)
	events := frames[0].Payload.(session.EventsPayload).Events
	if len(events) == 0 || events[0].Player != 0 {
		t.Fatalf("first auto-played events = %+v, want player 0", events)
	}
}

func TestRealActionCancelsTimer(t *testing.T) {
	s := newSession(t, session.Config{GameID: 1, Seed: testSeed(1), TurnTimeout: time.Hour})
	conns := attachAll(t, s)

	if err := s.HandleAction(testAddresses[0], engine.Action{Type: engine.ActionRollDice}); err != nil {
		t.Fatalf("roll: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(conns[0].ofType(session.FrameEvents)); got != 1 {
		t.Fatalf("events frames = %d, want 1", got)
	}
}

func TestGameEndsAndSettles(t *testing.T) {
	game := findLateGame(t, engine.MaxRounds-3)
	gw := ledgertest.NewFake()
	gw.StartGame(7, testAddresses, game.seed)
	archive := &fakeArchive{}
	s := newSession(t, session.Config{
		GameID:        7,
		Seed:          game.seed,
		Checkpoint:    &game.words,
		Gateway:       gw,
		Archive:       archive,
		TurnTimeout:   time.Millisecond,
		SettleBackoff: time.Millisecond,
	})
	spectator := &fakeConn{}
	if err := s.ConnectSpectator(spectator); err != nil {
		t.Fatalf("spectator: %v", err)
	}
	s.Start()

	settled := spectator.waitFor(t, session.FrameSettled, 1)
	waitDone(t, s)

	if ref := settled[0].Payload.(session.SettledPayload).TxRef; ref != "settle-7" {
		t.Fatalf("tx ref = %q, want settle-7", ref)
	}
	ended := spectator.ofType(session.FrameGameEnded)
	if len(ended) != 1 {
		t.Fatalf("gameEnded frames = %d, want 1", len(ended))
	}
	result := ended[0].Payload.(session.GameEndedPayload)
	if result.Winner != game.winner {
		t.Fatalf("winner = %d, want %d", result.Winner, game.winner)
	}
	if result.Winner >= 0 && result.WinnerAddress != testAddresses[result.Winner] {
		t.Fatalf("winner address = %q", result.WinnerAddress)
	}

	settlements := gw.Settlements()
	if len(settlements) != 1 {
		t.Fatalf("settlements = %d, want 1", len(settlements))
	}
	if settlements[0].Winner != game.winner || settlements[0].WinnerAddress != result.WinnerAddress || settlements[0].LogHash != s.LogHash() {
		t.Fatalf("settlement = %+v, want winner %d hash %x", settlements[0], game.winner, s.LogHash())
	}

	writes := gw.Writes()
	if len(writes) != len(game.rounds) {
		t.Fatalf("checkpoints = %d, want %d", len(writes), len(game.rounds))
	}
	for i, w := range writes {
		if w.Round != game.rounds[i] {
			t.Fatalf("checkpoint %d round = %d, want %d", i, w.Round, game.rounds[i])
		}
	}

	var broadcast int
	for _, f := range spectator.ofType(session.FrameEvents) {
		broadcast += len(f.Payload.(session.EventsPayload).Events)
	}
	archived := archive.archived()
	if len(archived) != broadcast {
		t.Fatalf("archived %d events, broadcast %d", len(archived), broadcast)
	}
	for i, ev := range archived {
		if ev.Seq != i {
			t.Fatalf("archived event %d seq = %d", i, ev.Seq)
		}
	}
}

func TestSettlementRetriesWithBackoff(t *testing.T) {
	game := findLateGame(t, engine.MaxRounds-1)
	gw := ledgertest.NewFake()
	gw.FailSettlements(2)
	s := newSession(t, session.Config{
		GameID:         3,
		Seed:           game.seed,
		Checkpoint:     &game.words,
		Gateway:        gw,
		TurnTimeout:    time.Millisecond,
		SettleAttempts: 3,
		SettleBackoff:  time.Millisecond,
	})
	spectator := &fakeConn{}
	if err := s.ConnectSpectator(spectator); err != nil {
		t.Fatalf("spectator: %v", err)
	}
	s.Start()

	spectator.waitFor(t, session.FrameSettled, 1)
	if got := gw.SettleCalls(); got != 3 {
		t.Fatalf("settle calls = %d, want 3", got)
	}
}

func TestSettlementFailureReported(t *testing.T) {
	game := findLateGame(t, engine.MaxRounds-1)
	gw := ledgertest.NewFake()
	gw.FailSettlements(10)
	s := newSession(t, session.Config{
		GameID:         3,
		Seed:           game.seed,
		Checkpoint:     &game.words,
		Gateway:        gw,
		TurnTimeout:    time.Millisecond,
		SettleAttempts: 3,
		SettleBackoff:  time.Millisecond,
	})
	spectator := &fakeConn{}
	if err := s.ConnectSpectator(spectator); err != nil {
		t.Fatalf("spectator: %v", err)
	}
	s.Start()
	waitDone(t, s)

	if got := len(spectator.ofType(session.FrameGameEnded)); got != 1 {
		t.Fatalf("gameEnded frames = %d, want 1", got)
	}
	errs := spectator.ofType(session.FrameError)
	if len(errs) != 1 {
		t.Fatalf("error frames = %d, want 1", len(errs))
	}
	if msg := errs[0].Payload.(session.ErrorPayload).Message; !strings.Contains(msg, "settlement failed") {
		t.Fatalf("error message = %q", msg)
	}
	if got := len(spectator.ofType(session.FrameSettled)); got != 0 {
		t.Fatalf("settled frames = %d, want 0", got)
	}
	if got := gw.SettleCalls(); got != 3 {
		t.Fatalf("settle calls = %d, want 3", got)
	}
}

func TestSettlementCommittedWithLostReplySucceeds(t *testing.T) {
	game := findLateGame(t, engine.MaxRounds-1)
	gw := ledgertest.NewFake()
	gw.StartGame(5, testAddresses, game.seed)
	gw.DropSettleReplies(1)
	s := newSession(t, session.Config{
		GameID:         5,
		Seed:           game.seed,
		Checkpoint:     &game.words,
		Gateway:        gw,
		TurnTimeout:    time.Millisecond,
		SettleAttempts: 3,
		SettleBackoff:  time.Millisecond,
	})
	spectator := &fakeConn{}
	if err := s.ConnectSpectator(spectator); err != nil {
		t.Fatalf("spectator: %v", err)
	}
	s.Start()
	waitDone(t, s)

	settled := spectator.ofType(session.FrameSettled)
	if len(settled) != 1 {
		t.Fatalf("settled frames = %d, want 1 (errors %+v)", len(settled), spectator.ofType(session.FrameError))
	}
	if ref := settled[0].Payload.(session.SettledPayload).TxRef; ref != "settle-5" {
		t.Fatalf("tx ref = %q, want settle-5", ref)
	}
	if got := gw.SettleCalls(); got != 2 {
		t.Fatalf("settle calls = %d, want 2", got)
	}
	if got := len(gw.Settlements()); got != 1 {
		t.Fatalf("settlements = %d, want 1", got)
	}
}

func TestSettlementConflictingOutcomeFailsOnce(t *testing.T) {
	game := findLateGame(t, engine.MaxRounds-1)
	gw := ledgertest.NewFake()
	gw.PutGame(ledger.Game{
		ID:      6,
		Status:  ledger.GameSettled,
		Players: testAddresses[:],
		Winner:  (game.winner + 1) % engine.PlayerCount,
		LogHash: [32]byte{0xff},
	})
	s := newSession(t, session.Config{
		GameID:         6,
		Seed:           game.seed,
		Checkpoint:     &game.words,
		Gateway:        gw,
		TurnTimeout:    time.Millisecond,
		SettleAttempts: 3,
		SettleBackoff:  time.Millisecond,
	})
	spectator := &fakeConn{}
	if err := s.ConnectSpectator(spectator); err != nil {
		t.Fatalf("spectator: %v", err)
	}
	s.Start()
	waitDone(t, s)

	if got := len(spectator.ofType(session.FrameSettled)); got != 0 {
		t.Fatalf("settled frames = %d, want 0", got)
	}
	if got := len(spectator.ofType(session.FrameError)); got != 1 {
		t.Fatalf("error frames = %d, want 1", got)
	}
	if got := gw.SettleCalls(); got != 1 {
		t.Fatalf("settle calls = %d, want 1", got)
	}
}

func TestFailedCheckpointsDoNotBlockSettlement(t *testing.T) {
	game := findLateGame(t, engine.MaxRounds-3)
	gw := ledgertest.NewFake()
	gw.StartGame(8, testAddresses, game.seed)
	gw.FailCheckpoints()
	s := newSession(t, session.Config{
		GameID:        8,
		Seed:          game.seed,
		Checkpoint:    &game.words,
		Gateway:       gw,
		TurnTimeout:   time.Millisecond,
		SettleBackoff: time.Millisecond,
	})
	spectator := &fakeConn{}
	if err := s.ConnectSpectator(spectator); err != nil {
		t.Fatalf("spectator: %v", err)
	}
	s.Start()
	waitDone(t, s)

	if got := len(gw.Writes()); got != 0 {
		t.Fatalf("accepted checkpoints = %d, want 0", got)
	}
	if got := len(spectator.ofType(session.FrameSettled)); got != 1 {
		t.Fatalf("settled frames = %d, want 1", got)
	}
	if st := s.State(); st.Status != engine.StatusEnded {
		t.Fatalf("status = %s, want %s", st.Status, engine.StatusEnded)
	}
}

func TestCheckpointWritesNeverOverlap(t *testing.T) {
	game := findLateGame(t, engine.MaxRounds-6)
	gw := ledgertest.NewFake()
	gw.StartGame(9, testAddresses, game.seed)
	gw.SetDelay(5 * time.Millisecond)
	s := newSession(t, session.Config{
		GameID:        9,
		Seed:          game.seed,
		Checkpoint:    &game.words,
		Gateway:       gw,
		TurnTimeout:   time.Millisecond,
		SettleBackoff: time.Millisecond,
	})
	spectator := &fakeConn{}
	if err := s.ConnectSpectator(spectator); err != nil {
		t.Fatalf("spectator: %v", err)
	}
	s.Start()
	waitDone(t, s)

	if got := gw.MaxInflight(); got != 1 {
		t.Fatalf("max inflight ledger calls = %d, want 1", got)
	}
	writes := gw.Writes()
	if len(writes) == 0 {
		t.Fatal("no checkpoint written")
	}
	for i := 1; i < len(writes); i++ {
		if writes[i].Round <= writes[i-1].Round {
			t.Fatalf("checkpoint rounds out of order: %d after %d", writes[i].Round, writes[i-1].Round)
		}
	}
	if got := len(spectator.ofType(session.FrameSettled)); got != 1 {
		t.Fatalf("settled frames = %d, want 1", got)
	}
}

func TestLocalGameEndsWithoutSettlement(t *testing.T) {
	game := findLateGame(t, engine.MaxRounds-1)
	s := newSession(t, session.Config{
		GameID:      1,
		Seed:        game.seed,
		Checkpoint:  &game.words,
		TurnTimeout: time.Millisecond,
	})
	spectator := &fakeConn{}
	if err := s.ConnectSpectator(spectator); err != nil {
		t.Fatalf("spectator: %v", err)
	}
	s.Start()
	waitDone(t, s)

	if got := len(spectator.ofType(session.FrameGameEnded)); got != 1 {
		t.Fatalf("gameEnded frames = %d, want 1", got)
	}
	if got := len(spectator.ofType(session.FrameSettled)); got != 0 {
		t.Fatalf("settled frames = %d, want 0", got)
	}
	if st := s.State(); st.Status != engine.StatusEnded {
		t.Fatalf("status = %s, want %s", st.Status, engine.StatusEnded)
	}
}

func TestCloseDetachesEverything(t *testing.T) {
	s := newSession(t, session.Config{GameID: 1, Seed: testSeed(1)})
	conns := attachAll(t, s)
	s.Close()

	waitDone(t, s)
	for i, c := range conns {
		if !c.isClosed() {
			t.Fatalf("conn %d not closed", i)
		}
	}
	if err := s.ConnectAgent(testAddresses[0], &fakeConn{}); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("connect after close err = %v, want %v", err, session.ErrClosed)
	}
}

func TestActionDelayPacesPrompts(t *testing.T) {
	s := newSession(t, session.Config{GameID: 1, Seed: testSeed(1), ActionDelay: 50 * time.Millisecond})
	conns := attachAll(t, s)

	if err := s.HandleAction(testAddresses[0], engine.Action{Type: engine.ActionRollDice}); err != nil {
		t.Fatalf("roll: %v", err)
	}
	if got := len(conns[0].ofType(session.FrameYourTurn)); got != 1 {
		t.Fatalf("yourTurn before delay = %d, want 1", got)
	}
	conns[0].waitFor(t, session.FrameYourTurn, 2)
}
