// Package ledgertest provides an in-memory ledger gateway for tests.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
)

// ErrInjected is returned by calls configured to fail.
var ErrInjected = errors.New("injected ledger failure")

// Settlement records one SettleGame call.
type Settlement struct {
	GameID        uint64
	WinnerAddress string
	Winner        int
	LogHash       [32]byte
}

// Fake is an in-memory Gateway. Failure knobs are set through methods.
type Fake struct {
	mu           sync.Mutex
	games        map[uint64]ledger.Game
	checkpoints  map[uint64]ledger.Checkpoint
	writes       []ledger.Checkpoint
	settlements  []Settlement
	settleCalls  int
	settleFails  int
	dropReplies  int
	commitLate   bool
	checkpointOK bool
	delay        time.Duration
	inflight     int
	maxInflight  int
	nextID       uint64
	feed         ledger.StartedFeed
}

var _ ledger.Gateway = (*Fake)(nil)

// NewFake returns an empty fake ledger.
func NewFake() *Fake {
	return &Fake{
		games:        make(map[uint64]ledger.Game),
		checkpoints:  make(map[uint64]ledger.Checkpoint),
		checkpointOK: true,
		nextID:       1,
	}
}

// FailSettlements makes the next n SettleGame calls fail.
func (f *Fake) FailSettlements(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleFails = n
}

// DropSettleReplies makes the next n SettleGame calls commit and then report
// context.DeadlineExceeded, as a caller whose reply was lost would see.
func (f *Fake) DropSettleReplies(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropReplies = n
}

// CommitAfterCancel makes delayed writes run to completion even when the
// caller's context ends first.
func (f *Fake) CommitAfterCancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitLate = true
}

// FailCheckpoints makes every WriteCheckpoint call fail.
func (f *Fake) FailCheckpoints() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpointOK = false
}

// SetDelay makes every write take d.
func (f *Fake) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// PutGame stores a game record.
func (f *Fake) PutGame(g ledger.Game) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games[g.ID] = g
	if g.ID >= f.nextID {
		f.nextID = g.ID + 1
	}
}

// PutCheckpoint stores a checkpoint as if previously written.
func (f *Fake) PutCheckpoint(c ledger.Checkpoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints[c.GameID] = c
}

// StartGame marks a game started and notifies subscribers.
func (f *Fake) StartGame(gameID uint64, players [ledger.Seats]string, seed [32]byte) {
	f.mu.Lock()
	g := f.games[gameID]
	g.ID = gameID
	g.Status = ledger.GameStarted
	g.Players = players[:]
	g.Seed = seed
	g.Winner = -1
	f.games[gameID] = g
	f.mu.Unlock()
	f.feed.Publish(gameID, seed)
}

// Writes returns every accepted checkpoint in write order.
func (f *Fake) Writes() []ledger.Checkpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.Checkpoint(nil), f.writes...)
}

// Settlements returns the accepted settlements.
func (f *Fake) Settlements() []Settlement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Settlement(nil), f.settlements...)
}

// SettleCalls counts every SettleGame attempt, failed or not.
func (f *Fake) SettleCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settleCalls
}

// MaxInflight is the highest number of concurrently running writes seen.
func (f *Fake) MaxInflight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

func (f *Fake) enter() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight++
	f.maxInflight = max(f.maxInflight, f.inflight)
	return f.delay, f.commitLate
}

func (f *Fake) leave() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
}

func (f *Fake) wait(ctx context.Context) error {
	delay, commitLate := f.enter()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	if commitLate {
		<-timer.C
		return nil
	}
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteCheckpoint implements ledger.Gateway.
func (f *Fake) WriteCheckpoint(ctx context.Context, gameID uint64, round int, players, properties uint256.Int, meta uint64) (ledger.TxRef, error) {
	defer f.leave()
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.checkpointOK {
		return "", ErrInjected
	}
	if prev, ok := f.checkpoints[gameID]; ok && prev.Round >= round {
		return "", ledger.ErrStaleRound
	}
	ref := ledger.TxRef(fmt.Sprintf("checkpoint-%d-%d", gameID, round))
	cp := ledger.Checkpoint{GameID: gameID, Round: round, Players: players, Properties: properties, Meta: meta, TxRef: ref}
	f.checkpoints[gameID] = cp
	f.writes = append(f.writes, cp)
	return ref, nil
}

// SettleGame implements ledger.Gateway.
// Games the fake does not hold settle with a winner seat of -1.
func (f *Fake) SettleGame(ctx context.Context, gameID uint64, winnerAddress string, logHash [32]byte) (ledger.TxRef, error) {
	defer f.leave()
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleCalls++
	if f.settleFails > 0 {
		f.settleFails--
		return "", ErrInjected
	}
	winner := -1
	g, known := f.games[gameID]
	if known {
		if g.Status == ledger.GameSettled {
			return "", ledger.ErrAlreadySettled
		}
		winner = g.SeatOf(winnerAddress)
		if winner < 0 {
			return "", ledger.ErrUnknownWinner
		}
	}
	ref := ledger.TxRef(fmt.Sprintf("settle-%d", gameID))
	if known {
		g.Status = ledger.GameSettled
		g.Winner = winner
		g.LogHash = logHash
		g.SettleTx = ref
		f.games[gameID] = g
	}
	f.settlements = append(f.settlements, Settlement{GameID: gameID, WinnerAddress: winnerAddress, Winner: winner, LogHash: logHash})
	if f.dropReplies > 0 {
		f.dropReplies--
		return "", context.DeadlineExceeded
	}
	return ref, nil
}

// GetGame implements ledger.Gateway.
func (f *Fake) GetGame(ctx context.Context, gameID uint64) (ledger.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return ledger.Game{}, ledger.ErrNotFound
	}
	g.Players = append([]string(nil), g.Players...)
	return g, nil
}

// GetCheckpoint implements ledger.Gateway.
func (f *Fake) GetCheckpoint(ctx context.Context, gameID uint64) (ledger.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.checkpoints[gameID]
	if !ok {
		return ledger.Checkpoint{}, ledger.ErrNotFound
	}
	return cp, nil
}

// GetOpenGameIDs implements ledger.Gateway.
func (f *Fake) GetOpenGameIDs(ctx context.Context) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for id, g := range f.games {
		if g.Status == ledger.GameOpen {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// CreateOpenGame implements ledger.Gateway.
func (f *Fake) CreateOpenGame(ctx context.Context) (uint64, error) {
	defer f.leave()
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.games[id] = ledger.Game{ID: id, Status: ledger.GameOpen, Winner: -1, CreatedAt: time.Now().UTC()}
	return id, nil
}

// OnGameStarted implements ledger.Gateway.
func (f *Fake) OnGameStarted(fn ledger.StartedFunc) func() {
	return f.feed.Subscribe(fn)
}
