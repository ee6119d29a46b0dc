package ledger

import (
	"context"
	"sync"

	"github.com/holiman/uint256"
)

// SerialGateway funnels every write through a single submission goroutine so
// that all sessions sharing one signing identity are strictly sequenced.
// Reads and subscriptions pass straight through.
type SerialGateway struct {
	inner Gateway
	jobs  chan serialJob
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

type serialJob struct {
	ctx    context.Context
	run    func(context.Context) serialResult
	result chan serialResult
}

// serialResult carries a job's outcome back to the submitter. The worker
// owns it until it is sent, so an abandoned submission shares no memory with
// a job still running.
type serialResult struct {
	ref  TxRef
	id   uint64
	game Game
	err  error
}

var (
	_ Gateway = (*SerialGateway)(nil)
	_ Joiner  = (*SerialGateway)(nil)
)

// NewSerialGateway starts the submission loop.
func NewSerialGateway(inner Gateway) *SerialGateway {
	g := &SerialGateway{
		inner: inner,
		jobs:  make(chan serialJob),
		done:  make(chan struct{}),
	}
	g.wg.Add(1)
	go g.loop()
	return g
}

func (g *SerialGateway) loop() {
	defer g.wg.Done()
	for {
		select {
		case <-g.done:
			return
		case job := <-g.jobs:
			if err := job.ctx.Err(); err != nil {
				job.result <- serialResult{err: err}
				continue
			}
			job.result <- job.run(job.ctx)
		}
	}
}

func (g *SerialGateway) submit(ctx context.Context, run func(context.Context) serialResult) serialResult {
	job := serialJob{ctx: ctx, run: run, result: make(chan serialResult, 1)}
	select {
	case g.jobs <- job:
	case <-ctx.Done():
		return serialResult{err: ctx.Err()}
	case <-g.done:
		return serialResult{err: ErrClosed}
	}
	select {
	case res := <-job.result:
		return res
	case <-ctx.Done():
		return serialResult{err: ctx.Err()}
	}
}

// WriteCheckpoint queues a checkpoint write.
func (g *SerialGateway) WriteCheckpoint(ctx context.Context, gameID uint64, round int, players, properties uint256.Int, meta uint64) (TxRef, error) {
	res := g.submit(ctx, func(ctx context.Context) serialResult {
		ref, err := g.inner.WriteCheckpoint(ctx, gameID, round, players, properties, meta)
		return serialResult{ref: ref, err: err}
	})
	return res.ref, res.err
}

// SettleGame queues a settlement.
func (g *SerialGateway) SettleGame(ctx context.Context, gameID uint64, winnerAddress string, logHash [32]byte) (TxRef, error) {
	res := g.submit(ctx, func(ctx context.Context) serialResult {
		ref, err := g.inner.SettleGame(ctx, gameID, winnerAddress, logHash)
		return serialResult{ref: ref, err: err}
	})
	return res.ref, res.err
}

// CreateOpenGame queues a game creation.
func (g *SerialGateway) CreateOpenGame(ctx context.Context) (uint64, error) {
	res := g.submit(ctx, func(ctx context.Context) serialResult {
		id, err := g.inner.CreateOpenGame(ctx)
		return serialResult{id: id, err: err}
	})
	return res.id, res.err
}

// JoinGame queues a join when the inner gateway seats players.
func (g *SerialGateway) JoinGame(ctx context.Context, gameID uint64, address string) (Game, error) {
	joiner, ok := g.inner.(Joiner)
	if !ok {
		return Game{}, ErrJoinUnsupported
	}
	res := g.submit(ctx, func(ctx context.Context) serialResult {
		game, err := joiner.JoinGame(ctx, gameID, address)
		return serialResult{game: game, err: err}
	})
	return res.game, res.err
}

// GetGame reads through.
func (g *SerialGateway) GetGame(ctx context.Context, gameID uint64) (Game, error) {
	return g.inner.GetGame(ctx, gameID)
}

// GetCheckpoint reads through.
func (g *SerialGateway) GetCheckpoint(ctx context.Context, gameID uint64) (Checkpoint, error) {
	return g.inner.GetCheckpoint(ctx, gameID)
}

// GetOpenGameIDs reads through.
func (g *SerialGateway) GetOpenGameIDs(ctx context.Context) ([]uint64, error) {
	return g.inner.GetOpenGameIDs(ctx)
}

// OnGameStarted subscribes through.
func (g *SerialGateway) OnGameStarted(fn StartedFunc) func() {
	return g.inner.OnGameStarted(fn)
}

// Close stops the submission loop. Pending submissions fail with ErrClosed.
func (g *SerialGateway) Close() {
	g.once.Do(func() { close(g.done) })
	g.wg.Wait()
}
