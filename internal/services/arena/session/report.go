package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/agentopoly/internal/platform/timeouts"
	"github.com/louisbranch/agentopoly/internal/services/arena/checkpoint"
	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
)

// maybeCheckpoint starts an asynchronous checkpoint write when the round has
// advanced past the last checkpointed one. Callers hold mu.
func (s *Session) maybeCheckpoint() {
	if s.cfg.Gateway == nil {
		return
	}
	round := s.engine.Round()
	if round <= s.checkpointRound {
		return
	}
	words, err := s.engine.Checkpoint()
	if err != nil {
		s.logf("session %d: checkpoint round %d deferred: %v", s.cfg.GameID, round, err)
		return
	}
	s.checkpointRound = round

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writeCheckpoint(round, words)
	}()
}

func (s *Session) writeCheckpoint(round int, words checkpoint.Words) {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()
	if round <= s.writtenRound {
		return
	}

	ctx, span := s.tracer.Start(s.ctx, "session.checkpoint", trace.WithAttributes(
		attribute.Int64("game.id", int64(s.cfg.GameID)),
		attribute.Int("game.round", round),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeouts.LedgerCall)
	defer cancel()
	ref, err := s.cfg.Gateway.WriteCheckpoint(ctx, s.cfg.GameID, round, words.Players, words.Properties, words.Meta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkpoint failed")
		s.logf("session %d: checkpoint round %d: %v", s.cfg.GameID, round, err)
		return
	}
	s.writtenRound = round
	span.SetAttributes(attribute.String("ledger.tx_ref", string(ref)))
	s.logf("session %d: checkpoint round %d tx %s", s.cfg.GameID, round, ref)
}

// endGame broadcasts the final state and hands settlement to a goroutine.
// Callers hold mu.
func (s *Session) endGame() {
	if s.ending {
		return
	}
	s.ending = true
	s.stopTimer()
	s.generation++

	winner := s.engine.Winner()
	winnerAddress := ""
	if winner >= 0 {
		winnerAddress = s.engine.Player(winner).Address
	}
	s.broadcast(Frame{Type: FrameGameEnded, Payload: GameEndedPayload{
		Snapshot:      s.engine.Snapshot(),
		Winner:        winner,
		WinnerAddress: winnerAddress,
	}})
	s.logf("session %d: game ended after round %d, winner %d %s, log hash %x",
		s.cfg.GameID, s.engine.Round(), winner, winnerAddress, s.log.Hash())

	hash := s.log.Hash()
	history := s.history
	s.history = nil
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish()
		s.conclude(winner, winnerAddress, hash, history)
	}()
}

func (s *Session) conclude(winner int, winnerAddress string, hash [32]byte, history []engine.Event) {
	if s.cfg.Archive != nil && len(history) > 0 {
		ctx, cancel := context.WithTimeout(s.ctx, timeouts.LedgerCall)
		if err := s.cfg.Archive.ArchiveEvents(ctx, s.cfg.GameID, history); err != nil {
			s.logf("session %d: archive events: %v", s.cfg.GameID, err)
		}
		cancel()
	}
	if s.cfg.Gateway == nil {
		return
	}

	ref, err := s.settle(winner, winnerAddress, hash)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.broadcast(errorFrame(fmt.Sprintf("settlement failed: %v", err), ""))
		return
	}
	s.broadcast(Frame{Type: FrameSettled, Payload: SettledPayload{TxRef: ref}})
}

// settle reports the result, retrying with exponential backoff. Pending
// checkpoint writes finish first. An attempt whose reply was lost may still
// have committed, so ErrAlreadySettled counts as success when the ledger
// holds this exact outcome.
func (s *Session) settle(winner int, winnerAddress string, hash [32]byte) (ledger.TxRef, error) {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()

	ctx, span := s.tracer.Start(s.ctx, "session.settle", trace.WithAttributes(
		attribute.Int64("game.id", int64(s.cfg.GameID)),
		attribute.Int("game.winner", winner),
	))
	defer span.End()

	attempt := 0
	operation := func() (ledger.TxRef, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, timeouts.LedgerCall)
		defer cancel()
		ref, err := s.cfg.Gateway.SettleGame(callCtx, s.cfg.GameID, winnerAddress, hash)
		switch {
		case errors.Is(err, ledger.ErrAlreadySettled):
			return s.settledAs(callCtx, winner, hash, err)
		case errors.Is(err, ledger.ErrUnknownWinner):
			return "", backoff.Permanent(err)
		}
		return ref, err
	}
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.SettleBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         s.cfg.SettleBackoff << s.cfg.SettleAttempts,
	}
	ref, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(s.cfg.SettleAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logf("session %d: settlement attempt %d failed: %v; retrying in %s", s.cfg.GameID, attempt, err, next)
		}),
	)
	span.SetAttributes(attribute.Int("settle.attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settlement failed")
		s.logf("session %d: settlement failed after %d attempts: %v", s.cfg.GameID, attempt, err)
		return "", err
	}
	span.SetAttributes(attribute.String("ledger.tx_ref", string(ref)))
	s.logf("session %d: settled tx %s", s.cfg.GameID, ref)
	return ref, nil
}

// settledAs resolves ErrAlreadySettled against the stored outcome. A
// different outcome is permanent; a failed read is retried.
func (s *Session) settledAs(ctx context.Context, winner int, hash [32]byte, settleErr error) (ledger.TxRef, error) {
	game, err := s.cfg.Gateway.GetGame(ctx, s.cfg.GameID)
	if err != nil {
		return "", fmt.Errorf("read settled game: %w", err)
	}
	if game.Status != ledger.GameSettled || game.Winner != winner || game.LogHash != hash {
		return "", backoff.Permanent(settleErr)
	}
	s.logf("session %d: settlement already recorded as tx %s", s.cfg.GameID, game.SettleTx)
	return game.SettleTx, nil
}
