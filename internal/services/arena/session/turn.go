package session

import (
	"time"

	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
)

// HandleAction applies an action sent by the agent seated at address.
// Outcomes are reported to the agent as frames; the returned error mirrors
// the error frame. ErrUnknownPlayer is returned without sending anything.
func (s *Session) HandleAction(address string, action engine.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.engine.PlayerIndex(address)
	if idx < 0 {
		return ErrUnknownPlayer
	}
	conn := s.agents[s.engine.Player(idx).Address]
	switch {
	case s.closed:
		s.sendError(conn, ErrClosed)
		return ErrClosed
	case !s.started:
		s.sendError(conn, ErrNotStarted)
		return ErrNotStarted
	}

	events, err := s.engine.ExecuteAction(idx, action)
	if err != nil {
		s.sendError(conn, err)
		if !s.ending && s.engine.ActingPlayer() == idx {
			s.send(conn, s.yourTurnFrame())
		}
		return err
	}

	s.stopTimer()
	s.generation++
	s.apply(events)
	return nil
}

// apply records and broadcasts events, then moves the game forward.
// Callers hold mu.
func (s *Session) apply(events []engine.Event) {
	s.record(events)
	s.broadcast(Frame{Type: FrameEvents, Payload: EventsPayload{Events: events}})

	if s.engine.Status() == engine.StatusEnded {
		s.endGame()
		return
	}
	s.maybeCheckpoint()
	s.schedulePrompt()
}

// record renumbers events into the session-wide sequence and folds each one
// into the rolling log hash.
func (s *Session) record(events []engine.Event) {
	if err := s.log.Append(events); err != nil {
		s.logf("session %d: %v", s.cfg.GameID, err)
	}
	if s.cfg.Archive != nil {
		s.history = append(s.history, events...)
	}
}

func (s *Session) schedulePrompt() {
	if s.cfg.ActionDelay <= 0 {
		s.prompt()
		return
	}
	gen := s.generation
	s.timer = time.AfterFunc(s.cfg.ActionDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation || s.closed || s.ending {
			return
		}
		s.prompt()
	})
}

// prompt sends yourTurn to the acting agent, a snapshot to everyone else and
// arms the turn timer.
func (s *Session) prompt() {
	acting := s.engine.Player(s.engine.ActingPlayer()).Address
	actingConn := s.agents[acting]

	snap := snapshotFrame(s.engine.Snapshot())
	for _, c := range s.conns() {
		if c == actingConn {
			s.send(c, s.yourTurnFrame())
			continue
		}
		s.send(c, snap)
	}
	s.armTimer()
}

func (s *Session) armTimer() {
	s.stopTimer()
	s.generation++
	gen := s.generation
	s.timer = time.AfterFunc(s.cfg.TurnTimeout, func() { s.expire(gen) })
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// expire auto-plays for the acting agent if no action arrived since the
// timer generation gen was armed.
func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.closed || s.ending {
		return
	}
	s.timer = nil
	s.generation++

	acting := s.engine.ActingPlayer()
	events, err := s.engine.AutoPlay()
	if err != nil {
		s.logf("session %d: auto-play for player %d: %v", s.cfg.GameID, acting, err)
		s.armTimer()
		return
	}
	s.logf("session %d: turn timer expired, auto-played for player %d", s.cfg.GameID, acting)
	s.apply(events)
}
