package orchestrator

import (
	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
	"github.com/louisbranch/agentopoly/internal/services/arena/session"
)

// lobby holds the seats of a fixed slot until four agents have joined.
type lobby struct {
	seats      []lobbySeat
	spectators map[session.Conn]struct{}
}

type lobbySeat struct {
	address string
	conn    session.Conn
}

func newLobby() *lobby {
	return &lobby{spectators: make(map[session.Conn]struct{})}
}

func (l *lobby) seat(address string, conn session.Conn) error {
	for _, s := range l.seats {
		if s.address == address {
			return ErrSeatTaken
		}
	}
	if l.full() {
		return ErrLobbyFull
	}
	l.seats = append(l.seats, lobbySeat{address: address, conn: conn})
	return nil
}

// leave frees the seat or spectator spot held by conn.
func (l *lobby) leave(conn session.Conn) {
	delete(l.spectators, conn)
	for i, s := range l.seats {
		if s.conn == conn {
			l.seats = append(l.seats[:i], l.seats[i+1:]...)
			return
		}
	}
}

func (l *lobby) full() bool {
	return len(l.seats) == engine.PlayerCount
}

func (l *lobby) addresses() []string {
	out := make([]string, len(l.seats))
	for i, s := range l.seats {
		out[i] = s.address
	}
	return out
}

func (l *lobby) conns() []session.Conn {
	out := make([]session.Conn, 0, len(l.seats)+len(l.spectators))
	for _, s := range l.seats {
		out = append(out, s.conn)
	}
	for c := range l.spectators {
		out = append(out, c)
	}
	return out
}
