package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/louisbranch/agentopoly/internal/services/arena/session"
)

// NewHandler serves the WebSocket endpoint, the REST surface and /up.
func NewHandler(games Games) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, games)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, err := parseGameID(r.URL.Query().Get("game")); err != nil {
			http.Error(w, "game query parameter must be a game id", http.StatusBadRequest)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	registerREST(mux, games)
	return mux
}

func parseGameID(raw string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
}

// wsPeer is one WebSocket connection seen by sessions as a session.Conn.
type wsPeer struct {
	id      string
	mu      sync.Mutex
	conn    *websocket.Conn
	encoder *json.Encoder
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{
		id:      uuid.NewString(),
		conn:    conn,
		encoder: json.NewEncoder(conn),
	}
}

// Send implements session.Conn.
func (p *wsPeer) Send(frame session.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// Close implements session.Conn.
func (p *wsPeer) Close() error {
	return p.conn.Close()
}

func handleWSConn(conn *websocket.Conn, games Games) {
	defer func() {
		_ = conn.Close()
	}()

	request := conn.Request()
	gameID, err := parseGameID(request.URL.Query().Get("game"))
	if err != nil {
		return
	}
	address := strings.TrimSpace(request.URL.Query().Get("address"))
	peer := newWSPeer(conn)

	if err := games.Attach(request.Context(), gameID, address, peer); err != nil {
		log.Printf("arena: ws %s rejected from game %d: %v", peer.id, gameID, err)
		_ = peer.Send(session.ErrorFrame(err))
		return
	}
	role := address
	if role == "" {
		role = "spectator"
	}
	log.Printf("arena: ws %s attached to game %d as %s", peer.id, gameID, role)
	defer func() {
		games.Detach(peer)
		log.Printf("arena: ws %s left game %d", peer.id, gameID)
	}()

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsInbound
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			decodeErrors++
			if sendErr := peer.Send(errorFrame("invalid frame payload")); sendErr != nil {
				return
			}
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = peer.Send(errorFrame("payload too large"))
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = peer.Send(errorFrame("rate limit exceeded"))
			return
		}

		switch frame.Type {
		case session.FrameAction:
			handleActionFrame(games, peer, frame)
		default:
			_ = peer.Send(errorFrame("unsupported frame type"))
		}
	}
}

func handleActionFrame(games Games, peer *wsPeer, frame wsInbound) {
	var payload session.ActionPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.Action.Type == "" {
		_ = peer.Send(errorFrame("action payload must carry an action type"))
		return
	}
	// Outcomes reach the agent as frames sent by the session.
	_ = games.Act(peer, payload.Action)
}

func errorFrame(message string) session.Frame {
	return session.Frame{Type: session.FrameError, Payload: session.ErrorPayload{Message: message}}
}
