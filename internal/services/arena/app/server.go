package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/agentopoly/internal/platform/timeouts"
	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
	"github.com/louisbranch/agentopoly/internal/services/arena/orchestrator"
	"github.com/louisbranch/agentopoly/internal/services/arena/session"
)

const (
	maxFramePayloadBytes   = 4 * 1024
	maxFramesPerSecond     = 20
	maxDecodeErrorsPerConn = 3
)

// Games is the routing surface the transport needs from the orchestrator.
type Games interface {
	Attach(ctx context.Context, gameID uint64, address string, conn session.Conn) error
	Act(conn session.Conn, action engine.Action) error
	Detach(conn session.Conn)
	OpenGameIDs(ctx context.Context) ([]uint64, error)
	GameStatus(ctx context.Context, gameID uint64) (orchestrator.GameInfo, error)
	LiveState(gameID uint64) (engine.Snapshot, bool)
	CreateGame(ctx context.Context) (uint64, error)
	JoinGame(ctx context.Context, gameID uint64, address string) (orchestrator.GameInfo, error)
}

var _ Games = (*orchestrator.Orchestrator)(nil)

// Config defines the inputs for the arena HTTP/WebSocket boundary.
type Config struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the arena HTTP/WebSocket process. Game state lives in the
// orchestrator; the server only moves frames.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

// wsInbound is a client frame. Payload is decoded per type.
type wsInbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewServer builds a server routing connections through games.
func NewServer(config Config, games Games) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if games == nil {
		return nil, errors.New("game router is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           NewHandler(games),
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
	}, nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("arena server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("arena server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
