package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/agentopoly/internal/services/arena/orchestrator"
)

func fixedSeed() ([32]byte, error) {
	var seed [32]byte
	seed[0] = 1
	return seed, nil
}

func newLocalGames(t *testing.T, slots int) *orchestrator.Orchestrator {
	t.Helper()
	o, err := orchestrator.New(orchestrator.Config{
		Mode:        orchestrator.ModeLocal,
		Slots:       slots,
		TurnTimeout: time.Hour,
		NewSeed:     fixedSeed,
		Logf:        t.Logf,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(o.Close)
	return o
}

func TestNewServerRequiresHTTPAddr(t *testing.T) {
	if _, err := NewServer(Config{}, newLocalGames(t, 1)); err == nil {
		t.Fatal("expected error for empty HTTP address")
	}
}

func TestNewServerRequiresGames(t *testing.T) {
	if _, err := NewServer(Config{HTTPAddr: "127.0.0.1:0"}, nil); err == nil {
		t.Fatal("expected error for missing game router")
	}
}

func TestListenAndServeNilServer(t *testing.T) {
	var s *Server
	if err := s.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
}

func TestNewHandlerUpEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/up", nil)

	NewHandler(newLocalGames(t, 1)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if strings.TrimSpace(rr.Body.String()) != "OK" {
		t.Fatalf("body = %q, want OK", rr.Body.String())
	}
}

func TestNewHandlerWSEndpoint(t *testing.T) {
	handler := NewHandler(newLocalGames(t, 1))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ws?game=0", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws?game=abc", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewServer(Config{HTTPAddr: "127.0.0.1:0"}, newLocalGames(t, 1))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(ctx)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on cancel")
	}
}

func getJSON(t *testing.T, handler http.Handler, method, path string, body string, out any) int {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	handler.ServeHTTP(rr, req)
	if out != nil && rr.Code < 300 {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rr.Code
}

func TestRESTLocalMode(t *testing.T) {
	games := newLocalGames(t, 2)
	handler := NewHandler(games)

	var open openGamesResponse
	if code := getJSON(t, handler, http.MethodGet, "/games/open", "", &open); code != http.StatusOK {
		t.Fatalf("open status = %d", code)
	}
	if len(open.GameIDs) != 2 {
		t.Fatalf("open ids = %v, want 2 slots", open.GameIDs)
	}

	var info orchestrator.GameInfo
	if code := getJSON(t, handler, http.MethodGet, "/games/1", "", &info); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if info.ID != 1 || info.Status != orchestrator.StatusOpen {
		t.Fatalf("info = %+v", info)
	}

	if code := getJSON(t, handler, http.MethodGet, "/games/1/state", "", nil); code != http.StatusNotFound {
		t.Fatalf("state code = %d, want 404", code)
	}
	if code := getJSON(t, handler, http.MethodGet, "/games/9", "", nil); code != http.StatusNotFound {
		t.Fatalf("unknown game code = %d, want 404", code)
	}
	if code := getJSON(t, handler, http.MethodGet, "/games/abc", "", nil); code != http.StatusBadRequest {
		t.Fatalf("bad id code = %d, want 400", code)
	}
	if code := getJSON(t, handler, http.MethodPost, "/games", "", nil); code != http.StatusNotImplemented {
		t.Fatalf("create code = %d, want 501", code)
	}
	if code := getJSON(t, handler, http.MethodPost, "/games/0/join", `{}`, nil); code != http.StatusBadRequest {
		t.Fatalf("join without address code = %d, want 400", code)
	}
}
