package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
)

type openGamesResponse struct {
	GameIDs []uint64 `json:"gameIds"`
}

type createGameResponse struct {
	GameID uint64 `json:"gameId"`
}

type liveStateResponse struct {
	GameID   uint64          `json:"gameId"`
	Round    int             `json:"round"`
	Turn     int             `json:"turn"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

type joinRequest struct {
	Address string `json:"address"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func registerREST(mux *http.ServeMux, games Games) {
	mux.HandleFunc("GET /games/open", func(w http.ResponseWriter, r *http.Request) {
		ids, err := games.OpenGameIDs(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if ids == nil {
			ids = []uint64{}
		}
		writeJSON(w, http.StatusOK, openGamesResponse{GameIDs: ids})
	})

	mux.HandleFunc("POST /games", func(w http.ResponseWriter, r *http.Request) {
		id, err := games.CreateGame(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, createGameResponse{GameID: id})
	})

	mux.HandleFunc("GET /games/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathGameID(w, r)
		if !ok {
			return
		}
		info, err := games.GameStatus(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	})

	mux.HandleFunc("GET /games/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathGameID(w, r)
		if !ok {
			return
		}
		snap, live := games.LiveState(id)
		if !live {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no running session for this game"})
			return
		}
		writeJSON(w, http.StatusOK, liveStateResponse{GameID: id, Round: snap.Round, Turn: snap.Turn, Snapshot: snap})
	})

	mux.HandleFunc("POST /games/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathGameID(w, r)
		if !ok {
			return
		}
		var req joinRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFramePayloadBytes)).Decode(&req); err != nil || strings.TrimSpace(req.Address) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must carry an address"})
			return
		}
		info, err := games.JoinGame(r.Context(), id, strings.TrimSpace(req.Address))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	})
}

func pathGameID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := parseGameID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "game id must be a non-negative integer"})
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	if status == http.StatusInternalServerError {
		log.Printf("arena: request failed: %v", err)
	}
	resp := errorResponse{Error: err.Error()}
	if code != apperrors.CodeUnknown {
		resp.Code = string(code)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("arena: encode response: %v", err)
	}
}
