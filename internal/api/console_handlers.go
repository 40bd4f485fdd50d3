package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/console"
)

func (s *Server) handleConsoleOperations(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Console.Operations())
}

func (s *Server) handleConsoleStart(w http.ResponseWriter, r *http.Request) {
	opID := chi.URLParam(r, "id")
	err := s.deps.Console.Start(r.Context(), opID)
	switch {
	case err == nil:
		respondJSON(w, http.StatusAccepted, map[string]string{"op": opID, "state": "streaming"})
	case errors.Is(err, console.ErrUnknownOp):
		respondError(w, http.StatusNotFound, "unknown_op", err.Error())
	case errors.Is(err, console.ErrAlreadyRunning):
		respondError(w, http.StatusConflict, "already_running", err.Error())
	default:
		respondUpstreamError(w, err)
	}
}

func (s *Server) handleConsoleLog(w http.ResponseWriter, r *http.Request) {
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "validation_error", "since must be a non-negative integer")
			return
		}
		since = n
	}
	lines := s.deps.Console.Log(since)
	if lines == nil {
		lines = []console.Line{}
	}
	respondJSON(w, http.StatusOK, lines)
}

func (s *Server) handleConsoleRetry(w http.ResponseWriter, r *http.Request) {
	var target console.RetryTarget
	if !decodeBody(w, r, &target) {
		return
	}
	if target.RarFilename == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "rar_filename is required")
		return
	}

	line, err := s.deps.Console.RetryArchive(r.Context(), target)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, line)
}

// handleConsoleWS pushes console log lines to the browser as they arrive.
// One connection per shell tab; each gets its own subscription.
func (s *Server) handleConsoleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	lines, cancel := s.deps.Console.Subscribe()
	defer cancel()

	// The shell only listens; CloseRead surfaces disconnects as ctx.Done.
	ctx := conn.CloseRead(r.Context())

	// Replay the backlog so a freshly opened tab sees the whole run. Lines
	// landing on the subscription during the replay are skipped by Seq.
	lastSeq := 0
	for _, line := range s.deps.Console.Log(0) {
		if err := wsjson.Write(ctx, conn, line); err != nil {
			return
		}
		lastSeq = line.Seq
	}

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if line.Seq <= lastSeq {
				continue
			}
			if err := wsjson.Write(ctx, conn, line); err != nil {
				return
			}
		}
	}
}
