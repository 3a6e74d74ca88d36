package webui

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"promptarchitect/pkg/journal"
	"promptarchitect/pkg/orchestrator"
	"promptarchitect/pkg/prompt"
)

// SSE event names.
const (
	SSEEventSnapshot  = "snapshot"
	SSEEventHeartbeat = "heartbeat"
)

const (
	maxSubmitBytes    = 1 << 20
	heartbeatInterval = 30 * time.Second
	eventBuffer       = 4
)

// handleOptions implements GET /api/options.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"model":      s.controller.ModelName(),
		"targets":    targetOptions(),
		"techniques": techniqueOptions(),
		"criteria":   prompt.Criteria,
	})
}

// handleSubmit implements POST /api/runs.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req prompt.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	commit, ok := s.submits.Admit(clientKey(r))
	if !ok {
		s.logger.Warn("Submission from %s rate limited", clientKey(r))
		w.Header().Set("Retry-After", "60")
		s.writeError(w, http.StatusTooManyRequests, "too many submissions, try again later")
		return
	}

	// Only accepted runs count against the client's budget.
	runID, err := s.controller.Submit(r.Context(), req)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	commit()

	s.logger.Info("Accepted run %s (target %s, %d techniques)", runID, req.Target, len(req.Techniques))
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// handleRetry implements POST /api/runs/retry.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID, err := s.controller.Retry(r.Context())
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// handleCancel implements POST /api/runs/cancel.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.controller.Cancel(); err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "canceling"})
}

// handleNewSession implements POST /api/session/new.
func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.controller.NewSession(); err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// handleState implements GET /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// handleEvents implements GET /api/events, a server-sent event stream of snapshots.
// The current snapshot is sent on connect.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	snapshots, unsubscribe := s.controller.Subscribe(eventBuffer)
	defer unsubscribe()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	var eventID uint64
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			eventID++
			if err := writeSSE(w, flusher, eventID, SSEEventHeartbeat, map[string]any{}); err != nil {
				s.logger.Debug("Client disconnected during heartbeat: %v", err)
				return
			}

		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			eventID++
			if err := writeSSE(w, flusher, eventID, SSEEventSnapshot, snap); err != nil {
				s.logger.Debug("Client disconnected during event: %v", err)
				return
			}
		}
	}
}

// writeSSE writes one event and flushes it.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, id uint64, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event, id, payload); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	flusher.Flush()
	return nil
}

// handleResultPrompt implements GET /api/result/prompt: the engineered prompt as plain text.
func (s *Server) handleResultPrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := s.currentResult()
	if result == nil {
		http.Error(w, "No result available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(result.EngineeredPrompt))
}

// handleResultMarkdown implements GET /api/result/markdown.
func (s *Server) handleResultMarkdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := s.currentResult()
	if result == nil {
		http.Error(w, "No result available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(result.Markdown()))
}

func (s *Server) currentResult() *prompt.Result {
	if complete, ok := s.controller.State().(orchestrator.Complete); ok {
		return complete.Result
	}
	return nil
}

// handleHistory implements GET /api/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, "Run journal is disabled", http.StatusNotFound)
		return
	}

	limit := journal.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list run history: %v", err)
		http.Error(w, "Failed to read run history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// writeControllerError maps controller sentinel errors to HTTP statuses.
func (s *Server) writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, prompt.ErrEmptyObjective):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrRunInProgress),
		errors.Is(err, orchestrator.ErrNoFailedRun),
		errors.Is(err, orchestrator.ErrNotRunning),
		errors.Is(err, orchestrator.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("Controller request failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
