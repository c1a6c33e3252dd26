package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ShayCichocki/crew/internal/limits"
	"github.com/ShayCichocki/crew/internal/recovery"
	"github.com/ShayCichocki/crew/internal/resume"
	"github.com/ShayCichocki/crew/internal/session"
)

// maxRequestBodyBytes bounds POST bodies (1 MiB).
const maxRequestBodyBytes = 1 << 20

// coordinatorAPI is the slice of the coordinator the HTTP surface needs.
type coordinatorAPI interface {
	HandleOperation(ctx context.Context, op resume.Operation) (string, error)
	HandleError(ctx context.Context, in limits.Input) (*session.State, error)
	Status() resume.Status
}

type operationRequest struct {
	Messages []session.Message `json:"messages"`
	AgentID  string            `json:"agent_id"`
	Task     string            `json:"task"`
	Stage    string            `json:"stage"`
	Tool     string            `json:"tool"`
	Text     string            `json:"text"`
	FilePath string            `json:"file_path"`
}

type errorRequest struct {
	Message       string `json:"message"`
	HTTPCode      int    `json:"http_code"`
	StackTrace    string `json:"stack_trace"`
	AgentID       string `json:"agent_id"`
	WorkflowStage string `json:"workflow_stage"`
	RequestID     string `json:"request_id"`
}

// newAPIHandler routes the coordinator endpoints. metrics may be nil.
func newAPIHandler(c coordinatorAPI, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Status())
	})

	mux.HandleFunc("POST /operations", func(w http.ResponseWriter, r *http.Request) {
		var req operationRequest
		if !decodeBody(w, r, &req) {
			return
		}
		cpID, err := c.HandleOperation(r.Context(), resume.Operation{
			Messages: req.Messages,
			AgentID:  req.AgentID,
			Task:     req.Task,
			Stage:    req.Stage,
			Tool:     req.Tool,
			Text:     req.Text,
			FilePath: req.FilePath,
		})
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"checkpoint_id": cpID})
	})

	mux.HandleFunc("POST /errors", func(w http.ResponseWriter, r *http.Request) {
		var req errorRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Message == "" {
			writeJSONError(w, http.StatusBadRequest, "message is required")
			return
		}
		s, err := c.HandleError(r.Context(), limits.Input{
			Message:       req.Message,
			HTTPCode:      req.HTTPCode,
			StackTrace:    req.StackTrace,
			AgentID:       req.AgentID,
			WorkflowStage: req.WorkflowStage,
			RequestID:     req.RequestID,
		})
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"recovered":  true,
			"session_id": s.ID,
			"status":     s.Status,
			"messages":   len(s.Messages),
		})
	})

	return mux
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// statusFor maps coordinator and recovery errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, resume.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, resume.ErrUnrecognizedError):
		return http.StatusUnprocessableEntity
	case errors.Is(err, recovery.ErrEscalated):
		return http.StatusAccepted
	case errors.Is(err, recovery.ErrRetriesExhausted),
		errors.Is(err, recovery.ErrNoAlternativeAgent),
		errors.Is(err, recovery.ErrNoCheckpoint):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends {"error": message} with the given status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"error": message})
}
