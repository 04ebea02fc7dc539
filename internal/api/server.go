package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/tactiboard/engine/internal/board"
	"github.com/tactiboard/engine/internal/dispatcher"
	"github.com/tactiboard/engine/internal/geo"
	"github.com/tactiboard/engine/internal/handlers"
	"github.com/tactiboard/engine/internal/playback"
	"github.com/tactiboard/engine/internal/session"
	"github.com/tactiboard/engine/internal/util"
)

// maxBodyBytes caps request bodies; refinements carry whole sequences.
const maxBodyBytes = 4 << 20

// CommandRequest is the body of POST /api/commands.
type CommandRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// CommandResponse wraps the handler result of a dispatched command.
type CommandResponse struct {
	Command string `json:"command"`
	Result  any    `json:"result,omitempty"`
}

// RefineResponse is returned by POST /api/sequences/{id}/refinements.
type RefineResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Server exposes the board service over HTTP.
type Server struct {
	svc    *handlers.Service
	disp   *dispatcher.Dispatcher
	log    *slog.Logger
	router *mux.Router
}

// NewServer builds the router. Commands posted to /api/commands go through
// disp so they share the handlers registered for the renderer.
func NewServer(svc *handlers.Service, disp *dispatcher.Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, disp: disp, log: logger, router: mux.NewRouter()}

	s.router.HandleFunc("/healthcheck", s.handleHealthcheck).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/board", s.handleBoard).Methods(http.MethodGet)
	api.HandleFunc("/playback", s.handlePlayback).Methods(http.MethodGet)
	api.HandleFunc("/sequences", s.handleSequences).Methods(http.MethodGet)
	api.HandleFunc("/sequences/{id}", s.handleSequence).Methods(http.MethodGet)
	api.HandleFunc("/sequences/{id}", s.handleDeleteSequence).Methods(http.MethodDelete)
	api.HandleFunc("/sequences/{id}/refinements", s.handleRefine).Methods(http.MethodPost)
	api.HandleFunc("/commands", s.handleCommands).Methods(http.MethodGet)
	api.HandleFunc("/commands", s.handleCommand).Methods(http.MethodPost)
	api.Use(s.logRequests)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("api request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.BoardView())
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.BoardView().Playback)
}

func (s *Server) handleSequences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Library())
}

func (s *Server) handleSequence(w http.ResponseWriter, r *http.Request) {
	seq, err := s.svc.Sequence(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, seq)
}

func (s *Server) handleDeleteSequence(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.svc.DeleteSequence(id); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	newID, err := s.svc.Refine(id, body)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusConflict && !errors.Is(err, session.ErrPlaybackActive) {
			// anything else out of Refine is a bad candidate
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, RefineResponse{ID: newID})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.disp.Commands())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Command == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("command is required"))
		return
	}
	res, err := s.disp.Dispatch(dispatcher.Event{Command: req.Command, Args: req.Args, Timestamp: time.Now()})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Command: req.Command, Result: res})
}

// statusFor maps domain errors onto HTTP status codes. Errors not listed
// are refusals given the current board state.
func statusFor(err error) int {
	var numErr *strconv.NumError
	switch {
	case errors.Is(err, dispatcher.ErrUnknownCommand),
		errors.Is(err, board.ErrUnknownSequence),
		errors.Is(err, playback.ErrUnknownSequence):
		return http.StatusNotFound
	case errors.Is(err, util.ErrMissingArg), errors.As(err, &numErr),
		errors.Is(err, geo.ErrInvalidCoordinates),
		errors.Is(err, board.ErrInvalidMutation):
		return http.StatusBadRequest
	case errors.Is(err, dispatcher.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.log.Error("api request failed", "error", err)
	}
	writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: err.Error(),
		Status:  code,
	})
}
