package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/buried-treasure-go/internal/game"
)

const maxBodyBytes = 4 << 10

// decodeAction reads an ActionRequest, writing the error response itself
// when the body is unusable.
func (s *Server) decodeAction(w http.ResponseWriter, r *http.Request) (ActionRequest, bool) {
	var req ActionRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "Invalid JSON body: "+err.Error())
		return ActionRequest{}, false
	}
	return req, true
}

func (s *Server) validationFailed(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		s.errorHandler.HandleValidationError(w, r, verr.Field, verr.Message)
		return
	}
	s.errorHandler.HandleValidationError(w, r, "body", err.Error())
}

// actionDone audits the outcome and writes either the result or the error.
func (s *Server) actionDone(w http.ResponseWriter, r *http.Request, action, wallet string, result any, err error) {
	requestID := middleware.GetReqID(r.Context())
	if err != nil {
		s.securityLogger.LogAction(requestID, action, wallet, string(game.KindOf(err)))
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.securityLogger.LogAction(requestID, action, wallet, "applied")
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAction(w, r)
	if !ok {
		return
	}
	if err := ValidateWallet(req.Wallet); err != nil {
		s.validationFailed(w, r, err)
		return
	}

	reg, err := s.engine.Register(r.Context(), req.Wallet)
	if err != nil || !reg.New {
		s.actionDone(w, r, "register", req.Wallet, reg, err)
		return
	}
	s.securityLogger.LogAction(middleware.GetReqID(r.Context()), "register", req.Wallet, "applied")
	s.writeJSON(w, http.StatusCreated, reg)
}

// handleState returns the caller's record, registering unknown identities
// on first sight.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if err := ValidateWallet(wallet); err != nil {
		s.validationFailed(w, r, err)
		return
	}

	rec, err := s.engine.State(r.Context(), wallet)
	if errors.Is(err, game.ErrNotRegistered) {
		var reg game.Registration
		reg, err = s.engine.Register(r.Context(), wallet)
		rec = reg.State
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StateResponse{State: rec, Outstanding: s.engine.Outstanding(wallet)})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAction(w, r)
	if !ok {
		return
	}
	target, err := ValidateTarget(&req)
	if err != nil {
		s.validationFailed(w, r, err)
		return
	}
	res, err := s.engine.Move(r.Context(), req.Wallet, target)
	s.actionDone(w, r, "move", req.Wallet, res, err)
}

func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAction(w, r)
	if !ok {
		return
	}
	target, err := ValidateTarget(&req)
	if err != nil {
		s.validationFailed(w, r, err)
		return
	}
	res, err := s.engine.Explore(r.Context(), req.Wallet, target)
	s.actionDone(w, r, "explore", req.Wallet, res, err)
}

func (s *Server) handleDig(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAction(w, r)
	if !ok {
		return
	}
	target, err := ValidateTarget(&req)
	if err != nil {
		s.validationFailed(w, r, err)
		return
	}
	res, err := s.engine.Dig(r.Context(), req.Wallet, target)
	s.actionDone(w, r, "dig", req.Wallet, res, err)
}

func (s *Server) handleBury(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAction(w, r)
	if !ok {
		return
	}
	target, amount, err := ValidateBury(&req)
	if err != nil {
		s.validationFailed(w, r, err)
		return
	}
	res, err := s.engine.Bury(r.Context(), req.Wallet, target, amount)
	s.actionDone(w, r, "bury", req.Wallet, res, err)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}
	rows, err := s.engine.Leaderboard(r.Context(), limit)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, LeaderboardResponse{Players: rows, EngineVersion: EngineVersion})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, EventsResponse{Events: s.engine.Events(limit), EngineVersion: EngineVersion})
}

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}
	facts, err := s.engine.Facts(r.Context(), limit)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FactsResponse{Facts: facts, EngineVersion: EngineVersion})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

// limitParam parses ?limit=, defaulting to 50.
func (s *Server) limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 50, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		s.errorHandler.HandleValidationError(w, r, "limit", "limit must be between 1 and 500")
		return 0, false
	}
	return n, true
}
