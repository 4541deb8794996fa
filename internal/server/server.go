// Package server is the thin HTTP presentation layer. It collects
// input, authenticates the caller against the identity service,
// dispatches to the ledger and renders the specific error kind; all
// domain decisions live in the ledger.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"reserved/internal/identity"
	"reserved/internal/ledger"
	"reserved/internal/schedule"
)

type Server struct {
	ledger   *ledger.Ledger
	identity *identity.Service
	logger   *zap.Logger
	now      func() time.Time
}

func New(l *ledger.Ledger, id *identity.Service, logger *zap.Logger) *Server {
	return &Server{
		ledger:   l,
		identity: id,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes registers the API routes on the provided mux
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/reserve", s.handleReserve)
	mux.HandleFunc("/api/cancel", s.handleCancel)
	mux.HandleFunc("/api/reservations", s.handleReservations)
	mux.HandleFunc("/api/expire", s.handleExpire)
}

// credentialRequest carries the fields every authenticated call needs
type credentialRequest struct {
	CardNumber string `json:"card_number"`
	PIN        string `json:"pin"`
	TimeSlot   string `json:"time_slot,omitempty"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (credentialRequest, bool) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return credentialRequest{}, false
	}
	return req, true
}

// authenticate resolves the request's credentials to a member ID,
// writing the response itself on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, req credentialRequest) (string, bool) {
	memberID, err := s.identity.Authenticate(r.Context(), req.CardNumber, req.PIN)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrMemberUnknown), errors.Is(err, identity.ErrCredentialMismatch):
			s.writeError(w, http.StatusUnauthorized, err.Error())
		default:
			s.logger.Error("Authentication lookup failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "authentication failed")
		}
		return "", false
	}
	return memberID, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	if err := s.identity.Register(r.Context(), req.CardNumber, req.PIN); err != nil {
		switch {
		case errors.Is(err, identity.ErrEmptyField):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrMemberExists):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("Failed to register member", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"card_number": req.CardNumber})
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	memberID, ok := s.authenticate(w, r, req)
	if !ok {
		return
	}

	res, err := s.ledger.Reserve(r.Context(), memberID, req.TimeSlot, s.now())
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"card_number": res.CardNumber,
		"time_slot":   schedule.FormatSlot(res.Slot),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	memberID, ok := s.authenticate(w, r, req)
	if !ok {
		return
	}

	if err := s.ledger.Cancel(r.Context(), memberID, req.TimeSlot); err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"cancelled": req.TimeSlot})
}

func (s *Server) handleReservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	memberID, ok := s.authenticate(w, r, req)
	if !ok {
		return
	}

	slots, err := s.ledger.ListReservations(r.Context(), memberID, s.now())
	if err != nil {
		s.logger.Error("Failed to list reservations", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list reservations")
		return
	}

	texts := make([]string, 0, len(slots))
	for _, slot := range slots {
		texts = append(texts, schedule.FormatSlot(slot))
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"reservations": texts})
}

// handleExpire triggers the expiry sweep. The sweep only ever runs on
// explicit invocation, never as a side effect of reads.
func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	removed, err := s.ledger.ExpirePast(r.Context(), s.now())
	if err != nil {
		s.logger.Error("Expiry sweep failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "expiry sweep failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidFormat),
		errors.Is(err, ledger.ErrClosed),
		errors.Is(err, ledger.ErrPastSlot):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrQuotaExceeded), errors.Is(err, ledger.ErrSlotTaken):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("Ledger operation failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "reservation store unavailable")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
