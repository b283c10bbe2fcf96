package withdrawal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/referralpay/ledger/internal/ledger"
	"github.com/referralpay/ledger/internal/middleware"
	"github.com/referralpay/ledger/internal/policy"
	"github.com/referralpay/ledger/internal/types/withdrawal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// AdminRoutes is the administrator surface.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListRequests)
	r.Post("/{id}/transition", h.TransitionRequest)
	return r
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.MemberIDFromContext(r.Context())

	var req withdrawal.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.svc.Create(r.Context(), memberID, req.Amount)
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *Handler) ListOwnRequests(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.MemberIDFromContext(r.Context())
	requests, err := h.svc.ListByMember(r.Context(), memberID)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if len(requests) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	filter := withdrawal.ListFilter{
		State:  withdrawal.State(r.URL.Query().Get("state")),
		Search: r.URL.Query().Get("q"),
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	requests, err := h.svc.List(r.Context(), filter)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

func (h *Handler) TransitionRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	var req withdrawal.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Action == ActionReject && req.Reason == "" {
		http.Error(w, "reason is required when rejecting", http.StatusBadRequest)
		return
	}

	updated, err := h.svc.Transition(r.Context(), id, req.Action, req.Reason)
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	if updated == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ErrUnknownAction):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrBelowMinimum), errors.Is(err, policy.ErrConfigurationMissing):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, ErrInvalidStateTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrMemberBlocked), errors.Is(err, ErrNoWalletAddress):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, sql.ErrNoRows), errors.Is(err, ledger.ErrMemberNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
