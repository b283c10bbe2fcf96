package policy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/referralpay/ledger/internal/types/policy"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/levels", h.GetLevels)
	r.Put("/levels", h.PutLevels)
	r.Get("/monthly-levels", h.GetMonthlyLevels)
	r.Put("/monthly-levels", h.PutMonthlyLevels)
	r.Get("/limits", h.GetLimits)
	r.Put("/limits", h.PutLimits)
	r.Get("/commission-rates", h.GetCommissionRates)
	r.Put("/commission-rates", h.PutCommissionRate)
	r.Get("/bonus-rules", h.GetBonusRules)
	r.Put("/bonus-rules", h.PutBonusRules)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)
	return r
}

func (h *Handler) GetLevels(w http.ResponseWriter, r *http.Request) {
	defs, err := h.svc.ListLevels(r.Context())
	writeListResponse(w, defs, err)
}

func (h *Handler) PutLevels(w http.ResponseWriter, r *http.Request) {
	var defs []policy.LevelDefinition
	if err := json.NewDecoder(r.Body).Decode(&defs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeUpdateResponse(w, h.svc.ReplaceLevels(r.Context(), defs))
}

func (h *Handler) GetMonthlyLevels(w http.ResponseWriter, r *http.Request) {
	defs, err := h.svc.ListMonthlyLevels(r.Context())
	writeListResponse(w, defs, err)
}

func (h *Handler) PutMonthlyLevels(w http.ResponseWriter, r *http.Request) {
	var defs []policy.MonthlyLevelDefinition
	if err := json.NewDecoder(r.Body).Decode(&defs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeUpdateResponse(w, h.svc.ReplaceMonthlyLevels(r.Context(), defs))
}

func (h *Handler) GetLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := h.svc.ListLimits(r.Context())
	writeListResponse(w, limits, err)
}

func (h *Handler) PutLimits(w http.ResponseWriter, r *http.Request) {
	var limits []policy.WithdrawalLimit
	if err := json.NewDecoder(r.Body).Decode(&limits); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeUpdateResponse(w, h.svc.ReplaceLimits(r.Context(), limits))
}

func (h *Handler) GetCommissionRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.svc.ListCommissionRates(r.Context())
	writeListResponse(w, rates, err)
}

func (h *Handler) PutCommissionRate(w http.ResponseWriter, r *http.Request) {
	var rate policy.CommissionRate
	if err := json.NewDecoder(r.Body).Decode(&rate); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeUpdateResponse(w, h.svc.UpsertCommissionRate(r.Context(), &rate))
}

func (h *Handler) GetBonusRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListBonusRules(r.Context())
	writeListResponse(w, rules, err)
}

func (h *Handler) PutBonusRules(w http.ResponseWriter, r *http.Request) {
	var rules []policy.BonusRule
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeUpdateResponse(w, h.svc.ReplaceBonusRules(r.Context(), rules))
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.GetSettings(r.Context())
	if err != nil {
		if errors.Is(err, ErrConfigurationMissing) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var settings policy.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeUpdateResponse(w, h.svc.UpdateSettings(r.Context(), &settings))
}

func writeListResponse(w http.ResponseWriter, v any, err error) {
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeUpdateResponse(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrInvalidThreshold), errors.Is(err, ErrInvalidDefinition):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
