package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// TrackerService defines the tracked-wallet operations the handler needs.
type TrackerService interface {
	Wallet() (string, error)
	SetWallet(addr string) error
	Scaling() domain.ScalingConfig
	SetScaling(cfg domain.ScalingConfig) error
}

// TrackerHandler serves the tracked-wallet configuration endpoints.
type TrackerHandler struct {
	tracker TrackerService
	logger  *slog.Logger
}

// NewTrackerHandler creates a TrackerHandler.
func NewTrackerHandler(tracker TrackerService, logger *slog.Logger) *TrackerHandler {
	return &TrackerHandler{
		tracker: tracker,
		logger:  logger,
	}
}

// trackerResponse is the current tracking configuration.
type trackerResponse struct {
	Wallet  string               `json:"wallet"`
	Scaling domain.ScalingConfig `json:"scaling"`
}

// GetTracker returns the tracked wallet and the active scaling policy.
// GET /api/tracker
func (h *TrackerHandler) GetTracker(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.tracker.Wallet()
	if err != nil && !errors.Is(err, domain.ErrNoTrackedWallet) {
		writeError(w, http.StatusInternalServerError, "failed to read tracker state")
		return
	}

	writeJSON(w, http.StatusOK, trackerResponse{
		Wallet:  wallet,
		Scaling: h.tracker.Scaling(),
	})
}

// setWalletRequest is the body of PUT /api/tracker/wallet.
type setWalletRequest struct {
	Wallet string `json:"wallet"`
}

// SetWallet switches the tracked wallet. Open positions are kept; they were
// copied at their own prices and still settle on their own markets.
// PUT /api/tracker/wallet
func (h *TrackerHandler) SetWallet(w http.ResponseWriter, r *http.Request) {
	var req setWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.tracker.SetWallet(req.Wallet); err != nil {
		if errors.Is(err, domain.ErrInvalidAddress) {
			writeError(w, http.StatusBadRequest, "invalid wallet address")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: set wallet failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to set wallet")
		return
	}

	h.GetTracker(w, r)
}

// setScalingRequest is the body of PUT /api/tracker/scaling. Value arrives
// as a string so clients keep decimal precision.
type setScalingRequest struct {
	Mode  string `json:"mode"`
	Value string `json:"value"`
}

// SetScaling replaces the sizing policy. Applies to future copies only.
// PUT /api/tracker/scaling
func (h *TrackerHandler) SetScaling(w http.ResponseWriter, r *http.Request) {
	var req setScalingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scaling value")
		return
	}

	cfg := domain.ScalingConfig{
		Mode:  domain.ScaleMode(req.Mode),
		Value: value,
	}
	if err := h.tracker.SetScaling(cfg); err != nil {
		if errors.Is(err, domain.ErrInvalidScaling) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: set scaling failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to set scaling")
		return
	}

	h.GetTracker(w, r)
}
