package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// BookReader defines the read-only view of the position book that the HTTP
// handlers need.
type BookReader interface {
	OpenPositions() []domain.Position
	Position(market string) (domain.Position, bool)
	History(limit int) []domain.ClosedTrade
	Totals() domain.Totals
}

// BookHandler serves position, history and totals endpoints.
type BookHandler struct {
	book   BookReader
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler over the given book.
func NewBookHandler(book BookReader, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		book:   book,
		logger: logger,
	}
}

// positionView is a Position augmented with its mark-to-last-price PnL.
type positionView struct {
	domain.Position
	UnrealizedPnL string `json:"unrealized_pnl"`
}

func toPositionView(p domain.Position) positionView {
	return positionView{
		Position:      p,
		UnrealizedPnL: p.UnrealizedPnL().String(),
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []positionView `json:"positions"`
}

// ListPositions returns all open positions.
// GET /api/positions
func (h *BookHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	open := h.book.OpenPositions()

	views := make([]positionView, 0, len(open))
	for _, p := range open {
		views = append(views, toPositionView(p))
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: views})
}

// GetPosition returns the position for a single market, open or flat.
// GET /api/positions/{market}
func (h *BookHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	market := r.PathValue("market")
	if market == "" {
		writeError(w, http.StatusBadRequest, "market path parameter required")
		return
	}

	pos, ok := h.book.Position(market)
	if !ok {
		writeError(w, http.StatusNotFound, "no position for market")
		return
	}

	writeJSON(w, http.StatusOK, toPositionView(pos))
}

// listHistoryResponse wraps the close-history response.
type listHistoryResponse struct {
	Trades []domain.ClosedTrade `json:"trades"`
}

// ListHistory returns the most recent closed trades, oldest first.
// GET /api/history?limit=50
func (h *BookHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)

	trades := h.book.History(limit)
	if trades == nil {
		trades = []domain.ClosedTrade{}
	}

	writeJSON(w, http.StatusOK, listHistoryResponse{Trades: trades})
}

// GetTotals returns the aggregate realized PnL summary.
// GET /api/totals
func (h *BookHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.book.Totals())
}
