// handlers_history.go - Persisted scan history handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ocr-menu-detector/backend/internal/history"
)

// HistoryHandlerImpl implements the HistoryHandler interface
type HistoryHandlerImpl struct {
	history *history.Store
}

// NewHistoryHandler creates a new history handler. store may be nil when the
// history DB could not be opened; handlers then answer 503.
func NewHistoryHandler(store *history.Store) HistoryHandler {
	return &HistoryHandlerImpl{
		history: store,
	}
}

// HandleRecentScans returns the most recent scan records, newest first
func (h *HistoryHandlerImpl) HandleRecentScans(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("scan history is not available")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	records, err := h.history.Recent(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to read scan history", err)
	}
	if records == nil {
		records = []history.Record{}
	}

	return c.JSON(http.StatusOK, records)
}

// HandleGetScanRecord returns one stored scan including its items
func (h *HistoryHandlerImpl) HandleGetScanRecord(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("scan history is not available")
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return NewBadRequestError("invalid history id", err)
	}

	record, err := h.history.Get(c.Request().Context(), id)
	if err != nil {
		return NewInternalError("failed to read scan history", err)
	}
	if record == nil {
		return NewNotFoundError("scan record", c.Param("id"))
	}

	return c.JSON(http.StatusOK, record)
}
