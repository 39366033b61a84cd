// handlers_menu.go - Menu extraction rules handlers
package api

import (
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ocr-menu-detector/backend/internal/menu"
	"github.com/ocr-menu-detector/backend/internal/models"
	"github.com/ocr-menu-detector/backend/internal/storage"
)

// MenuHandlerImpl implements the MenuHandler interface
type MenuHandlerImpl struct {
	store storage.Store

	mu             sync.RWMutex
	currentRulesID string
	currentRules   *models.MenuRules
}

// NewMenuHandler creates a new menu rules handler instance
func NewMenuHandler(store storage.Store) MenuHandler {
	return &MenuHandlerImpl{
		store: store,
	}
}

// SetActiveRules sets the currently active extraction rules
func (h *MenuHandlerImpl) SetActiveRules(rulesID string, rules *models.MenuRules) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentRulesID = rulesID
	h.currentRules = rules
}

// ActiveRules returns the currently active extraction rules. Scans pick
// these up at start time; a nil result means the built-in defaults apply.
func (h *MenuHandlerImpl) ActiveRules() (string, *models.MenuRules) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentRulesID, h.currentRules
}

// HandleGetRules returns the currently active extraction rules
func (h *MenuHandlerImpl) HandleGetRules(c echo.Context) error {
	rulesID, rules := h.ActiveRules()
	source := "uploaded"
	if rules == nil {
		rules = menu.DefaultRules()
		source = "default"
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"rules":   rules,
		"rulesId": rulesID,
		"source":  source,
	})
}

// HandleUploadRules uploads, validates and activates an extraction rules file
func (h *MenuHandlerImpl) HandleUploadRules(c echo.Context) error {
	var req uploadRulesRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	// Decode base64 content
	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	// Parse rules to validate
	rules, err := menu.ParseRulesFromBytes(decoded)
	if err != nil {
		return NewBadRequestError("invalid rules YAML", err)
	}

	// Save rules file
	info, err := h.store.SaveBytes(req.Name, decoded)
	if err != nil {
		return NewInternalError("failed to save rules file", err)
	}

	// Set as current rules
	h.SetActiveRules(info.ID, rules)

	return c.JSON(http.StatusCreated, models.RulesInfo{
		ID:            info.ID,
		Name:          info.Name,
		UploadedAt:    info.UploadedAt.Format(time.RFC3339),
		CategoryCount: len(rules.Categories),
		CurrencyCount: len(rules.Currencies),
	})
}

// HandleGetDefaultRules returns the built-in extraction rules
func (h *MenuHandlerImpl) HandleGetDefaultRules(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"rules": menu.DefaultRules(),
	})
}

// HandleRecentRulesFiles returns recently uploaded rules files
func (h *MenuHandlerImpl) HandleRecentRulesFiles(c echo.Context) error {
	files, err := h.store.List(50)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}

	// Filter to only rules files
	var rulesFiles []*models.FileInfo
	for _, f := range files {
		nameLower := strings.ToLower(f.Name)
		if strings.HasSuffix(nameLower, ".yaml") ||
			strings.HasSuffix(nameLower, ".yml") {
			rulesFiles = append(rulesFiles, f)
		}
	}

	return c.JSON(http.StatusOK, rulesFiles)
}

// Request types

type uploadRulesRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded YAML
}

func (r *uploadRulesRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}
