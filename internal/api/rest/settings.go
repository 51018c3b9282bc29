package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"signalwatch/internal/domain/settings"
	"signalwatch/internal/domain/signal"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

const maxSettingsBody = 1 << 20

// SettingsService reads and replaces the feed settings
type SettingsService interface {
	Current() []signal.FeedSource
	Update(ctx context.Context, feeds []signal.FeedSource) (*settings.Settings, error)
}

type settingsBody struct {
	Feeds []signal.FeedSource `json:"feeds"`
}

// SettingsHandler serves GET and PUT /api/settings
type SettingsHandler struct {
	service SettingsService
	log     *logger.Logger
}

// NewSettingsHandler creates the settings handler
func NewSettingsHandler(service SettingsService) *SettingsHandler {
	return &SettingsHandler{
		service: service,
		log:     logger.Get().With("component", "api_settings"),
	}
}

// HandleGet returns the feeds in effect
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsBody{Feeds: h.service.Current()})
}

// HandlePut validates, persists and applies a full feed list
func (h *SettingsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, errors.Wrapf(errors.ErrInvalidInput, "decode settings: %v", err))
		return
	}

	saved, err := h.service.Update(r.Context(), body.Feeds)
	if err != nil {
		if !errors.Is(err, errors.ErrInvalidInput) {
			h.log.Error("Failed to update settings", "error", err)
		}
		writeError(w, err)
		return
	}

	h.log.Info("Settings updated", "feeds", len(saved.Feeds))
	writeJSON(w, http.StatusOK, saved)
}
