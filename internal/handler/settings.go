package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/heirloom/internal/access"
	"github.com/dukerupert/heirloom/internal/store"
	"github.com/dukerupert/heirloom/internal/websocket"
)

type SettingsHandler struct {
	base
	settingsStore *store.SettingsStore
}

func NewSettingsHandler(ss *store.SettingsStore, gate *access.Gate, hub *websocket.Hub, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{base: base{gate: gate, hub: hub, logger: logger}, settingsStore: ss}
}

// optionalID tells an absent field apart from an explicit null, so a root
// person can be cleared without resending every setting.
type optionalID struct {
	Set   bool
	Value *int64
}

func (o *optionalID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.View) {
		return
	}

	ts, err := h.settingsStore.Get(r.Context(), familyID)
	if err != nil {
		h.storeError(w, err, "load settings")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"settings": ts})
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.Edit) {
		return
	}

	var req struct {
		Layout                *string    `json:"layout"`
		ColorScheme           *string    `json:"color_scheme"`
		ShowDates             *bool      `json:"show_dates"`
		ShowPhotos            *bool      `json:"show_photos"`
		ShowLivingOnly        *bool      `json:"show_living_only"`
		RootPersonID          optionalID `json:"root_person_id"`
		SecondaryRootPersonID optionalID `json:"secondary_root_person_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	current, err := h.settingsStore.Get(r.Context(), familyID)
	if err != nil {
		h.storeError(w, err, "load settings")
		return
	}
	ts := *current
	if req.Layout != nil {
		ts.Layout = strings.TrimSpace(*req.Layout)
	}
	if ts.Layout != store.LayoutVertical && ts.Layout != store.LayoutHorizontal {
		writeError(w, http.StatusBadRequest, "layout must be vertical or horizontal")
		return
	}
	if req.ColorScheme != nil {
		ts.ColorScheme = strings.TrimSpace(*req.ColorScheme)
	}
	if ts.ColorScheme == "" {
		writeError(w, http.StatusBadRequest, "color_scheme is required")
		return
	}
	if req.ShowDates != nil {
		ts.ShowDates = *req.ShowDates
	}
	if req.ShowPhotos != nil {
		ts.ShowPhotos = *req.ShowPhotos
	}
	if req.ShowLivingOnly != nil {
		ts.ShowLivingOnly = *req.ShowLivingOnly
	}
	if req.RootPersonID.Set {
		ts.RootPersonID = req.RootPersonID.Value
	}
	if req.SecondaryRootPersonID.Set {
		ts.SecondaryRootPersonID = req.SecondaryRootPersonID.Value
	}

	updated, err := h.settingsStore.Update(r.Context(), ts)
	if err != nil {
		h.storeError(w, err, "update settings")
		return
	}
	h.broadcast(familyID, "settings", "updated", familyID)
	writeSuccess(w, http.StatusOK, envelope{"settings": updated})
}
