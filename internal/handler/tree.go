package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/heirloom/internal/access"
	"github.com/dukerupert/heirloom/internal/model"
	"github.com/dukerupert/heirloom/internal/store"
	"github.com/dukerupert/heirloom/internal/websocket"
)

type TreeHandler struct {
	base
	familyStore       *store.FamilyStore
	personStore       *store.PersonStore
	relationshipStore *store.RelationshipStore
	settingsStore     *store.SettingsStore
}

func NewTreeHandler(fs *store.FamilyStore, ps *store.PersonStore, rs *store.RelationshipStore, ss *store.SettingsStore, gate *access.Gate, hub *websocket.Hub, logger *slog.Logger) *TreeHandler {
	return &TreeHandler{
		base:              base{gate: gate, hub: hub, logger: logger},
		familyStore:       fs,
		personStore:       ps,
		relationshipStore: rs,
		settingsStore:     ss,
	}
}

// Get returns everything needed to draw one family's tree.
func (h *TreeHandler) Get(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.View) {
		return
	}

	ctx := r.Context()
	f, err := h.familyStore.GetByID(ctx, familyID)
	if err != nil {
		h.storeError(w, err, "load family")
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, "family not found")
		return
	}
	people, err := h.personStore.ListByFamily(ctx, familyID)
	if err != nil {
		h.storeError(w, err, "load people")
		return
	}
	rels, err := h.relationshipStore.ListByFamily(ctx, familyID)
	if err != nil {
		h.storeError(w, err, "load relationships")
		return
	}
	settings, err := h.settingsStore.Get(ctx, familyID)
	if err != nil {
		h.storeError(w, err, "load settings")
		return
	}

	if people == nil {
		people = []model.Person{}
	}
	if rels == nil {
		rels = []model.Relationship{}
	}
	writeSuccess(w, http.StatusOK, envelope{
		"family":        f,
		"people":        people,
		"relationships": rels,
		"settings":      settings,
	})
}

// Recompute reassigns every generation level in the family.
func (h *TreeHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.Edit) {
		return
	}

	if err := h.relationshipStore.RecomputeGenerations(r.Context(), familyID); err != nil {
		h.storeError(w, err, "recompute generations")
		return
	}
	h.broadcast(familyID, "tree", "recomputed", familyID)
	writeSuccess(w, http.StatusOK, nil)
}
