package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/heirloom/internal/access"
	"github.com/dukerupert/heirloom/internal/auth"
	"github.com/dukerupert/heirloom/internal/model"
	"github.com/dukerupert/heirloom/internal/store"
	"github.com/dukerupert/heirloom/internal/websocket"
)

type RelationshipHandler struct {
	base
	relationshipStore *store.RelationshipStore
}

func NewRelationshipHandler(rs *store.RelationshipStore, gate *access.Gate, hub *websocket.Hub, logger *slog.Logger) *RelationshipHandler {
	return &RelationshipHandler{base: base{gate: gate, hub: hub, logger: logger}, relationshipStore: rs}
}

// Create adds an edge and its reciprocal. Repeating an existing edge
// returns the existing id with 200 instead of 201.
func (h *RelationshipHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FamilyID         int64                  `json:"family_id"`
		Person1ID        int64                  `json:"person1_id"`
		Person2ID        int64                  `json:"person2_id"`
		RelationshipType model.RelationshipType `json:"relationship_type"`
		MarriageDate     string                 `json:"marriage_date"`
		DivorceDate      string                 `json:"divorce_date"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FamilyID <= 0 || req.Person1ID <= 0 || req.Person2ID <= 0 {
		writeError(w, http.StatusBadRequest, "family_id, person1_id and person2_id are required")
		return
	}
	if req.RelationshipType == "" {
		writeError(w, http.StatusBadRequest, "relationship_type is required")
		return
	}
	if !h.authorize(w, r, req.FamilyID, access.Edit) {
		return
	}

	userID := auth.UserID(r.Context())
	meta := model.RelationshipMeta{
		MarriageDate: strings.TrimSpace(req.MarriageDate),
		DivorceDate:  strings.TrimSpace(req.DivorceDate),
		CreatedBy:    &userID,
	}
	rel, created, err := h.relationshipStore.Add(r.Context(), req.FamilyID, req.Person1ID, req.Person2ID, req.RelationshipType, meta)
	if err != nil {
		h.storeError(w, err, "create relationship")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.broadcast(rel.FamilyID, "relationship", "created", rel.ID)
	}
	writeSuccess(w, status, envelope{
		"relationship_id": rel.ID,
		"created":         created,
		"relationship":    rel,
	})
}

func (h *RelationshipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rel, err := h.relationshipStore.GetByID(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "load relationship")
		return
	}
	if rel == nil {
		writeError(w, http.StatusNotFound, "relationship not found")
		return
	}
	if !h.authorizeResource(w, r, rel.FamilyID, access.Edit, "relationship not found") {
		return
	}

	deleted, err := h.relationshipStore.Delete(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "delete relationship")
		return
	}
	h.broadcast(rel.FamilyID, "relationship", "deleted", rel.ID)
	writeSuccess(w, http.StatusOK, envelope{"relationships_deleted": deleted})
}
