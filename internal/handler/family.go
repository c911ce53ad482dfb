package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/heirloom/internal/access"
	"github.com/dukerupert/heirloom/internal/auth"
	"github.com/dukerupert/heirloom/internal/model"
	"github.com/dukerupert/heirloom/internal/photo"
	"github.com/dukerupert/heirloom/internal/store"
	"github.com/dukerupert/heirloom/internal/websocket"
)

type FamilyHandler struct {
	base
	familyStore *store.FamilyStore
	photos      *photo.Service
}

func NewFamilyHandler(fs *store.FamilyStore, photos *photo.Service, gate *access.Gate, hub *websocket.Hub, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{base: base{gate: gate, hub: hub, logger: logger}, familyStore: fs, photos: photos}
}

// Create makes the caller the owner of a new family.
func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FamilyName string `json:"family_name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.FamilyName = strings.TrimSpace(req.FamilyName)
	if req.FamilyName == "" {
		writeError(w, http.StatusBadRequest, "family_name is required")
		return
	}

	f, err := h.familyStore.Create(r.Context(), req.FamilyName, auth.UserID(r.Context()))
	if err != nil {
		h.storeError(w, err, "create family")
		return
	}
	writeSuccess(w, http.StatusCreated, envelope{
		"family_id":   f.ID,
		"access_code": f.AccessCode,
		"family":      f,
	})
}

func (h *FamilyHandler) List(w http.ResponseWriter, r *http.Request) {
	families, err := h.familyStore.ListForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.storeError(w, err, "list families")
		return
	}
	if families == nil {
		families = []model.FamilyWithRole{}
	}
	writeSuccess(w, http.StatusOK, envelope{"families": families})
}

func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.View) {
		return
	}

	f, err := h.familyStore.GetByID(r.Context(), familyID)
	if err != nil {
		h.storeError(w, err, "load family")
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, "family not found")
		return
	}
	role, _ := h.gate.Role(r.Context(), auth.UserID(r.Context()), familyID)
	writeSuccess(w, http.StatusOK, envelope{
		"family":      f,
		"role":        role,
		"permissions": access.Permissions(role),
	})
}

func (h *FamilyHandler) Update(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.Manage) {
		return
	}

	var req struct {
		FamilyName string `json:"family_name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.FamilyName = strings.TrimSpace(req.FamilyName)
	if req.FamilyName == "" {
		writeError(w, http.StatusBadRequest, "family_name is required")
		return
	}

	f, err := h.familyStore.UpdateName(r.Context(), familyID, req.FamilyName)
	if err != nil {
		h.storeError(w, err, "update family")
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, "family not found")
		return
	}
	h.broadcast(familyID, "family", "updated", familyID)
	writeSuccess(w, http.StatusOK, envelope{"family": f})
}

// Delete removes the family and everything in it.
func (h *FamilyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.Admin) {
		return
	}

	keys, err := h.familyStore.Delete(r.Context(), familyID)
	if err != nil {
		h.storeError(w, err, "delete family")
		return
	}
	h.photos.Remove(r.Context(), keys...)
	h.broadcast(familyID, "family", "deleted", familyID)
	writeSuccess(w, http.StatusOK, nil)
}

func (h *FamilyHandler) RegenerateAccessCode(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.Manage) {
		return
	}

	f, err := h.familyStore.RegenerateAccessCode(r.Context(), familyID)
	if err != nil {
		h.storeError(w, err, "regenerate access code")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"access_code": f.AccessCode})
}

// Join adds the caller to the family holding the access code as a viewer.
func (h *FamilyHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessCode string `json:"access_code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AccessCode) == "" {
		writeError(w, http.StatusBadRequest, "access_code is required")
		return
	}

	userID := auth.UserID(r.Context())
	f, err := h.familyStore.JoinByCode(r.Context(), req.AccessCode, userID)
	if err != nil {
		h.storeError(w, err, "join family")
		return
	}
	h.broadcast(f.ID, "member", "joined", userID)
	writeSuccess(w, http.StatusOK, envelope{"family_id": f.ID, "family": f, "role": model.RoleViewer})
}

func (h *FamilyHandler) Members(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.View) {
		return
	}

	members, err := h.familyStore.ListMembers(r.Context(), familyID)
	if err != nil {
		h.storeError(w, err, "list members")
		return
	}
	if members == nil {
		members = []model.MemberProfile{}
	}
	writeSuccess(w, http.StatusOK, envelope{"members": members})
}

func (h *FamilyHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "user_id")
	if !ok || !h.authorize(w, r, familyID, access.Admin) {
		return
	}

	var req struct {
		Role model.Role `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Role.Assignable() {
		writeError(w, http.StatusBadRequest, "role must be member, editor, or viewer")
		return
	}

	m, err := h.familyStore.UpdateMemberRole(r.Context(), familyID, userID, req.Role)
	if err != nil {
		h.storeError(w, err, "update member role")
		return
	}
	h.broadcast(familyID, "member", "updated", userID)
	writeSuccess(w, http.StatusOK, envelope{"membership": m})
}

func (h *FamilyHandler) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "user_id")
	if !ok || !h.authorize(w, r, familyID, access.Manage) {
		return
	}

	code, err := h.familyStore.DeactivateMember(r.Context(), familyID, userID)
	if err != nil {
		h.storeError(w, err, "remove member")
		return
	}
	h.broadcast(familyID, "member", "removed", userID)
	writeSuccess(w, http.StatusOK, envelope{"access_code": code})
}
