// Package handler implements the JSON HTTP API. Every response body carries
// a "success" flag; failures add an "error" message.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/heirloom/internal/access"
	"github.com/dukerupert/heirloom/internal/auth"
	"github.com/dukerupert/heirloom/internal/store"
	"github.com/dukerupert/heirloom/internal/websocket"
)

const permissionDenied = "you don't have permission to access this family"

// maxBodyBytes bounds JSON request bodies. Photos arrive base64-encoded
// inside the body, so this is well above the decoded photo limit.
const maxBodyBytes = 32 << 20

type envelope map[string]any

// base carries what every family-scoped handler needs.
type base struct {
	gate   *access.Gate
	hub    *websocket.Hub
	logger *slog.Logger
}

func (b *base) broadcast(familyID int64, entity, action string, id int64) {
	if b.hub != nil {
		b.hub.Broadcast(websocket.NewMessage(familyID, entity, action, id))
	}
}

// authorize reports whether the caller holds perm in familyID, writing a 403
// when they do not.
func (b *base) authorize(w http.ResponseWriter, r *http.Request, familyID int64, perm access.Permission) bool {
	if b.gate.Check(r.Context(), auth.UserID(r.Context()), familyID, perm) {
		return true
	}
	writeError(w, http.StatusForbidden, permissionDenied)
	return false
}

// authorizeResource is authorize for a record looked up by its own id. A
// caller with no active membership in the owning family gets the same 404
// as a missing id, so ids from other families are indistinguishable from
// ids that do not exist. Members lacking perm still get a 403.
func (b *base) authorizeResource(w http.ResponseWriter, r *http.Request, familyID int64, perm access.Permission, notFound string) bool {
	ctx := r.Context()
	if b.gate.Check(ctx, auth.UserID(ctx), familyID, perm) {
		return true
	}
	if _, member := b.gate.Role(ctx, auth.UserID(ctx), familyID); !member {
		writeError(w, http.StatusNotFound, notFound)
		return false
	}
	writeError(w, http.StatusForbidden, permissionDenied)
	return false
}

// storeError maps domain sentinels to status codes. Anything else is logged
// and reported as a generic failure to action.
func (b *base) storeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInvitationInvalid):
		writeError(w, http.StatusGone, "invalid or expired invitation")
	case errors.Is(err, store.ErrAlreadyMember):
		writeError(w, http.StatusConflict, "you are already a member of this family")
	case errors.Is(err, store.ErrOwnerImmutable):
		writeError(w, http.StatusConflict, "the family owner's membership cannot be changed")
	case errors.Is(err, store.ErrEmailTaken):
		writeError(w, http.StatusConflict, "an account with that email already exists")
	case errors.Is(err, store.ErrInvalidRelationship):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInvalidReference):
		writeError(w, http.StatusBadRequest, "root person must belong to this family")
	default:
		b.logger.Error("failed to "+action, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// pathID parses a positive integer path parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, body envelope) {
	if body == nil {
		body = envelope{}
	}
	body["success"] = true
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{"success": false, "error": msg})
}
