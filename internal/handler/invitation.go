package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/heirloom/internal/access"
	"github.com/dukerupert/heirloom/internal/auth"
	"github.com/dukerupert/heirloom/internal/email"
	"github.com/dukerupert/heirloom/internal/model"
	"github.com/dukerupert/heirloom/internal/store"
	"github.com/dukerupert/heirloom/internal/websocket"
)

const emailTimeout = 10 * time.Second

type InvitationHandler struct {
	base
	invitationStore *store.InvitationStore
	familyStore     *store.FamilyStore
	emailClient     *email.Client
}

func NewInvitationHandler(is *store.InvitationStore, fs *store.FamilyStore, ec *email.Client, gate *access.Gate, hub *websocket.Hub, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{base: base{gate: gate, hub: hub, logger: logger}, invitationStore: is, familyStore: fs, emailClient: ec}
}

// Create records an invitation and, when email is configured, sends the
// accept link. A failed send does not fail the request; the token is in the
// response so it can be shared another way.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.Invite) {
		return
	}

	var req struct {
		Email string     `json:"email"`
		Role  model.Role `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleViewer
	}
	if !req.Role.Assignable() {
		writeError(w, http.StatusBadRequest, "role must be member, editor, or viewer")
		return
	}

	ctx := r.Context()
	ac, _ := auth.FromContext(ctx)
	inv, err := h.invitationStore.Create(ctx, familyID, req.Email, req.Role, ac.UserID)
	if err != nil {
		h.storeError(w, err, "create invitation")
		return
	}

	emailSent := false
	if h.emailClient != nil && h.emailClient.Configured() {
		emailSent = h.sendInvitation(ctx, inv, ac.Name)
	}

	writeSuccess(w, http.StatusCreated, envelope{
		"invitation": inv,
		"token":      inv.Token,
		"email_sent": emailSent,
	})
}

func (h *InvitationHandler) sendInvitation(ctx context.Context, inv *model.Invitation, inviterName string) bool {
	f, err := h.familyStore.GetByID(ctx, inv.FamilyID)
	if err != nil || f == nil {
		h.logger.Error("load family for invitation email", "family_id", inv.FamilyID, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emailTimeout)
	defer cancel()
	if err := h.emailClient.SendInvitation(ctx, inv.Email, inv.Token, f.Name, inviterName, string(inv.Role)); err != nil {
		h.logger.Error("send invitation email", "invitation_id", inv.ID, "error", err)
		return false
	}
	return true
}

func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.Invite) {
		return
	}

	invitations, err := h.invitationStore.ListPending(r.Context(), familyID)
	if err != nil {
		h.storeError(w, err, "list invitations")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"invitations": invitations})
}

// Accept redeems a token for the signed-in user.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	userID := auth.UserID(r.Context())
	inv, err := h.invitationStore.Accept(r.Context(), req.Token, userID)
	if err != nil {
		h.storeError(w, err, "accept invitation")
		return
	}
	h.broadcast(inv.FamilyID, "member", "joined", userID)
	writeSuccess(w, http.StatusOK, envelope{"family_id": inv.FamilyID, "role": inv.Role})
}
