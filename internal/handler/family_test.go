package handler

import (
	"net/http"
	"testing"

	"github.com/dukerupert/heirloom/internal/model"
)

func TestCreateFamily(t *testing.T) {
	e := setupEnv(t)
	h := NewFamilyHandler(e.families, e.photos, e.gate, e.hub, e.logger)
	u := e.user(t, "a@example.com", "A")

	rec := serve(t, "POST /api/create-family", h.Create, "POST", "/api/create-family",
		map[string]string{"family_name": "  Smiths  "}, u)
	body := expectStatus(t, rec, http.StatusCreated)

	if body["family_id"] == nil {
		t.Fatal("expected family_id")
	}
	code, _ := body["access_code"].(string)
	if len(code) != 8 {
		t.Errorf("access_code = %q, want 8 characters", code)
	}
	f := body["family"].(map[string]any)
	if f["name"] != "Smiths" {
		t.Errorf("name = %v, want trimmed", f["name"])
	}
}

func TestCreateFamilyRequiresName(t *testing.T) {
	e := setupEnv(t)
	h := NewFamilyHandler(e.families, e.photos, e.gate, e.hub, e.logger)
	u := e.user(t, "a@example.com", "A")

	rec := serve(t, "POST /api/create-family", h.Create, "POST", "/api/create-family",
		map[string]string{"family_name": " "}, u)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestGetFamilyReportsRoleAndPermissions(t *testing.T) {
	e := setupEnv(t)
	h := NewFamilyHandler(e.families, e.photos, e.gate, e.hub, e.logger)
	_, f := e.family(t)
	editor := e.member(t, f, "ed@example.com", model.RoleEditor)

	rec := serve(t, "GET /api/families/{family_id}", h.Get, "GET", pathf("/api/families/%d", f.ID), nil, editor)
	body := expectStatus(t, rec, http.StatusOK)
	if body["role"] != "editor" {
		t.Errorf("role = %v", body["role"])
	}
	perms := body["permissions"].([]any)
	if len(perms) != 2 || perms[0] != "view" || perms[1] != "edit" {
		t.Errorf("permissions = %v", perms)
	}
}

func TestFamilyEndpointsDenyNonMembers(t *testing.T) {
	e := setupEnv(t)
	h := NewFamilyHandler(e.families, e.photos, e.gate, e.hub, e.logger)
	_, f := e.family(t)
	stranger := e.user(t, "x@example.com", "X")

	rec := serve(t, "GET /api/families/{family_id}", h.Get, "GET", pathf("/api/families/%d", f.ID), nil, stranger)
	body := expectStatus(t, rec, http.StatusForbidden)
	if body["error"] != permissionDenied {
		t.Errorf("error = %v", body["error"])
	}

	rec = serve(t, "GET /api/families/{family_id}/members", h.Members, "GET", pathf("/api/families/%d/members", f.ID), nil, stranger)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestUpdateFamilyNeedsManage(t *testing.T) {
	e := setupEnv(t)
	h := NewFamilyHandler(e.families, e.photos, e.gate, e.hub, e.logger)
	owner, f := e.family(t)
	member := e.member(t, f, "m@example.com", model.RoleMember)
	path := pathf("/api/families/%d", f.ID)

	rec := serve(t, "PUT /api/families/{family_id}", h.Update, "PUT", path, map[string]string{"family_name": "Joneses"}, member)
	expectStatus(t, rec, http.StatusForbidden)

	rec = serve(t, "PUT /api/families/{family_id}", h.Update, "PUT", path, map[string]string{"family_name": "Joneses"}, owner)
	body := expectStatus(t, rec, http.StatusOK)
	if body["family"].(map[string]any)["name"] != "Joneses" {
		t.Errorf("family = %v", body["family"])
	}
}

func TestJoinByCode(t *testing.T) {
	e := setupEnv(t)
	h := NewFamilyHandler(e.families, e.photos, e.gate, e.hub, e.logger)
	_, f := e.family(t)
	u := e.user(t, "j@example.com", "J")

	rec := serve(t, "POST /api/families/join", h.Join, "POST", "/api/families/join",
		map[string]string{"access_code": f.AccessCode}, u)
	body := expectStatus(t, rec, http.StatusOK)
	if body["role"] != "viewer" {
		t.Errorf("role = %v, want viewer", body["role"])
	}
	if int64(body["family_id"].(float64)) != f.ID {
		t.Errorf("family_id = %v, want %d", body["family_id"], f.ID)
	}

	rec = serve(t, "POST /api/families/join", h.Join, "POST", "/api/families/join",
		map[string]string{"access_code": f.AccessCode}, u)
	expectStatus(t, rec, http.StatusConflict)

	rec = serve(t, "POST /api/families/join", h.Join, "POST", "/api/families/join",
		map[string]string{"access_code": "NOPE1234"}, u)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestRegenerateAccessCode(t *testing.T) {
	e := setupEnv(t)
	h := NewFamilyHandler(e.families, e.photos, e.gate, e.hub, e.logger)
	owner, f := e.family(t)

	rec := serve(t, "POST /api/families/{family_id}/access-code", h.RegenerateAccessCode, "POST",
		pathf("/api/families/%d/access-code", f.ID), nil, owner)
	body := expectStatus(t, rec, http.StatusOK)
	if body["access_code"] == f.AccessCode {
		t.Error("access code did not change")
	}
}

func TestUpdateMemberRole(t *testing.T) {
	e := setupEnv(t)
	h := NewFamilyHandler(e.families, e.photos, e.gate, e.hub, e.logger)
	owner, f := e.family(t)
	viewer := e.member(t, f, "v@example.com", model.RoleViewer)
	pattern := "PUT /api/families/{family_id}/members/{user_id}"

	rec := serve(t, pattern, h.UpdateMemberRole, "PUT", pathf("/api/families/%d/members/%d", f.ID, viewer.ID),
		map[string]string{"role": "editor"}, owner)
	body := expectStatus(t, rec, http.StatusOK)
	if body["membership"].(map[string]any)["role"] != "editor" {
		t.Errorf("membership = %v", body["membership"])
	}

	rec = serve(t, pattern, h.UpdateMemberRole, "PUT", pathf("/api/families/%d/members/%d", f.ID, viewer.ID),
		map[string]string{"role": "owner"}, owner)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = serve(t, pattern, h.UpdateMemberRole, "PUT", pathf("/api/families/%d/members/%d", f.ID, owner.ID),
		map[string]string{"role": "viewer"}, owner)
	expectStatus(t, rec, http.StatusConflict)
}

func TestDeactivateMemberRevokesAccess(t *testing.T) {
	e := setupEnv(t)
	h := NewFamilyHandler(e.families, e.photos, e.gate, e.hub, e.logger)
	owner, f := e.family(t)
	viewer := e.member(t, f, "v@example.com", model.RoleViewer)

	rec := serve(t, "DELETE /api/families/{family_id}/members/{user_id}", h.DeactivateMember, "DELETE",
		pathf("/api/families/%d/members/%d", f.ID, viewer.ID), nil, owner)
	body := expectStatus(t, rec, http.StatusOK)
	newCode, _ := body["access_code"].(string)
	if newCode == "" || newCode == f.AccessCode {
		t.Fatalf("access_code = %q, want a fresh code", newCode)
	}

	rec = serve(t, "GET /api/families/{family_id}", h.Get, "GET", pathf("/api/families/%d", f.ID), nil, viewer)
	expectStatus(t, rec, http.StatusForbidden)

	// The code the removed member already held no longer lets them back in.
	rec = serve(t, "POST /api/families/join", h.Join, "POST", "/api/families/join",
		map[string]string{"access_code": f.AccessCode}, viewer)
	expectStatus(t, rec, http.StatusNotFound)
	rec = serve(t, "GET /api/families/{family_id}", h.Get, "GET", pathf("/api/families/%d", f.ID), nil, viewer)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestListFamiliesEmpty(t *testing.T) {
	e := setupEnv(t)
	h := NewFamilyHandler(e.families, e.photos, e.gate, e.hub, e.logger)
	u := e.user(t, "a@example.com", "A")

	rec := serve(t, "GET /api/families", h.List, "GET", "/api/families", nil, u)
	body := expectStatus(t, rec, http.StatusOK)
	if fams, ok := body["families"].([]any); !ok || len(fams) != 0 {
		t.Errorf("families = %v, want empty list", body["families"])
	}
}

func TestDeleteFamilyOwnerOnly(t *testing.T) {
	e := setupEnv(t)
	h := NewFamilyHandler(e.families, e.photos, e.gate, e.hub, e.logger)
	owner, f := e.family(t)
	member := e.member(t, f, "m@example.com", model.RoleMember)
	path := pathf("/api/families/%d", f.ID)

	rec := serve(t, "DELETE /api/families/{family_id}", h.Delete, "DELETE", path, nil, member)
	expectStatus(t, rec, http.StatusForbidden)

	rec = serve(t, "DELETE /api/families/{family_id}", h.Delete, "DELETE", path, nil, owner)
	expectStatus(t, rec, http.StatusOK)

	rec = serve(t, "GET /api/families/{family_id}", h.Get, "GET", path, nil, owner)
	expectStatus(t, rec, http.StatusForbidden)
}
