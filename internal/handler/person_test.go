package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/dukerupert/heirloom/internal/model"
)

// onePixelPNG is the PNG signature, enough to round-trip as photo bytes.
const onePixelPNG = "data:image/png;base64,iVBORw0KGgo="

func TestCreatePerson(t *testing.T) {
	e := setupEnv(t)
	h := NewPersonHandler(e.people, e.photos, e.gate, e.hub, e.logger)
	owner, f := e.family(t)

	rec := serve(t, "POST /api/person", h.Create, "POST", "/api/person", map[string]any{
		"family_id":  f.ID,
		"first_name": " Ada ",
		"last_name":  "Smith",
	}, owner)
	body := expectStatus(t, rec, http.StatusCreated)

	p := body["person"].(map[string]any)
	if p["first_name"] != "Ada" {
		t.Errorf("first_name = %v", p["first_name"])
	}
	if p["is_living"] != true {
		t.Errorf("is_living = %v, want default true", p["is_living"])
	}
	if p["has_photo"] != false {
		t.Errorf("has_photo = %v", p["has_photo"])
	}
}

func TestCreatePersonValidation(t *testing.T) {
	e := setupEnv(t)
	h := NewPersonHandler(e.people, e.photos, e.gate, e.hub, e.logger)
	owner, f := e.family(t)

	rec := serve(t, "POST /api/person", h.Create, "POST", "/api/person", map[string]any{"first_name": "Ada"}, owner)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = serve(t, "POST /api/person", h.Create, "POST", "/api/person", map[string]any{"family_id": f.ID}, owner)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestCreatePersonViewerDenied(t *testing.T) {
	e := setupEnv(t)
	h := NewPersonHandler(e.people, e.photos, e.gate, e.hub, e.logger)
	_, f := e.family(t)
	viewer := e.member(t, f, "v@example.com", model.RoleViewer)

	rec := serve(t, "POST /api/person", h.Create, "POST", "/api/person", map[string]any{
		"family_id":  f.ID,
		"first_name": "Ada",
	}, viewer)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestPersonHiddenOutsideFamily(t *testing.T) {
	e := setupEnv(t)
	h := NewPersonHandler(e.people, e.photos, e.gate, e.hub, e.logger)
	_, f := e.family(t)
	p := e.person(t, f.ID, "Ada")
	stranger := e.user(t, "x@example.com", "X")
	viewer := e.member(t, f, "v@example.com", model.RoleViewer)
	path := pathf("/api/person/%d", p.ID)

	missing := serve(t, "GET /api/person/{id}", h.Get, "GET", "/api/person/9999", nil, stranger)
	missingBody := expectStatus(t, missing, http.StatusNotFound)

	// Someone else's person looks exactly like an id that does not exist.
	rec := serve(t, "GET /api/person/{id}", h.Get, "GET", path, nil, stranger)
	body := expectStatus(t, rec, http.StatusNotFound)
	if body["error"] != missingBody["error"] {
		t.Errorf("error = %v, want %v", body["error"], missingBody["error"])
	}
	rec = serve(t, "PUT /api/person/{id}", h.Update, "PUT", path, map[string]any{"first_name": "Eve"}, stranger)
	expectStatus(t, rec, http.StatusNotFound)
	rec = serve(t, "DELETE /api/person/{id}", h.Delete, "DELETE", path, nil, stranger)
	expectStatus(t, rec, http.StatusNotFound)

	// Members without the permission still learn why.
	rec = serve(t, "GET /api/person/{id}", h.Get, "GET", path, nil, viewer)
	expectStatus(t, rec, http.StatusOK)
	rec = serve(t, "PUT /api/person/{id}", h.Update, "PUT", path, map[string]any{"first_name": "Eve"}, viewer)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestUpdatePersonPartial(t *testing.T) {
	e := setupEnv(t)
	h := NewPersonHandler(e.people, e.photos, e.gate, e.hub, e.logger)
	owner, f := e.family(t)
	created, err := e.people.Create(context.Background(), f.ID, model.PersonInput{
		FirstName: "Ada", LastName: "Smith", Bio: "mathematician", IsLiving: true,
	}, nil, owner.ID)
	if err != nil {
		t.Fatalf("create person: %v", err)
	}

	rec := serve(t, "PUT /api/person/{id}", h.Update, "PUT", pathf("/api/person/%d", created.ID), map[string]any{
		"last_name": "Lovelace",
		"is_living": false,
	}, owner)
	body := expectStatus(t, rec, http.StatusOK)

	p := body["person"].(map[string]any)
	if p["last_name"] != "Lovelace" || p["is_living"] != false {
		t.Errorf("person = %v", p)
	}
	if p["first_name"] != "Ada" || p["bio"] != "mathematician" {
		t.Errorf("untouched fields changed: %v", p)
	}
}

func TestPersonPhotoLifecycle(t *testing.T) {
	e := setupEnv(t)
	h := NewPersonHandler(e.people, e.photos, e.gate, e.hub, e.logger)
	owner, f := e.family(t)

	rec := serve(t, "POST /api/person", h.Create, "POST", "/api/person", map[string]any{
		"family_id":      f.ID,
		"first_name":     "Ada",
		"photo":          onePixelPNG,
		"photo_filename": "ada.png",
	}, owner)
	body := expectStatus(t, rec, http.StatusCreated)
	id := int64(body["person_id"].(float64))
	if body["person"].(map[string]any)["has_photo"] != true {
		t.Fatal("expected has_photo after upload")
	}

	rec = serve(t, "GET /api/person-photo/{id}", h.Photo, "GET", pathf("/api/person-photo/%d", id), nil, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("photo status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.Len() != 8 {
		t.Errorf("photo bytes = %d, want 8", rec.Body.Len())
	}

	rec = serve(t, "PUT /api/person/{id}", h.Update, "PUT", pathf("/api/person/%d", id), map[string]any{
		"remove_photo": true,
		"photo":        onePixelPNG,
	}, owner)
	body = expectStatus(t, rec, http.StatusOK)
	if body["person"].(map[string]any)["has_photo"] != false {
		t.Error("remove_photo should win over a new upload")
	}

	rec = serve(t, "GET /api/person-photo/{id}", h.Photo, "GET", pathf("/api/person-photo/%d", id), nil, owner)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestDeletePersonCascades(t *testing.T) {
	e := setupEnv(t)
	h := NewPersonHandler(e.people, e.photos, e.gate, e.hub, e.logger)
	owner, f := e.family(t)
	ctx := context.Background()

	parent := e.person(t, f.ID, "Parent")
	child := e.person(t, f.ID, "Child")
	if _, _, err := e.relationships.Add(ctx, f.ID, parent.ID, child.ID, model.RelParent, model.RelationshipMeta{}); err != nil {
		t.Fatalf("add relationship: %v", err)
	}
	if _, err := e.stories.Create(ctx, f.ID, parent.ID, model.StoryInput{Title: "Farm", Theme: "childhood"}, nil, owner.ID); err != nil {
		t.Fatalf("create story: %v", err)
	}

	editor := e.member(t, f, "ed@example.com", model.RoleEditor)
	path := pathf("/api/person/%d", parent.ID)
	rec := serve(t, "DELETE /api/person/{id}", h.Delete, "DELETE", path, nil, editor)
	expectStatus(t, rec, http.StatusForbidden)

	rec = serve(t, "DELETE /api/person/{id}", h.Delete, "DELETE", path, nil, owner)
	body := expectStatus(t, rec, http.StatusOK)
	if body["stories_deleted"] != float64(1) {
		t.Errorf("stories_deleted = %v, want 1", body["stories_deleted"])
	}
	if body["relationships_deleted"] != float64(2) {
		t.Errorf("relationships_deleted = %v, want 2", body["relationships_deleted"])
	}

	rec = serve(t, "GET /api/person/{id}", h.Get, "GET", path, nil, owner)
	expectStatus(t, rec, http.StatusNotFound)
}
