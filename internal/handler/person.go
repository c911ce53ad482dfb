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

type PersonHandler struct {
	base
	personStore *store.PersonStore
	photos      *photo.Service
}

func NewPersonHandler(ps *store.PersonStore, photos *photo.Service, gate *access.Gate, hub *websocket.Hub, logger *slog.Logger) *PersonHandler {
	return &PersonHandler{base: base{gate: gate, hub: hub, logger: logger}, personStore: ps, photos: photos}
}

// personRequest uses pointers so that an update only touches the fields
// the client sent.
type personRequest struct {
	FamilyID   int64   `json:"family_id"`
	FirstName  *string `json:"first_name"`
	MiddleName *string `json:"middle_name"`
	LastName   *string `json:"last_name"`
	MaidenName *string `json:"maiden_name"`
	Gender     *string `json:"gender"`
	BirthDate  *string `json:"birth_date"`
	DeathDate  *string `json:"death_date"`
	BirthPlace *string `json:"birth_place"`
	DeathPlace *string `json:"death_place"`
	IsLiving   *bool   `json:"is_living"`
	Bio        *string `json:"bio"`
	PositionX  *int    `json:"position_x"`
	PositionY  *int    `json:"position_y"`
	photoFields
}

func (req *personRequest) apply(in *model.PersonInput) {
	for _, f := range []struct {
		src *string
		dst *string
	}{
		{req.FirstName, &in.FirstName},
		{req.MiddleName, &in.MiddleName},
		{req.LastName, &in.LastName},
		{req.MaidenName, &in.MaidenName},
		{req.Gender, &in.Gender},
		{req.BirthDate, &in.BirthDate},
		{req.DeathDate, &in.DeathDate},
		{req.BirthPlace, &in.BirthPlace},
		{req.DeathPlace, &in.DeathPlace},
		{req.Bio, &in.Bio},
	} {
		if f.src != nil {
			*f.dst = strings.TrimSpace(*f.src)
		}
	}
	if req.IsLiving != nil {
		in.IsLiving = *req.IsLiving
	}
	if req.PositionX != nil {
		in.PositionX = *req.PositionX
	}
	if req.PositionY != nil {
		in.PositionY = *req.PositionY
	}
}

func inputFromPerson(p *model.Person) model.PersonInput {
	return model.PersonInput{
		FirstName:  p.FirstName,
		MiddleName: p.MiddleName,
		LastName:   p.LastName,
		MaidenName: p.MaidenName,
		Gender:     p.Gender,
		BirthDate:  p.BirthDate,
		DeathDate:  p.DeathDate,
		BirthPlace: p.BirthPlace,
		DeathPlace: p.DeathPlace,
		IsLiving:   p.IsLiving,
		Bio:        p.Bio,
		PositionX:  p.PositionX,
		PositionY:  p.PositionY,
	}
}

func (h *PersonHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FamilyID <= 0 {
		writeError(w, http.StatusBadRequest, "family_id is required")
		return
	}
	if !h.authorize(w, r, req.FamilyID, access.Edit) {
		return
	}

	in := model.PersonInput{IsLiving: true}
	req.apply(&in)
	if in.FirstName == "" {
		writeError(w, http.StatusBadRequest, "first_name is required")
		return
	}

	ctx := r.Context()
	stored, err := req.prepare(ctx, h.photos, req.FamilyID, photo.KindPeople, nil)
	if err != nil {
		h.storeError(w, err, "store photo")
		return
	}

	p, err := h.personStore.Create(ctx, req.FamilyID, in, stored, auth.UserID(ctx))
	if err != nil {
		h.photos.Remove(ctx, uploadedKey(stored))
		h.storeError(w, err, "create person")
		return
	}
	h.broadcast(p.FamilyID, "person", "created", p.ID)
	writeSuccess(w, http.StatusCreated, envelope{"person_id": p.ID, "person": p})
}

// load fetches the person named by the id path parameter and checks perm on
// its family. It writes the error response itself.
func (h *PersonHandler) load(w http.ResponseWriter, r *http.Request, perm access.Permission) (*model.Person, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}
	p, err := h.personStore.GetByID(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "load person")
		return nil, false
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "person not found")
		return nil, false
	}
	if !h.authorizeResource(w, r, p.FamilyID, perm, "person not found") {
		return nil, false
	}
	return p, true
}

func (h *PersonHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r, access.View)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"person": p})
}

func (h *PersonHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r, access.Edit)
	if !ok {
		return
	}

	var req personRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := inputFromPerson(existing)
	req.apply(&in)
	if in.FirstName == "" {
		writeError(w, http.StatusBadRequest, "first_name is required")
		return
	}

	ctx := r.Context()
	change, err := req.update(ctx, h.photos, existing.FamilyID, photo.KindPeople, nil)
	if err != nil {
		h.storeError(w, err, "store photo")
		return
	}

	p, oldKey, err := h.personStore.Update(ctx, existing.ID, in, change, auth.UserID(ctx))
	if err != nil {
		h.photos.Remove(ctx, uploadedKey(change.Replace))
		h.storeError(w, err, "update person")
		return
	}
	h.photos.Remove(ctx, oldKey)
	h.broadcast(p.FamilyID, "person", "updated", p.ID)
	writeSuccess(w, http.StatusOK, envelope{"person": p})
}

// Delete cascades to the person's stories and relationships and reports
// how many of each were removed.
func (h *PersonHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r, access.Manage)
	if !ok {
		return
	}

	res, err := h.personStore.Delete(r.Context(), p.ID)
	if err != nil {
		h.storeError(w, err, "delete person")
		return
	}
	h.photos.Remove(r.Context(), res.PhotoKeys...)
	h.broadcast(p.FamilyID, "person", "deleted", p.ID)
	writeSuccess(w, http.StatusOK, envelope{
		"stories_deleted":       res.StoriesDeleted,
		"relationships_deleted": res.RelationshipsDeleted,
	})
}

func (h *PersonHandler) Photo(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r, access.View)
	if !ok {
		return
	}
	stored, err := h.personStore.GetPhoto(r.Context(), p.ID)
	if err != nil {
		h.storeError(w, err, "load photo")
		return
	}
	servePhoto(w, r, h.photos, stored, &h.base)
}
