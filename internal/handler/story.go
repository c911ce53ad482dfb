package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/heirloom/internal/access"
	"github.com/dukerupert/heirloom/internal/auth"
	"github.com/dukerupert/heirloom/internal/model"
	"github.com/dukerupert/heirloom/internal/photo"
	"github.com/dukerupert/heirloom/internal/store"
	"github.com/dukerupert/heirloom/internal/websocket"
)

const defaultTheme = "general"

type StoryHandler struct {
	base
	storyStore *store.StoryStore
	photos     *photo.Service
}

func NewStoryHandler(ss *store.StoryStore, photos *photo.Service, gate *access.Gate, hub *websocket.Hub, logger *slog.Logger) *StoryHandler {
	return &StoryHandler{base: base{gate: gate, hub: hub, logger: logger}, storyStore: ss, photos: photos}
}

type storyRequest struct {
	FamilyID            int64                   `json:"family_id"`
	PersonID            int64                   `json:"person_id"`
	AuthorName          *string                 `json:"author_name"`
	Title               *string                 `json:"title"`
	Theme               *string                 `json:"theme"`
	TimePeriod          *string                 `json:"time_period"`
	Year                *int                    `json:"year"`
	QuestionsAndAnswers *[]model.QuestionAnswer `json:"questions_and_answers"`
	StoryText           *string                 `json:"story_text"`
	Featured            *bool                   `json:"featured"`
	photoFields
}

func (req *storyRequest) apply(in *model.StoryInput) {
	for _, f := range []struct {
		src *string
		dst *string
	}{
		{req.AuthorName, &in.AuthorName},
		{req.Title, &in.Title},
		{req.Theme, &in.Theme},
		{req.TimePeriod, &in.TimePeriod},
	} {
		if f.src != nil {
			*f.dst = strings.TrimSpace(*f.src)
		}
	}
	if req.StoryText != nil {
		in.StoryText = *req.StoryText
	}
	if req.Year != nil {
		in.Year = req.Year
	}
	if req.QuestionsAndAnswers != nil {
		in.QuestionsAndAnswers = *req.QuestionsAndAnswers
	}
	if req.Featured != nil {
		in.Featured = *req.Featured
	}
}

func validateStory(in *model.StoryInput) string {
	if in.Title == "" {
		return "title is required"
	}
	if in.Theme == "" {
		in.Theme = defaultTheme
	}
	if !model.ValidTheme(in.Theme) {
		return "unknown theme"
	}
	if in.Year != nil && (*in.Year < 1 || *in.Year > 9999) {
		return "year must be between 1 and 9999"
	}
	return ""
}

func inputFromStory(st *model.Story) model.StoryInput {
	return model.StoryInput{
		AuthorName:          st.AuthorName,
		Title:               st.Title,
		Theme:               st.Theme,
		TimePeriod:          st.TimePeriod,
		Year:                st.Year,
		QuestionsAndAnswers: st.QuestionsAndAnswers,
		StoryText:           st.StoryText,
		Featured:            st.Featured,
	}
}

// Create saves a story about a person in the family. The author name
// defaults to the caller's display name.
func (h *StoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req storyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FamilyID <= 0 || req.PersonID <= 0 {
		writeError(w, http.StatusBadRequest, "family_id and person_id are required")
		return
	}
	if !h.authorize(w, r, req.FamilyID, access.Edit) {
		return
	}

	ctx := r.Context()
	ac, _ := auth.FromContext(ctx)
	in := model.StoryInput{AuthorName: ac.Name}
	req.apply(&in)
	if in.AuthorName == "" {
		in.AuthorName = ac.Name
	}
	if msg := validateStory(&in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	stored, err := req.prepare(ctx, h.photos, req.FamilyID, photo.KindStories, in.Year)
	if err != nil {
		h.storeError(w, err, "store photo")
		return
	}

	st, err := h.storyStore.Create(ctx, req.FamilyID, req.PersonID, in, stored, ac.UserID)
	if err != nil {
		h.photos.Remove(ctx, uploadedKey(stored))
		h.storeError(w, err, "create story")
		return
	}
	h.broadcast(st.FamilyID, "story", "created", st.ID)
	writeSuccess(w, http.StatusCreated, envelope{"story_id": st.ID, "story": st})
}

func (h *StoryHandler) load(w http.ResponseWriter, r *http.Request, perm access.Permission) (*model.Story, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}
	st, err := h.storyStore.GetByID(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "load story")
		return nil, false
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "story not found")
		return nil, false
	}
	if !h.authorizeResource(w, r, st.FamilyID, perm, "story not found") {
		return nil, false
	}
	return st, true
}

func (h *StoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r, access.View)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"story": st})
}

func (h *StoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r, access.Edit)
	if !ok {
		return
	}

	var req storyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := inputFromStory(existing)
	req.apply(&in)
	if msg := validateStory(&in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	change, err := req.update(ctx, h.photos, existing.FamilyID, photo.KindStories, in.Year)
	if err != nil {
		h.storeError(w, err, "store photo")
		return
	}

	st, oldKey, err := h.storyStore.Update(ctx, existing.ID, in, change, auth.UserID(ctx))
	if err != nil {
		h.photos.Remove(ctx, uploadedKey(change.Replace))
		h.storeError(w, err, "update story")
		return
	}
	h.photos.Remove(ctx, oldKey)
	h.broadcast(st.FamilyID, "story", "updated", st.ID)
	writeSuccess(w, http.StatusOK, envelope{"story": st})
}

func (h *StoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r, access.Edit)
	if !ok {
		return
	}

	key, err := h.storyStore.Delete(r.Context(), st.ID)
	if err != nil {
		h.storeError(w, err, "delete story")
		return
	}
	h.photos.Remove(r.Context(), key)
	h.broadcast(st.FamilyID, "story", "deleted", st.ID)
	writeSuccess(w, http.StatusOK, nil)
}

func (h *StoryHandler) ToggleFeatured(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r, access.Edit)
	if !ok {
		return
	}

	updated, err := h.storyStore.ToggleFeatured(r.Context(), st.ID, auth.UserID(r.Context()))
	if err != nil {
		h.storeError(w, err, "feature story")
		return
	}
	h.broadcast(st.FamilyID, "story", "updated", st.ID)
	writeSuccess(w, http.StatusOK, envelope{"story": updated})
}

// List returns the family's stories, optionally narrowed by person_id and
// year query parameters.
func (h *StoryHandler) List(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.View) {
		return
	}

	var filter model.StoryFilter
	q := r.URL.Query()
	if v := q.Get("person_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid person_id")
			return
		}
		filter.PersonID = id
	}
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		filter.Year = year
	}

	stories, err := h.storyStore.ListByFamily(r.Context(), familyID, filter)
	if err != nil {
		h.storeError(w, err, "list stories")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"stories": stories})
}

// Years reports how many stories fall in each year.
func (h *StoryHandler) Years(w http.ResponseWriter, r *http.Request) {
	familyID, ok := pathID(w, r, "family_id")
	if !ok || !h.authorize(w, r, familyID, access.View) {
		return
	}

	counts, err := h.storyStore.YearCounts(r.Context(), familyID)
	if err != nil {
		h.storeError(w, err, "count story years")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"years": counts})
}

func (h *StoryHandler) Photo(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r, access.View)
	if !ok {
		return
	}
	stored, err := h.storyStore.GetPhoto(r.Context(), st.ID)
	if err != nil {
		h.storeError(w, err, "load photo")
		return
	}
	servePhoto(w, r, h.photos, stored, &h.base)
}
