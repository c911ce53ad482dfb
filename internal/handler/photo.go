package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dukerupert/heirloom/internal/model"
	"github.com/dukerupert/heirloom/internal/photo"
	"github.com/dukerupert/heirloom/internal/store"
)

// photoFields are the photo-related members of person and story requests.
// A nil Photo leaves the current photo alone.
type photoFields struct {
	Photo         *string `json:"photo"`
	PhotoFilename string  `json:"photo_filename"`
	RemovePhoto   bool    `json:"remove_photo"`
}

// prepare decodes and stores an uploaded photo. It returns nil when there is
// nothing usable to store.
func (f photoFields) prepare(ctx context.Context, photos *photo.Service, familyID int64, kind string, year *int) (*model.StoredPhoto, error) {
	if f.Photo == nil || *f.Photo == "" {
		return nil, nil
	}
	return photos.Prepare(ctx, familyID, kind, photo.Filename(f.PhotoFilename, year), *f.Photo)
}

// update turns the request into a store.PhotoUpdate. Removal wins over a
// new upload sent in the same request.
func (f photoFields) update(ctx context.Context, photos *photo.Service, familyID int64, kind string, year *int) (store.PhotoUpdate, error) {
	if f.RemovePhoto {
		return store.PhotoUpdate{Remove: true}, nil
	}
	stored, err := f.prepare(ctx, photos, familyID, kind, year)
	if err != nil {
		return store.PhotoUpdate{}, err
	}
	return store.PhotoUpdate{Replace: stored}, nil
}

// uploadedKey is the object key written by this request, if any, so it can
// be removed again when the database write fails.
func uploadedKey(p *model.StoredPhoto) string {
	if p == nil {
		return ""
	}
	return p.Key
}

func servePhoto(w http.ResponseWriter, r *http.Request, photos *photo.Service, stored *model.StoredPhoto, b *base) {
	if stored == nil {
		writeError(w, http.StatusNotFound, "no photo")
		return
	}
	data, err := photos.Load(r.Context(), stored)
	if err != nil {
		b.logger.Error("load photo", "key", stored.Key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load photo")
		return
	}
	w.Header().Set("Content-Type", photo.ContentType(stored.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
