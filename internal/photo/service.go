package photo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dukerupert/heirloom/internal/model"
)

// Kinds of records a photo can belong to. They name the object key prefix.
const (
	KindPeople  = "people"
	KindStories = "stories"
)

// Backend stores photo bytes outside the database.
type Backend interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Service prepares uploaded photos for storage and reads them back. With a
// nil backend the bytes stay in the database row.
type Service struct {
	backend  Backend
	maxBytes int64
	logger   *slog.Logger
}

func NewService(backend Backend, maxBytes int64, logger *slog.Logger) *Service {
	return &Service{
		backend:  backend,
		maxBytes: maxBytes,
		logger:   logger.With("component", "photo"),
	}
}

// Prepare decodes an uploaded payload and, when a backend is configured,
// uploads it. A payload that cannot be decoded or is too large is logged
// and yields nil so the record is saved without a photo. Only a backend
// failure is returned as an error.
func (s *Service) Prepare(ctx context.Context, familyID int64, kind, filename, payload string) (*model.StoredPhoto, error) {
	data, err := Decode(payload, s.maxBytes)
	if err != nil {
		if !errors.Is(err, ErrEmpty) {
			s.logger.Warn("dropping photo", "family_id", familyID, "kind", kind, "error", err)
		}
		return nil, nil
	}

	if s.backend == nil {
		return &model.StoredPhoto{Filename: filename, Data: data}, nil
	}
	key := fmt.Sprintf("families/%d/%s/%s/%s", familyID, kind, uuid.NewString(), filename)
	if err := s.backend.Put(ctx, key, ContentType(filename), data); err != nil {
		return nil, err
	}
	return &model.StoredPhoto{Filename: filename, Key: key}, nil
}

// Load returns the bytes of a stored photo.
func (s *Service) Load(ctx context.Context, p *model.StoredPhoto) ([]byte, error) {
	if p.Key == "" {
		return p.Data, nil
	}
	if s.backend == nil {
		return nil, fmt.Errorf("photo %s is in object storage but no backend is configured", p.Key)
	}
	return s.backend.Get(ctx, p.Key)
}

// Remove deletes objects from the backend. Failures are logged and
// otherwise ignored; the database no longer references the keys.
func (s *Service) Remove(ctx context.Context, keys ...string) {
	if s.backend == nil {
		return
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.Error("failed to delete photo object", "key", key, "error", err)
		}
	}
}
