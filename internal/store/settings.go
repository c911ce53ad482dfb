package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/heirloom/internal/model"
)

// Tree layouts accepted by the settings store.
const (
	LayoutVertical   = "vertical"
	LayoutHorizontal = "horizontal"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// DefaultTreeSettings returns the settings a new family starts with.
func DefaultTreeSettings(familyID int64) model.TreeSettings {
	return model.TreeSettings{
		FamilyID:    familyID,
		Layout:      LayoutVertical,
		ColorScheme: "classic",
		ShowDates:   true,
		ShowPhotos:  true,
	}
}

const treeSettingsCols = `family_id, layout, color_scheme, show_dates, show_photos, show_living_only,
	root_person_id, secondary_root_person_id, updated_at`

func scanTreeSettings(s scanner) (*model.TreeSettings, error) {
	var (
		ts        model.TreeSettings
		root      sql.NullInt64
		secondary sql.NullInt64
	)
	err := s.Scan(&ts.FamilyID, &ts.Layout, &ts.ColorScheme, &ts.ShowDates, &ts.ShowPhotos,
		&ts.ShowLivingOnly, &root, &secondary, &ts.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ts.RootPersonID = int64Ptr(root)
	ts.SecondaryRootPersonID = int64Ptr(secondary)
	return &ts, nil
}

// Get returns the family's tree settings, falling back to the defaults if
// the row is missing.
func (s *SettingsStore) Get(ctx context.Context, familyID int64) (*model.TreeSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+treeSettingsCols+` FROM tree_settings WHERE family_id = ?`, familyID,
	)
	ts, err := scanTreeSettings(row)
	if err == sql.ErrNoRows {
		d := DefaultTreeSettings(familyID)
		return &d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tree settings: %w", err)
	}
	return ts, nil
}

// Update replaces the family's tree settings. Root person references must
// point at people in the same family.
func (s *SettingsStore) Update(ctx context.Context, ts model.TreeSettings) (*model.TreeSettings, error) {
	for _, ref := range []*int64{ts.RootPersonID, ts.SecondaryRootPersonID} {
		if ref == nil {
			continue
		}
		ok, err := personInFamily(ctx, s.db, ts.FamilyID, *ref)
		if err != nil {
			return nil, fmt.Errorf("check root person: %w", err)
		}
		if !ok {
			return nil, ErrInvalidReference
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tree_settings (family_id, layout, color_scheme, show_dates, show_photos,
			show_living_only, root_person_id, secondary_root_person_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(family_id) DO UPDATE SET
			layout = excluded.layout,
			color_scheme = excluded.color_scheme,
			show_dates = excluded.show_dates,
			show_photos = excluded.show_photos,
			show_living_only = excluded.show_living_only,
			root_person_id = excluded.root_person_id,
			secondary_root_person_id = excluded.secondary_root_person_id,
			updated_at = excluded.updated_at`,
		ts.FamilyID, ts.Layout, ts.ColorScheme, ts.ShowDates, ts.ShowPhotos, ts.ShowLivingOnly,
		nullInt64(ts.RootPersonID), nullInt64(ts.SecondaryRootPersonID), nowUTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("update tree settings: %w", err)
	}
	return s.Get(ctx, ts.FamilyID)
}
