package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/heirloom/internal/database"
	"github.com/dukerupert/heirloom/internal/model"
)

// PhotoUpdate describes what an update does to a record's photo. The zero
// value keeps the current photo.
type PhotoUpdate struct {
	Replace *model.StoredPhoto
	Remove  bool
}

func (u PhotoUpdate) changes() bool {
	return u.Replace != nil || u.Remove
}

type PersonStore struct {
	db *sql.DB
}

func NewPersonStore(db *sql.DB) *PersonStore {
	return &PersonStore{db: db}
}

func scanPerson(s scanner) (*model.Person, error) {
	var (
		p          model.Person
		generation sql.NullInt64
		createdBy  sql.NullInt64
		updatedBy  sql.NullInt64
	)
	err := s.Scan(&p.ID, &p.FamilyID, &p.FirstName, &p.MiddleName, &p.LastName, &p.MaidenName,
		&p.Gender, &p.BirthDate, &p.DeathDate, &p.BirthPlace, &p.DeathPlace, &p.IsLiving, &p.Bio,
		&p.PhotoFilename, &p.HasPhoto, &p.PositionX, &p.PositionY, &generation,
		&createdBy, &updatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.GenerationLevel = intPtr(generation)
	p.CreatedBy = int64Ptr(createdBy)
	p.UpdatedBy = int64Ptr(updatedBy)
	return &p, nil
}

const personCols = `id, family_id, first_name, middle_name, last_name, maiden_name,
	gender, birth_date, death_date, birth_place, death_place, is_living, bio,
	photo_filename, (COALESCE(length(photo_data), 0) > 0 OR photo_key != ''), position_x, position_y, generation_level,
	created_by, updated_by, created_at, updated_at`

func (s *PersonStore) Create(ctx context.Context, familyID int64, in model.PersonInput, photo *model.StoredPhoto, userID int64) (*model.Person, error) {
	var filename, key string
	var data []byte
	if photo != nil {
		filename, data, key = photo.Filename, photo.Data, photo.Key
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO people (family_id, first_name, middle_name, last_name, maiden_name,
			gender, birth_date, death_date, birth_place, death_place, is_living, bio,
			photo_filename, photo_data, photo_key, position_x, position_y, created_by, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		familyID, in.FirstName, in.MiddleName, in.LastName, in.MaidenName,
		in.Gender, in.BirthDate, in.DeathDate, in.BirthPlace, in.DeathPlace, in.IsLiving, in.Bio,
		filename, blob(data), key, in.PositionX, in.PositionY, nullID(userID), nullID(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *PersonStore) GetByID(ctx context.Context, id int64) (*model.Person, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+personCols+` FROM people WHERE id = ?`, id)
	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *PersonStore) ListByFamily(ctx context.Context, familyID int64) ([]model.Person, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+personCols+` FROM people WHERE family_id = ? ORDER BY id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	people := []model.Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, *p)
	}
	return people, rows.Err()
}

// Update overwrites the editable fields of a person and applies the photo
// change. It returns the object key of a photo that was replaced or
// removed, if any, for the caller to clean up after the write.
func (s *PersonStore) Update(ctx context.Context, id int64, in model.PersonInput, photo PhotoUpdate, userID int64) (*model.Person, string, error) {
	var oldKey string
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT photo_key FROM people WHERE id = ?`, id).Scan(&oldKey)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get person photo key: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE people SET first_name = ?, middle_name = ?, last_name = ?, maiden_name = ?,
				gender = ?, birth_date = ?, death_date = ?, birth_place = ?, death_place = ?,
				is_living = ?, bio = ?, position_x = ?, position_y = ?, updated_by = ?, updated_at = ?
			 WHERE id = ?`,
			in.FirstName, in.MiddleName, in.LastName, in.MaidenName,
			in.Gender, in.BirthDate, in.DeathDate, in.BirthPlace, in.DeathPlace,
			in.IsLiving, in.Bio, in.PositionX, in.PositionY, nullID(userID), nowUTC(), id,
		)
		if err != nil {
			return fmt.Errorf("update person: %w", err)
		}
		if !photo.changes() {
			oldKey = ""
			return nil
		}
		return setPhoto(ctx, tx, "people", id, photo)
	})
	if err != nil {
		return nil, "", err
	}
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return p, oldKey, nil
}

// setPhoto replaces or clears the photo columns of a row in table.
func setPhoto(ctx context.Context, q querier, table string, id int64, photo PhotoUpdate) error {
	var filename, key string
	var data []byte
	if photo.Replace != nil {
		filename, data, key = photo.Replace.Filename, photo.Replace.Data, photo.Replace.Key
	}
	_, err := q.ExecContext(ctx,
		`UPDATE `+table+` SET photo_filename = ?, photo_data = ?, photo_key = ? WHERE id = ?`,
		filename, blob(data), key, id,
	)
	if err != nil {
		return fmt.Errorf("set %s photo: %w", table, err)
	}
	return nil
}

// Delete removes a person together with their stories and every
// relationship that references them, clears tree settings that point at
// them, and recomputes the family's generations, all in one transaction.
func (s *PersonStore) Delete(ctx context.Context, id int64) (*model.DeleteResult, error) {
	res := &model.DeleteResult{}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var familyID int64
		err := tx.QueryRowContext(ctx, `SELECT family_id FROM people WHERE id = ?`, id).Scan(&familyID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get person family: %w", err)
		}

		res.PhotoKeys, err = collectPhotoKeys(ctx, tx,
			`SELECT photo_key FROM people WHERE id = ? AND photo_key != ''
			 UNION ALL
			 SELECT photo_key FROM stories WHERE person_id = ? AND photo_key != ''`,
			id, id,
		)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM stories WHERE person_id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete person stories: %w", err)
		}
		if res.StoriesDeleted, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		result, err = tx.ExecContext(ctx,
			`DELETE FROM relationships WHERE person1_id = ? OR person2_id = ?`, id, id,
		)
		if err != nil {
			return fmt.Errorf("delete person relationships: %w", err)
		}
		if res.RelationshipsDeleted, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE tree_settings
			 SET root_person_id = CASE WHEN root_person_id = ? THEN NULL ELSE root_person_id END,
			     secondary_root_person_id = CASE WHEN secondary_root_person_id = ? THEN NULL ELSE secondary_root_person_id END
			 WHERE family_id = ?`,
			id, id, familyID,
		); err != nil {
			return fmt.Errorf("clear tree roots: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM people WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete person: %w", err)
		}
		return recomputeGenerations(ctx, tx, familyID)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetPhoto returns the stored photo of a person, or nil if there is none.
func (s *PersonStore) GetPhoto(ctx context.Context, id int64) (*model.StoredPhoto, error) {
	return getPhoto(ctx, s.db, "people", id)
}

func getPhoto(ctx context.Context, q querier, table string, id int64) (*model.StoredPhoto, error) {
	var p model.StoredPhoto
	err := q.QueryRowContext(ctx,
		`SELECT photo_filename, photo_data, photo_key FROM `+table+` WHERE id = ?`, id,
	).Scan(&p.Filename, &p.Data, &p.Key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s photo: %w", table, err)
	}
	if len(p.Data) == 0 && p.Key == "" {
		return nil, nil
	}
	return &p, nil
}
