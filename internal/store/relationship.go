package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/heirloom/internal/database"
	"github.com/dukerupert/heirloom/internal/genealogy"
	"github.com/dukerupert/heirloom/internal/model"
)

type RelationshipStore struct {
	db *sql.DB
}

func NewRelationshipStore(db *sql.DB) *RelationshipStore {
	return &RelationshipStore{db: db}
}

func scanRelationship(s scanner) (*model.Relationship, error) {
	var (
		r         model.Relationship
		createdBy sql.NullInt64
	)
	err := s.Scan(&r.ID, &r.FamilyID, &r.Person1ID, &r.Person2ID, &r.Type,
		&r.MarriageDate, &r.DivorceDate, &r.Active, &createdBy, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.CreatedBy = int64Ptr(createdBy)
	return &r, nil
}

const relationshipCols = `id, family_id, person1_id, person2_id, relationship_type,
	marriage_date, divorce_date, active, created_by, created_at`

// Add records the edge person1 -> person2 and its reciprocal, then
// recomputes the family's generation levels, in one transaction. Either
// direction that already exists with the exact same tuple is reused rather
// than duplicated. created reports whether the primary edge is new.
func (s *RelationshipStore) Add(ctx context.Context, familyID, person1ID, person2ID int64, typ model.RelationshipType, meta model.RelationshipMeta) (rel *model.Relationship, created bool, err error) {
	if person1ID == person2ID {
		return nil, false, fmt.Errorf("%w: a person cannot be related to themselves", ErrInvalidRelationship)
	}
	reciprocal, ok := genealogy.Reciprocal(typ)
	if !ok {
		return nil, false, fmt.Errorf("%w: unknown type %q", ErrInvalidRelationship, typ)
	}

	var id int64
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, pid := range []int64{person1ID, person2ID} {
			ok, err := personInFamily(ctx, tx, familyID, pid)
			if err != nil {
				return fmt.Errorf("check person: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: person %d is not in this family", ErrInvalidRelationship, pid)
			}
		}

		var err error
		id, created, err = insertEdge(ctx, tx, familyID, person1ID, person2ID, typ, meta)
		if err != nil || !created {
			return err
		}
		if _, _, err := insertEdge(ctx, tx, familyID, person2ID, person1ID, reciprocal, meta); err != nil {
			return err
		}
		return recomputeGenerations(ctx, tx, familyID)
	})
	if err != nil {
		return nil, false, err
	}
	rel, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return rel, created, nil
}

// insertEdge inserts one directed edge unless an identical tuple already
// exists, in which case the existing id is returned.
func insertEdge(ctx context.Context, q querier, familyID, person1ID, person2ID int64, typ model.RelationshipType, meta model.RelationshipMeta) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT id FROM relationships
		 WHERE family_id = ? AND person1_id = ? AND person2_id = ? AND relationship_type = ?
		 ORDER BY id LIMIT 1`,
		familyID, person1ID, person2ID, typ,
	).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("find relationship: %w", err)
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO relationships (family_id, person1_id, person2_id, relationship_type,
			marriage_date, divorce_date, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		familyID, person1ID, person2ID, typ, meta.MarriageDate, meta.DivorceDate, nullInt64(meta.CreatedBy),
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert relationship: %w", err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}
	return id, true, nil
}

func (s *RelationshipStore) GetByID(ctx context.Context, id int64) (*model.Relationship, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+relationshipCols+` FROM relationships WHERE id = ?`, id)
	r, err := scanRelationship(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get relationship: %w", err)
	}
	return r, nil
}

func (s *RelationshipStore) ListByFamily(ctx context.Context, familyID int64) ([]model.Relationship, error) {
	return listRelationships(ctx, s.db, familyID)
}

func listRelationships(ctx context.Context, q querier, familyID int64) ([]model.Relationship, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+relationshipCols+` FROM relationships WHERE family_id = ? ORDER BY id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	rels := []model.Relationship{}
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, *r)
	}
	return rels, rows.Err()
}

// Delete removes an edge and its exact reciprocal, then recomputes the
// family's generation levels. It returns the number of rows removed.
func (s *RelationshipStore) Delete(ctx context.Context, id int64) (int64, error) {
	var deleted int64
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		r, err := scanRelationship(tx.QueryRowContext(ctx,
			`SELECT `+relationshipCols+` FROM relationships WHERE id = ?`, id,
		))
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get relationship: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete relationship: %w", err)
		}
		deleted, _ = result.RowsAffected()

		if reciprocal, ok := genealogy.Reciprocal(r.Type); ok {
			result, err := tx.ExecContext(ctx,
				`DELETE FROM relationships
				 WHERE family_id = ? AND person1_id = ? AND person2_id = ? AND relationship_type = ?`,
				r.FamilyID, r.Person2ID, r.Person1ID, reciprocal,
			)
			if err != nil {
				return fmt.Errorf("delete reciprocal relationship: %w", err)
			}
			n, _ := result.RowsAffected()
			deleted += n
		}
		return recomputeGenerations(ctx, tx, r.FamilyID)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// RecomputeGenerations reassigns generation levels for the whole family.
func (s *RelationshipStore) RecomputeGenerations(ctx context.Context, familyID int64) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return recomputeGenerations(ctx, tx, familyID)
	})
}

// recomputeGenerations writes the levels computed from the family's
// relationships. People the traversal does not reach keep their level.
func recomputeGenerations(ctx context.Context, q querier, familyID int64) error {
	rels, err := listRelationships(ctx, q, familyID)
	if err != nil {
		return err
	}
	for personID, level := range genealogy.ComputeGenerations(rels) {
		if _, err := q.ExecContext(ctx,
			`UPDATE people SET generation_level = ? WHERE id = ? AND family_id = ?`,
			level, personID, familyID,
		); err != nil {
			return fmt.Errorf("update generation level: %w", err)
		}
	}
	return nil
}
