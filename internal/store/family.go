package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/heirloom/internal/database"
	"github.com/dukerupert/heirloom/internal/model"
)

type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

func scanFamily(s scanner) (*model.Family, error) {
	var f model.Family
	err := s.Scan(&f.ID, &f.Name, &f.AccessCode, &f.OwnerID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanMembership(s scanner, extra ...any) (*model.Membership, error) {
	var (
		m         model.Membership
		invitedBy sql.NullInt64
		invitedAt sql.NullTime
	)
	dest := []any{&m.ID, &m.FamilyID, &m.UserID, &m.Role, &invitedBy, &invitedAt, &m.JoinedAt, &m.Active, &m.UpdatedAt}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	m.InvitedBy = int64Ptr(invitedBy)
	m.InvitedAt = timePtr(invitedAt)
	return &m, nil
}

const familyCols = `id, name, access_code, owner_id, created_at, updated_at`
const membershipCols = `id, family_id, user_id, role, invited_by, invited_at, joined_at, active, updated_at`

// newAccessCode returns an 8-character upper-case join code.
func newAccessCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// Create inserts a family, its owner membership and default tree settings
// in a single transaction.
func (s *FamilyStore) Create(ctx context.Context, name string, ownerID int64) (*model.Family, error) {
	var familyID int64
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := insertWithAccessCode(ctx, tx,
			`INSERT INTO families (name, access_code, owner_id) VALUES (?, ?, ?)`,
			name, ownerID,
		)
		if err != nil {
			return fmt.Errorf("insert family: %w", err)
		}
		familyID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memberships (family_id, user_id, role) VALUES (?, ?, ?)`,
			familyID, ownerID, model.RoleOwner,
		); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tree_settings (family_id) VALUES (?)`, familyID,
		); err != nil {
			return fmt.Errorf("seed tree settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, familyID)
}

// insertWithAccessCode runs an insert whose first placeholder is a fresh
// access code, retrying on the rare code collision.
func insertWithAccessCode(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	var lastErr error
	for range 5 {
		result, err := q.ExecContext(ctx, query, append([]any{args[0], newAccessCode()}, args[1:]...)...)
		if err == nil {
			return result, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *FamilyStore) GetByID(ctx context.Context, id int64) (*model.Family, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

func (s *FamilyStore) GetByAccessCode(ctx context.Context, code string) (*model.Family, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	row := s.db.QueryRowContext(ctx, `SELECT `+familyCols+` FROM families WHERE access_code = ?`, code)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family by access code: %w", err)
	}
	return f, nil
}

func (s *FamilyStore) UpdateName(ctx context.Context, id int64, name string) (*model.Family, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE families SET name = ?, updated_at = ? WHERE id = ?`,
		name, nowUTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update family: %w", err)
	}
	return s.GetByID(ctx, id)
}

// RegenerateAccessCode replaces the family's join code. The old code stops
// working immediately.
func (s *FamilyStore) RegenerateAccessCode(ctx context.Context, id int64) (*model.Family, error) {
	result, err := insertWithAccessCode(ctx, s.db,
		`UPDATE families SET updated_at = ?, access_code = ? WHERE id = ?`,
		nowUTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("regenerate access code: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// Delete removes a family and everything scoped to it. It returns the
// object-store keys of any photos that were held outside the database so
// the caller can remove them once the transaction has committed.
func (s *FamilyStore) Delete(ctx context.Context, id int64) ([]string, error) {
	var keys []string
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		keys, err = collectPhotoKeys(ctx, tx,
			`SELECT photo_key FROM people WHERE family_id = ? AND photo_key != ''
			 UNION ALL
			 SELECT photo_key FROM stories WHERE family_id = ? AND photo_key != ''`,
			id, id,
		)
		if err != nil {
			return err
		}
		for _, table := range []string{
			"tree_settings", "stories", "relationships", "people", "invitations", "memberships",
		} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE family_id = ?`, id); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM families WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete family: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func collectPhotoKeys(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list photo keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan photo key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListForUser returns the families the user actively belongs to, with the
// user's role in each.
func (s *FamilyStore) ListForUser(ctx context.Context, userID int64) ([]model.FamilyWithRole, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.name, f.access_code, f.owner_id, f.created_at, f.updated_at, m.role
		 FROM families f
		 JOIN memberships m ON f.id = m.family_id
		 WHERE m.user_id = ? AND m.active = 1
		 ORDER BY f.name ASC, f.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list families for user: %w", err)
	}
	defer rows.Close()

	families := []model.FamilyWithRole{}
	for rows.Next() {
		var fr model.FamilyWithRole
		if err := rows.Scan(&fr.ID, &fr.Name, &fr.AccessCode, &fr.OwnerID, &fr.CreatedAt, &fr.UpdatedAt, &fr.Role); err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		families = append(families, fr)
	}
	return families, rows.Err()
}

// GetMembership returns the membership row whether or not it is active.
func (s *FamilyStore) GetMembership(ctx context.Context, familyID, userID int64) (*model.Membership, error) {
	return getMembership(ctx, s.db, familyID, userID)
}

func getMembership(ctx context.Context, q querier, familyID, userID int64) (*model.Membership, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+membershipCols+` FROM memberships WHERE family_id = ? AND user_id = ?`,
		familyID, userID,
	)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (s *FamilyStore) GetActiveMembership(ctx context.Context, familyID, userID int64) (*model.Membership, error) {
	m, err := s.GetMembership(ctx, familyID, userID)
	if err != nil || m == nil || !m.Active {
		return nil, err
	}
	return m, nil
}

// ListMembers returns the family's active members in join order.
func (s *FamilyStore) ListMembers(ctx context.Context, familyID int64) ([]model.MemberProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.family_id, m.user_id, m.role, m.invited_by, m.invited_at, m.joined_at, m.active, m.updated_at,
		        u.email, u.name
		 FROM memberships m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.family_id = ? AND m.active = 1
		 ORDER BY m.joined_at ASC, m.id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []model.MemberProfile{}
	for rows.Next() {
		var p model.MemberProfile
		m, err := scanMembership(rows, &p.Email, &p.Name)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		p.Membership = *m
		members = append(members, p)
	}
	return members, rows.Err()
}

// JoinByCode adds the user to the family holding code as a viewer. A
// previously deactivated membership is reactivated as a viewer.
func (s *FamilyStore) JoinByCode(ctx context.Context, code string, userID int64) (*model.Family, error) {
	f, err := s.GetByAccessCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrNotFound
	}
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return joinFamily(ctx, tx, f.ID, userID, model.RoleViewer, nil)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// joinFamily creates or reactivates a membership. It fails with
// ErrAlreadyMember if the user is already active in the family.
func joinFamily(ctx context.Context, q querier, familyID, userID int64, role model.Role, invitedBy *int64) error {
	existing, err := getMembership(ctx, q, familyID, userID)
	if err != nil {
		return err
	}
	now := nowUTC()
	var invitedAt sql.NullTime
	if invitedBy != nil {
		invitedAt = sql.NullTime{Time: now, Valid: true}
	}
	if existing != nil {
		if existing.Active {
			return ErrAlreadyMember
		}
		_, err := q.ExecContext(ctx,
			`UPDATE memberships
			 SET role = ?, active = 1, invited_by = ?, invited_at = ?, joined_at = ?, updated_at = ?
			 WHERE id = ?`,
			role, nullInt64(invitedBy), invitedAt, now, now, existing.ID,
		)
		if err != nil {
			return fmt.Errorf("reactivate membership: %w", err)
		}
		return nil
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO memberships (family_id, user_id, role, invited_by, invited_at, joined_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		familyID, userID, role, nullInt64(invitedBy), invitedAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// UpdateMemberRole changes an active member's role. The owner's role is
// fixed and no one can be promoted to owner.
func (s *FamilyStore) UpdateMemberRole(ctx context.Context, familyID, userID int64, role model.Role) (*model.Membership, error) {
	if !role.Assignable() {
		return nil, ErrOwnerImmutable
	}
	m, err := s.GetActiveMembership(ctx, familyID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	if m.Role == model.RoleOwner {
		return nil, ErrOwnerImmutable
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE memberships SET role = ?, updated_at = ? WHERE id = ?`,
		role, nowUTC(), m.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update member role: %w", err)
	}
	return s.GetMembership(ctx, familyID, userID)
}

// DeactivateMember soft-removes a member and rotates the family's access
// code so the removed user cannot rejoin with the code they already hold.
// The row is kept so the user can be re-admitted later. It returns the new
// access code.
func (s *FamilyStore) DeactivateMember(ctx context.Context, familyID, userID int64) (string, error) {
	m, err := s.GetActiveMembership(ctx, familyID, userID)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", ErrNotFound
	}
	if m.Role == model.RoleOwner {
		return "", ErrOwnerImmutable
	}
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		now := nowUTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE memberships SET active = 0, updated_at = ? WHERE id = ?`,
			now, m.ID,
		); err != nil {
			return err
		}
		_, err := insertWithAccessCode(ctx, tx,
			`UPDATE families SET updated_at = ?, access_code = ? WHERE id = ?`,
			now, familyID,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("deactivate member: %w", err)
	}
	f, err := s.GetByID(ctx, familyID)
	if err != nil {
		return "", err
	}
	if f == nil {
		return "", ErrNotFound
	}
	return f.AccessCode, nil
}
