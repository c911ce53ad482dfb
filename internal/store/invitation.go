package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/heirloom/internal/database"
	"github.com/dukerupert/heirloom/internal/model"
)

// InvitationTTL is how long an invitation can be accepted after it is sent.
const InvitationTTL = 7 * 24 * time.Hour

// invitationRetention is how long expired, unconsumed invitations are kept
// before the cleanup job purges them.
const invitationRetention = 30 * 24 * time.Hour

type InvitationStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db, now: nowUTC}
}

func scanInvitation(s scanner) (*model.Invitation, error) {
	var (
		inv        model.Invitation
		consumedAt sql.NullTime
		consumedBy sql.NullInt64
	)
	err := s.Scan(&inv.ID, &inv.FamilyID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.Token,
		&inv.ExpiresAt, &consumedAt, &consumedBy, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	inv.ConsumedAt = timePtr(consumedAt)
	inv.ConsumedBy = int64Ptr(consumedBy)
	return &inv, nil
}

const invitationCols = `id, family_id, email, role, invited_by, token, expires_at, consumed_at, consumed_by, created_at`

// Create records a new invitation with a fresh token expiring after
// InvitationTTL.
func (s *InvitationStore) Create(ctx context.Context, familyID int64, email string, role model.Role, invitedBy int64) (*model.Invitation, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO invitations (family_id, email, role, invited_by, token, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		familyID, normalizeEmail(email), role, invitedBy, token, now.Add(InvitationTTL), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+invitationCols+` FROM invitations WHERE id = ?`, id)
	return scanInvitation(row)
}

func (s *InvitationStore) GetByToken(ctx context.Context, token string) (*model.Invitation, error) {
	return getInvitationByToken(ctx, s.db, token)
}

func getInvitationByToken(ctx context.Context, q querier, token string) (*model.Invitation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+invitationCols+` FROM invitations WHERE token = ?`, token)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

// ListPending returns the family's unconsumed, unexpired invitations,
// newest first.
func (s *InvitationStore) ListPending(ctx context.Context, familyID int64) ([]model.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+invitationCols+` FROM invitations
		 WHERE family_id = ? AND consumed_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC, id DESC`,
		familyID, s.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []model.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}

// Accept consumes the invitation for userID and grants its role. The token
// is claimed with a conditional update so that two concurrent accepts
// cannot both succeed. An already-active member gets ErrAlreadyMember and
// the invitation stays unconsumed.
func (s *InvitationStore) Accept(ctx context.Context, token string, userID int64) (*model.Invitation, error) {
	var inv *model.Invitation
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		inv, err = getInvitationByToken(ctx, tx, token)
		if err != nil {
			return err
		}
		now := s.now()
		if inv == nil || !inv.IsPending(now) {
			return ErrInvitationInvalid
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE invitations SET consumed_at = ?, consumed_by = ?
			 WHERE id = ? AND consumed_at IS NULL`,
			now, userID, inv.ID,
		)
		if err != nil {
			return fmt.Errorf("claim invitation: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrInvitationInvalid
		}
		inv.ConsumedAt = &now
		inv.ConsumedBy = &userID

		invitedBy := inv.InvitedBy
		return joinFamily(ctx, tx, inv.FamilyID, userID, inv.Role, &invitedBy)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// DeleteExpired purges unconsumed invitations that expired more than the
// retention window ago.
func (s *InvitationStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM invitations WHERE consumed_at IS NULL AND expires_at <= ?`,
		s.now().Add(-invitationRetention),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired invitations: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
