package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvitationInvalid   = errors.New("invalid or expired invitation")
	ErrAlreadyMember       = errors.New("already a member of this family")
	ErrInvalidRelationship = errors.New("invalid relationship")
	ErrInvalidReference    = errors.New("person does not belong to this family")
	ErrOwnerImmutable      = errors.New("the family owner cannot be changed")
	ErrEmailTaken          = errors.New("email already registered")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface{ Scan(...any) error }

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// nullID binds a zero id as NULL.
func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// blob binds an empty byte slice as NULL.
func blob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// personInFamily reports whether personID exists and belongs to familyID.
func personInFamily(ctx context.Context, q querier, familyID, personID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM people WHERE id = ? AND family_id = ?`,
		personID, familyID,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
