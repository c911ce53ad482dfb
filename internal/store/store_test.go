package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/heirloom/internal/database"
	"github.com/dukerupert/heirloom/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, email, name string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), email, name, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

// createTestFamily creates an owner and a family owned by them.
func createTestFamily(t *testing.T, db *sql.DB) (*model.User, *model.Family) {
	t.Helper()
	owner := createTestUser(t, db, "owner@example.com", "Olive Owner")
	f, err := NewFamilyStore(db).Create(context.Background(), "Smiths", owner.ID)
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	return owner, f
}

func createTestPerson(t *testing.T, db *sql.DB, familyID int64, firstName string) *model.Person {
	t.Helper()
	p, err := NewPersonStore(db).Create(context.Background(), familyID,
		model.PersonInput{FirstName: firstName, IsLiving: true}, nil, 0)
	if err != nil {
		t.Fatalf("create person %s: %v", firstName, err)
	}
	return p
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}
