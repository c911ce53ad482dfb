package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/heirloom/internal/model"
)

func TestInvitationCreate(t *testing.T) {
	db := setupTestDB(t)
	owner, f := createTestFamily(t, db)
	is := NewInvitationStore(db)

	inv, err := is.Create(context.Background(), f.ID, "Bob@Example.com", model.RoleEditor, owner.ID)
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if len(inv.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(inv.Token))
	}
	if inv.Email != "bob@example.com" {
		t.Errorf("email = %q", inv.Email)
	}
	ttl := inv.ExpiresAt.Sub(inv.CreatedAt)
	if ttl < InvitationTTL-time.Second || ttl > InvitationTTL+time.Second {
		t.Errorf("expiry window = %v, want %v", ttl, InvitationTTL)
	}
	if inv.IsConsumed() {
		t.Error("new invitation should be pending")
	}
}

func TestInvitationAcceptOnce(t *testing.T) {
	db := setupTestDB(t)
	owner, f := createTestFamily(t, db)
	is := NewInvitationStore(db)
	ctx := context.Background()
	bob := createTestUser(t, db, "bob@example.com", "Bob")

	inv, _ := is.Create(ctx, f.ID, "bob@example.com", model.RoleEditor, owner.ID)

	accepted, err := is.Accept(ctx, inv.Token, bob.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.FamilyID != f.ID || !accepted.IsConsumed() {
		t.Errorf("accepted = %+v", accepted)
	}

	m, _ := NewFamilyStore(db).GetActiveMembership(ctx, f.ID, bob.ID)
	if m == nil || m.Role != model.RoleEditor {
		t.Fatalf("membership = %+v, want editor", m)
	}
	if m.InvitedBy == nil || *m.InvitedBy != owner.ID {
		t.Errorf("invited_by = %v, want %d", m.InvitedBy, owner.ID)
	}

	carol := createTestUser(t, db, "carol@example.com", "Carol")
	if _, err := is.Accept(ctx, inv.Token, carol.ID); !errors.Is(err, ErrInvitationInvalid) {
		t.Errorf("second accept err = %v, want ErrInvitationInvalid", err)
	}
}

func TestInvitationAcceptExpired(t *testing.T) {
	db := setupTestDB(t)
	owner, f := createTestFamily(t, db)
	is := NewInvitationStore(db)
	ctx := context.Background()
	bob := createTestUser(t, db, "bob@example.com", "Bob")

	is.now = func() time.Time { return time.Now().UTC().Add(-8 * 24 * time.Hour) }
	inv, _ := is.Create(ctx, f.ID, "bob@example.com", model.RoleViewer, owner.ID)
	is.now = nowUTC

	if _, err := is.Accept(ctx, inv.Token, bob.ID); !errors.Is(err, ErrInvitationInvalid) {
		t.Errorf("err = %v, want ErrInvitationInvalid", err)
	}
	if m, _ := NewFamilyStore(db).GetActiveMembership(ctx, f.ID, bob.ID); m != nil {
		t.Error("expired invitation must not grant membership")
	}
}

func TestInvitationAcceptUnknownToken(t *testing.T) {
	db := setupTestDB(t)
	bob := createTestUser(t, db, "bob@example.com", "Bob")

	_, err := NewInvitationStore(db).Accept(context.Background(), "missing", bob.ID)
	if !errors.Is(err, ErrInvitationInvalid) {
		t.Errorf("err = %v, want ErrInvitationInvalid", err)
	}
}

func TestInvitationAcceptAlreadyMember(t *testing.T) {
	db := setupTestDB(t)
	owner, f := createTestFamily(t, db)
	is := NewInvitationStore(db)
	ctx := context.Background()
	bob := createTestUser(t, db, "bob@example.com", "Bob")
	NewFamilyStore(db).JoinByCode(ctx, f.AccessCode, bob.ID)

	inv, _ := is.Create(ctx, f.ID, "bob@example.com", model.RoleEditor, owner.ID)
	if _, err := is.Accept(ctx, inv.Token, bob.ID); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("err = %v, want ErrAlreadyMember", err)
	}

	got, _ := is.GetByToken(ctx, inv.Token)
	if got.IsConsumed() {
		t.Error("invitation should stay unconsumed when acceptance fails")
	}
}

func TestInvitationAcceptConcurrent(t *testing.T) {
	db := setupTestDB(t)
	owner, f := createTestFamily(t, db)
	is := NewInvitationStore(db)
	ctx := context.Background()
	inv, _ := is.Create(ctx, f.ID, "team@example.com", model.RoleMember, owner.ID)

	users := []*model.User{
		createTestUser(t, db, "a@example.com", "A"),
		createTestUser(t, db, "b@example.com", "B"),
		createTestUser(t, db, "c@example.com", "C"),
		createTestUser(t, db, "d@example.com", "D"),
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := is.Accept(ctx, inv.Token, userID)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, ErrInvitationInvalid) {
				t.Errorf("unexpected error: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
}

func TestInvitationListPending(t *testing.T) {
	db := setupTestDB(t)
	owner, f := createTestFamily(t, db)
	is := NewInvitationStore(db)
	ctx := context.Background()
	bob := createTestUser(t, db, "bob@example.com", "Bob")

	consumed, _ := is.Create(ctx, f.ID, "bob@example.com", model.RoleViewer, owner.ID)
	is.Accept(ctx, consumed.Token, bob.ID)
	pending, _ := is.Create(ctx, f.ID, "carol@example.com", model.RoleViewer, owner.ID)
	is.now = func() time.Time { return time.Now().UTC().Add(-10 * 24 * time.Hour) }
	is.Create(ctx, f.ID, "old@example.com", model.RoleViewer, owner.ID)
	is.now = nowUTC

	list, err := is.ListPending(ctx, f.ID)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(list) != 1 || list[0].ID != pending.ID {
		t.Errorf("pending = %+v, want only invitation %d", list, pending.ID)
	}
}

func TestInvitationDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	owner, f := createTestFamily(t, db)
	is := NewInvitationStore(db)
	ctx := context.Background()

	is.now = func() time.Time { return time.Now().UTC().Add(-60 * 24 * time.Hour) }
	is.Create(ctx, f.ID, "ancient@example.com", model.RoleViewer, owner.ID)
	is.now = func() time.Time { return time.Now().UTC().Add(-10 * 24 * time.Hour) }
	recent, _ := is.Create(ctx, f.ID, "recent@example.com", model.RoleViewer, owner.ID)
	is.now = nowUTC

	n, err := is.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if got, _ := is.GetByToken(ctx, recent.Token); got == nil {
		t.Error("recently expired invitation should be retained")
	}
}
