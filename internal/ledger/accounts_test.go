package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/conorfennell/quizvault/internal/domain"
	"github.com/conorfennell/quizvault/internal/storage"
)

type recordingPurger struct {
	purged []string
	err    error
}

func (p *recordingPurger) DeleteAll(_ context.Context, userID string) error {
	p.purged = append(p.purged, userID)
	return p.err
}

func newAccounts(t *testing.T, purger ExamPurger) (*Accounts, *storage.Store) {
	t.Helper()
	store := storage.NewStore(storage.TierInMemory, storage.NewMemory())
	a := NewAccounts(store, AccountsConfig{Hasher: BcryptHasher{Cost: bcrypt.MinCost}, Purger: purger})
	a.now = fakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), time.Second)
	a.newID = sequentialIDs("user-")
	return a, store
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	a, _ := newAccounts(t, nil)

	u, err := a.Register(ctx, "  Alice ", "Alice A.", "s3cret")
	if err != nil {
		t.Fatalf("Register() returned an unexpected error: %v", err)
	}
	if u.Login != "alice" || u.Role != domain.RoleUser || u.LastLoginAt != nil {
		t.Fatalf("Unexpected account %+v", u)
	}

	testCases := []struct {
		name     string
		login    string
		password string
		wantErr  error
	}{
		{name: "duplicate in another case", login: "ALICE", password: "x", wantErr: ErrDuplicateLogin},
		{name: "reserved", login: "Admin", password: "x", wantErr: ErrReservedLogin},
		{name: "empty login", login: " ", password: "x", wantErr: ErrInvalidInput},
		{name: "empty password", login: "bob", password: "", wantErr: ErrInvalidInput},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.Register(ctx, tc.login, "", tc.password)
			var authErr *AuthError
			if !errors.As(err, &authErr) || !errors.Is(err, tc.wantErr) {
				t.Fatalf("Expected AuthError wrapping %v, got %v", tc.wantErr, err)
			}
		})
	}

	if _, err := a.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for a wrong password, got %v", err)
	}
	if _, err := a.Authenticate(ctx, "nobody", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for an unknown login, got %v", err)
	}
	logged, err := a.Authenticate(ctx, "ALICE", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate() returned an unexpected error: %v", err)
	}
	if logged.LastLoginAt == nil || logged.ID != u.ID {
		t.Errorf("Expected last login to be recorded, got %+v", logged)
	}

	if err := a.ChangePassword(ctx, "alice", "s3cret", "n3w"); err != nil {
		t.Fatalf("ChangePassword() returned an unexpected error: %v", err)
	}
	if _, err := a.Authenticate(ctx, "alice", "n3w"); err != nil {
		t.Errorf("Expected the new password to work, got %v", err)
	}
}

func TestAdministrator(t *testing.T) {
	ctx := context.Background()
	a, store := newAccounts(t, nil)

	if _, err := a.EnsureAdmin(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Expected bootstrap without a password to fail, got %v", err)
	}
	created, err := a.EnsureAdmin(ctx, "root")
	if err != nil || !created {
		t.Fatalf("EnsureAdmin() = %v, %v; want true, nil", created, err)
	}
	created, err = a.EnsureAdmin(ctx, "other")
	if err != nil || created {
		t.Fatalf("Second EnsureAdmin() = %v, %v; want false, nil", created, err)
	}

	// Tamper with the stored role; reads still report admin.
	var rec domain.StoredUserRecord
	users := store.Namespace(storage.Users)
	if _, err := users.Get(ctx, "admin", &rec); err != nil {
		t.Fatal(err)
	}
	rec.Role = domain.RoleUser
	if err := users.Set(ctx, "admin", rec); err != nil {
		t.Fatal(err)
	}
	u, ok, err := a.Get(ctx, "admin")
	if err != nil || !ok || u.Role != domain.RoleAdmin {
		t.Fatalf("Get(admin) = %+v, %v, %v; want admin role", u, ok, err)
	}
	if _, err := a.EnsureAdmin(ctx, "root"); err != nil {
		t.Fatal(err)
	}
	if _, err := users.Get(ctx, "admin", &rec); err != nil || rec.Role != domain.RoleAdmin {
		t.Errorf("Expected EnsureAdmin to repair the stored role, got %q", rec.Role)
	}

	if err := a.Delete(ctx, "ADMIN"); !errors.Is(err, ErrProtectedAccount) {
		t.Errorf("Expected the administrator to be protected, got %v", err)
	}
	if _, err := a.Authenticate(ctx, "admin", "root"); err != nil {
		t.Errorf("Expected the original admin password to still work, got %v", err)
	}
}

func TestDeleteCascadesToExams(t *testing.T) {
	ctx := context.Background()
	purger := &recordingPurger{}
	a, _ := newAccounts(t, purger)

	u, err := a.Register(ctx, "carol", "", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Delete(ctx, "carol"); err != nil {
		t.Fatalf("Delete() returned an unexpected error: %v", err)
	}
	if len(purger.purged) != 1 || purger.purged[0] != u.ID {
		t.Errorf("Expected exams of %s to be purged, got %v", u.ID, purger.purged)
	}
	if _, ok, _ := a.Get(ctx, "carol"); ok {
		t.Error("Expected the account to be gone")
	}
	if err := a.Delete(ctx, "carol"); err != nil {
		t.Errorf("Deleting a missing account should be a no-op, got %v", err)
	}

	// A failed purge keeps the account.
	purger.err = errors.New("boom")
	if _, err := a.Register(ctx, "dave", "", "pw"); err != nil {
		t.Fatal(err)
	}
	if err := a.Delete(ctx, "dave"); err == nil {
		t.Fatal("Expected Delete to fail when the purge fails")
	}
	if _, ok, _ := a.Get(ctx, "dave"); !ok {
		t.Error("Expected the account to survive a failed purge")
	}

	accounts, err := a.List(ctx)
	if err != nil || len(accounts) != 1 || accounts[0].Login != "dave" {
		t.Errorf("List() = %+v, %v", accounts, err)
	}
}

func TestHashers(t *testing.T) {
	testCases := []struct {
		name   string
		hasher Hasher
		secure bool
	}{
		{name: "bcrypt", hasher: BcryptHasher{Cost: bcrypt.MinCost}, secure: true},
		{name: "sha256", hasher: FuncHasher(SHA256), secure: true},
		{name: "reversible", hasher: ReversibleHasher{}, secure: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			hash, err := tc.hasher.Hash("pw")
			if err != nil {
				t.Fatalf("Hash() returned an unexpected error: %v", err)
			}
			if hash == "pw" {
				t.Error("Hash must not store the password as is")
			}
			if !tc.hasher.Verify(hash, "pw") || tc.hasher.Verify(hash, "other") {
				t.Error("Verify() did not match only the original password")
			}
			if tc.hasher.Secure() != tc.secure {
				t.Errorf("Secure() = %v, want %v", tc.hasher.Secure(), tc.secure)
			}
		})
	}

	if SHA256("abc") != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Error("SHA256 digest mismatch")
	}
}

func TestNilHasherFallsBackToReversible(t *testing.T) {
	a := NewAccounts(storage.NewStore(storage.TierInMemory, storage.NewMemory()), AccountsConfig{})
	if a.hasher.Secure() {
		t.Error("Expected the fallback hasher to report itself as insecure")
	}
	if a.AdminLogin() != DefaultAdminLogin {
		t.Errorf("Expected default admin login, got %q", a.AdminLogin())
	}
}
