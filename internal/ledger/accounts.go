package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/quizvault/internal/domain"
	"github.com/conorfennell/quizvault/internal/logging"
	"github.com/conorfennell/quizvault/internal/storage"
)

// DefaultAdminLogin is the reserved administrator login.
const DefaultAdminLogin = "admin"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateLogin     = errors.New("login already exists")
	ErrReservedLogin      = errors.New("login is reserved")
	ErrProtectedAccount   = errors.New("account cannot be deleted")
	ErrInvalidInput       = errors.New("login and password are required")
)

// AuthError is returned by every failed account operation.
type AuthError struct {
	Op    string
	Login string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Login, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ExamPurger removes every exam a user owns.
type ExamPurger interface {
	DeleteAll(ctx context.Context, userID string) error
}

// Accounts stores credential records keyed by normalized login.
type Accounts struct {
	users      *storage.Namespace
	hasher     Hasher
	purger     ExamPurger
	adminLogin string
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

// AccountsConfig configures NewAccounts.
type AccountsConfig struct {
	// Hasher defaults to ReversibleHasher, which is not secure.
	Hasher Hasher
	// Purger, when set, deletes a user's exams along with the account.
	Purger     ExamPurger
	AdminLogin string
	Logger     *slog.Logger
}

// NewAccounts returns the account records over store.
func NewAccounts(store *storage.Store, cfg AccountsConfig) *Accounts {
	a := &Accounts{
		users:      store.Namespace(storage.Users),
		hasher:     cfg.Hasher,
		purger:     cfg.Purger,
		adminLogin: NormalizeLogin(cfg.AdminLogin),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		logger:     logging.OrDefault(cfg.Logger),
	}
	if a.adminLogin == "" {
		a.adminLogin = DefaultAdminLogin
	}
	if a.hasher == nil {
		a.hasher = ReversibleHasher{}
	}
	if !a.hasher.Secure() {
		a.logger.Warn("password hashes are reversible, do not use this store for real credentials")
	}
	return a
}

// NormalizeLogin trims and lowercases a login.
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// AdminLogin returns the reserved administrator login.
func (a *Accounts) AdminLogin() string { return a.adminLogin }

// account applies the role rules to a stored record.
func (a *Accounts) account(rec domain.StoredUserRecord) domain.UserAccount {
	u := rec.UserAccount
	switch {
	case u.Login == a.adminLogin:
		u.Role = domain.RoleAdmin
	case u.Role != domain.RoleAdmin:
		u.Role = domain.RoleUser
	}
	return u
}

func (a *Accounts) load(ctx context.Context, login string) (domain.StoredUserRecord, bool, error) {
	var rec domain.StoredUserRecord
	ok, err := a.users.Get(ctx, login, &rec)
	if err != nil {
		return rec, false, fmt.Errorf("failed to load account %s: %w", login, err)
	}
	return rec, ok, nil
}

func (a *Accounts) create(ctx context.Context, login, displayName, password string, role domain.Role) (domain.StoredUserRecord, error) {
	hash, err := a.hasher.Hash(password)
	if err != nil {
		return domain.StoredUserRecord{}, fmt.Errorf("failed to hash password: %w", err)
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = login
	}
	rec := domain.StoredUserRecord{
		UserAccount: domain.UserAccount{
			ID:          a.newID(),
			Login:       login,
			DisplayName: strings.TrimSpace(displayName),
			CreatedAt:   a.now(),
			Role:        role,
		},
		PasswordHash: hash,
	}
	if err := a.users.Set(ctx, login, rec); err != nil {
		return domain.StoredUserRecord{}, fmt.Errorf("failed to save account %s: %w", login, err)
	}
	return rec, nil
}

// Register creates a regular account.
func (a *Accounts) Register(ctx context.Context, login, displayName, password string) (domain.UserAccount, error) {
	login = NormalizeLogin(login)
	if login == "" || strings.TrimSpace(password) == "" {
		return domain.UserAccount{}, &AuthError{Op: "register", Login: login, Err: ErrInvalidInput}
	}
	if login == a.adminLogin {
		return domain.UserAccount{}, &AuthError{Op: "register", Login: login, Err: ErrReservedLogin}
	}
	_, exists, err := a.load(ctx, login)
	if err != nil {
		return domain.UserAccount{}, err
	}
	if exists {
		return domain.UserAccount{}, &AuthError{Op: "register", Login: login, Err: ErrDuplicateLogin}
	}
	rec, err := a.create(ctx, login, displayName, password, domain.RoleUser)
	if err != nil {
		return domain.UserAccount{}, err
	}
	a.logger.Info("account registered", "login", login)
	return a.account(rec), nil
}

// Authenticate checks a password and records the login time.
func (a *Accounts) Authenticate(ctx context.Context, login, password string) (domain.UserAccount, error) {
	login = NormalizeLogin(login)
	rec, ok, err := a.load(ctx, login)
	if err != nil {
		return domain.UserAccount{}, err
	}
	if !ok || !a.hasher.Verify(rec.PasswordHash, password) {
		return domain.UserAccount{}, &AuthError{Op: "login", Login: login, Err: ErrInvalidCredentials}
	}
	now := a.now()
	rec.LastLoginAt = &now
	rec.Role = a.account(rec).Role
	if err := a.users.Set(ctx, login, rec); err != nil {
		return domain.UserAccount{}, fmt.Errorf("failed to record login for %s: %w", login, err)
	}
	return a.account(rec), nil
}

// Get returns one account.
func (a *Accounts) Get(ctx context.Context, login string) (domain.UserAccount, bool, error) {
	rec, ok, err := a.load(ctx, NormalizeLogin(login))
	if err != nil || !ok {
		return domain.UserAccount{}, false, err
	}
	return a.account(rec), true, nil
}

// List returns every account ordered by login.
func (a *Accounts) List(ctx context.Context) ([]domain.UserAccount, error) {
	entries, err := a.users.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	accounts := make([]domain.UserAccount, 0, len(entries))
	for _, e := range entries {
		var rec domain.StoredUserRecord
		if err := e.Decode(&rec); err != nil {
			a.logger.Warn("skipping undecodable account", "key", e.Key, "error", err)
			continue
		}
		accounts = append(accounts, a.account(rec))
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Login < accounts[j].Login })
	return accounts, nil
}

// ChangePassword replaces the password after checking the current one.
func (a *Accounts) ChangePassword(ctx context.Context, login, current, next string) error {
	login = NormalizeLogin(login)
	if strings.TrimSpace(next) == "" {
		return &AuthError{Op: "change password", Login: login, Err: ErrInvalidInput}
	}
	rec, ok, err := a.load(ctx, login)
	if err != nil {
		return err
	}
	if !ok || !a.hasher.Verify(rec.PasswordHash, current) {
		return &AuthError{Op: "change password", Login: login, Err: ErrInvalidCredentials}
	}
	hash, err := a.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	rec.PasswordHash = hash
	if err := a.users.Set(ctx, login, rec); err != nil {
		return fmt.Errorf("failed to save account %s: %w", login, err)
	}
	return nil
}

// Delete removes an account and, through the purger, its exams. The
// administrator cannot be deleted. Deleting a missing account is a no-op.
func (a *Accounts) Delete(ctx context.Context, login string) error {
	login = NormalizeLogin(login)
	if login == a.adminLogin {
		return &AuthError{Op: "delete", Login: login, Err: ErrProtectedAccount}
	}
	rec, ok, err := a.load(ctx, login)
	if err != nil || !ok {
		return err
	}
	if a.purger != nil {
		if err := a.purger.DeleteAll(ctx, rec.ID); err != nil {
			return fmt.Errorf("failed to delete exams of %s: %w", login, err)
		}
	}
	if err := a.users.Remove(ctx, login); err != nil {
		return fmt.Errorf("failed to delete account %s: %w", login, err)
	}
	a.logger.Info("account deleted", "login", login)
	return nil
}

// EnsureAdmin creates the administrator if it is missing and repairs its
// stored role. It reports whether the account was created.
func (a *Accounts) EnsureAdmin(ctx context.Context, password string) (bool, error) {
	rec, ok, err := a.load(ctx, a.adminLogin)
	if err != nil {
		return false, err
	}
	if ok {
		if rec.Role != domain.RoleAdmin {
			rec.Role = domain.RoleAdmin
			if err := a.users.Set(ctx, a.adminLogin, rec); err != nil {
				return false, fmt.Errorf("failed to repair administrator role: %w", err)
			}
			a.logger.Warn("stored administrator role was wrong, repaired", "login", a.adminLogin)
		}
		return false, nil
	}
	if strings.TrimSpace(password) == "" {
		return false, &AuthError{Op: "bootstrap", Login: a.adminLogin, Err: ErrInvalidInput}
	}
	if _, err := a.create(ctx, a.adminLogin, "Administrator", password, domain.RoleAdmin); err != nil {
		return false, err
	}
	a.logger.Info("administrator account bootstrapped", "login", a.adminLogin)
	return true, nil
}
