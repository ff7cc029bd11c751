package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/staynest/authengine"
)

const principalColumns = `id, email, phone, password_hash, role, status,
	failed_logins, locked_until, two_factor_secret, totp_last_used, last_login_at, created_at`

// Store implements [authengine.CredentialStore] on SQLite.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened database. Call [Open] first.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreatePrincipal inserts a new principal. The ID is generated if empty.
// Registration itself lives outside the engine; this exists for seeding
// and for the platform's account service.
func (s *Store) CreatePrincipal(ctx context.Context, p *authengine.Principal) error {
	if p.ID == "" {
		p.ID = "usr-" + uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO principals (id, email, phone, password_hash, role, status, failed_logins, two_factor_secret, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, nullableString(p.Email), nullableString(p.Phone),
		p.PasswordHash, p.Role, int(p.Status), p.FailedLogins,
		p.TwoFactorSecret, p.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("principal identifier already registered: %w", err)
		}
		return fmt.Errorf("inserting principal: %w", err)
	}
	return nil
}

// FindPrincipal resolves an identifier, trying email first, phone second.
func (s *Store) FindPrincipal(ctx context.Context, identifier string) (*authengine.Principal, error) {
	return s.getPrincipal(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = ?1 OR phone = ?1
		 ORDER BY CASE WHEN email = ?1 THEN 0 ELSE 1 END LIMIT 1`,
		identifier)
}

// FindPrincipalByID loads one principal by primary key.
func (s *Store) FindPrincipalByID(ctx context.Context, id string) (*authengine.Principal, error) {
	return s.getPrincipal(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`, id)
}

// UpdateLockoutState writes the failed counter and lockout deadline, but
// only when the stored counter still equals expectedFailed. A stale
// expectation returns ErrLockoutConflict so the caller re-reads and
// retries against the row a concurrent attempt just moved.
func (s *Store) UpdateLockoutState(ctx context.Context, id string, expectedFailed, newFailed int, lockedUntil *time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE principals SET failed_logins = ?, locked_until = ? WHERE id = ? AND failed_logins = ?`,
		newFailed, nullableUnix(lockedUntil), id, expectedFailed,
	)
	if err != nil {
		return fmt.Errorf("updating lockout state: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM principals WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return authengine.ErrPrincipalNotFound
	}
	if err != nil {
		return fmt.Errorf("checking principal: %w", err)
	}
	return authengine.ErrLockoutConflict
}

// RecordLogin resets the lockout columns and stamps the last login in one
// statement.
func (s *Store) RecordLogin(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE principals SET failed_logins = 0, locked_until = NULL, last_login_at = ? WHERE id = ?`,
		at.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	return requireRow(result)
}

// UpdatePasswordHash replaces the stored password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE principals SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}
	return requireRow(result)
}

// UpdateStatus moves a principal between lifecycle states.
func (s *Store) UpdateStatus(ctx context.Context, id string, status authengine.AccountStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE principals SET status = ? WHERE id = ?`, int(status), id)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return requireRow(result)
}

// EnableTwoFactor persists a confirmed TOTP secret.
func (s *Store) EnableTwoFactor(ctx context.Context, id, secret string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE principals SET two_factor_secret = ? WHERE id = ?`, secret, id)
	if err != nil {
		return fmt.Errorf("enabling two-factor: %w", err)
	}
	return requireRow(result)
}

// UpdateTOTPLastUsed records the accepted TOTP timestep so the same code
// cannot authenticate twice inside the skew window.
func (s *Store) UpdateTOTPLastUsed(ctx context.Context, id string, step int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE principals SET totp_last_used = ? WHERE id = ?`, step, id)
	if err != nil {
		return fmt.Errorf("updating totp timestep: %w", err)
	}
	return requireRow(result)
}

// DisableTwoFactor clears the secret and deletes every backup code in one
// transaction.
func (s *Store) DisableTwoFactor(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx,
		`UPDATE principals SET two_factor_secret = '', totp_last_used = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("disabling two-factor: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE principal_id = ?`, id); err != nil {
		return fmt.Errorf("deleting backup codes: %w", err)
	}
	return tx.Commit()
}

// ReplaceBackupCodes swaps the full backup-code set transactionally.
func (s *Store) ReplaceBackupCodes(ctx context.Context, id string, hashes []authengine.BackupCodeHash) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE principal_id = ?`, id); err != nil {
		return fmt.Errorf("deleting backup codes: %w", err)
	}
	for _, hash := range hashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backup_codes (principal_id, code_hash) VALUES (?, ?)`,
			id, hash[:]); err != nil {
			return fmt.Errorf("inserting backup code: %w", err)
		}
	}
	return tx.Commit()
}

// ConsumeBackupCode deletes a matching code. The DELETE is the atomicity:
// two concurrent consumers of the same code see at most one row affected.
func (s *Store) ConsumeBackupCode(ctx context.Context, id string, hash authengine.BackupCodeHash) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE principal_id = ? AND code_hash = ?`,
		id, hash[:])
	if err != nil {
		return false, fmt.Errorf("consuming backup code: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return rows > 0, nil
}

func (s *Store) getPrincipal(ctx context.Context, query string, args ...any) (*authengine.Principal, error) {
	var (
		p           authengine.Principal
		email       sql.NullString
		phone       sql.NullString
		status      int
		lockedUntil sql.NullInt64
		lastLogin   sql.NullInt64
		createdAt   int64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &email, &phone, &p.PasswordHash, &p.Role, &status,
		&p.FailedLogins, &lockedUntil, &p.TwoFactorSecret, &p.TOTPLastUsed,
		&lastLogin, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authengine.ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading principal: %w", err)
	}

	p.Email = email.String
	p.Phone = phone.String
	p.Status = authengine.AccountStatus(status)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lockedUntil.Valid {
		t := time.Unix(lockedUntil.Int64, 0).UTC()
		p.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := time.Unix(lastLogin.Int64, 0).UTC()
		p.LastLoginAt = &t
	}
	return &p, nil
}

// requireRow maps a zero-row UPDATE to ErrPrincipalNotFound.
func requireRow(result sql.Result) error {
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return authengine.ErrPrincipalNotFound
	}
	return nil
}

// nullableString returns nil for empty strings. Used for nullable UNIQUE
// columns so absent emails and phones do not collide.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
