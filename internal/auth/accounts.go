// Package auth is the account service: email/password accounts in Postgres,
// session tokens in Redis and signed tokens for password reset and email
// verification.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrSessionNotFound    = errors.New("session not found")
)

// Account is a sign-in identity. Its ID is the principal id used as the
// profile record id.
type Account struct {
	ID            string
	Email         string
	DisplayName   string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
}

// Accounts persists accounts and single-use reset tokens.
type Accounts interface {
	Create(ctx context.Context, a *Account) error
	ByEmail(ctx context.Context, email string) (*Account, error)
	ByID(ctx context.Context, id string) (*Account, error)
	SetPassword(ctx context.Context, id, hash string) error
	MarkVerified(ctx context.Context, id string) error
	SaveResetToken(ctx context.Context, tokenID, accountID string, expiresAt time.Time) error
	// ConsumeResetToken marks the token used and returns its account id. A
	// token that is unknown, expired or already used yields ErrInvalidToken.
	ConsumeResetToken(ctx context.Context, tokenID string) (string, error)
}

// PostgresAccounts implements Accounts on the accounts and
// password_reset_tokens tables.
type PostgresAccounts struct {
	db *sql.DB
}

func NewPostgresAccounts(db *sql.DB) *PostgresAccounts {
	return &PostgresAccounts{db: db}
}

const uniqueViolation = "23505"

func (p *PostgresAccounts) Create(ctx context.Context, a *Account) error {
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO accounts (id, email, display_name, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		a.ID, a.Email, a.DisplayName, a.PasswordHash,
	).Scan(&a.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

const accountColumns = `id, email, display_name, password_hash, email_verified, created_at`

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.EmailVerified, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *PostgresAccounts) ByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(p.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1 AND is_active = TRUE`, email))
}

func (p *PostgresAccounts) ByID(ctx context.Context, id string) (*Account, error) {
	return scanAccount(p.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND is_active = TRUE`, id))
}

func (p *PostgresAccounts) SetPassword(ctx context.Context, id, hash string) error {
	return p.exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
}

func (p *PostgresAccounts) MarkVerified(ctx context.Context, id string) error {
	return p.exec(ctx, `UPDATE accounts SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`, id)
}

func (p *PostgresAccounts) exec(ctx context.Context, query string, args ...any) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (p *PostgresAccounts) SaveResetToken(ctx context.Context, tokenID, accountID string, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (token_id, account_id, expires_at) VALUES ($1, $2, $3)`,
		tokenID, accountID, expiresAt)
	return err
}

func (p *PostgresAccounts) ConsumeResetToken(ctx context.Context, tokenID string) (string, error) {
	var accountID string
	err := p.db.QueryRowContext(ctx,
		`UPDATE password_reset_tokens SET used = TRUE
		 WHERE token_id = $1 AND used = FALSE AND expires_at > NOW()
		 RETURNING account_id`, tokenID).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return accountID, nil
}
