package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/pkg/utils"
)

const (
	resetTokenTTL  = time.Hour
	verifyTokenTTL = 24 * time.Hour
)

type Options struct {
	// FrontendURL is the base of links placed in emails.
	FrontendURL string
	Logger      *zap.Logger
}

type Service struct {
	accounts Accounts
	sessions Sessions
	tokens   *TokenManager
	mailer   Mailer
	opts     Options
	logger   *zap.Logger
}

func NewService(accounts Accounts, sessions Sessions, tokens *TokenManager, mailer Mailer, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		accounts: accounts,
		sessions: sessions,
		tokens:   tokens,
		mailer:   mailer,
		opts:     opts,
		logger:   logger,
	}
}

func principalOf(a *Account) *models.Principal {
	return &models.Principal{
		UID:           a.ID,
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		EmailVerified: a.EmailVerified,
	}
}

// CreateAccount registers an account, signs it in and mails a verification
// link. A failed verification mail does not fail the sign-up.
func (s *Service) CreateAccount(ctx context.Context, email, password, displayName string) (*models.Principal, string, error) {
	if err := utils.ValidateEmail(email); err != nil {
		return nil, "", err
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, "", err
	}
	if err := utils.ValidateDisplayName(displayName); err != nil {
		return nil, "", err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}
	account := &Account{
		ID:           uuid.NewString(),
		Email:        utils.NormalizeEmail(email),
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, "", err
	}

	token, err := s.sessions.Create(ctx, account.ID)
	if err != nil {
		return nil, "", fmt.Errorf("creating session: %w", err)
	}

	principal := principalOf(account)
	if err := s.SendEmailVerification(ctx, principal); err != nil {
		s.logger.Warn("Failed to send verification email",
			zap.String("uid", account.ID),
			zap.Error(err))
	}
	return principal, token, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*models.Principal, string, error) {
	account, err := s.accounts.ByEmail(ctx, utils.NormalizeEmail(email))
	if errors.Is(err, ErrAccountNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}

	ok, err := utils.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.sessions.Create(ctx, account.ID)
	if err != nil {
		return nil, "", fmt.Errorf("creating session: %w", err)
	}
	return principalOf(account), token, nil
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// PrincipalForSession resolves a bearer token.
func (s *Service) PrincipalForSession(ctx context.Context, token string) (*models.Principal, error) {
	accountID, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.ByID(ctx, accountID)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return principalOf(account), nil
}

// SendPasswordReset mails a single-use reset link. Unknown emails succeed
// silently so the endpoint cannot be used to discover accounts.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	account, err := s.accounts.ByEmail(ctx, utils.NormalizeEmail(email))
	if errors.Is(err, ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token, tokenID, err := s.tokens.Issue(PurposeReset, account.ID, account.Email, resetTokenTTL)
	if err != nil {
		return err
	}
	if err := s.accounts.SaveResetToken(ctx, tokenID, account.ID, time.Now().Add(resetTokenTTL)); err != nil {
		return fmt.Errorf("saving reset token: %w", err)
	}
	return s.mailer.Send(ctx, account.Email, "Reset your TaskVerse password",
		"Use this link within an hour to choose a new password: "+s.link("/reset-password", token))
}

// ResetPassword sets a new password and ends existing sessions.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := utils.ValidatePassword(newPassword); err != nil {
		return err
	}
	claims, err := s.tokens.Parse(PurposeReset, token)
	if err != nil {
		return err
	}
	accountID, err := s.accounts.ConsumeResetToken(ctx, claims.ID)
	if err != nil {
		return err
	}
	if accountID != claims.Subject {
		return ErrInvalidToken
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.accounts.SetPassword(ctx, accountID, hash); err != nil {
		return err
	}
	if err := s.sessions.RevokeAll(ctx, accountID); err != nil {
		s.logger.Warn("Failed to revoke sessions after password reset",
			zap.String("uid", accountID),
			zap.Error(err))
	}
	return nil
}

func (s *Service) SendEmailVerification(ctx context.Context, p *models.Principal) error {
	if p == nil {
		return ErrSessionNotFound
	}
	if p.EmailVerified {
		return nil
	}
	token, _, err := s.tokens.Issue(PurposeVerify, p.UID, p.Email, verifyTokenTTL)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, p.Email, "Verify your TaskVerse email",
		"Confirm your address: "+s.link("/verify-email", token))
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(PurposeVerify, token)
	if err != nil {
		return err
	}
	account, err := s.accounts.ByID(ctx, claims.Subject)
	if err != nil {
		return err
	}
	// A token minted before an email change must not verify the new address.
	if account.Email != claims.Email {
		return ErrInvalidToken
	}
	return s.accounts.MarkVerified(ctx, account.ID)
}

func (s *Service) link(path, token string) string {
	return strings.TrimRight(s.opts.FrontendURL, "/") + path + "?token=" + url.QueryEscape(token)
}
