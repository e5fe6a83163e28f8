// Package services holds the authentication use cases: registration, login,
// session refresh, logout and the password reset and change flows.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/campusmart/backend/dto"
	"github.com/campusmart/backend/mailer"
	"github.com/campusmart/backend/models"
	"github.com/campusmart/backend/store"
	"github.com/campusmart/backend/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
)

const resetTicketAttempts = 3

type Options struct {
	ResetTokenTTL time.Duration
	FrontendURL   string
	// VerifySubject makes Refresh reject tokens whose user no longer exists.
	VerifySubject bool
}

// AuthResult is what a successful register or login hands to the handler.
type AuthResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

type AuthService struct {
	users       store.UserStore
	revocations store.RevocationStore
	hasher      *utils.PasswordHasher
	tokens      *utils.TokenIssuer
	mail        mailer.Mailer
	opts        Options
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	users store.UserStore,
	revocations store.RevocationStore,
	hasher *utils.PasswordHasher,
	tokens *utils.TokenIssuer,
	mail mailer.Mailer,
	opts Options,
) *AuthService {
	if revocations == nil {
		revocations = store.NoopRevocationStore{}
	}
	return &AuthService{
		users:       users,
		revocations: revocations,
		hasher:      hasher,
		tokens:      tokens,
		mail:        mail,
		opts:        opts,
		now:         time.Now,
	}
}

// WithClock replaces the time source used for reset expiry and revocation.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

func (s *AuthService) issuePair(u *models.User) (*AuthResult, error) {
	access, err := s.tokens.IssueAccessToken(u.ID.Hex(), u.Email)
	if err != nil {
		return nil, internal(fmt.Errorf("sign access token: %w", err))
	}
	refresh, err := s.tokens.IssueRefreshToken(u.ID.Hex())
	if err != nil {
		return nil, internal(fmt.Errorf("sign refresh token: %w", err))
	}
	return &AuthResult{User: u, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) Register(ctx context.Context, in dto.RegisterDTO) (*AuthResult, error) {
	in.FullName = utils.NormalizeName(in.FullName)
	in.Email = utils.NormalizeEmail(in.Email)
	in.MatricNumber = strings.TrimSpace(in.MatricNumber)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Faculty = utils.NormalizeName(in.Faculty)
	in.Department = utils.NormalizeName(in.Department)

	if err := utils.Validate(in); err != nil {
		return nil, validationError(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internal(fmt.Errorf("hash password: %w", err))
	}

	u := &models.User{
		FullName:     in.FullName,
		Email:        in.Email,
		MatricNumber: in.MatricNumber,
		PhoneNumber:  in.PhoneNumber,
		Faculty:      in.Faculty,
		Department:   in.Department,
		PasswordHash: hash,
		Role:         models.RoleStandard,
	}

	if err := s.users.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			return nil, ErrEmailTaken
		case errors.Is(err, store.ErrDuplicateIdentifier):
			return nil, ErrIdentifierTaken
		default:
			return nil, internal(fmt.Errorf("create user: %w", err))
		}
	}

	return s.issuePair(u)
}

func (s *AuthService) Login(ctx context.Context, in dto.LoginDTO) (*AuthResult, error) {
	in.EmailOrID = utils.NormalizeIdentifier(in.EmailOrID)
	if err := utils.Validate(in); err != nil {
		return nil, validationError(err)
	}

	u, err := s.users.FindByEmailOrIdentifier(ctx, in.EmailOrID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a comparison so unknown accounts take as long as wrong passwords.
			s.hasher.Verify(s.dummy(), in.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, internal(fmt.Errorf("find user: %w", err))
	}

	if !s.hasher.Verify(u.PasswordHash, in.Password) {
		return nil, ErrInvalidCredentials
	}

	return s.issuePair(u)
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("campusmart-dummy-password-1!")
	})
	return s.dummyHash
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrMissingRefreshToken
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}

	if err := s.checkRevoked(ctx, claims); err != nil {
		return "", err
	}

	id, err := bson.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}

	var email string
	u, err := s.users.FindByID(ctx, id)
	switch {
	case err == nil:
		email = u.Email
	case errors.Is(err, store.ErrNotFound):
		if s.opts.VerifySubject {
			return "", ErrInvalidRefreshToken
		}
	default:
		return "", internal(fmt.Errorf("find user: %w", err))
	}

	access, err := s.tokens.IssueAccessToken(claims.UserID, email)
	if err != nil {
		return "", internal(fmt.Errorf("sign access token: %w", err))
	}
	return access, nil
}

func (s *AuthService) checkRevoked(ctx context.Context, claims *utils.RefreshClaims) error {
	revoked, err := s.revocations.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return internal(err)
	}
	if revoked {
		return ErrInvalidRefreshToken
	}

	cutoff, ok, err := s.revocations.UserCutoff(ctx, claims.UserID)
	if err != nil {
		return internal(err)
	}
	// iat has one-second precision; a token from the cutoff second is
	// treated as issued before it.
	if ok && (claims.IssuedAt == nil || !claims.IssuedAt.After(cutoff)) {
		return ErrInvalidRefreshToken
	}
	return nil
}

// Logout denylists the presented refresh token until it would have
// expired. Invalid or missing tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	if err := s.revocations.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return internal(fmt.Errorf("revoke refresh token: %w", err))
	}
	return nil
}

// ForgotPassword stores a fresh reset ticket for the account and emails
// the plaintext link. Unknown emails and persistent write contention
// succeed silently. A transport failure is returned as a
// *mailer.DeliveryError; the ticket stays valid.
func (s *AuthService) ForgotPassword(ctx context.Context, in dto.ForgotPasswordDTO) error {
	in.Email = utils.NormalizeEmail(in.Email)
	if err := utils.Validate(in); err != nil {
		return validationError(err)
	}

	var (
		u     *models.User
		plain string
	)
	for attempt := 1; ; attempt++ {
		var err error
		u, err = s.users.FindByEmail(ctx, in.Email)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return internal(fmt.Errorf("find user: %w", err))
		}

		var hash string
		plain, hash, err = utils.NewResetTicket()
		if err != nil {
			return internal(fmt.Errorf("generate reset ticket: %w", err))
		}

		expires := s.now().UTC().Add(s.opts.ResetTokenTTL)
		err = s.users.SetResetTicket(ctx, u.ID, u.Version, hash, expires)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return internal(fmt.Errorf("store reset ticket: %w", err))
		}
		if attempt == resetTicketAttempts {
			// Answer like any other request so contention does not reveal
			// that the account exists.
			zap.L().Warn("Gave up storing reset ticket after concurrent updates",
				zap.Error(err),
				zap.String("userID", u.ID.Hex()),
				zap.Int("attempts", attempt),
			)
			return nil
		}
	}

	link := mailer.ResetLink(s.opts.FrontendURL, plain)
	msg := mailer.PasswordResetMessage(u.Email, u.FullName, link, s.opts.ResetTokenTTL)
	if err := s.mail.Send(ctx, msg); err != nil {
		var de *mailer.DeliveryError
		if errors.As(err, &de) {
			return de
		}
		return &mailer.DeliveryError{Transport: "unknown", Retryable: true, Err: err}
	}
	return nil
}

// ResetPassword consumes ticket and sets the new password. Refresh tokens
// issued before the reset stop working.
func (s *AuthService) ResetPassword(ctx context.Context, ticket string, in dto.ResetPasswordDTO) error {
	ticket = strings.TrimSpace(ticket)
	if ticket == "" {
		return ErrInvalidOrExpiredTicket
	}
	if err := utils.Validate(in); err != nil {
		return validationError(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return internal(fmt.Errorf("hash password: %w", err))
	}

	now := s.now().UTC()
	u, err := s.users.ConsumeResetTicket(ctx, utils.HashResetTicket(ticket), now, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidOrExpiredTicket
		}
		return internal(fmt.Errorf("consume reset ticket: %w", err))
	}

	s.revokeSessions(ctx, u.ID, now)
	return nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, in dto.ChangeMyPasswordDTO) error {
	if err := utils.Validate(in); err != nil {
		return validationError(err)
	}

	u, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(u.PasswordHash, in.CurrentPassword) {
		return ErrIncorrectPassword
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return internal(fmt.Errorf("hash password: %w", err))
	}

	if err := s.users.UpdatePassword(ctx, u.ID, u.Version, hash); err != nil {
		switch {
		case errors.Is(err, store.ErrVersionConflict):
			return wrap(ErrConcurrentUpdate, err)
		case errors.Is(err, store.ErrNotFound):
			return ErrUnauthenticated
		default:
			return internal(fmt.Errorf("update password: %w", err))
		}
	}

	s.revokeSessions(ctx, u.ID, s.now().UTC())
	return nil
}

// Profile loads the user behind an access token.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, internal(fmt.Errorf("find user: %w", err))
	}
	return u, nil
}

// revokeSessions is best effort: the password change has already been
// committed, so a revocation failure is logged rather than returned.
func (s *AuthService) revokeSessions(ctx context.Context, id bson.ObjectID, at time.Time) {
	err := s.revocations.RevokeUserTokens(ctx, id.Hex(), at, s.tokens.RefreshTTL())
	if err != nil {
		zap.L().Error("Failed to revoke refresh tokens", zap.Error(err), zap.String("userID", id.Hex()))
	}
}
