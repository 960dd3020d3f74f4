package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-api/internal/domain"
	"github.com/go-auth-api/internal/pkg/id"
	pkgtoken "github.com/go-auth-api/internal/pkg/token"
	"github.com/go-auth-api/internal/pkg/validate"
)

type Service interface {
	// Register creates a disabled user and returns the raw confirmation token.
	// The account cannot authenticate until Confirm succeeds.
	Register(ctx context.Context, req domain.RegisterRequest) (string, error)
	// Confirm consumes a confirmation token and enables its user.
	Confirm(ctx context.Context, token string) (string, error)
	// Authenticate verifies credentials and issues a signed access token.
	Authenticate(ctx context.Context, req domain.AuthenticateRequest) (string, error)
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

type confirmationStore interface {
	Put(ctx context.Context, c *domain.ConfirmationToken) error
	Consume(ctx context.Context, token string, now time.Time) error
}

type tokenSigner interface {
	Sign(subject, role string, extra map[string]string) (string, error)
}

type passwordHasher interface {
	Hash(raw string) (string, error)
	Matches(raw, hash string) bool
}

type mailSender interface {
	SendEmail(to, subject, body string) error
}

type service struct {
	userRepo         userStore
	confirmationRepo confirmationStore
	mailer           mailSender
	hasher           passwordHasher
	signer           tokenSigner
	confirmTokenTTL  time.Duration
	confirmBaseURL   string
}

type ServiceDeps struct {
	UserRepo         userStore
	ConfirmationRepo confirmationStore
	Mailer           mailSender
	Hasher           passwordHasher
	Signer           tokenSigner
	ConfirmTokenTTL  time.Duration
	ConfirmBaseURL   string
}

func NewService(deps ServiceDeps) Service {
	return &service{
		userRepo:         deps.UserRepo,
		confirmationRepo: deps.ConfirmationRepo,
		mailer:           deps.Mailer,
		hasher:           deps.Hasher,
		signer:           deps.Signer,
		confirmTokenTTL:  deps.ConfirmTokenTTL,
		confirmBaseURL:   deps.ConfirmBaseURL,
	}
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (string, error) {
	if !validate.Email(req.Email) {
		return "", fmt.Errorf("email %q is not valid: %w", req.Email, domain.ErrInvalidEmail)
	}
	if err := validate.Struct(req); err != nil {
		return "", fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         domain.RoleUser,
		Enabled:      false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return "", err
	}

	raw, err := pkgtoken.NewConfirmationToken()
	if err != nil {
		return "", err
	}
	c := &domain.ConfirmationToken{
		Token:     raw,
		UserID:    u.UserID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.confirmTokenTTL).Unix(),
	}
	if err := s.confirmationRepo.Put(ctx, c); err != nil {
		return "", err
	}

	body := fmt.Sprintf(
		"Hello, %s. Thank you for signing up to our application. "+
			"Please click on the below url to activate your account: %s?token=%s",
		req.FirstName, s.confirmBaseURL, raw,
	)
	if err := s.mailer.SendEmail(req.Email, "Activate your account", body); err != nil {
		return "", err
	}

	return raw, nil
}

func (s *service) Confirm(ctx context.Context, token string) (string, error) {
	// Consume marks the token and enables the user as a single transaction;
	// exactly one of two concurrent confirmations can win.
	if err := s.confirmationRepo.Consume(ctx, token, time.Now()); err != nil {
		return "", err
	}
	return "Confirmed", nil
}

func (s *service) Authenticate(ctx context.Context, req domain.AuthenticateRequest) (string, error) {
	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Uniform failure: never reveals whether the email exists.
			return "", domain.ErrInvalidCredentials
		}
		return "", err
	}
	if !s.hasher.Matches(req.Password, u.PasswordHash) {
		return "", domain.ErrInvalidCredentials
	}
	if !u.Enabled {
		// Unconfirmed accounts cannot log in; same uniform failure so account
		// state is not enumerable.
		return "", domain.ErrInvalidCredentials
	}
	return s.signer.Sign(u.Email, u.Role, nil)
}
