// Package devauth is a local implementation of the external auth API used
// by the portal. It signs users in against a user repository and hands out
// HS256 bearer tokens.
package devauth

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/transcript-portal/internal/errors"
	"github.com/jrsteele09/transcript-portal/token"
	"github.com/jrsteele09/transcript-portal/users"
	"github.com/rs/zerolog/log"
)

// Session is a successful sign-in.
type Session struct {
	User  *users.User
	Token string
}

// Service checks credentials and manages the tokens it issued.
type Service struct {
	users  users.UserRepo
	tokens *token.Manager
	seeds  []SeedUser
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithSeedUsers creates the given accounts when the service is built.
func WithSeedUsers(seeds []SeedUser) ServiceOption {
	return func(s *Service) {
		s.seeds = append(s.seeds, seeds...)
	}
}

func NewService(userRepo users.UserRepo, tokens *token.Manager, options ...ServiceOption) (*Service, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("[NewService] users repo is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("[NewService] token manager is required")
	}

	s := &Service{
		users:  userRepo,
		tokens: tokens,
	}
	for _, opt := range options {
		opt(s)
	}
	if err := Seed(userRepo, s.seeds); err != nil {
		return nil, err
	}
	return s, nil
}

// Login checks the credentials. Unknown users and wrong passwords both come
// back as ErrInvalidCredentials.
func (s *Service) Login(email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("[Service Login] %w: email and password are required", errors.ErrInvalidRequest)
	}

	user, err := s.users.GetByEmail(email)
	if err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			return nil, fmt.Errorf("[Service Login] %w", errors.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("[Service Login] GetByEmail: %w", err)
	}

	if !user.CheckPassword(password) {
		return nil, fmt.Errorf("[Service Login] %w", errors.ErrInvalidCredentials)
	}
	if user.Blocked {
		return nil, fmt.Errorf("[Service Login] %w", errors.ErrUserBlocked)
	}

	raw, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("[Service Login] %w", err)
	}
	log.Debug().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("dev auth login")
	return &Session{User: user, Token: raw}, nil
}

// Logout revokes rawToken.
func (s *Service) Logout(rawToken string) error {
	if err := s.tokens.Revoke(rawToken); err != nil {
		return fmt.Errorf("[Service Logout] %w", err)
	}
	return nil
}

// Introspect reports whether rawToken is active. A token whose user has
// since been blocked or deleted is inactive.
func (s *Service) Introspect(rawToken string) (*token.Introspection, error) {
	info, err := s.tokens.Introspect(rawToken)
	if err != nil || !info.Active {
		return info, err
	}
	user, err := s.users.GetByID(info.Sub)
	if err != nil || user.Blocked {
		return &token.Introspection{Active: false}, nil
	}
	return info, nil
}

// User returns the user behind an active token.
func (s *Service) User(rawToken string) (*users.User, error) {
	info, err := s.Introspect(rawToken)
	if err != nil {
		return nil, fmt.Errorf("[Service User] %w", err)
	}
	if !info.Active {
		return nil, fmt.Errorf("[Service User] %w", errors.ErrInvalidToken)
	}
	return s.users.GetByID(info.Sub)
}

// CleanupRevokedTokens removes expired tokens from the revocation cache
func (s *Service) CleanupRevokedTokens() int {
	return s.tokens.Cleanup()
}
