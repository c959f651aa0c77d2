package auth

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMissingCredentials = errors.New("email and password required")
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownAccount     = errors.New("account not found")
)

// Account is the slice of a user record the login flow needs.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	RoleID       int64
}

// Directory is the narrow user-store surface the auth service depends on.
type Directory interface {
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	RoleName(ctx context.Context, roleID int64) (string, error)
}

type LoginResult struct {
	Token    string
	RoleName string
}

// Service answers login requests: credential check then token issuance.
type Service struct {
	dir    Directory
	issuer *TokenIssuer
}

func NewService(dir Directory, issuer *TokenIssuer) *Service {
	return &Service{dir: dir, issuer: issuer}
}

// Login either fully succeeds or fully fails; there is no partial state and
// no retry. Unknown-email and wrong-password surface identically.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	acct, err := s.dir.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUnknownAccount) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	if !CheckPassword(acct.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	roleName, err := s.dir.RoleName(ctx, acct.RoleID)
	if err != nil {
		return nil, fmt.Errorf("load role: %w", err)
	}

	token, err := s.issuer.Issue(acct.ID, acct.Email, roleName)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &LoginResult{Token: token, RoleName: roleName}, nil
}
