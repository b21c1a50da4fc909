// Package identity delegates credential checks to an identity provider.
// The rest of the service only ever sees the provider's user id.
package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

// MinPasswordLength matches the hosted provider's default policy.
const MinPasswordLength = 6

// User is what a provider hands back after signup or sign-in.
type User struct {
	ID    string
	Email string
}

// Provider verifies credentials and issues user ids.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (User, error)
	SignIn(ctx context.Context, email, password string) (User, error)
}

// Remover is implemented by providers that can take back an identity they
// issued.
type Remover interface {
	Remove(ctx context.Context, userID string) error
}

// RejectedError carries a provider's own explanation for a refused request.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}
