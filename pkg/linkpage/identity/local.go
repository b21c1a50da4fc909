package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mikepea/linkpage/pkg/linkpage/models"
	"gorm.io/gorm"
)

// LocalProvider keeps credentials in the service's own store.
type LocalProvider struct {
	db *gorm.DB
}

// NewLocalProvider creates a provider backed by the credentials table
func NewLocalProvider(db *gorm.DB) *LocalProvider {
	return &LocalProvider{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers a new credential and returns its fresh user id.
func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if len(password) < MinPasswordLength {
		return User{}, ErrWeakPassword
	}

	db := p.db.WithContext(ctx)

	var existing models.Credential
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return User{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("look up credential: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	cred := models.Credential{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := db.Create(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("create credential: %w", err)
	}

	return User{ID: cred.ID, Email: cred.Email}, nil
}

// SignIn checks the password against the stored hash.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (User, error) {
	var cred models.Credential
	err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("look up credential: %w", err)
	}

	if !CheckPassword(password, cred.PasswordHash) {
		return User{}, ErrInvalidCredentials
	}
	return User{ID: cred.ID, Email: cred.Email}, nil
}

// Remove deletes the credential for userID. A missing credential is not an
// error.
func (p *LocalProvider) Remove(ctx context.Context, userID string) error {
	if err := p.db.WithContext(ctx).Delete(&models.Credential{}, "id = ?", userID).Error; err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
