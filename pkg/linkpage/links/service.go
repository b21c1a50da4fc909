package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mikepea/linkpage/pkg/linkpage/linkurl"
	"github.com/mikepea/linkpage/pkg/linkpage/models"
	"github.com/mikepea/linkpage/pkg/linkpage/shortid"
	"gorm.io/gorm"
)

// MaxAttempts bounds short code generation per link.
const MaxAttempts = 5

var (
	ErrCodeSpaceExhausted = errors.New("could not find a free short code")
	ErrProfileNotFound    = errors.New("profile not found")
)

// Service creates and lists links
type Service struct {
	db      *gorm.DB
	newCode func() (string, error)
}

// NewService creates a link service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, newCode: shortid.New}
}

// AddLink validates the destination and stores a new link under ownerID with
// a fresh short code. Identical calls create distinct links.
func (s *Service) AddLink(ctx context.Context, ownerID, title, rawURL string) (*models.Link, error) {
	return s.AddLinkAt(ctx, ownerID, title, rawURL, time.Time{})
}

// AddLinkAt is AddLink with an explicit creation time, used when importing.
// A zero createdAt means now.
func (s *Service) AddLinkAt(ctx context.Context, ownerID, title, rawURL string, createdAt time.Time) (*models.Link, error) {
	if err := linkurl.ValidateDestination(rawURL); err != nil {
		return nil, err
	}

	link := models.Link{
		CreatedAt: createdAt,
		UserID:    ownerID,
		Title:     strings.TrimSpace(title),
		URL:       strings.TrimSpace(rawURL),
	}

	db := s.db.WithContext(ctx)
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}

		var taken int64
		if err := db.Model(&models.Link{}).Where("short_id = ?", code).Count(&taken).Error; err != nil {
			return nil, fmt.Errorf("check short code: %w", err)
		}
		if taken > 0 {
			continue
		}

		link.ID = 0
		link.ShortID = code
		err = db.Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&models.Link{}).Where("user_id = ?", ownerID).Count(&count).Error; err != nil {
				return err
			}
			link.OrderIndex = int(count)
			return tx.Create(&link).Error
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race for the same code.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create link: %w", err)
		}
		return &link, nil
	}

	return nil, ErrCodeSpaceExhausted
}

// ListByOwner returns a user's links in page order
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]models.Link, error) {
	var links []models.Link
	err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("order_index ASC, id ASC").
		Find(&links).Error
	return links, err
}

// ByUsername loads a public page. Unknown usernames return ErrProfileNotFound;
// a known user with no links returns an empty slice.
func (s *Service) ByUsername(ctx context.Context, username string) (*models.Profile, []models.Link, error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrProfileNotFound
		}
		return nil, nil, err
	}

	links, err := s.ListByOwner(ctx, profile.ID)
	if err != nil {
		return nil, nil, err
	}
	return &profile, links, nil
}
