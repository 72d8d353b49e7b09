package share

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrLinkNotFound = errors.New("share link not found")

// LinkStore persists short links.
type LinkStore interface {
	CreateLink(ctx context.Context, encoded string) (Link, error)
	FindLink(ctx context.Context, id uuid.UUID) (Link, error)
}

type GormStore struct {
	DB *gorm.DB
}

func (s GormStore) CreateLink(ctx context.Context, encoded string) (Link, error) {
	link := Link{ID: uuid.New(), Config: encoded}
	if err := s.DB.WithContext(ctx).Create(&link).Error; err != nil {
		return Link{}, err
	}
	return link, nil
}

func (s GormStore) FindLink(ctx context.Context, id uuid.UUID) (Link, error) {
	var link Link
	err := s.DB.WithContext(ctx).First(&link, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Link{}, ErrLinkNotFound
	}
	if err != nil {
		return Link{}, err
	}
	return link, nil
}
