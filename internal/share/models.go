package share

import (
	"time"

	"github.com/google/uuid"
)

// Link is a persisted short link pointing at an encoded Config.
type Link struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Config    string    `gorm:"type:text;not null" json:"config"`
	CreatedAt time.Time `json:"created_at"`
}

func (Link) TableName() string { return "share.links" }
