package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Brand 代表車輛品牌
type Brand struct {
	gorm.Model

	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	LogoURL string    `gorm:"type:text" json:"logoUrl"`
}

func (b *Brand) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
