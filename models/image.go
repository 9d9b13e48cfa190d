package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Image 代表使用者上傳的圖片紀錄
// 用於稽核與上傳頻率限制
type Image struct {
	gorm.Model

	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UploaderID uuid.UUID `gorm:"type:uuid;not null;<-:create" json:"uploaderId"`
	URL        string    `gorm:"type:text;not null;<-:create" json:"url"`

	Uploader *User `gorm:"foreignKey:UploaderID" json:"uploader,omitempty"`
}

func (i *Image) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
