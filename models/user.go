package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role 代表使用者帳號的角色
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User 代表拍賣平台中的一般使用者
// 包含登入憑證與基本的個人資訊
type User struct {
	gorm.Model

	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username       string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"username"`
	Email          string    `gorm:"type:varchar(255)" json:"email"`
	Password       string    `gorm:"type:varchar(255);not null" json:"-"`
	ProfilePicture string    `gorm:"type:text" json:"profilePicture"`
	Role           Role      `gorm:"type:varchar(16);not null;default:USER" json:"role"`

	// 外鍵關聯
	Cars []Car `gorm:"foreignKey:UserID" json:"cars,omitempty"`
	Bids []Bid `gorm:"foreignKey:UserID" json:"bids,omitempty"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
