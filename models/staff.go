package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StaffRole 代表後台人員的角色
type StaffRole string

const (
	StaffRoleAdmin     StaffRole = "ADMIN"
	StaffRoleModerator StaffRole = "MODERATOR"
)

// Staff 代表平台的後台管理人員
// 與一般使用者分開儲存，不能出價或刊登商品
type Staff struct {
	gorm.Model

	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username       string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"username"`
	Email          string    `gorm:"type:varchar(255)" json:"email"`
	Password       string    `gorm:"type:varchar(255);not null" json:"-"`
	ProfilePicture string    `gorm:"type:text" json:"profilePicture"`
	Role           StaffRole `gorm:"type:varchar(16);not null;default:MODERATOR" json:"role"`
}

func (s *Staff) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
