package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Bid 代表拍賣車輛的一筆出價紀錄
// 出價建立後不可修改，只有 IsWinning 旗標會在被更高出價
// 取代時由競標引擎翻轉；同一輛車同一時間最多只有一筆
// IsWinning 為真的出價
type Bid struct {
	gorm.Model

	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CarID     uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"carId"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"userId"`
	Amount    decimal.Decimal `gorm:"type:numeric;not null;<-:create" json:"amount"`
	IsWinning bool            `gorm:"not null;default:false" json:"isWinning"`

	// 外鍵關聯
	User User `json:"user"`
	Car  Car  `json:"car"`
}

func (b *Bid) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
