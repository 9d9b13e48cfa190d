package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CarStatus 代表刊登車輛的銷售狀態
type CarStatus string

const (
	CarStatusAvailable CarStatus = "AVAILABLE"
	CarStatusSold      CarStatus = "SOLD"
)

// Car 代表拍賣平台中刊登的車輛
// 包含車輛資訊、底價、目前最高出價、拍賣時間窗等資訊；
// 沒有設定拍賣時間窗的車輛為一口價刊登，不開放競標
type Car struct {
	gorm.Model

	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID       `gorm:"type:uuid;not null;<-:create" json:"userId"`
	BrandID      uuid.UUID       `gorm:"type:uuid;not null" json:"brandId"`
	Name         string          `gorm:"type:varchar(255);not null" json:"name"`
	CarModel     string          `gorm:"column:model;type:varchar(255);not null" json:"model"`
	Year         int             `gorm:"type:integer;not null" json:"year"`
	Price        decimal.Decimal `gorm:"type:numeric;not null" json:"price"`
	Description  string          `gorm:"type:text" json:"description"`
	Mileage      int             `gorm:"type:integer;not null" json:"mileage"`
	ImageURL     string          `gorm:"type:text" json:"imageUrl"`
	Images       []string        `gorm:"serializer:json" json:"images"`
	Location     string          `gorm:"type:varchar(255)" json:"location"`
	FuelType     string          `gorm:"type:varchar(32)" json:"fuelType"`
	Transmission string          `gorm:"type:varchar(32)" json:"transmission"`
	Color        string          `gorm:"type:varchar(64)" json:"color"`
	BodyType     string          `gorm:"type:varchar(32)" json:"bodyType"`
	VIN          string          `gorm:"type:varchar(17)" json:"vin"`
	LicensePlate string          `gorm:"type:varchar(16)" json:"licensePlate"`
	IsActive     bool            `gorm:"not null;default:true" json:"isActive"`
	IsFeatured   bool            `gorm:"not null;default:false" json:"isFeatured"`
	Status       CarStatus       `gorm:"type:varchar(16);not null;default:AVAILABLE" json:"status"`

	// 拍賣相關欄位
	AuctionStartDate *time.Time       `gorm:"type:timestamp" json:"auctionStartDate"`
	AuctionEndDate   *time.Time       `gorm:"type:timestamp" json:"auctionEndDate"`
	ReservePrice     *decimal.Decimal `gorm:"type:numeric" json:"reservePrice,omitempty"`
	BuyNowPrice      *decimal.Decimal `gorm:"type:numeric" json:"buyNowPrice,omitempty"`
	// CurrentBid 是得標中出價金額的快取，僅由競標引擎在同一個
	// 交易中與出價紀錄一起更新
	CurrentBid      *decimal.Decimal `gorm:"type:numeric" json:"currentBid"`
	AuctionClosedAt *time.Time       `gorm:"type:timestamp" json:"auctionClosedAt,omitempty"`

	// 外鍵關聯
	User  User  `json:"user"`
	Brand Brand `json:"brand"`
	Bids  []Bid `json:"bids,omitempty"`
}

func (c *Car) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// AuctionWindow 代表一段有效的拍賣時間窗
type AuctionWindow struct {
	Start time.Time
	End   time.Time
}

// Contains 回報時間 t 是否落在拍賣時間窗內（含邊界）
func (w AuctionWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// AuctionWindow 回傳車輛的拍賣時間窗
// 只有開始與結束時間都有設定時才視為拍賣刊登，
// 避免驗證邏輯散落各處的 nil 檢查
func (c *Car) AuctionWindow() (AuctionWindow, bool) {
	if c.AuctionStartDate == nil || c.AuctionEndDate == nil {
		return AuctionWindow{}, false
	}
	return AuctionWindow{Start: *c.AuctionStartDate, End: *c.AuctionEndDate}, true
}
