package auction

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"carhut/models"
)

// 查詢視圖
// 這些查詢只讀取一致性的快照，不持有車輛互斥鎖；
// 落後一次寫入的結果是可以接受的

// HighestBid 回傳車輛目前的最高出價
// 金額高者優先，同額時先出價者優先；沒有任何出價時回傳 nil
func (e *Engine) HighestBid(ctx context.Context, carID uuid.UUID) (*models.Bid, error) {
	const op = "Engine.HighestBid"
	var bid models.Bid
	result := e.db.WithContext(ctx).Preload("User").
		Where("car_id = ?", carID).
		Order("amount DESC, created_at ASC").
		First(&bid)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("[%s] Fail to find highest bid, err=%w", op, result.Error)
	}
	return &bid, nil
}

// BidsByCar 回傳車輛的所有出價，金額由高到低
func (e *Engine) BidsByCar(ctx context.Context, carID uuid.UUID) ([]models.Bid, error) {
	const op = "Engine.BidsByCar"
	var bids []models.Bid
	result := e.db.WithContext(ctx).Preload("User").
		Where("car_id = ?", carID).
		Order("amount DESC").
		Find(&bids)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list bids, err=%w", op, result.Error)
	}
	return bids, nil
}

// BidsByUser 回傳使用者的所有出價，新的在前
func (e *Engine) BidsByUser(ctx context.Context, userID uuid.UUID) ([]models.Bid, error) {
	const op = "Engine.BidsByUser"
	var bids []models.Bid
	result := e.db.WithContext(ctx).
		Preload("Car").Preload("Car.Brand").Preload("Car.User").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&bids)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list bids, err=%w", op, result.Error)
	}
	return bids, nil
}

// WinningBidsByUser 回傳使用者目前得標中的出價，新的在前
func (e *Engine) WinningBidsByUser(ctx context.Context, userID uuid.UUID) ([]models.Bid, error) {
	const op = "Engine.WinningBidsByUser"
	var bids []models.Bid
	result := e.db.WithContext(ctx).
		Preload("Car").Preload("Car.Brand").Preload("Car.User").
		Where("user_id = ? AND is_winning = ?", userID, true).
		Order("created_at DESC").
		Find(&bids)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list winning bids, err=%w", op, result.Error)
	}
	return bids, nil
}

// HasUserBid 回報使用者是否對車輛出過價
func (e *Engine) HasUserBid(ctx context.Context, carID, userID uuid.UUID) (bool, error) {
	const op = "Engine.HasUserBid"
	var count int64
	result := e.db.WithContext(ctx).Model(&models.Bid{}).
		Where("car_id = ? AND user_id = ?", carID, userID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("[%s] Fail to count bids, err=%w", op, result.Error)
	}
	return count > 0, nil
}

// Statistics 是單一車輛的出價統計
type Statistics struct {
	TotalBids     int64           `json:"totalBids"`
	UniqueBidders int64           `json:"uniqueBidders"`
	HighestBid    decimal.Decimal `json:"highestBid"`
	LowestBid     decimal.Decimal `json:"lowestBid"`
	AverageBid    decimal.Decimal `json:"averageBid"`
}

// BidStatistics 回傳車輛的出價統計
// 平均出價四捨五入到小數點後兩位；沒有出價時各項皆為零
func (e *Engine) BidStatistics(ctx context.Context, carID uuid.UUID) (Statistics, error) {
	const op = "Engine.BidStatistics"
	var amounts []decimal.Decimal
	result := e.db.WithContext(ctx).Model(&models.Bid{}).
		Where("car_id = ?", carID).
		Pluck("amount", &amounts)
	if result.Error != nil {
		return Statistics{}, fmt.Errorf("[%s] Fail to load bid amounts, err=%w", op, result.Error)
	}

	stats := Statistics{TotalBids: int64(len(amounts))}
	if len(amounts) > 0 {
		sum := decimal.Zero
		stats.HighestBid = amounts[0]
		stats.LowestBid = amounts[0]
		for _, amount := range amounts {
			sum = sum.Add(amount)
			if amount.Cmp(stats.HighestBid) > 0 {
				stats.HighestBid = amount
			}
			if amount.Cmp(stats.LowestBid) < 0 {
				stats.LowestBid = amount
			}
		}
		stats.AverageBid = sum.Div(decimal.NewFromInt(stats.TotalBids)).Round(2)
	}

	result = e.db.WithContext(ctx).Model(&models.Bid{}).
		Where("car_id = ?", carID).
		Distinct("user_id").
		Count(&stats.UniqueBidders)
	if result.Error != nil {
		return Statistics{}, fmt.Errorf("[%s] Fail to count unique bidders, err=%w", op, result.Error)
	}
	return stats, nil
}
