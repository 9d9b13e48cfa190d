package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"carhut/models"
)

// Engine 為競標與結標引擎
// 負責出價的驗證與寫入、拍賣的結標，以及各種出價查詢視圖；
// 資料庫連線在建構時注入，引擎本身不持有任何全域狀態
type Engine struct {
	db     *gorm.DB
	locks  LockProvider
	clock  func() time.Time
	logger *slog.Logger
}

type Option func(*Engine)

// WithLockProvider 設定以車輛為單位的互斥鎖來源
func WithLockProvider(p LockProvider) Option {
	return func(e *Engine) {
		e.locks = p
	}
}

// WithClock 設定引擎使用的時鐘
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger 設定引擎使用的logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	keyed := NewKeyedMutex()
	e := &Engine{
		db:     db,
		locks:  keyed.Get,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// bidLockKey 回傳車輛競標互斥鎖的key
func bidLockKey(carID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:lock", carID)
}

// PlaceBid 對車輛提出一筆新的出價
// 整個 read-validate-write 流程會先取得該車輛的互斥鎖，
// 再於單一交易內完成，確保同一輛車的出價彼此序列化：
//   - 1. 檢查車輛是否存在
//   - 2. 檢查拍賣時間窗是否涵蓋現在
//   - 3. 檢查車輛狀態是否為 AVAILABLE
//   - 4. 檢查出價者不是賣家本人
//   - 5. 檢查出價金額是否嚴格高於目前下限（得標中出價或起標價）
//   - 6. 保留價僅記錄不拒絕，是否達標於結標時才判斷
//
// 成功時取消所有舊出價的得標旗標、寫入新的得標出價，
// 並在同一個交易內更新車輛快取的 current_bid
func (e *Engine) PlaceBid(ctx context.Context, carID, bidderID uuid.UUID, amount decimal.Decimal) (*models.Bid, error) {
	const op = "Engine.PlaceBid"

	// 取得車輛的出價鎖
	mutex := e.locks(bidLockKey(carID))
	lockCtx, err := mutex.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to acquire bid lock, err=%w", op, err)
	}
	defer func() {
		if _, err := mutex.Unlock(); err != nil {
			e.logger.Warn("Fail to release bid lock", slog.String("op", op), slog.Any("error", err))
		}
	}()

	var bid models.Bid
	err = e.db.WithContext(lockCtx).Transaction(func(tx *gorm.DB) error {
		// 檢查車輛是否存在
		car := models.Car{ID: carID}
		if result := tx.First(&car); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrCarNotFound
			}
			return fmt.Errorf("fail to find car, err=%w", result.Error)
		}
		// 檢查拍賣時間窗；沒有設定時間窗的刊登不開放競標
		now := e.clock()
		window, ok := car.AuctionWindow()
		if !ok || !window.Contains(now) {
			return ErrAuctionNotActive
		}
		// 檢查車輛狀態
		if car.Status != models.CarStatusAvailable {
			return ErrCarUnavailable
		}
		// 檢查出價者不是賣家本人
		if car.UserID == bidderID {
			return ErrSelfBid
		}
		// 出價下限為目前得標中的出價，若還沒有任何出價則為起標價格
		floor := car.Price
		var top models.Bid
		result := tx.Where("car_id = ?", carID).
			Order("amount DESC, created_at ASC").
			First(&top)
		if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("fail to find highest bid, err=%w", result.Error)
		}
		if result.Error == nil {
			floor = top.Amount
		}
		if amount.Cmp(floor) <= 0 {
			return &BidTooLowError{Floor: floor}
		}
		// 保留價在出價階段僅供參考，不會拒絕低於保留價的出價
		if car.ReservePrice != nil && amount.Cmp(*car.ReservePrice) < 0 {
			e.logger.Info("Bid does not meet reserve price",
				slog.String("carID", carID.String()),
				slog.String("bidderID", bidderID.String()),
				slog.String("amount", amount.String()))
		}
		// 取消所有舊出價的得標旗標
		if result := tx.Model(&models.Bid{}).Where("car_id = ?", carID).
			Update("is_winning", false); result.Error != nil {
			return fmt.Errorf("fail to clear winning flags, err=%w", result.Error)
		}
		// 寫入新的得標出價
		bid = models.Bid{
			CarID:     carID,
			UserID:    bidderID,
			Amount:    amount,
			IsWinning: true,
		}
		if result := tx.Create(&bid); result.Error != nil {
			return fmt.Errorf("fail to create bid, err=%w", result.Error)
		}
		// 更新車輛快取的最高出價
		if result := tx.Model(&car).Update("current_bid", amount); result.Error != nil {
			return fmt.Errorf("fail to update current bid, err=%w", result.Error)
		}
		return nil
	})
	if err != nil {
		if IsRejection(err) {
			return nil, err
		}
		return nil, fmt.Errorf("[%s] Fail to place bid, err=%w", op, err)
	}

	// 重新載入出價並帶上出價者資訊
	if result := e.db.WithContext(ctx).Preload("User").First(&bid, "id = ?", bid.ID); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to load created bid, err=%w", op, result.Error)
	}
	e.logger.Info("Higher bid occurs",
		slog.String("carID", carID.String()),
		slog.String("bidderID", bidderID.String()),
		slog.String("amount", amount.String()))
	return &bid, nil
}

// Outcome 代表一次結標的結果
// ReserveNotMet 與 NoBidsReceived 是正常的未售出結果，不是錯誤
type Outcome struct {
	Sold       bool
	Message    string
	Winner     *models.User
	WinningBid *decimal.Decimal
}

// CloseAuction 對車輛的拍賣進行結標
// 與出價共用同一把車輛互斥鎖，結標不會讀到寫入一半的出價，
// 出價也不會寫入剛結標完的車輛；流程：
//   - 1. 取得最高出價（金額高者優先，同額先出價者得標）
//   - 2. 有保留價且最高出價未達（或沒有出價）時結果為未售出，狀態回到 AVAILABLE
//   - 3. 沒有保留價也沒有任何出價時結果為未售出，狀態回到 AVAILABLE
//   - 4. 其餘情況結果為售出，狀態轉為 SOLD
//
// 結標是可重入的：再次呼叫會從出價紀錄推導出同樣的結果
func (e *Engine) CloseAuction(ctx context.Context, carID uuid.UUID) (Outcome, error) {
	const op = "Engine.CloseAuction"

	mutex := e.locks(bidLockKey(carID))
	lockCtx, err := mutex.Lock(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("[%s] Fail to acquire bid lock, err=%w", op, err)
	}
	defer func() {
		if _, err := mutex.Unlock(); err != nil {
			e.logger.Warn("Fail to release bid lock", slog.String("op", op), slog.Any("error", err))
		}
	}()

	var outcome Outcome
	err = e.db.WithContext(lockCtx).Transaction(func(tx *gorm.DB) error {
		// 檢查車輛是否存在
		car := models.Car{ID: carID}
		if result := tx.First(&car); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrCarNotFound
			}
			return fmt.Errorf("fail to find car, err=%w", result.Error)
		}
		// 取得最高出價
		var top models.Bid
		hasBid := true
		result := tx.Preload("User").Where("car_id = ?", carID).
			Order("amount DESC, created_at ASC").
			First(&top)
		if result.Error != nil {
			if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("fail to find highest bid, err=%w", result.Error)
			}
			hasBid = false
		}

		now := e.clock()
		finish := func(status models.CarStatus) error {
			updates := map[string]any{
				"status":            status,
				"auction_closed_at": now,
			}
			if result := tx.Model(&car).Updates(updates); result.Error != nil {
				return fmt.Errorf("fail to update car status, err=%w", result.Error)
			}
			return nil
		}

		// 有保留價且最高出價未達保留價（或沒有任何出價）
		if car.ReservePrice != nil && (!hasBid || top.Amount.Cmp(*car.ReservePrice) < 0) {
			outcome = Outcome{Sold: false, Message: "Reserve price not met"}
			return finish(models.CarStatusAvailable)
		}
		// 沒有任何出價
		if !hasBid {
			outcome = Outcome{Sold: false, Message: "No bids received"}
			return finish(models.CarStatusAvailable)
		}
		// 售出
		outcome = Outcome{
			Sold:       true,
			Message:    "Auction closed successfully",
			Winner:     &top.User,
			WinningBid: &top.Amount,
		}
		return finish(models.CarStatusSold)
	})
	if err != nil {
		if IsRejection(err) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("[%s] Fail to close auction, err=%w", op, err)
	}
	e.logger.Info("Auction closed",
		slog.String("carID", carID.String()),
		slog.Bool("sold", outcome.Sold),
		slog.String("message", outcome.Message))
	return outcome, nil
}
