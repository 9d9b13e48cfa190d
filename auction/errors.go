package auction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// 出價與結標時可能發生的驗證拒絕
// 這些錯誤會被轉換為用戶端錯誤回應，不會被當作伺服器故障記錄
var (
	ErrCarNotFound      = errors.New("car not found")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrCarUnavailable   = errors.New("car is not available for bidding")
	ErrSelfBid          = errors.New("you cannot bid on your own car")
	ErrBidTooLow        = errors.New("bid is below the current floor")
	ErrNotLocked        = errors.New("mutex is not locked")
)

// BidTooLowError 代表出價未超過目前出價下限
// 帶有下限金額，讓錯誤訊息能告知出價者最少要出多少
type BidTooLowError struct {
	Floor decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be higher than current bid of $%s", e.Floor.String())
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

// IsRejection 回報 err 是否為競標的驗證拒絕
// 驗證拒絕以 4xx 回應處理，其餘錯誤視為儲存層故障
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrCarNotFound,
		ErrAuctionNotActive,
		ErrCarUnavailable,
		ErrSelfBid,
		ErrBidTooLow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
