package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carhut/auction"
)

type placeBidRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// respondRejection 將競標引擎的驗證拒絕轉成對應的HTTP回應
// 回報是否已處理；儲存層故障交由呼叫端處理
func respondRejection(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, auction.ErrCarNotFound):
		respondError(c, http.StatusNotFound, "Car not found")
	case errors.Is(err, auction.ErrAuctionNotActive):
		respondError(c, http.StatusBadRequest, "Auction is not active")
	case errors.Is(err, auction.ErrCarUnavailable):
		respondError(c, http.StatusBadRequest, "Car is not available for bidding")
	case errors.Is(err, auction.ErrSelfBid):
		respondError(c, http.StatusForbidden, "You cannot bid on your own car")
	case errors.Is(err, auction.ErrBidTooLow):
		// 帶上目前的出價下限，讓前端能提示最低出價金額
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		return false
	}
	return true
}

func parseCarID(c *gin.Context) (uuid.UUID, bool) {
	carID, err := uuid.Parse(c.Param("carID"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid car id")
		return uuid.Nil, false
	}
	return carID, true
}

// PlaceBid 對車輛出價
// (POST /v1/bid/car/:carID)
func (impl *ServerImpl) PlaceBid(c *gin.Context) {
	const op = "PlaceBid"
	carID, ok := parseCarID(c)
	if !ok {
		return
	}
	var request placeBidRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Amount.Sign() <= 0 {
		respondError(c, http.StatusBadRequest, "A positive bid amount is required")
		return
	}
	bid, err := impl.engine.PlaceBid(c.Request.Context(), carID, currentUserID(c), request.Amount)
	if err != nil {
		if respondRejection(c, err) {
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	impl.invalidateCache(c)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"bid":     bid,
	})
}

// CloseAuction 手動結標，僅限管理員
// 未售出（保留價未達或沒有出價）是正常結果，不是錯誤
// (POST /v1/bid/car/:carID/close)
func (impl *ServerImpl) CloseAuction(c *gin.Context) {
	const op = "CloseAuction"
	carID, ok := parseCarID(c)
	if !ok {
		return
	}
	outcome, err := impl.engine.CloseAuction(c.Request.Context(), carID)
	if err != nil {
		if respondRejection(c, err) {
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	impl.invalidateCache(c)
	response := gin.H{
		"success": true,
		"sold":    outcome.Sold,
		"message": outcome.Message,
	}
	if outcome.Sold {
		response["winner"] = gin.H{
			"id":       outcome.Winner.ID,
			"username": outcome.Winner.Username,
		}
		response["winningBid"] = outcome.WinningBid
	}
	c.JSON(http.StatusOK, response)
}

// ListCarBids 列出車輛的所有出價，金額由高到低
// (GET /v1/bid/car/:carID)
func (impl *ServerImpl) ListCarBids(c *gin.Context) {
	const op = "ListCarBids"
	carID, ok := parseCarID(c)
	if !ok {
		return
	}
	bids, err := impl.engine.BidsByCar(c.Request.Context(), carID)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(bids),
		"bids":    bids,
	})
}

// GetHighestBid 取得車輛目前的最高出價
// (GET /v1/bid/car/:carID/highest)
func (impl *ServerImpl) GetHighestBid(c *gin.Context) {
	const op = "GetHighestBid"
	carID, ok := parseCarID(c)
	if !ok {
		return
	}
	bid, err := impl.engine.HighestBid(c.Request.Context(), carID)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	if bid == nil {
		respondError(c, http.StatusNotFound, "No bids for this car")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"bid":     bid,
	})
}

// GetBidStatistics 取得車輛的出價統計
// (GET /v1/bid/car/:carID/statistics)
func (impl *ServerImpl) GetBidStatistics(c *gin.Context) {
	const op = "GetBidStatistics"
	carID, ok := parseCarID(c)
	if !ok {
		return
	}
	stats, err := impl.engine.BidStatistics(c.Request.Context(), carID)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"statistics": stats,
	})
}

// CheckUserBid 回報目前使用者是否對車輛出過價
// (GET /v1/bid/car/:carID/check)
func (impl *ServerImpl) CheckUserBid(c *gin.Context) {
	const op = "CheckUserBid"
	carID, ok := parseCarID(c)
	if !ok {
		return
	}
	hasBid, err := impl.engine.HasUserBid(c.Request.Context(), carID, currentUserID(c))
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"hasBid":  hasBid,
	})
}

// ListMyBids 列出目前使用者的所有出價
// (GET /v1/bid/my-bids)
func (impl *ServerImpl) ListMyBids(c *gin.Context) {
	const op = "ListMyBids"
	bids, err := impl.engine.BidsByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(bids),
		"bids":    bids,
	})
}

// ListMyWinningBids 列出目前使用者得標中的出價
// (GET /v1/bid/my-winning-bids)
func (impl *ServerImpl) ListMyWinningBids(c *gin.Context) {
	const op = "ListMyWinningBids"
	bids, err := impl.engine.WinningBidsByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(bids),
		"bids":    bids,
	})
}
