package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"carhut/models"
)

type carRequest struct {
	Name         string          `json:"name" binding:"required"`
	CarModel     string          `json:"model" binding:"required"`
	Year         int             `json:"year" binding:"required"`
	Price        decimal.Decimal `json:"price" binding:"required"`
	BrandID      uuid.UUID       `json:"brandId" binding:"required"`
	Description  string          `json:"description"`
	Mileage      int             `json:"mileage"`
	ImageURL     string          `json:"imageUrl"`
	Images       []string        `json:"images"`
	Location     string          `json:"location"`
	FuelType     string          `json:"fuelType"`
	Transmission string          `json:"transmission"`
	Color        string          `json:"color"`
	BodyType     string          `json:"bodyType"`
	VIN          string          `json:"vin"`
	LicensePlate string          `json:"licensePlate"`
	IsFeatured   bool            `json:"isFeatured"`

	AuctionStartDate *time.Time       `json:"auctionStartDate"`
	AuctionEndDate   *time.Time       `json:"auctionEndDate"`
	ReservePrice     *decimal.Decimal `json:"reservePrice"`
	BuyNowPrice      *decimal.Decimal `json:"buyNowPrice"`
}

// validateAuctionFields 檢查拍賣欄位的合法性
// 時間窗必須兩端都有設定、開始早於結束且不能已經結束
func (r *carRequest) validateAuctionFields(now time.Time) (string, bool) {
	if (r.AuctionStartDate == nil) != (r.AuctionEndDate == nil) {
		return "Auction start and end dates must both be set", false
	}
	if r.AuctionStartDate != nil {
		if !r.AuctionStartDate.Before(*r.AuctionEndDate) {
			return "Auction start date must be before end date", false
		}
		if r.AuctionEndDate.Before(now) {
			return "Auction end date must be in the future", false
		}
	}
	if r.AuctionStartDate == nil && r.ReservePrice != nil {
		return "Reserve price requires an auction window", false
	}
	if r.ReservePrice != nil && r.ReservePrice.Cmp(r.Price) < 0 {
		return "Reserve price must not be lower than the starting price", false
	}
	if r.Price.Sign() <= 0 {
		return "Price must be positive", false
	}
	return "", true
}

// ListCars 列出刊登的車輛
// (GET /v1/car)
func (impl *ServerImpl) ListCars(c *gin.Context) {
	const op = "ListCars"
	query := impl.db.WithContext(c.Request.Context()).
		Model(&models.Car{}).
		Preload("Brand").Preload("User")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if brandID := c.Query("brandId"); brandID != "" {
		query = query.Where("brand_id = ?", brandID)
	}
	if featured := c.Query("featured"); featured != "" {
		query = query.Where("is_featured = ?", featured == "true")
	}
	if search := c.Query("search"); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("name LIKE ? OR model LIKE ?", pattern, pattern)
	}
	query = query.Where("is_active = ?", true)

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var cars []models.Car
	if result := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&cars); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to list cars, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(cars),
		"cars":    cars,
	})
}

// ListActiveAuctions 列出拍賣進行中的車輛
// (GET /v1/car/active-auctions)
func (impl *ServerImpl) ListActiveAuctions(c *gin.Context) {
	const op = "ListActiveAuctions"
	now := time.Now()
	var cars []models.Car
	result := impl.db.WithContext(c.Request.Context()).
		Preload("Brand").Preload("User").
		Where("status = ? AND is_active = ?", models.CarStatusAvailable, true).
		Where("auction_start_date <= ? AND auction_end_date >= ?", now, now).
		Where("auction_closed_at IS NULL").
		Order("auction_end_date ASC").
		Find(&cars)
	if result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to list active auctions, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(cars),
		"cars":    cars,
	})
}

// ListMyCars 列出目前使用者刊登的車輛
// (GET /v1/car/user/my-listings)
func (impl *ServerImpl) ListMyCars(c *gin.Context) {
	const op = "ListMyCars"
	var cars []models.Car
	result := impl.db.WithContext(c.Request.Context()).
		Preload("Brand").
		Where("user_id = ?", currentUserID(c)).
		Order("created_at DESC").
		Find(&cars)
	if result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to list cars, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(cars),
		"cars":    cars,
	})
}

// GetCar 取得單一車輛的完整資訊與出價紀錄
// (GET /v1/car/:id)
func (impl *ServerImpl) GetCar(c *gin.Context) {
	const op = "GetCar"
	carID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid car id")
		return
	}
	var car models.Car
	result := impl.db.WithContext(c.Request.Context()).
		Preload("Brand").Preload("User").
		Preload("Bids", func(db *gorm.DB) *gorm.DB {
			return db.Order("amount DESC")
		}).
		Preload("Bids.User").
		First(&car, "id = ?", carID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "Car not found")
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find car, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"car":     car,
	})
}

// CreateCar 刊登新的車輛
// (POST /v1/car)
func (impl *ServerImpl) CreateCar(c *gin.Context) {
	const op = "CreateCar"
	var request carRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid car payload")
		return
	}
	if message, ok := request.validateAuctionFields(time.Now()); !ok {
		respondError(c, http.StatusBadRequest, message)
		return
	}
	// 檢查品牌是否存在
	var brand models.Brand
	if result := impl.db.WithContext(c.Request.Context()).First(&brand, "id = ?", request.BrandID); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusBadRequest, "Unknown brand")
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find brand, err=%w", op, result.Error))
		return
	}

	car := models.Car{
		UserID:           currentUserID(c),
		BrandID:          request.BrandID,
		Name:             request.Name,
		CarModel:         request.CarModel,
		Year:             request.Year,
		Price:            request.Price,
		Description:      impl.htmlChecker.Sanitize(request.Description),
		Mileage:          request.Mileage,
		ImageURL:         request.ImageURL,
		Images:           request.Images,
		Location:         request.Location,
		FuelType:         request.FuelType,
		Transmission:     request.Transmission,
		Color:            request.Color,
		BodyType:         request.BodyType,
		VIN:              request.VIN,
		LicensePlate:     request.LicensePlate,
		IsActive:         true,
		IsFeatured:       request.IsFeatured,
		Status:           models.CarStatusAvailable,
		AuctionStartDate: request.AuctionStartDate,
		AuctionEndDate:   request.AuctionEndDate,
		ReservePrice:     request.ReservePrice,
		BuyNowPrice:      request.BuyNowPrice,
	}
	if result := impl.db.WithContext(c.Request.Context()).Create(&car); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to create car, err=%w", op, result.Error))
		return
	}
	impl.invalidateCache(c)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"car":     car,
	})
}

// UpdateCar 更新車輛刊登，僅限刊登者本人
// 已經有人出價後不允許修改價格與拍賣時間窗
// (PUT /v1/car/:id)
func (impl *ServerImpl) UpdateCar(c *gin.Context) {
	const op = "UpdateCar"
	carID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid car id")
		return
	}
	var car models.Car
	result := impl.db.WithContext(c.Request.Context()).First(&car, "id = ?", carID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "Car not found")
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find car, err=%w", op, result.Error))
		return
	}
	if car.UserID != currentUserID(c) {
		respondError(c, http.StatusForbidden, "Only the owner can update this listing")
		return
	}
	if car.Status == models.CarStatusSold {
		respondError(c, http.StatusBadRequest, "Sold listings cannot be updated")
		return
	}
	var request carRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid car payload")
		return
	}
	if message, ok := request.validateAuctionFields(time.Now()); !ok {
		respondError(c, http.StatusBadRequest, message)
		return
	}

	var bidCount int64
	if result := impl.db.WithContext(c.Request.Context()).Model(&models.Bid{}).
		Where("car_id = ?", carID).Count(&bidCount); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to count bids, err=%w", op, result.Error))
		return
	}
	if bidCount > 0 {
		sameWindow := equalTimePtr(car.AuctionStartDate, request.AuctionStartDate) &&
			equalTimePtr(car.AuctionEndDate, request.AuctionEndDate)
		if !car.Price.Equal(request.Price) || !sameWindow {
			respondError(c, http.StatusBadRequest, "Price and auction window cannot change after bidding has started")
			return
		}
	}

	car.BrandID = request.BrandID
	car.Name = request.Name
	car.CarModel = request.CarModel
	car.Year = request.Year
	car.Price = request.Price
	car.Description = impl.htmlChecker.Sanitize(request.Description)
	car.Mileage = request.Mileage
	car.ImageURL = request.ImageURL
	car.Images = request.Images
	car.Location = request.Location
	car.FuelType = request.FuelType
	car.Transmission = request.Transmission
	car.Color = request.Color
	car.BodyType = request.BodyType
	car.VIN = request.VIN
	car.LicensePlate = request.LicensePlate
	car.IsFeatured = request.IsFeatured
	car.AuctionStartDate = request.AuctionStartDate
	car.AuctionEndDate = request.AuctionEndDate
	car.ReservePrice = request.ReservePrice
	car.BuyNowPrice = request.BuyNowPrice

	if result := impl.db.WithContext(c.Request.Context()).Save(&car); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to update car, err=%w", op, result.Error))
		return
	}
	impl.invalidateCache(c)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"car":     car,
	})
}

// DeleteCar 下架車輛刊登，刊登者本人或管理員可操作
// (DELETE /v1/car/:id)
func (impl *ServerImpl) DeleteCar(c *gin.Context) {
	const op = "DeleteCar"
	carID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid car id")
		return
	}
	var car models.Car
	result := impl.db.WithContext(c.Request.Context()).First(&car, "id = ?", carID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "Car not found")
			return
		}
		impl.internalError(c, fmt.Errorf("[%s] Fail to find car, err=%w", op, result.Error))
		return
	}
	if car.UserID != currentUserID(c) && currentRole(c) != models.RoleAdmin {
		respondError(c, http.StatusForbidden, "Only the owner or an admin can delete this listing")
		return
	}
	if result := impl.db.WithContext(c.Request.Context()).Delete(&car); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to delete car, err=%w", op, result.Error))
		return
	}
	impl.removeCarImages(c, car)
	impl.invalidateCache(c)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Car deleted",
	})
}

// removeCarImages 清理刊登在S3上的圖片
// 清理失敗只記錄不影響下架結果
func (impl *ServerImpl) removeCarImages(c *gin.Context, car models.Car) {
	if impl.s3Operator == nil {
		return
	}
	for _, raw := range append([]string{car.ImageURL}, car.Images...) {
		if raw == "" {
			continue
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		key := strings.TrimPrefix(parsed.Path, "/")
		if key == "" {
			continue
		}
		if err := impl.s3Operator.DeleteFileFromS3(c.Request.Context(), key); err != nil {
			slog.Warn("Fail to delete car image", slog.String("key", key), slog.Any("error", err))
		}
	}
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
