package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	internalS3 "carhut/adapters/s3"
	"carhut/models"
)

// 單張車輛圖片的大小上限
const maxImageSize = 5 << 20

// UploadImage 上傳車輛圖片
// (POST /v1/image)
func (impl *ServerImpl) UploadImage(c *gin.Context) {
	const op = "UploadImage"
	userID := currentUserID(c)

	// 檢查是否達到上傳限制
	if impl.config.S3.UploadLimitPerHour > 0 {
		var uploadedCount int64
		result := impl.db.WithContext(c.Request.Context()).Model(&models.Image{}).
			Where("uploader_id = ? AND created_at > ?", userID, time.Now().Add(-1*time.Hour)).
			Count(&uploadedCount)
		if result.Error != nil {
			impl.internalError(c, fmt.Errorf("[%s] Fail to count uploaded images, err=%w", op, result.Error))
			return
		}
		if uploadedCount >= impl.config.S3.UploadLimitPerHour {
			respondError(c, http.StatusTooManyRequests, "Hourly upload limit reached")
			return
		}
	}

	// 限制圖片
	// 	1. 小於5MB
	// 	2. MIME類型為不包含腳本的圖片檔案
	body := internalS3.NewMaxSizeReader(c.Request.Body, maxImageSize)
	file, err := io.ReadAll(body)
	if errors.As(err, &internalS3.ErrReachLimitType) {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to read image, err=%w", op, err))
		return
	}
	mimeType := http.DetectContentType(file)
	secure, ext := internalS3.CheckSecureImageAndGetExtension(mimeType)
	if !secure {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("Invalid image type: %s", mimeType))
		return
	}

	// 透過S3 API儲存圖片
	url, err := impl.s3Operator.UploadFileToS3(c.Request.Context(), uuid.New().String()+"."+ext, mimeType, file)
	if err != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to upload image, err=%w", op, err))
		return
	}
	// 在DB紀錄圖片的上傳紀錄
	image := models.Image{
		UploaderID: userID,
		URL:        url,
	}
	if result := impl.db.WithContext(c.Request.Context()).Create(&image); result.Error != nil {
		impl.internalError(c, fmt.Errorf("[%s] Fail to create image record, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"url":     url,
	})
}

// ClearCache 清除所有回應快取，僅限管理員
// (DELETE /v1/cache/clear)
func (impl *ServerImpl) ClearCache(c *gin.Context) {
	impl.invalidateCache(c)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Cache cleared",
	})
}
