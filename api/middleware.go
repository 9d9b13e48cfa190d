package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/vmihailenco/msgpack/v5"

	"carhut/models"
)

// gin context 中存放呼叫者身份的鍵
const (
	ctxKeyUserID   = "auth.userID"
	ctxKeyUsername = "auth.username"
	ctxKeyRole     = "auth.role"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

func currentUserID(c *gin.Context) uuid.UUID {
	return c.MustGet(ctxKeyUserID).(uuid.UUID)
}

func currentUsername(c *gin.Context) string {
	return c.MustGet(ctxKeyUsername).(string)
}

func currentRole(c *gin.Context) models.Role {
	return c.MustGet(ctxKeyRole).(models.Role)
}

// RequireRoles 驗證access token並檢查呼叫者角色
// 沒有指定角色時僅要求通過身份驗證
func (impl *ServerImpl) RequireRoles(roles ...models.Role) gin.HandlerFunc {
	const op = "RequireRoles"
	return func(c *gin.Context) {
		tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || tokenString == "" {
			respondError(c, http.StatusUnauthorized, "Authentication required")
			c.Abort()
			return
		}
		claims, err := ParseAndValidateJWT(tokenString, impl.config.Auth)
		if err != nil {
			slog.Debug("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
			respondError(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			slog.Warn("Token carries invalid subject", slog.String("op", op), slog.Any("error", err))
			respondError(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}
		if len(roles) > 0 && !lo.Contains(roles, claims.Role) {
			respondError(c, http.StatusForbidden, "Insufficient permissions")
			c.Abort()
			return
		}
		c.Set(ctxKeyUserID, userID)
		c.Set(ctxKeyUsername, claims.Username)
		c.Set(ctxKeyRole, claims.Role)
		c.Next()
	}
}

// RateLimitMiddleware 以固定時間窗限制單一來源IP的請求頻率
// 計數透過Lua script原子性地完成；Redis故障時放行而不是拒絕
func (impl *ServerImpl) RateLimitMiddleware() gin.HandlerFunc {
	const op = "RateLimitMiddleware"
	limit := impl.config.RateLimit.Requests
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		key := impl.config.Redis.KeyPrefix + "ratelimit:" + c.ClientIP()
		result, err := RateLimitScript.Run(
			c.Request.Context(), impl.redisClient,
			[]string{key}, impl.config.RateLimit.Window.Milliseconds(),
		).Int64Slice()
		if err != nil || len(result) != 2 {
			slog.Error("Fail to run rate limit script", slog.String("op", op), slog.Any("error", err))
			c.Next()
			return
		}
		count, ttl := result[0], result[1]
		c.Header("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(limit-count, 0), 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(max((ttl+999)/1000, 0), 10))
		if count > limit {
			respondError(c, http.StatusTooManyRequests, "Too many requests, please try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}

// cachedResponse 是快取與冪等性重放共用的回應快照
type cachedResponse struct {
	Status      int    `msgpack:"status"`
	ContentType string `msgpack:"contentType"`
	Body        []byte `msgpack:"body"`
}

// bodyRecorder 在寫出回應的同時保留一份副本
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) WriteString(s string) (int, error) {
	r.buf.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// callerIdentity 從access token解析呼叫者身份
// 沒有帶token視為匿名；token無法驗證時回報失敗，
// 快取與冪等性中介層此時應直接放行，把請求留給授權中介層拒絕
func (impl *ServerImpl) callerIdentity(c *gin.Context) (string, bool) {
	tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !found || tokenString == "" {
		return "", true
	}
	claims, err := ParseAndValidateJWT(tokenString, impl.config.Auth)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

func (impl *ServerImpl) cacheKey(c *gin.Context, caller string) string {
	key := impl.config.Redis.KeyPrefix + "cache:" + c.Request.URL.Path
	// Encode 會依照參數名稱排序，同樣的查詢不會因參數順序產生不同的key
	if query := c.Request.URL.Query().Encode(); query != "" {
		key += "?" + query
	}
	// 帶身份的請求各自有獨立的快取項目，
	// 授權後的回應不會重放給其他使用者或未登入的呼叫者
	if caller != "" {
		key += ":user:" + caller
	}
	return key
}

// CacheMiddleware 快取成功的GET回應
// 寫入端點完成後需呼叫 invalidateCache 讓快取失效
func (impl *ServerImpl) CacheMiddleware() gin.HandlerFunc {
	const op = "CacheMiddleware"
	if impl.config.Cache.TTL <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		caller, ok := impl.callerIdentity(c)
		if !ok {
			c.Next()
			return
		}
		key := impl.cacheKey(c, caller)
		payload, err := impl.redisClient.Get(c.Request.Context(), key).Bytes()
		if err == nil {
			var cached cachedResponse
			if err := msgpack.Unmarshal(payload, &cached); err == nil {
				c.Header("X-Cache", "HIT")
				c.Data(cached.Status, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
			slog.Warn("Fail to decode cached response", slog.String("op", op), slog.Any("error", err))
		} else if !errors.Is(err, redis.Nil) {
			slog.Error("Fail to load cached response", slog.String("op", op), slog.Any("error", err))
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Header("X-Cache", "MISS")
		c.Next()

		if recorder.Status() != http.StatusOK {
			return
		}
		encoded, err := msgpack.Marshal(cachedResponse{
			Status:      recorder.Status(),
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.buf.Bytes(),
		})
		if err != nil {
			slog.Error("Fail to encode response for cache", slog.String("op", op), slog.Any("error", err))
			return
		}
		if err := impl.redisClient.Set(c.Request.Context(), key, encoded, impl.config.Cache.TTL).Err(); err != nil {
			slog.Error("Fail to store cached response", slog.String("op", op), slog.Any("error", err))
		}
	}
}

// invalidateCache 清除所有回應快取
func (impl *ServerImpl) invalidateCache(c *gin.Context) {
	const op = "invalidateCache"
	ctx := c.Request.Context()
	pattern := impl.config.Redis.KeyPrefix + "cache:*"
	iter := impl.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := impl.redisClient.Del(ctx, iter.Val()).Err(); err != nil {
			slog.Error("Fail to delete cached response", slog.String("op", op), slog.Any("error", err))
		}
	}
	if err := iter.Err(); err != nil {
		slog.Error("Fail to scan cache keys", slog.String("op", op), slog.Any("error", err))
	}
}

// IdempotencyMiddleware 依照 X-Idempotency-Key 重放已處理過的寫入請求
// 同一把key重送的請求會直接取回第一次的回應，不會重複執行
func (impl *ServerImpl) IdempotencyMiddleware() gin.HandlerFunc {
	const op = "IdempotencyMiddleware"
	if impl.config.Idempotency.TTL <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}
		idempotencyKey := c.GetHeader("X-Idempotency-Key")
		if idempotencyKey == "" {
			c.Next()
			return
		}
		caller, ok := impl.callerIdentity(c)
		if !ok {
			c.Next()
			return
		}
		// key綁定呼叫者，其他人重用同一把key不會取到別人的回應
		scope := "ip:" + c.ClientIP()
		if caller != "" {
			scope = "user:" + caller
		}
		name := fmt.Sprintf("%s:%s:%s:%s", c.Request.Method, c.Request.URL.Path, scope, idempotencyKey)

		record, err := impl.idempotencyStore.Load(c.Request.Context(), name)
		if err != nil {
			slog.Error("Fail to load idempotency record", slog.String("op", op), slog.Any("error", err))
			c.Next()
			return
		}
		if payload, ok := record["payload"]; ok {
			var cached cachedResponse
			if err := msgpack.Unmarshal([]byte(payload), &cached); err != nil {
				slog.Warn("Fail to decode idempotency record", slog.String("op", op), slog.Any("error", err))
			} else {
				c.Header("X-Idempotency-Replay", "true")
				c.Data(cached.Status, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		// 伺服器故障的回應不記錄，讓重送有機會成功
		if recorder.Status() >= http.StatusInternalServerError {
			return
		}
		encoded, err := msgpack.Marshal(cachedResponse{
			Status:      recorder.Status(),
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.buf.Bytes(),
		})
		if err != nil {
			slog.Error("Fail to encode response for idempotency record", slog.String("op", op), slog.Any("error", err))
			return
		}
		if err := impl.idempotencyStore.Save(c.Request.Context(), name, map[string]string{
			"payload": string(encoded),
		}); err != nil {
			slog.Error("Fail to save idempotency record", slog.String("op", op), slog.Any("error", err))
		}
	}
}
