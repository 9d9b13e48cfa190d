package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	redisAdapter "carhut/adapters/redis"
	"carhut/auction"
	"carhut/models"
)

var testDBSeq atomic.Int64

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:api_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Staff{},
		&models.Brand{},
		&models.Car{},
		&models.Bid{},
		&models.Image{},
	))
	return db
}

type testServer struct {
	impl   *ServerImpl
	router *gin.Engine
	db     *gorm.DB
	mr     *miniredis.Miniredis
}

// setupTestServer 建立一個完整註冊路由的測試伺服器，
// 資料庫與Redis都換成不需要外部服務的版本
func setupTestServer(t *testing.T, configure ...func(*ServerConfig)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	config := ServerConfig{
		Auth: AuthConfig{
			Secret:         "test-secret",
			Issuer:         "carhut-backend",
			Audience:       "carhut-users",
			ExpireDuration: time.Hour,
		},
		Redis: RedisConfig{
			Addr:      mr.Addr(),
			KeyPrefix: "test:",
		},
	}
	for _, fn := range configure {
		fn(&config)
	}

	impl := &ServerImpl{
		db:          db,
		redisClient: client,
		engine:      auction.NewEngine(db),
		htmlChecker: bluemonday.UGCPolicy(),
		ssoStore: redisAdapter.NewStore(
			client,
			redisAdapter.WithStorePrefix(config.Redis.KeyPrefix+"sso:"),
			redisAdapter.WithStoreTTL(ssoStateTTL),
		),
		idempotencyStore: redisAdapter.NewStore(
			client,
			redisAdapter.WithStorePrefix(config.Redis.KeyPrefix+"idempotency:"),
			redisAdapter.WithStoreTTL(config.Idempotency.TTL),
		),
		config: config,
	}
	router := gin.New()
	impl.RegisterRoutes(router)
	return &testServer{impl: impl, router: router, db: db, mr: mr}
}

func (s *testServer) do(t *testing.T, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	request := httptest.NewRequest(method, target, reader)
	request.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	s.router.ServeHTTP(recorder, request)
	return recorder
}

func money(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func authHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), target))
}

// registerUser 透過註冊端點建立使用者並回傳access token
func (s *testServer) registerUser(t *testing.T, username string) (string, userResponse) {
	t.Helper()

	recorder := s.do(t, http.MethodPost, "/v1/auth/register", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var response struct {
		Token string       `json:"token"`
		User  userResponse `json:"user"`
	}
	decodeBody(t, recorder, &response)
	return response.Token, response.User
}

// createAdminStaff 直接在資料庫建立ADMIN後台人員
func (s *testServer) createAdminStaff(t *testing.T, username, password string) models.Staff {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	staff := models.Staff{
		Username: username,
		Password: string(hash),
		Role:     models.StaffRoleAdmin,
	}
	require.NoError(t, s.db.Create(&staff).Error)
	return staff
}

// adminToken 簽發一個管理員token，給只關心授權結果的測試使用
func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()

	token, err := SignJWT(s.impl.config.Auth, uuid.New(), "admin", models.RoleAdmin)
	require.NoError(t, err)
	return token
}

func (s *testServer) createBrand(t *testing.T, name string) models.Brand {
	t.Helper()

	brand := models.Brand{Name: name}
	require.NoError(t, s.db.Create(&brand).Error)
	return brand
}

// createAuctionListing 透過刊登端點建立一筆拍賣中的車輛
func (s *testServer) createAuctionListing(t *testing.T, token string, brandID uuid.UUID, price string) models.Car {
	t.Helper()

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	recorder := s.do(t, http.MethodPost, "/v1/car", gin.H{
		"name":             "Corolla Altis",
		"model":            "Corolla",
		"year":             2021,
		"price":            json.RawMessage(price),
		"brandId":          brandID,
		"mileage":          42000,
		"auctionStartDate": start,
		"auctionEndDate":   end,
	}, authHeader(token))
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var response struct {
		Car models.Car `json:"car"`
	}
	decodeBody(t, recorder, &response)
	return response.Car
}
