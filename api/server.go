package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"carhut/adapters/oidc"
	redisAdapter "carhut/adapters/redis"
	internalS3 "carhut/adapters/s3"
	"carhut/auction"
	"carhut/models"
)

type ServerImpl struct {
	db               *gorm.DB
	redisClient      *redis.Client
	engine           *auction.Engine
	sweeper          *auction.Sweeper
	s3Operator       *internalS3.S3Operator
	htmlChecker      *bluemonday.Policy
	oidcProviders    map[string]*oidc.Provider
	ssoStore         redisAdapter.IStore
	idempotencyStore redisAdapter.IStore

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化OIDC提供者
	oidcProviders := make(map[string]*oidc.Provider, len(config.OIDC.Providers))
	for provider, providerConfig := range config.OIDC.Providers {
		oidcProvider, err := oidc.NewProvider(providerConfig.IssuerURL, providerConfig.ClientID, providerConfig.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to initial OIDC provider, provider=%s, err=%w", op, provider, err)
		}
		oidcProviders[provider] = oidcProvider
	}

	// 初始化S3客戶端
	s3Cfg, err := awsCfg.LoadDefaultConfig(
		context.Background(),
		awsCfg.WithBaseEndpoint(config.S3.Endpoint),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.S3.AccessKeyID, config.S3.SecretAccessKey, "")),
		awsCfg.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	s3Operator, err := internalS3.NewS3Operator(s3.NewFromConfig(s3Cfg), config.S3.Bucket, config.S3.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化競標引擎，車輛出價鎖使用Redis分散式鎖，
	// 讓多個節點共用同一把鎖
	engine := auction.NewEngine(
		db,
		auction.WithLockProvider(func(key string) auction.IMutex {
			return redisAdapter.NewAutoRenewMutex(redisClient, config.Redis.KeyPrefix+key)
		}),
	)

	// 初始化結標掃描
	sweeperOpts := []auction.SweeperOption{}
	if config.Sweep.Schedule != "" {
		sweeperOpts = append(sweeperOpts, auction.WithSweeperSchedule(config.Sweep.Schedule))
	}
	sweeper := auction.NewSweeper(db, engine, sweeperOpts...)

	return &ServerImpl{
		db:            db,
		redisClient:   redisClient,
		engine:        engine,
		sweeper:       sweeper,
		s3Operator:    s3Operator,
		htmlChecker:   bluemonday.UGCPolicy(),
		oidcProviders: oidcProviders,
		ssoStore: redisAdapter.NewStore(
			redisClient,
			redisAdapter.WithStorePrefix(config.Redis.KeyPrefix+"sso:"),
			redisAdapter.WithStoreTTL(ssoStateTTL),
		),
		idempotencyStore: redisAdapter.NewStore(
			redisClient,
			redisAdapter.WithStorePrefix(config.Redis.KeyPrefix+"idempotency:"),
			redisAdapter.WithStoreTTL(config.Idempotency.TTL),
		),
		config: config,
	}, nil
}

// Start 啟動背景的結標掃描
func (impl *ServerImpl) Start() error {
	const op = "ServerImpl.Start"
	if err := impl.sweeper.Start(); err != nil {
		return fmt.Errorf("[%s] Fail to start auction sweeper, err=%w", op, err)
	}
	return nil
}

func (impl *ServerImpl) Close() {
	// 停止結標掃描
	impl.sweeper.Close()
	// 關閉Redis連線
	if err := impl.redisClient.Close(); err != nil {
		slog.Error("Fail to close redis client", slog.Any("error", err))
	}
	// 關閉資料庫連線
	if sqlDB, err := impl.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("Fail to close database", slog.Any("error", err))
		}
	}
}

// RegisterRoutes 註冊所有HTTP路由
func (impl *ServerImpl) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	v1.Use(impl.RateLimitMiddleware(), impl.CacheMiddleware(), impl.IdempotencyMiddleware())

	auth := v1.Group("/auth")
	{
		auth.POST("/register", impl.Register)
		auth.POST("/login", impl.Login)
		auth.POST("/staff/login", impl.StaffLogin)
		auth.POST("/staff/register", impl.RequireRoles(models.RoleAdmin), impl.StaffRegister)
		auth.GET("/me", impl.RequireRoles(), impl.Me)
		auth.GET("/sso/:provider/login", impl.SSOLogin)
		auth.GET("/sso/:provider/callback", impl.SSOCallback)
	}

	car := v1.Group("/car")
	{
		car.GET("", impl.ListCars)
		car.GET("/active-auctions", impl.ListActiveAuctions)
		car.GET("/user/my-listings", impl.RequireRoles(), impl.ListMyCars)
		car.GET("/:id", impl.GetCar)
		car.POST("", impl.RequireRoles(), impl.CreateCar)
		car.PUT("/:id", impl.RequireRoles(), impl.UpdateCar)
		car.DELETE("/:id", impl.RequireRoles(), impl.DeleteCar)
	}

	bid := v1.Group("/bid")
	{
		bid.GET("/car/:carID", impl.ListCarBids)
		bid.GET("/car/:carID/highest", impl.GetHighestBid)
		bid.GET("/car/:carID/statistics", impl.GetBidStatistics)
		bid.GET("/car/:carID/check", impl.RequireRoles(), impl.CheckUserBid)
		bid.POST("/car/:carID", impl.RequireRoles(), impl.PlaceBid)
		bid.POST("/car/:carID/close", impl.RequireRoles(models.RoleAdmin), impl.CloseAuction)
		bid.GET("/my-bids", impl.RequireRoles(), impl.ListMyBids)
		bid.GET("/my-winning-bids", impl.RequireRoles(), impl.ListMyWinningBids)
	}

	v1.POST("/image", impl.RequireRoles(), impl.UploadImage)
	v1.DELETE("/cache/clear", impl.RequireRoles(models.RoleAdmin), impl.ClearCache)
}

func generateID(prefix string) (string, error) {
	const op = "generateID"
	bytes := make([]byte, 20)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("[%s] Fail to generate unique id, err=%w", op, err)
	}
	return prefix + "_" + base64.URLEncoding.EncodeToString(bytes), nil
}
