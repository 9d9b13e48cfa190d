package api

import "time"

type ServerConfig struct {
	DB          DBConfig
	Redis       RedisConfig
	S3          S3Config
	Auth        AuthConfig
	OIDC        OIDCConfig
	RateLimit   RateLimitConfig
	Cache       CacheConfig
	Idempotency IdempotencyConfig
	Sweep       SweepConfig
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix 讓多個部署環境可以共用同一個 Redis
	KeyPrefix string
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Bucket          string
	PublicBaseURL   string

	// UploadLimitPerHour 限制單一使用者每小時可上傳的圖片數量，0表示不限制
	UploadLimitPerHour int64
}

type AuthConfig struct {
	// Secret 是簽發access token用的HMAC金鑰
	Secret         string
	Issuer         string
	Audience       string
	ExpireDuration time.Duration
}

type OIDCConfig struct {
	Providers map[string]OIDCProviderConfig
}

type OIDCProviderConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
}

type RateLimitConfig struct {
	// Requests 是每個時間窗內允許的請求數量，0表示停用
	Requests int64
	Window   time.Duration
}

type CacheConfig struct {
	// TTL 是GET回應快取的保留時間，0表示停用
	TTL time.Duration
}

type IdempotencyConfig struct {
	// TTL 是冪等性紀錄的保留時間，0表示停用
	TTL time.Duration
}

type SweepConfig struct {
	// Schedule 是結標掃描的排程，cron表達式或@every語法
	Schedule string
}
