package main

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"carhut/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")

	// auth config
	pflag.String("auth-secret", "", "")
	pflag.String("auth-issuer", "carhut-backend", "")
	pflag.String("auth-audience", "carhut-users", "")
	pflag.Duration("auth-expire-duration", 24*time.Hour, "")

	// sso config
	pflag.String("sso-google-issuer-url", "", "")
	pflag.String("sso-google-client-id", "", "")
	pflag.String("sso-google-client-secret", "", "")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")
	pflag.Int64("s3-upload-limit-per-hour", 30, "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "carhut:", "")

	// traffic config
	pflag.Int64("rate-limit-requests", 100, "")
	pflag.Duration("rate-limit-window", time.Minute, "")
	pflag.Duration("cache-ttl", 30*time.Second, "")
	pflag.Duration("idempotency-ttl", 10*time.Minute, "")

	// auction config
	pflag.String("sweep-schedule", "@every 1m", "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("CARHUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	oidcProviders := map[string]api.OIDCProviderConfig{}
	if viper.GetString("sso-google-issuer-url") != "" {
		oidcProviders["google"] = api.OIDCProviderConfig{
			IssuerURL:    viper.GetString("sso-google-issuer-url"),
			ClientID:     viper.GetString("sso-google-client-id"),
			ClientSecret: viper.GetString("sso-google-client-secret"),
		}
	}
	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			Auth: api.AuthConfig{
				Secret:         viper.GetString("auth-secret"),
				Issuer:         viper.GetString("auth-issuer"),
				Audience:       viper.GetString("auth-audience"),
				ExpireDuration: viper.GetDuration("auth-expire-duration"),
			},
			OIDC: api.OIDCConfig{
				Providers: oidcProviders,
			},
			S3: api.S3Config{
				Endpoint:           viper.GetString("s3-endpoint"),
				Bucket:             viper.GetString("s3-bucket"),
				PublicBaseURL:      viper.GetString("s3-public-base-url"),
				AccessKeyID:        viper.GetString("s3-access-key-id"),
				SecretAccessKey:    viper.GetString("s3-secret-access-key"),
				UploadLimitPerHour: viper.GetInt64("s3-upload-limit-per-hour"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:      viper.GetString("redis-addr"),
				Password:  viper.GetString("redis-password"),
				DB:        viper.GetInt("redis-db"),
				KeyPrefix: viper.GetString("redis-key-prefix"),
			},
			RateLimit: api.RateLimitConfig{
				Requests: viper.GetInt64("rate-limit-requests"),
				Window:   viper.GetDuration("rate-limit-window"),
			},
			Cache: api.CacheConfig{
				TTL: viper.GetDuration("cache-ttl"),
			},
			Idempotency: api.IdempotencyConfig{
				TTL: viper.GetDuration("idempotency-ttl"),
			},
			Sweep: api.SweepConfig{
				Schedule: viper.GetString("sweep-schedule"),
			},
		},
	}
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	return args.ServerURL != "" &&
		args.ServerConfig.Auth.Secret != "" &&
		args.ServerConfig.DB.Host != "" &&
		args.ServerConfig.Redis.Addr != ""
}
