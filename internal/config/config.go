package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	SequenceBackendPostgres = "postgres"
	SequenceBackendRedis    = "redis"
)

// Configはアプリ全体の設定
type Config struct {
	Port string `envconfig:"PORT" default:"8080"` // サーバーポート

	DatabaseURL      string `envconfig:"DATABASE_URL"`                         // あれば最優先
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`     // DBユーザー
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"postgres"` // DBパスワード
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"app"`            // DB名
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`    // DBホスト
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`         // DBポート
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	RedisAddr     string `envconfig:"REDIS_ADDR"` // 空ならredisを使わない
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// 注文番号の発番先（postgres / redis）
	SequenceBackend string `envconfig:"SEQUENCE_BACKEND" default:"postgres"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"` // JWT署名シークレット

	GoEnv    string `envconfig:"GO_ENV" default:"dev"` // dev/prod
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// 同じ冪等キーの注文を弾くロックの寿命
	OrderLockTTL time.Duration `envconfig:"ORDER_LOCK_TTL" default:"30s"`
	// これより古くてカート未クリアの注文をreconcile対象にする
	CartRetryAfter time.Duration `envconfig:"CART_RETRY_AFTER" default:"1m"`
}

// Loadは環境変数
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	//必須チェック
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.SequenceBackend {
	case SequenceBackendPostgres:
	case SequenceBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when SEQUENCE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("SEQUENCE_BACKEND must be postgres or redis: %q", c.SequenceBackend)
	}
	if c.OrderLockTTL <= 0 {
		return fmt.Errorf("ORDER_LOCK_TTL must be positive")
	}
	if c.CartRetryAfter <= 0 {
		return fmt.Errorf("CART_RETRY_AFTER must be positive")
	}
	return nil
}

// DSN は DATABASE_URL を優先し、無ければ POSTGRES_* から組み立てる
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

// golang-migrate用（pgx5スキーム）のURL
func (c Config) MigrateURL() string {
	if c.DatabaseURL != "" {
		for _, prefix := range []string{"postgres://", "postgresql://"} {
			if strings.HasPrefix(c.DatabaseURL, prefix) {
				return "pgx5://" + strings.TrimPrefix(c.DatabaseURL, prefix)
			}
		}
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSLMode,
	)
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}
