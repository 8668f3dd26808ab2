package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	ListenAddr string

	DBUsername string
	DBPassword string
	DBHost     string
	DBPort     string
	DBDatabase string
	DBSchema   string

	PaymentExpiry time.Duration // pending payments expire this long after creation
	OrderTTL      time.Duration // 0 = pending orders are never auto-cancelled
	SweepInterval time.Duration

	WechatAppID string
	WechatKey   string
	AlipayAppID string
	AlipayKey   string

	CORSOrigins []string
}

func Load() *Config {
	return &Config{
		ListenAddr: getenv("CARDSHOP_LISTEN_ADDR", ":8080"),

		DBUsername: getenv("CARDSHOP_DB_USERNAME", "postgres"),
		DBPassword: getenv("CARDSHOP_DB_PASSWORD", "postgres"),
		DBHost:     getenv("CARDSHOP_DB_HOST", "localhost"),
		DBPort:     getenv("CARDSHOP_DB_PORT", "5432"),
		DBDatabase: getenv("CARDSHOP_DB_DATABASE", "cardshop"),
		DBSchema:   getenv("CARDSHOP_DB_SCHEMA", "public"),

		PaymentExpiry: getduration("CARDSHOP_PAYMENT_EXPIRY", 30*time.Minute),
		OrderTTL:      getduration("CARDSHOP_ORDER_TTL", 0),
		SweepInterval: getduration("CARDSHOP_SWEEP_INTERVAL", time.Minute),

		WechatAppID: os.Getenv("CARDSHOP_WECHAT_APP_ID"),
		WechatKey:   os.Getenv("CARDSHOP_WECHAT_KEY"),
		AlipayAppID: os.Getenv("CARDSHOP_ALIPAY_APP_ID"),
		AlipayKey:   os.Getenv("CARDSHOP_ALIPAY_KEY"),

		CORSOrigins: strings.Split(getenv("CARDSHOP_CORS_ORIGINS", "*"), ","),
	}
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.DBUsername, c.DBPassword, c.DBHost, c.DBPort, c.DBDatabase, c.DBSchema,
	)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
