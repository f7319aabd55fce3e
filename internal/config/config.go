package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	SQLitePath               string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	RecommendationTTLSeconds int
	LowStockThreshold        int
	ExpiryWindowDays         int
	SeedPath                 string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Port:                     getEnv("PORT", "8080"),
		AllowedOrigin:            getEnv("ALLOWED_ORIGIN", "*"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		SQLitePath:               os.Getenv("SQLITE_PATH"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  redisDB,
		RecommendationTTLSeconds: getEnvInt("RECOMMENDATION_TTL_SECONDS", 300),
		LowStockThreshold:        getEnvInt("LOW_STOCK_THRESHOLD", 10),
		ExpiryWindowDays:         getEnvInt("EXPIRY_WINDOW_DAYS", 30),
		SeedPath:                 os.Getenv("SEED_PATH"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
