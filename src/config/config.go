package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port               string
	DatabasePath       string
	LogLevel           string
	FiatBase           string // reporting/base fiat currency, uppercase ticker
	MaxUploadSizeBytes int64  // bound on imported CSV size
	LedgerCipherKey    string // master key for value-at-rest encryption
	PriceAPIBaseURL    string
	PriceCacheTTL      time.Duration
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: no .env file found, relying on OS environment variables and defaults.")
	} else {
		log.Println(".env file loaded successfully.")
	}

	cipherKey := getEnv("LEDGER_CIPHER_KEY", "insecure-dev-only-ledger-cipher-master-key")
	if cipherKey == "insecure-dev-only-ledger-cipher-master-key" {
		log.Println("WARNING: Using default insecure LEDGER_CIPHER_KEY. Set LEDGER_CIPHER_KEY for production.")
	}

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	priceCacheTTLStr := getEnv("PRICE_CACHE_TTL", "5m")
	priceCacheTTL, err := time.ParseDuration(priceCacheTTLStr)
	if err != nil {
		log.Printf("WARNING: Invalid PRICE_CACHE_TTL format '%s'. Using default 5m. Error: %v", priceCacheTTLStr, err)
		priceCacheTTL = 5 * time.Minute
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./capitalview.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		FiatBase:           getEnv("FIAT_BASE", "EUR"),
		MaxUploadSizeBytes: maxUploadSizeBytes,
		LedgerCipherKey:    cipherKey,
		PriceAPIBaseURL:    getEnv("PRICE_API_BASE_URL", "https://api.coingecko.com/api/v3"),
		PriceCacheTTL:      priceCacheTTL,
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, FiatBase=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.FiatBase)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Integer value for %s not set or empty, using default: %d", key, fallback)
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}
