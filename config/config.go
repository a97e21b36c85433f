package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Store backend kinds. Exactly one is active per deployment; the choice is
// made here, once, instead of being inferred from scattered env checks.
const (
	StoreBackendFile  = "file"
	StoreBackendRedis = "redis"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	// Store backend selection: "file" or "redis".
	StoreBackend string
	DataDir      string // Base directory for the file store and local audio files
	StoreFile    string // DataDir/store.json
	AudioDir     string // DataDir/audio, for locally saved track audio

	// Redis配置（StoreBackend == "redis" 时使用）
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置，用于音频文件的持久化存储
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// 支付验证配置
	SolanaRPCURL   string
	TreasuryWallet string
	USDCMint       string
	MinPaymentRaw  uint64 // minimum qualifying transfer, in token minor units

	MaxTracks int // cap on registered tracks, enforced at the route layer

	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvUint64 gets an environment variable as uint64 or returns a default value.
func getEnvUint64(key string, fallback uint64) uint64 {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	dataDir := getEnv("OMEGA_DATA_DIR", "data")

	// Redis takes precedence when both a backend flag and a Redis host are
	// configured, matching how serverless deployments are expected to run.
	backend := getEnv("STORE_BACKEND", "")
	if backend == "" {
		if os.Getenv("REDIS_HOST") != "" {
			backend = StoreBackendRedis
		} else {
			backend = StoreBackendFile
		}
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		StoreBackend: backend,
		DataDir:      dataDir,
		StoreFile:    filepath.Join(dataDir, "store.json"),
		AudioDir:     filepath.Join(dataDir, "audio"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "omegamusic"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",

		SolanaRPCURL:   getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		TreasuryWallet: os.Getenv("TREASURY_WALLET"), // no sensible default for the treasury
		USDCMint:       getEnv("USDC_MINT", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		MinPaymentRaw:  getEnvUint64("MIN_PAYMENT_RAW", 500000), // 0.50 USDC

		MaxTracks: getEnvInt("MAX_TRACKS", 50),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
