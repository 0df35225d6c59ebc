package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with
// simple defaults suitable for a single-machine deployment.
type Config struct {
	ServerAddr string // Address the HTTP server listens on, e.g. ":8080"

	FilesDir      string // Directory holding uploaded audio and cover blobs
	MusicDataFile string // JSON snapshot file backing the music catalog
	UserDataFile  string // JSON snapshot file backing the user store

	// Redis配置（会话令牌存储）
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	TokenTTLDays  int    // Sliding expiration window for auth tokens
	AdminUsername string // Seeded on first start if absent from the user store
	AdminPassword string

	MaxUploadBytes int64 // Upload size cap for multipart parsing

	LogLevel      string
	LogFile       string // Empty disables file output
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
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

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	dataBase := getEnv("DATA_DIR", "data")

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		FilesDir:      getEnv("MUSIC_FILES_DIR", filepath.Join(dataBase, "files")),
		MusicDataFile: getEnv("MUSIC_DATA_FILE", filepath.Join(dataBase, "music.json")),
		UserDataFile:  getEnv("USER_DATA_FILE", filepath.Join(dataBase, "users.json")),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TokenTTLDays:  getEnvInt("TOKEN_TTL_DAYS", 7),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"), // No hardcoded default for the password

		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 100)) << 20,

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
	}
}
