package config

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

// Config stores the application configuration.
// It is built once at startup and handed to every component that needs it.
type Config struct {
	Port    string
	BaseURL string // Public origin used to build playlist URLs, e.g. "http://localhost:3000"

	UploadDir string // Where raw uploads land before transcoding
	HLSDir    string // Root of the per-upload rendition trees, served under /hls

	FFmpegPath     string
	FFprobePath    string
	HLSSegmentTime int           // Seconds per media segment
	EncodeTimeout  time.Duration // Per-rendition deadline, 0 disables it
	WorkerCount    int
	QueueSize      int
	MaxUploadSize  int64 // Bytes

	StorageDriver string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string

	// Redis is optional; an empty host disables the cache and event bus.
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO mirroring of finished renditions.
	MinioEnabled   bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string

	JWTSecret       string
	TokenTTL        time.Duration // 0 issues tokens without expiry
	DefaultUsername string
	DefaultPassword string

	RateLimit  int
	RateWindow time.Duration

	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
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

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "2h") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env files.
func FromEnv() *Config {
	uploadBase := getEnv("UPLOAD_DIR", "uploads")

	return &Config{
		Port:    getEnv("PORT", "3000"),
		BaseURL: strings.TrimRight(getEnv("BASE_URL", "http://localhost:3000"), "/"),

		UploadDir: uploadBase,
		HLSDir:    getEnv("HLS_DIR", filepath.Join(uploadBase, "hls")),

		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:    getEnv("FFPROBE_PATH", "ffprobe"),
		HLSSegmentTime: getEnvInt("HLS_SEGMENT_TIME", 10),
		EncodeTimeout:  getEnvDuration("ENCODE_TIMEOUT", 0),
		WorkerCount:    getEnvInt("WORKER_COUNT", 2),
		QueueSize:      getEnvInt("QUEUE_SIZE", 64),
		MaxUploadSize:  int64(getEnvInt("MAX_UPLOAD_MB", 2048)) << 20,

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageMySQL)),
		DBHost:        getEnv("DB_HOST", "127.0.0.1"),
		DBPort:        getEnv("DB_PORT", "3306"),
		DBUser:        getEnv("DB_USER", "root"),
		DBPassword:    os.Getenv("DB_PASSWORD"), // no default for secrets
		DBName:        getEnv("DB_NAME", "beam"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "beam"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),

		JWTSecret:       os.Getenv("JWT_SECRET_KEY"),
		TokenTTL:        getEnvDuration("TOKEN_TTL", 0),
		DefaultUsername: getEnv("DEFAULT_USERNAME", "admin"),
		DefaultPassword: os.Getenv("DEFAULT_PASSWORD"),

		RateLimit:  getEnvInt("RATE_LIMIT", 100),
		RateWindow: getEnvDuration("RATE_WINDOW", 15*time.Minute),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE_DAYS", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}

// RedisEnabled reports whether a Redis host was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required"))
	}
	if c.WorkerCount < 1 {
		errs = append(errs, errors.New("WORKER_COUNT must be at least 1"))
	}
	if c.QueueSize < 1 {
		errs = append(errs, errors.New("QUEUE_SIZE must be at least 1"))
	}
	if c.HLSSegmentTime < 1 {
		errs = append(errs, errors.New("HLS_SEGMENT_TIME must be at least 1"))
	}
	switch c.StorageDriver {
	case StorageMySQL, StorageMemory:
	default:
		errs = append(errs, errors.New("STORAGE_DRIVER must be mysql or memory"))
	}
	if c.MinioEnabled && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
		errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENABLED is set"))
	}
	return errors.Join(errs...)
}
