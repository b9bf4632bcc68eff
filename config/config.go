package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr       string
	MaxUploadBytes int64
	JWTSecret      string

	// picture store
	UploadDir            string
	CheckSizeBeforeWrite bool
	ResizeMaxDimension   int
	TargetFormat         string
	VerifyConversion     bool
	AllowedTypes         []string
	ToolBackend          string
	ToolTimeout          time.Duration
	OrphanGrace          time.Duration

	DBDriver string
	DBHost   string
	DBPort   string
	DBUser   string
	DBPass   string
	DBName   string
	DBPath   string

	LockBackend   string
	LockTTL       time.Duration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	MirrorEnabled  bool
	MinioHost      string
	MinioPort      string
	MinioUsername  string
	MinioPassword  string
	MinioUseSSL    bool
	BucketName     string
	RabbitMQURL    string
	RabbitPrefetch int
	SweepRate      time.Duration
	SweepBurst     int

	LogLevel  string
	LogPretty bool
}

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) *Config {
	// a missing .env is normal outside development
	_ = godotenv.Load(envFiles...)

	rabbitURL := getEnv("RABBITMQ_URL", "")
	if rabbitURL == "" {
		rabbitURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(getEnv("RABBITMQ_USER", "guest")),
			url.PathEscape(getEnv("RABBITMQ_PASSWORD", "guest")),
			getEnv("RABBITMQ_HOST", "localhost"),
			getEnv("RABBITMQ_PORT", "5672"),
			url.PathEscape(getEnv("RABBITMQ_VHOST", "/")),
		)
	}

	return &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
		MaxUploadBytes: getEnvInt64("MAX_CONTENT_LENGTH", 16<<20),
		JWTSecret:      getEnv("JWT_SECRET", "l=ax+b"),

		UploadDir:            getEnv("UPLOAD_DIR", "./uploads"),
		CheckSizeBeforeWrite: getEnvBool("CHECK_SIZE_BEFORE_WRITE", true),
		ResizeMaxDimension:   getEnvInt("RESIZE_MAX_DIMENSION", 800),
		TargetFormat:         strings.ToLower(getEnv("TARGET_FORMAT", "jpeg")),
		VerifyConversion:     getEnvBool("VERIFY_CONVERSION", false),
		AllowedTypes:         getEnvList("ALLOWED_TYPES", []string{"image"}),
		ToolBackend:          getEnv("TOOL_BACKEND", "native"),
		ToolTimeout:          getEnvDuration("TOOL_TIMEOUT", 30*time.Second),
		OrphanGrace:          getEnvDuration("ORPHAN_GRACE", time.Hour),

		DBDriver: getEnv("DB_DRIVER", "mysql"),
		DBHost:   getEnv("DB_HOST", "localhost"),
		DBPort:   getEnv("DB_PORT", "3306"),
		DBUser:   getEnv("DB_USER", "root"),
		DBPass:   getEnv("DB_PASS", "root"),
		DBName:   getEnv("DB_NAME", "picstore"),
		DBPath:   getEnv("DB_PATH", "picstore.db"),

		LockBackend:   getEnv("LOCK_BACKEND", "local"),
		LockTTL:       getEnvDuration("LOCK_TTL", 2*time.Minute),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MirrorEnabled:  getEnvBool("MIRROR_ENABLED", false),
		MinioHost:      getEnv("MINIO_HOST", "localhost"),
		MinioPort:      getEnv("MINIO_PORT", "9000"),
		MinioUsername:  getEnv("MINIO_USERNAME", "minioadmin"),
		MinioPassword:  getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		BucketName:     getEnv("BUCKET_NAME", "pictures"),
		RabbitMQURL:    rabbitURL,
		RabbitPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		SweepRate:      getEnvDuration("SWEEP_RATE", time.Minute),
		SweepBurst:     getEnvInt("SWEEP_BURST", 1),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),
	}
}
