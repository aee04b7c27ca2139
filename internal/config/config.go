package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Comfy     ComfyConfig
	Queues    QueuesConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

// ComfyConfig points at the remote ComfyUI engine.
type ComfyConfig struct {
	BaseURL      string
	ClientID     string // identifies this gateway on the /ws event stream
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// QueueConfig tunes one named job queue.
type QueueConfig struct {
	Concurrency int
	MaxRetries  int
	Timeout     time.Duration
}

type QueuesConfig struct {
	Portrait QueueConfig
	TTS      QueueConfig
	Lipsync  QueueConfig

	CleanupInterval time.Duration // sweep period for evicting old terminal jobs
	MaxAge          time.Duration // terminal job age before eviction
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	GeneratePerHour int
	JobsPerMin      int
}

// StorageConfig configures the S3-compatible artifact store. Leaving
// the credentials empty disables uploads; results then reference files
// on the engine host.
type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
}

func Load() (*Config, error) {
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("comfy.base_url", "COMFY_BASE_URL")
	_ = viper.BindEnv("comfy.client_id", "COMFY_CLIENT_ID")
	_ = viper.BindEnv("comfy.poll_interval_ms", "COMFY_POLL_INTERVAL_MS")
	_ = viper.BindEnv("comfy.wait_timeout_ms", "COMFY_WAIT_TIMEOUT_MS")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.region", "STORAGE_REGION")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket", "STORAGE_BUCKET")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")

	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")

	viper.SetDefault("comfy.base_url", "http://127.0.0.1:8188")
	viper.SetDefault("comfy.client_id", "")
	viper.SetDefault("comfy.poll_interval_ms", 500)
	viper.SetDefault("comfy.wait_timeout_ms", 300000)

	// Per-queue tuning. Lipsync renders video and gets a longer ceiling
	// with no overlap on the GPU.
	viper.SetDefault("queues.portrait.concurrency", 2)
	viper.SetDefault("queues.portrait.max_retries", 3)
	viper.SetDefault("queues.portrait.timeout_ms", 300000)
	viper.SetDefault("queues.tts.concurrency", 2)
	viper.SetDefault("queues.tts.max_retries", 3)
	viper.SetDefault("queues.tts.timeout_ms", 300000)
	viper.SetDefault("queues.lipsync.concurrency", 1)
	viper.SetDefault("queues.lipsync.max_retries", 3)
	viper.SetDefault("queues.lipsync.timeout_ms", 600000)

	viper.SetDefault("queues.cleanup_interval_ms", 900000)
	viper.SetDefault("queues.max_age_ms", 3600000)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("jwt.secret", "change-me-in-production")

	viper.SetDefault("ratelimit.generate_per_hour", 30)
	viper.SetDefault("ratelimit.jobs_per_min", 120)

	viper.SetDefault("storage.region", "auto")

	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Comfy: ComfyConfig{
			BaseURL:      viper.GetString("comfy.base_url"),
			ClientID:     viper.GetString("comfy.client_id"),
			PollInterval: time.Duration(viper.GetInt("comfy.poll_interval_ms")) * time.Millisecond,
			WaitTimeout:  time.Duration(viper.GetInt("comfy.wait_timeout_ms")) * time.Millisecond,
		},
		Queues: QueuesConfig{
			Portrait:        queueConfig("queues.portrait"),
			TTS:             queueConfig("queues.tts"),
			Lipsync:         queueConfig("queues.lipsync"),
			CleanupInterval: time.Duration(viper.GetInt("queues.cleanup_interval_ms")) * time.Millisecond,
			MaxAge:          time.Duration(viper.GetInt("queues.max_age_ms")) * time.Millisecond,
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
			JobsPerMin:      viper.GetInt("ratelimit.jobs_per_min"),
		},
		Storage: StorageConfig{
			Endpoint:        viper.GetString("storage.endpoint"),
			Region:          viper.GetString("storage.region"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			Bucket:          viper.GetString("storage.bucket"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
	}

	return cfg, nil
}

func queueConfig(prefix string) QueueConfig {
	return QueueConfig{
		Concurrency: viper.GetInt(prefix + ".concurrency"),
		MaxRetries:  viper.GetInt(prefix + ".max_retries"),
		Timeout:     time.Duration(viper.GetInt(prefix+".timeout_ms")) * time.Millisecond,
	}
}
