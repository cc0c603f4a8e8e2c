package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DB      DBConfig
	Server  ServerConfig
	Log     LogConfig
	JWT     JWTConfig
	Discord DiscordConfig
	MinIO   MinIOConfig
	Redis   RedisConfig
	Webhook WebhookConfig
	Jobs    JobsConfig
}

type DBConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

type ServerConfig struct {
	Port        string
	FrontendURL string
	BodyLimitMB int
}

type LogConfig struct {
	Level string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	APIBaseURL   string
}

func (d DiscordConfig) Enabled() bool {
	return d.ClientID != "" && d.ClientSecret != ""
}

type MinIOConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RedisConfig struct {
	Enabled        bool
	Addr           string
	Password       string
	DB             int
	PermissionsTTL time.Duration
}

type WebhookConfig struct {
	URLs     []string
	Timeout  time.Duration
	Username string
}

type JobsConfig struct {
	OverdueMissionsSpec   string
	NotificationPurgeSpec string
	StateCleanupSpec      string
	NotificationRetention time.Duration
}

func Load() *Config {
	backendURL := getEnv("BACKEND_URL", "http://localhost:8080")

	return &Config{
		DB: DBConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "reportdesk"),
			Password:   getEnv("DB_PASSWORD", "reportdesk_secret"),
			Name:       getEnv("DB_NAME", "reportdesk"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "reportdesk.db"),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
			BodyLimitMB: getEnvAsInt("SERVER_BODY_LIMIT_MB", 10),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Discord: DiscordConfig{
			ClientID:     getEnv("DISCORD_CLIENT_ID", ""),
			ClientSecret: getEnv("DISCORD_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("DISCORD_REDIRECT_URL", strings.TrimRight(backendURL, "/")+"/api/auth/discord/callback"),
			Scopes:       getEnvAsList("DISCORD_SCOPES", []string{"identify"}),
			APIBaseURL:   getEnv("DISCORD_API_BASE_URL", "https://discord.com/api"),
		},
		MinIO: MinIOConfig{
			Enabled:   getEnvAsBool("MINIO_ENABLED", true),
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "reportdesk"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "reportdesk_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "reportdesk"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Redis: RedisConfig{
			Enabled:        getEnvAsBool("REDIS_ENABLED", false),
			Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			PermissionsTTL: getEnvAsDuration("PERMISSIONS_CACHE_TTL", 30*time.Second),
		},
		Webhook: WebhookConfig{
			URLs:     getEnvAsList("WEBHOOK_URLS", nil),
			Timeout:  getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
			Username: getEnv("WEBHOOK_USERNAME", "Reportdesk"),
		},
		Jobs: JobsConfig{
			OverdueMissionsSpec:   getEnv("JOB_OVERDUE_MISSIONS_SPEC", "@every 15m"),
			NotificationPurgeSpec: getEnv("JOB_NOTIFICATION_PURGE_SPEC", "@daily"),
			StateCleanupSpec:      getEnv("JOB_STATE_CLEANUP_SPEC", "@every 10m"),
			NotificationRetention: getEnvAsDuration("NOTIFICATION_RETENTION", 30*24*time.Hour),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
