package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAccessSecret  = "dev-access-secret-change-me"
	defaultRefreshSecret = "dev-refresh-secret-change-me"
)

type Config struct {
	Port        string
	Env         string
	CORSOrigin  string
	StoreDriver string
	DatabaseDSN string
	MongoURI    string
	MongoDB     string

	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenSecret string
	RefreshTokenExpiry time.Duration
	CookieSecure       bool

	UploadDir           string
	MediaDir            string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryBaseURL   string

	RedisAddr     string
	RedisPassword string
	KafkaBrokers  []string
	KafkaTopic    string
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// ParseDuration accepts Go duration syntax plus a day suffix ("10d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func boolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func csv(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load(".env")

	return Config{
		Port:        getenv("APP_PORT", "8000"),
		Env:         getenv("APP_ENV", "dev"),
		CORSOrigin:  getenv("CORS_ORIGIN", "*"),
		StoreDriver: getenv("STORE_DRIVER", "postgres"),
		DatabaseDSN: getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=watchparty port=5432 sslmode=disable TimeZone=UTC"),
		MongoURI:    getenv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:     getenv("MONGODB_DATABASE", "watchparty"),

		AccessTokenSecret:  getenv("ACCESS_TOKEN_SECRET", defaultAccessSecret),
		AccessTokenExpiry:  durationEnv("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
		RefreshTokenSecret: getenv("REFRESH_TOKEN_SECRET", defaultRefreshSecret),
		RefreshTokenExpiry: durationEnv("REFRESH_TOKEN_EXPIRY", 10*24*time.Hour),
		CookieSecure:       boolEnv("COOKIE_SECURE", true),

		UploadDir:           getenv("UPLOAD_DIR", "./public/temp"),
		MediaDir:            getenv("MEDIA_DIR", "./public/media"),
		CloudinaryCloudName: getenv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getenv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getenv("CLOUDINARY_API_SECRET", ""),
		CloudinaryBaseURL:   getenv("CLOUDINARY_BASE_URL", "https://api.cloudinary.com"),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:  csv(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    getenv("KAFKA_TOPIC", "watchparty.events"),
	}
}

// Validate rejects configurations that must not reach a running server.
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: APP_PORT is required")
	}
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return errors.New("config: DATABASE_DSN is required")
		}
	case "mongo":
		if cfg.MongoURI == "" || cfg.MongoDB == "" {
			return errors.New("config: MONGODB_URI and MONGODB_DATABASE are required")
		}
	default:
		return errors.New("config: STORE_DRIVER must be postgres or mongo")
	}
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		return errors.New("config: token secrets are required")
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return errors.New("config: access and refresh token secrets must differ")
	}
	if cfg.Env != "dev" && (cfg.AccessTokenSecret == defaultAccessSecret || cfg.RefreshTokenSecret == defaultRefreshSecret) {
		return errors.New("config: default token secret used outside dev")
	}
	if cfg.AccessTokenExpiry <= 0 || cfg.RefreshTokenExpiry <= 0 {
		return errors.New("config: token expiries must be positive")
	}
	if cfg.AccessTokenExpiry >= cfg.RefreshTokenExpiry {
		return errors.New("config: access token must expire before refresh token")
	}
	return nil
}
