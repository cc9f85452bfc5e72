package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable with CONFIG_PATH.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML. Every field can be
// overridden by the environment variable named in its env tag.
type FileConfig struct {
	Port        string `yaml:"port" env:"PORT"`
	LogLevel    string `yaml:"logLevel" env:"LOG_LEVEL"`
	DatabaseURL string `yaml:"databaseURL" env:"DATABASE_URL"`

	RedisAddr     string `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" env:"REDIS_PASSWORD"`

	SessionTTL          string `yaml:"sessionTTL" env:"SESSION_TTL"`
	CookieSecure        bool   `yaml:"cookieSecure" env:"COOKIE_SECURE"`
	JWTPrivateKeyPath   string `yaml:"jwtPrivateKeyPath" env:"JWT_PRIVATE_KEY_PATH"`
	JWTKeyID            string `yaml:"jwtKeyId" env:"JWT_KEY_ID"`
	JWTVerifyPublicKeys string `yaml:"jwtVerifyPublicKeys" env:"JWT_VERIFY_PUBLIC_KEYS"`
	JWTIssuer           string `yaml:"jwtIssuer" env:"JWT_ISSUER"`
	JWTAudience         string `yaml:"jwtAudience" env:"JWT_AUDIENCE"`
	JWTLeeway           string `yaml:"jwtLeeway" env:"JWT_LEEWAY"`

	MinioEndpoint  string `yaml:"minioEndpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey string `yaml:"minioAccessKey" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `yaml:"minioSecretKey" env:"MINIO_SECRET_KEY"`
	MinioBucket    string `yaml:"minioBucket" env:"MINIO_BUCKET"`
	MinioUseSSL    bool   `yaml:"minioUseSSL" env:"MINIO_USE_SSL"`
	StorageDir     string `yaml:"storageDir" env:"STORAGE_DIR"`
	PresignTTL     string `yaml:"presignTTL" env:"PRESIGN_TTL"`
	MaxUploadMB    int64  `yaml:"maxUploadMB" env:"MAX_UPLOAD_MB"`

	LoginRateLimitPerMinute  int      `yaml:"loginRateLimitPerMinute" env:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	SignupRateLimitPerMinute int      `yaml:"signupRateLimitPerMinute" env:"SIGNUP_RATE_LIMIT_PER_MINUTE"`
	TrustedProxies           []string `yaml:"trustedProxies" env:"TRUSTED_PROXIES" envSeparator:","`
	CORSOrigins              []string `yaml:"corsOrigins" env:"CORS_ORIGINS" envSeparator:","`

	BootstrapAdminEmail string `yaml:"bootstrapAdminEmail" env:"BOOTSTRAP_ADMIN_EMAIL"`
}

// Load reads config from path (defaults to CONFIG_PATH, then config.yaml),
// applies environment overrides and validates the result. A missing file is
// allowed when the environment supplies every required value.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.MinioBucket) == "" {
		cfg.MinioBucket = "submissions"
	}
	if cfg.MaxUploadMB == 0 {
		cfg.MaxUploadMB = 200
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if cfg.JWTPrivateKeyPath == "" {
		return errors.New("config: jwtPrivateKeyPath is required (set JWT_PRIVATE_KEY_PATH)")
	}
	if cfg.MinioEndpoint == "" && cfg.StorageDir == "" {
		return errors.New("config: one of minioEndpoint or storageDir is required")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "") {
		return errors.New("config: minioEndpoint requires minioAccessKey and minioSecretKey")
	}
	if cfg.MaxUploadMB < 0 {
		return errors.New("config: maxUploadMB must be > 0")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if (cfg.SignupRateLimitPerMinute > 0 || cfg.LoginRateLimitPerMinute > 0) && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: rate limits require redisAddr")
	}
	for _, d := range []struct{ name, value string }{
		{"sessionTTL", cfg.SessionTTL},
		{"jwtLeeway", cfg.JWTLeeway},
		{"presignTTL", cfg.PresignTTL},
	} {
		if _, err := parseOptionalDuration(d.name, d.value); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if _, err := ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseSessionTTL parses the session lifetime, defaulting to 24h.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	dur, err := parseOptionalDuration("sessionTTL", ttlStr)
	if err != nil || dur > 0 {
		return dur, err
	}
	return 24 * time.Hour, nil
}

// ParsePresignTTL parses the lifetime of asset download links, defaulting to 15m.
func ParsePresignTTL(ttlStr string) (time.Duration, error) {
	dur, err := parseOptionalDuration("presignTTL", ttlStr)
	if err != nil || dur > 0 {
		return dur, err
	}
	return 15 * time.Minute, nil
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	return parseOptionalDuration("jwtLeeway", leewayStr)
}

func parseOptionalDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must not be negative", name)
	}
	return dur, nil
}

// ParseVerifyPublicKeys parses "kid=path,kid2=path2" into a map.
func ParseVerifyPublicKeys(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	pairs := strings.Split(raw, ",")
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kid, path, ok := strings.Cut(pair, "=")
		kid = strings.TrimSpace(kid)
		path = strings.TrimSpace(path)
		if !ok || kid == "" || path == "" {
			return nil, fmt.Errorf("invalid jwtVerifyPublicKeys entry %q", pair)
		}
		out[kid] = path
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
