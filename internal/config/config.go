package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath      = "CONFIG_PATH"
	EnvDBConnection    = "DB_CONNECTION"
	EnvJWTSecret       = "JWT_SECRET"
	EnvJWTExpiry       = "JWT_EXPIRY"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvAdminEmail      = "ADMIN_EMAIL"
	EnvFrontendURL     = "FRONTEND_URL"
	EnvMailMode        = "MAIL_MODE"
	EnvTurnstileSecret = "TURNSTILE_SECRET_KEY"
	EnvGeoIPPath       = "GEOIP_DB_PATH"
	EnvLogLevel        = "LOG_LEVEL"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
// A .env file in the working directory is applied first when present.
func LoadFromEnv() (AppConfig, error) {
	if errDotenv := godotenv.Load(); errDotenv != nil && !errors.Is(errDotenv, os.ErrNotExist) {
		log.WithError(errDotenv).Warn("config: ignoring unreadable .env file")
	}
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ErrMissingJWTSecret indicates no session signing secret is configured.
var ErrMissingJWTSecret = errors.New("missing jwt secret (set `jwt.secret` in config file or JWT_SECRET)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
	Issuer string        `yaml:"issuer"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 4 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	if strings.TrimSpace(result.Secret) == "" {
		return result, ErrMissingJWTSecret
	}
	return result, nil
}

// Settings holds every non-database setting consumed at process start.
type Settings struct {
	Port        int      `yaml:"port"`
	FrontendURL string   `yaml:"frontend-url"`
	CORSOrigins []string `yaml:"cors-origins"`
	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding headers
	// are honored. Empty means the socket peer is always the client.
	TrustedProxies []string       `yaml:"trusted-proxies"`
	Cookie         CookieConfig   `yaml:"cookie"`
	Redis          RedisConfig    `yaml:"redis"`
	Mail           MailConfig     `yaml:"mail"`
	GeoIP          GeoIPConfig    `yaml:"geoip"`
	Challenge      ChallengeCfg   `yaml:"challenge"`
	RateLimits     RateLimitTable `yaml:"rate-limits"`
	Logging        LoggingConfig  `yaml:"logging"`
}

// CookieConfig controls the session cookie attributes.
type CookieConfig struct {
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`
	Secure bool   `yaml:"secure"`
}

// RedisConfig describes the shared key-value store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Enabled reports whether a redis address is configured.
func (c RedisConfig) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

// Mail delivery modes.
const (
	MailModeSMTP     = "smtp"
	MailModeLog      = "log"
	MailModeDisabled = "disabled"
)

// MailConfig describes outbound email delivery.
type MailConfig struct {
	Mode        string        `yaml:"mode"`
	From        string        `yaml:"from"`
	AdminEmail  string        `yaml:"admin-email"`
	SMTPHost    string        `yaml:"smtp-host"`
	SMTPPort    int           `yaml:"smtp-port"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Connections int           `yaml:"connections"`
	SendTimeout time.Duration `yaml:"send-timeout"`
}

// GeoIPConfig points at a MaxMind City database.
type GeoIPConfig struct {
	DatabasePath string `yaml:"database-path"`
}

// Challenge verification modes.
const (
	ChallengeModeEnforce    = "enforce"
	ChallengeModePermissive = "permissive"
)

// ChallengeCfg configures Turnstile verification.
type ChallengeCfg struct {
	Mode      string        `yaml:"mode"`
	SecretKey string        `yaml:"secret-key"`
	VerifyURL string        `yaml:"verify-url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RateLimitRule is a limit per fixed window.
type RateLimitRule struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// RateLimitTable lists the throttled endpoints.
type RateLimitTable struct {
	Login              RateLimitRule `yaml:"login"`
	Verify2FA          RateLimitRule `yaml:"verify-2fa"`
	ForgotPassword     RateLimitRule `yaml:"forgot-password"`
	Register           RateLimitRule `yaml:"register"`
	VerifyRegistration RateLimitRule `yaml:"verify-registration"`
	ResendVerification RateLimitRule `yaml:"resend-verification"`
	ResetPassword      RateLimitRule `yaml:"reset-password"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxAgeDays int    `yaml:"max-age-days"`
	MaxBackups int    `yaml:"max-backups"`
	Compress   bool   `yaml:"compress"`
}

// DefaultSettings returns the settings used when the file omits a value.
func DefaultSettings() Settings {
	return Settings{
		Port:        8318,
		FrontendURL: "http://localhost:5173",
		Cookie:      CookieConfig{Name: "access_token_cookie", Secure: true},
		Redis:       RedisConfig{Prefix: "blog"},
		Mail: MailConfig{
			Mode:        MailModeLog,
			From:        "noreply@computeranything.dev",
			SMTPPort:    587,
			Connections: 2,
			SendTimeout: 5 * time.Second,
		},
		Challenge: ChallengeCfg{
			Mode:      ChallengeModeEnforce,
			VerifyURL: "https://challenges.cloudflare.com/turnstile/v0/siteverify",
			Timeout:   5 * time.Second,
		},
		RateLimits: RateLimitTable{
			Login:              RateLimitRule{Limit: 5, Window: time.Minute},
			Verify2FA:          RateLimitRule{Limit: 5, Window: 5 * time.Minute},
			ForgotPassword:     RateLimitRule{Limit: 3, Window: time.Hour},
			Register:           RateLimitRule{Limit: 10, Window: time.Hour},
			VerifyRegistration: RateLimitRule{Limit: 5, Window: 5 * time.Minute},
			ResendVerification: RateLimitRule{Limit: 3, Window: 15 * time.Minute},
			ResetPassword:      RateLimitRule{Limit: 5, Window: 15 * time.Minute},
		},
		Logging: LoggingConfig{Level: "info", MaxSizeMB: 100, MaxAgeDays: 28, MaxBackups: 5},
	}
}

// LoadSettings reads Settings from the YAML config file and applies env overrides.
// A missing file yields defaults plus env overrides.
func LoadSettings(configPath string) (Settings, error) {
	// fileConfig maps the YAML fields needed for runtime settings.
	type fileConfig struct {
		Settings `yaml:",inline"`
	}

	cfg := fileConfig{Settings: DefaultSettings()}
	data, errRead := os.ReadFile(configPath)
	if errRead != nil && !errors.Is(errRead, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("read config file: %w", errRead)
	}
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Settings{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}
	result := cfg.Settings

	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		result.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisPassword)); v != "" {
		result.Redis.Password = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAdminEmail)); v != "" {
		result.Mail.AdminEmail = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFrontendURL)); v != "" {
		result.FrontendURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMailMode)); v != "" {
		result.Mail.Mode = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTurnstileSecret)); v != "" {
		result.Challenge.SecretKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvGeoIPPath)); v != "" {
		result.GeoIP.DatabasePath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		result.Logging.Level = v
	}

	if errValidate := result.validate(); errValidate != nil {
		return Settings{}, errValidate
	}
	return result, nil
}

func (s *Settings) validate() error {
	s.FrontendURL = strings.TrimRight(strings.TrimSpace(s.FrontendURL), "/")
	s.Redis.Prefix = strings.TrimSpace(s.Redis.Prefix)
	if s.Redis.DB < 0 {
		s.Redis.DB = 0
	}
	if strings.TrimSpace(s.Cookie.Name) == "" {
		s.Cookie.Name = "access_token_cookie"
	}

	switch s.Mail.Mode {
	case MailModeSMTP:
		if strings.TrimSpace(s.Mail.SMTPHost) == "" {
			return errors.New("mail: smtp mode requires `mail.smtp-host`")
		}
	case MailModeLog, MailModeDisabled:
	case "":
		s.Mail.Mode = MailModeLog
	default:
		return fmt.Errorf("mail: unsupported mode %q", s.Mail.Mode)
	}
	if s.Mail.SendTimeout <= 0 {
		s.Mail.SendTimeout = 5 * time.Second
	}
	if s.Mail.Connections <= 0 {
		s.Mail.Connections = 1
	}

	s.Challenge.Mode = strings.ToLower(strings.TrimSpace(s.Challenge.Mode))
	switch s.Challenge.Mode {
	case ChallengeModeEnforce:
		if strings.TrimSpace(s.Challenge.SecretKey) == "" {
			return errors.New("challenge: enforce mode requires `challenge.secret-key` (set mode to permissive for development)")
		}
	case ChallengeModePermissive:
	default:
		return fmt.Errorf("challenge: unsupported mode %q", s.Challenge.Mode)
	}
	if s.Challenge.Timeout <= 0 {
		s.Challenge.Timeout = 5 * time.Second
	}

	for name, rule := range map[string]RateLimitRule{
		"login":           s.RateLimits.Login,
		"verify-2fa":      s.RateLimits.Verify2FA,
		"forgot-password": s.RateLimits.ForgotPassword,
		"register":        s.RateLimits.Register,
	} {
		if rule.Limit < 0 || (rule.Limit > 0 && rule.Window <= 0) {
			return fmt.Errorf("rate-limits.%s: invalid rule", name)
		}
	}
	return nil
}

// ParsePort parses a decimal port, rejecting values outside 1..65535.
func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid port: %q", raw)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port: %d", port)
	}
	return port, nil
}
