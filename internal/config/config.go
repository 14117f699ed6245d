package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds all configuration required by the API process.
// All values must come from env (or a .env file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Mail      MailConfig
	Bootstrap BootstrapConfig
}

type AppConfig struct {
	Env  string
	Port int

	// CORSAllowedOrigins lists browser origins allowed to call the API.
	// Empty means no cross-origin access.
	CORSAllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	BcryptCost int

	// ForgotPasswordInBand returns the temporary password in the forgot-password
	// response. Local/dev only; rejected in production.
	ForgotPasswordInBand bool

	LoginMaxAttempts   int
	LoginAttemptWindow time.Duration
}

type RateLimitConfig struct {
	// Per client IP, applied to the public auth endpoints.
	RPS   float64
	Burst int
}

// MailConfig configures out-of-band delivery of temporary passwords.
// When Host is empty, deliveries are only logged (without the secret).
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// BootstrapConfig describes the initial administrator created by `migrate seed`.
type BootstrapConfig struct {
	AdminUsername string
	AdminPassword string
	AdminEmail    string
	AdminName     string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.CORSAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	db, errs := loadDB()
	parseErrs = append(parseErrs, errs...)
	c.DB = db

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")
	{
		n, err := optionalInt("BCRYPT_COST")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Auth.BcryptCost = n
	}
	c.Auth.ForgotPasswordInBand = optionalBool("AUTH_FORGOT_PASSWORD_INBAND")
	{
		n, err := optionalInt("LOGIN_MAX_ATTEMPTS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Auth.LoginMaxAttempts = n
	}
	c.Auth.LoginAttemptWindow = mustDuration("LOGIN_ATTEMPT_WINDOW")

	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("RATE_LIMIT_RPS must be a number, got %q", v))
		}
		c.RateLimit.RPS = f
	}
	{
		n, err := optionalInt("RATE_LIMIT_BURST")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.RateLimit.Burst = n
	}

	c.Mail.Host = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	{
		n, err := optionalInt("SMTP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Mail.Port = n
	}
	c.Mail.Username = strings.TrimSpace(os.Getenv("SMTP_USERNAME"))
	c.Mail.Password = os.Getenv("SMTP_PASSWORD")
	c.Mail.From = strings.TrimSpace(os.Getenv("SMTP_FROM"))

	c.Bootstrap = loadBootstrap()

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills in defaults for optional ones.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	errs = append(errs, c.DB.validate(c.IsProduction())...)

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if len(c.Auth.JWTSecret) > 0 && len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes in production"))
		}
		if c.Auth.ForgotPasswordInBand {
			errs = append(errs, errors.New("AUTH_FORGOT_PASSWORD_INBAND must not be enabled in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = bcrypt.DefaultCost
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.Auth.BcryptCost))
	}

	if c.Auth.LoginMaxAttempts <= 0 {
		c.Auth.LoginMaxAttempts = 10
	}
	if c.Auth.LoginAttemptWindow <= 0 {
		c.Auth.LoginAttemptWindow = 15 * time.Minute
	}

	if c.RateLimit.RPS <= 0 {
		c.RateLimit.RPS = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}

	if c.Mail.Host != "" {
		if c.Mail.Port == 0 {
			c.Mail.Port = 587
		}
		if c.Mail.From == "" {
			errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	return c.DB.DSN()
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// DSN renders a libpq keyword/value connection string.
// Avoid logging this string; it contains secrets.
func (d DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

func (d *DBConfig) validate(production bool) []error {
	var errs []error
	if d.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if d.Port <= 0 || d.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if d.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(d.SSLMode) == "" {
		if production {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			d.SSLMode = "disable"
		}
	}
	if d.SSLMode != "" && !isValidSSLMode(d.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", d.SSLMode))
	}
	return errs
}

// MigrateConfig is the subset used by the migrate command; it does not need
// Redis or signing keys.
type MigrateConfig struct {
	DB         DBConfig
	Bootstrap  BootstrapConfig
	BcryptCost int
}

func LoadMigrate() (MigrateConfig, error) {
	db, errs := loadDB()
	cost, err := optionalInt("BCRYPT_COST")
	if err != nil {
		errs = append(errs, err)
	}
	if err := joinErrors(errs); err != nil {
		return MigrateConfig{}, err
	}
	production := strings.TrimSpace(os.Getenv("APP_ENV")) == "production"
	if err := joinErrors(db.validate(production)); err != nil {
		return MigrateConfig{}, err
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return MigrateConfig{DB: db, Bootstrap: loadBootstrap(), BcryptCost: cost}, nil
}

func loadDB() (DBConfig, []error) {
	var d DBConfig
	var errs []error
	d.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, errs = appendParseErr(errs, n, err)
		d.Port = n
	}
	d.User = strings.TrimSpace(os.Getenv("DB_USER"))
	d.Password = os.Getenv("DB_PASSWORD")
	d.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	d.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	return d, errs
}

func loadBootstrap() BootstrapConfig {
	b := BootstrapConfig{
		AdminUsername: strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminEmail:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminName:     strings.TrimSpace(os.Getenv("ADMIN_NAME")),
	}
	if b.AdminUsername == "" {
		b.AdminUsername = "admin"
	}
	if b.AdminName == "" {
		b.AdminName = "Administrador"
	}
	return b
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
