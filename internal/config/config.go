package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Exotel ExotelConfig
	Turn   TurnConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicURL is the externally reachable base URL of this API, used to
	// build provider webhook callback URLs. Optional in local mode.
	PublicURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit. Accepts: disable, require, verify-ca, verify-full
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
}

// ExotelConfig configures the telephony bridge provider.
// ExoPhone is the rented caller-id both parties see instead of each other's
// number.
type ExotelConfig struct {
	SID      string
	APIKey   string
	APIToken string
	ExoPhone string

	// RingTimeout bounds how long a leg may ring before the bridge attempt
	// is treated as failed. Defaults to 30s.
	RingTimeout time.Duration

	// MaxCallDuration caps a bridged conversation. Defaults to 10m.
	MaxCallDuration time.Duration

	// MaxConcurrentCalls caps simultaneous bridges platform-wide. Size to
	// the account's channel count. Defaults to 10.
	MaxConcurrentCalls int
}

// TurnConfig configures time-limited TURN credentials handed to browser
// clients for relay-assisted peer connections.
type TurnConfig struct {
	URL    string
	Secret string
	Realm  string

	// CredentialTTL controls how long issued credentials stay valid.
	// Defaults to 1h.
	CredentialTTL time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.PublicURL = strings.TrimRight(strings.TrimSpace(os.Getenv("APP_PUBLIC_URL")), "/")
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Exotel.SID = strings.TrimSpace(os.Getenv("EXOTEL_SID"))
	c.Exotel.APIKey = os.Getenv("EXOTEL_API_KEY")
	c.Exotel.APIToken = os.Getenv("EXOTEL_API_TOKEN")
	c.Exotel.ExoPhone = strings.TrimSpace(os.Getenv("EXOTEL_PHONE"))
	c.Exotel.RingTimeout = mustDuration("EXOTEL_RING_TIMEOUT")
	c.Exotel.MaxCallDuration = mustDuration("EXOTEL_MAX_CALL_DURATION")
	if v := strings.TrimSpace(os.Getenv("EXOTEL_MAX_CONCURRENT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("EXOTEL_MAX_CONCURRENT: %w", err))
		}
		c.Exotel.MaxConcurrentCalls = n
	}

	c.Turn.URL = strings.TrimSpace(os.Getenv("TURN_URL"))
	c.Turn.Secret = os.Getenv("TURN_SECRET")
	c.Turn.Realm = strings.TrimSpace(os.Getenv("TURN_REALM"))
	c.Turn.CredentialTTL = mustDuration("TURN_CREDENTIAL_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

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

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

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
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	// Bridge provider credentials are required only in production; local and
	// dev run with the in-memory fake provider.
	if c.IsProduction() {
		if c.Exotel.SID == "" {
			errs = append(errs, errors.New("EXOTEL_SID is required in production"))
		}
		if c.Exotel.APIKey == "" {
			errs = append(errs, errors.New("EXOTEL_API_KEY is required in production"))
		}
		if c.Exotel.APIToken == "" {
			errs = append(errs, errors.New("EXOTEL_API_TOKEN is required in production"))
		}
		if c.Exotel.ExoPhone == "" {
			errs = append(errs, errors.New("EXOTEL_PHONE is required in production"))
		}
		if c.Turn.Secret == "" {
			errs = append(errs, errors.New("TURN_SECRET is required in production"))
		}
	}
	if c.Exotel.RingTimeout <= 0 {
		c.Exotel.RingTimeout = 30 * time.Second
	}
	if c.Exotel.MaxCallDuration <= 0 {
		c.Exotel.MaxCallDuration = 10 * time.Minute
	}
	if c.Exotel.MaxConcurrentCalls <= 0 {
		c.Exotel.MaxConcurrentCalls = 10
	}
	if c.Turn.Realm == "" {
		c.Turn.Realm = "safescan24"
	}
	if c.Turn.CredentialTTL <= 0 {
		c.Turn.CredentialTTL = time.Hour
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// StatusCallbackURL is where the telephony provider posts leg-status
// events. Empty when no public URL is configured; the provider then falls
// back to polling-free operation with ring timers only.
func (c Config) StatusCallbackURL() string {
	if c.App.PublicURL == "" {
		return ""
	}
	return c.App.PublicURL + "/webhooks/exotel/status"
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
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
