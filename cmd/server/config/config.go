package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// GatewayConfig holds payment-gateway credentials and tuning.
type GatewayConfig struct {
	// Env selects the sandbox or production endpoint preset. Explicit URL
	// overrides win over the preset.
	Env       string
	TokenURL  string
	PayURL    string
	StatusURL string

	ClientID      string
	ClientSecret  string
	ClientVersion string

	Timeout     *time.Duration
	TokenMargin *time.Duration

	OrderExpiry     *time.Duration
	DuplicateWindow *time.Duration

	// FeeAmountMinor is the fixed application fee in paise.
	FeeAmountMinor int64
	// RedirectBaseURL is the frontend the payer returns to after checkout.
	RedirectBaseURL string
}

// HTTPConfig holds the public listener and per-route limiter settings.
type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string

	RateLimitWindow time.Duration
	RateLimitMax    int64

	PaymentRateLimitWindow time.Duration
	PaymentRateLimitMax    int64
}

// RedisConfig holds optional Redis connection settings for the rate limiter.
type RedisConfig struct {
	URL          string
	DialTimeout  *time.Duration
	ReadTimeout  *time.Duration
	WriteTimeout *time.Duration
	PoolSize     *int
}

// SMTPConfig holds optional mail delivery settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// ObservabilityConfig holds the HTTP address for the metrics endpoint.
type ObservabilityConfig struct {
	Addr string
}

// Gateway environments accepted by GATEWAY_ENV.
const (
	defaultGatewayEnv    = "sandbox"
	defaultClientVersion = "1"
	defaultFeeMinor      = 9900
)

// LoadGateway reads gateway credentials and payment tuning from env.
func LoadGateway() (GatewayConfig, error) {
	cfg := GatewayConfig{
		Env:       strings.TrimSpace(os.Getenv("GATEWAY_ENV")),
		TokenURL:  strings.TrimSpace(os.Getenv("GATEWAY_TOKEN_URL")),
		PayURL:    strings.TrimSpace(os.Getenv("GATEWAY_PAY_URL")),
		StatusURL: strings.TrimSpace(os.Getenv("GATEWAY_STATUS_URL")),
	}
	if cfg.Env == "" {
		cfg.Env = defaultGatewayEnv
	}

	var err error
	if cfg.ClientID, err = requiredString("GATEWAY_CLIENT_ID"); err != nil {
		return cfg, err
	}
	if cfg.ClientSecret, err = requiredString("GATEWAY_CLIENT_SECRET"); err != nil {
		return cfg, err
	}
	cfg.ClientVersion = strings.TrimSpace(os.Getenv("GATEWAY_CLIENT_VERSION"))
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = defaultClientVersion
	}

	if cfg.Timeout, err = optionalDuration("GATEWAY_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.TokenMargin, err = optionalDuration("GATEWAY_TOKEN_MARGIN"); err != nil {
		return cfg, err
	}
	if cfg.OrderExpiry, err = optionalDuration("PAYMENT_ORDER_EXPIRY"); err != nil {
		return cfg, err
	}
	if cfg.DuplicateWindow, err = optionalDuration("PAYMENT_DUPLICATE_WINDOW"); err != nil {
		return cfg, err
	}

	fee, err := optionalInt64("PAYMENT_FEE_AMOUNT")
	if err != nil {
		return cfg, err
	}
	cfg.FeeAmountMinor = defaultFeeMinor
	if fee != nil {
		cfg.FeeAmountMinor = *fee
	}

	if cfg.RedirectBaseURL, err = requiredString("FRONTEND_URL"); err != nil {
		return cfg, err
	}
	cfg.RedirectBaseURL = strings.TrimRight(cfg.RedirectBaseURL, "/")

	return cfg, nil
}

// LoadHTTP reads the public listener settings from env.
func LoadHTTP() (HTTPConfig, error) {
	addr, err := requiredString("HTTP_ADDR")
	if err != nil {
		return HTTPConfig{}, err
	}
	cfg := HTTPConfig{
		Addr:                   addr,
		RateLimitWindow:        time.Minute,
		RateLimitMax:           100,
		PaymentRateLimitWindow: time.Minute,
		PaymentRateLimitMax:    10,
	}

	if raw := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if window, err := optionalDuration("RATE_LIMIT_WINDOW"); err != nil {
		return cfg, err
	} else if window != nil {
		cfg.RateLimitWindow = *window
	}
	if max, err := optionalInt64("RATE_LIMIT_MAX"); err != nil {
		return cfg, err
	} else if max != nil {
		cfg.RateLimitMax = *max
	}
	if window, err := optionalDuration("PAYMENT_RATE_LIMIT_WINDOW"); err != nil {
		return cfg, err
	} else if window != nil {
		cfg.PaymentRateLimitWindow = *window
	}
	if max, err := optionalInt64("PAYMENT_RATE_LIMIT_MAX"); err != nil {
		return cfg, err
	} else if max != nil {
		cfg.PaymentRateLimitMax = *max
	}

	return cfg, nil
}

// GetDatabaseURL returns the optional Postgres DSN; empty means the in-memory
// stores are used.
func GetDatabaseURL() string {
	return strings.TrimSpace(os.Getenv("DATABASE_URL"))
}

// LoadRedis reads optional Redis settings from env. The second return value
// is false when Redis is not configured.
func LoadRedis() (RedisConfig, bool, error) {
	cfg := RedisConfig{URL: strings.TrimSpace(os.Getenv("REDIS_URL"))}
	if cfg.URL == "" {
		return cfg, false, nil
	}

	var err error
	if cfg.DialTimeout, err = optionalDuration("REDIS_DIAL_TIMEOUT"); err != nil {
		return cfg, false, err
	}
	if cfg.ReadTimeout, err = optionalDuration("REDIS_READ_TIMEOUT"); err != nil {
		return cfg, false, err
	}
	if cfg.WriteTimeout, err = optionalDuration("REDIS_WRITE_TIMEOUT"); err != nil {
		return cfg, false, err
	}
	if cfg.PoolSize, err = optionalInt("REDIS_POOL_SIZE"); err != nil {
		return cfg, false, err
	}

	return cfg, true, nil
}

// LoadSMTP reads optional mail settings from env. The second return value is
// false when mail is not configured.
func LoadSMTP() (SMTPConfig, bool, error) {
	cfg := SMTPConfig{Host: strings.TrimSpace(os.Getenv("SMTP_HOST"))}
	if cfg.Host == "" {
		return cfg, false, nil
	}

	port, err := optionalInt("SMTP_PORT")
	if err != nil {
		return cfg, false, err
	}
	cfg.Port = 587
	if port != nil {
		cfg.Port = *port
	}

	if cfg.Username, err = requiredString("SMTP_USERNAME"); err != nil {
		return cfg, false, err
	}
	if cfg.Password, err = requiredString("SMTP_PASSWORD"); err != nil {
		return cfg, false, err
	}
	cfg.From = strings.TrimSpace(os.Getenv("SMTP_FROM"))
	if cfg.From == "" {
		cfg.From = cfg.Username
	}

	return cfg, true, nil
}

// LoadObservability reads the metrics listener address from env; empty means
// the side listener is disabled.
func LoadObservability() ObservabilityConfig {
	return ObservabilityConfig{Addr: strings.TrimSpace(os.Getenv("OBS_ADDR"))}
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt64(name string) (*int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}
