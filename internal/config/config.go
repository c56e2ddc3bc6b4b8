package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "KivuCredit"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultTokenTTL       = time.Hour
	defaultPoolAccount    = "pool:collateral"

	defaultCollateralRatio        = int64(150)
	defaultBaseVariableBorrowRate = int64(100)
	defaultOptimalUtilization     = int64(80)
	defaultAboveOptimalRate       = int64(150)
	defaultBaseStableBorrowRate   = int64(50)
)

// Config captures application runtime configuration loaded from environment
// variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// JWTSecret signs account and operator bearer tokens.
	JWTSecret string
	// TokenTTL bounds the lifetime of minted tokens.
	TokenTTL time.Duration
	// OperatorKeyHash is the bcrypt hash of the key presented when minting tokens.
	OperatorKeyHash string
	// OwnerAddress is the principal allowed to mutate rate parameters.
	OwnerAddress string
	// PoolAccount is the custody account holding pooled collateral.
	PoolAccount string

	// Initial rate model parameters; the operator can change them at runtime.
	CollateralRatio        int64
	BaseVariableBorrowRate int64
	OptimalUtilization     int64
	AboveOptimalRate       int64
	BaseStableBorrowRate   int64
}

// Load reads configuration values from the environment and populates a Config
// instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		JWTSecret:       os.Getenv("JWT_SECRET"),
		TokenTTL:        defaultTokenTTL,
		OperatorKeyHash: os.Getenv("OPERATOR_KEY_HASH"),
		OwnerAddress:    os.Getenv("OWNER_ADDRESS"),
		PoolAccount:     getEnv("POOL_ACCOUNT", defaultPoolAccount),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return Config{}, err
	}

	if cfg.CollateralRatio, err = intEnv("COLLATERAL_RATIO", defaultCollateralRatio); err != nil {
		return Config{}, err
	}
	if cfg.BaseVariableBorrowRate, err = intEnv("BASE_VARIABLE_BORROW_RATE", defaultBaseVariableBorrowRate); err != nil {
		return Config{}, err
	}
	if cfg.OptimalUtilization, err = intEnv("OPTIMAL_UTILIZATION", defaultOptimalUtilization); err != nil {
		return Config{}, err
	}
	if cfg.AboveOptimalRate, err = intEnv("ABOVE_OPTIMAL_RATE", defaultAboveOptimalRate); err != nil {
		return Config{}, err
	}
	if cfg.BaseStableBorrowRate, err = intEnv("BASE_STABLE_BORROW_RATE", defaultBaseStableBorrowRate); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.OperatorKeyHash == "" {
			return Config{}, fmt.Errorf("OPERATOR_KEY_HASH must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development-style environment.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
