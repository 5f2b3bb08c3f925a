/**
 * @description
 * This package handles the configuration management for the entitlement-service.
 * It uses the Viper library to read configuration from environment variables and
 * an optional .env file, then normalizes and validates the result.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	ApprovalModeTwoStep = "two_step"
	ApprovalModeDirect  = "direct"

	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"

	defaultRateLimitPrefix = "soullink:rate_limit"
)

// Config holds all the configuration variables for the entitlement-service.
type Config struct {
	ServerPort                 string   `mapstructure:"SERVER_PORT"`
	DatabaseURL                string   `mapstructure:"DATABASE_URL"`
	StoreBackend               string   `mapstructure:"STORE_BACKEND"`
	RedisURL                   string   `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string   `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string   `mapstructure:"RABBITMQ_URL"`
	EventsExchange             string   `mapstructure:"EVENTS_EXCHANGE"`
	JWKSURL                    string   `mapstructure:"JWKS_URL"`
	JWTSecret                  string   `mapstructure:"JWT_SECRET"`
	JWTIssuer                  string   `mapstructure:"JWT_ISSUER"`
	JWTAudience                string   `mapstructure:"JWT_AUDIENCE"`
	InternalAPIKey             string   `mapstructure:"INTERNAL_API_KEY"`
	CORSAllowedOrigins         []string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	ContactPrice               int64    `mapstructure:"CONTACT_PRICE"`
	ContactCurrency            string   `mapstructure:"CONTACT_CURRENCY"`
	ApprovalMode               string   `mapstructure:"APPROVAL_MODE"`
	PaymentGatewayURL          string   `mapstructure:"PAYMENT_GATEWAY_URL"`
	PaymentGatewaySecretKey    string   `mapstructure:"PAYMENT_GATEWAY_SECRET_KEY"`
	CheckoutRateLimitPerMinute int      `mapstructure:"CHECKOUT_RATE_LIMIT_PER_MINUTE"`
	IntegrityAuditSchedule     string   `mapstructure:"INTEGRITY_AUDIT_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STORE_BACKEND", StoreBackendPostgres)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("EVENTS_EXCHANGE", "soullink_events")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "https://*,http://*")
	viper.SetDefault("CONTACT_PRICE", 5)
	viper.SetDefault("CONTACT_CURRENCY", "usd")
	viper.SetDefault("APPROVAL_MODE", ApprovalModeTwoStep)
	viper.SetDefault("CHECKOUT_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("INTEGRITY_AUDIT_SCHEDULE", "@every 1h")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("STORE_BACKEND")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("CONTACT_PRICE")
	_ = viper.BindEnv("CONTACT_CURRENCY")
	_ = viper.BindEnv("APPROVAL_MODE")
	_ = viper.BindEnv("PAYMENT_GATEWAY_URL")
	_ = viper.BindEnv("PAYMENT_GATEWAY_SECRET_KEY")
	_ = viper.BindEnv("CHECKOUT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("INTEGRITY_AUDIT_SCHEDULE")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.ContactCurrency = strings.ToLower(strings.TrimSpace(config.ContactCurrency))
	if config.ContactCurrency == "" {
		config.ContactCurrency = "usd"
	}
	config.CORSAllowedOrigins = normalizeList(config.CORSAllowedOrigins)

	if config.CheckoutRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative checkout rate limit configured; disabling limiter\" limit=%d", config.CheckoutRateLimitPerMinute)
		config.CheckoutRateLimitPerMinute = 0
	}

	config.ApprovalMode = strings.ToLower(strings.TrimSpace(config.ApprovalMode))
	switch config.ApprovalMode {
	case "":
		config.ApprovalMode = ApprovalModeTwoStep
	case ApprovalModeTwoStep, ApprovalModeDirect:
	default:
		return config, fmt.Errorf("invalid APPROVAL_MODE %q: expected %q or %q", config.ApprovalMode, ApprovalModeTwoStep, ApprovalModeDirect)
	}

	config.StoreBackend = strings.ToLower(strings.TrimSpace(config.StoreBackend))
	switch config.StoreBackend {
	case "":
		config.StoreBackend = StoreBackendPostgres
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return config, fmt.Errorf("invalid STORE_BACKEND %q", config.StoreBackend)
	}
	if config.StoreBackend == StoreBackendPostgres && config.DatabaseURL == "" {
		return config, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=%s", StoreBackendPostgres)
	}

	if config.ContactPrice <= 0 {
		return config, fmt.Errorf("CONTACT_PRICE must be positive, got %d", config.ContactPrice)
	}

	return config, nil
}

// normalizeList accepts either a real list or a single comma-separated env value.
func normalizeList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
