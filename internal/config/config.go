/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the store-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	JWTSecret                 string `mapstructure:"JWT_SECRET"`
	InternalAPIKey            string `mapstructure:"INTERNAL_API_KEY"`
	ReservationTTLSeconds     int    `mapstructure:"RESERVATION_TTL_SECONDS"`
	SweepSchedule             string `mapstructure:"SWEEP_SCHEDULE"`
	CheckoutRateLimitPerMin   int    `mapstructure:"CHECKOUT_RATE_LIMIT_PER_MINUTE"`
	DatabaseMaxConns          int    `mapstructure:"DATABASE_MAX_CONNS"`
	DatabaseMinConns          int    `mapstructure:"DATABASE_MIN_CONNS"`
	DatabaseConnLifetimeMins  int    `mapstructure:"DATABASE_CONN_LIFETIME_MINUTES"`
	DatabaseConnIdleTimeMins  int    `mapstructure:"DATABASE_CONN_IDLE_TIME_MINUTES"`
	DatabaseHealthcheckSecs   int    `mapstructure:"DATABASE_HEALTHCHECK_SECONDS"`
	DatabaseSimpleProtocol    bool   `mapstructure:"DATABASE_SIMPLE_PROTOCOL"`
	ShutdownGraceSeconds      int    `mapstructure:"SHUTDOWN_GRACE_SECONDS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "streamhub:rate_limit")
	viper.SetDefault("RESERVATION_TTL_SECONDS", 900)
	viper.SetDefault("SWEEP_SCHEDULE", "@every 1m")
	viper.SetDefault("CHECKOUT_RATE_LIMIT_PER_MINUTE", 20)
	viper.SetDefault("DATABASE_MAX_CONNS", 10)
	viper.SetDefault("DATABASE_MIN_CONNS", 2)
	viper.SetDefault("DATABASE_CONN_LIFETIME_MINUTES", 30)
	viper.SetDefault("DATABASE_CONN_IDLE_TIME_MINUTES", 5)
	viper.SetDefault("DATABASE_HEALTHCHECK_SECONDS", 60)
	viper.SetDefault("DATABASE_SIMPLE_PROTOCOL", true)
	viper.SetDefault("SHUTDOWN_GRACE_SECONDS", 15)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "STORE_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "STORE_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("RESERVATION_TTL_SECONDS")
	_ = viper.BindEnv("SWEEP_SCHEDULE")
	_ = viper.BindEnv("CHECKOUT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("DATABASE_MAX_CONNS")
	_ = viper.BindEnv("DATABASE_MIN_CONNS")
	_ = viper.BindEnv("DATABASE_CONN_LIFETIME_MINUTES")
	_ = viper.BindEnv("DATABASE_CONN_IDLE_TIME_MINUTES")
	_ = viper.BindEnv("DATABASE_HEALTHCHECK_SECONDS")
	_ = viper.BindEnv("DATABASE_SIMPLE_PROTOCOL")
	_ = viper.BindEnv("SHUTDOWN_GRACE_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("STORE_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "streamhub:rate_limit"
	}
	config.SweepSchedule = strings.TrimSpace(config.SweepSchedule)
	if config.SweepSchedule == "" {
		config.SweepSchedule = "@every 1m"
	}

	if config.ReservationTTLSeconds <= 0 {
		config.ReservationTTLSeconds = 900
	}
	if config.CheckoutRateLimitPerMin < 0 {
		log.Printf("level=warn component=config msg=\"negative checkout rate limit configured; disabling\" limit=%d", config.CheckoutRateLimitPerMin)
		config.CheckoutRateLimitPerMin = 0
	}
	if config.DatabaseMaxConns <= 0 {
		config.DatabaseMaxConns = 10
	}
	if config.DatabaseMinConns < 0 || config.DatabaseMinConns > config.DatabaseMaxConns {
		config.DatabaseMinConns = 2
	}
	if config.ShutdownGraceSeconds <= 0 {
		config.ShutdownGraceSeconds = 15
	}

	return
}
