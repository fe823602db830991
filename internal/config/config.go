package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// Insecure defaults that must never reach production.
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"internal-service-secret":              true,
	"":                                     true,
}

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Evolution      EvolutionConfig
	Quota          QuotaConfig
	Metrics        MetricsConfig
	InternalSecret string
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Schema   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey string
}

// EvolutionConfig holds the connection settings for the external
// WhatsApp gateway (Evolution API).
type EvolutionConfig struct {
	URL            string
	APIKey         string
	Timeout        time.Duration
	DefaultAdapter string
}

// QuotaConfig carries the system-default ceilings applied to users
// without an explicit limits record, plus the timezone that anchors
// the daily message window.
type QuotaConfig struct {
	Timezone          string
	MaxInstances      int
	MaxMessagesPerDay int
	MaxContacts       int
	MaxGroups         int
}

type MetricsConfig struct {
	Namespace string
}

func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8006"),
			Mode: getEnv("GIN_MODE", "release"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "saas_user"),
			Password: getEnv("DB_PASSWORD", "saas_pass"),
			DBName:   getEnv("DB_NAME", "saas_db"),
			Schema:   getEnv("DB_SCHEMA", "whatsapp"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
		},
		Evolution: EvolutionConfig{
			URL:            getEnv("EVOLUTION_API_URL", "http://localhost:8080"),
			APIKey:         getEnv("EVOLUTION_API_KEY", ""),
			Timeout:        time.Duration(getEnvInt("EVOLUTION_TIMEOUT_SECONDS", 30)) * time.Second,
			DefaultAdapter: getEnv("EVOLUTION_DEFAULT_ADAPTER", "WHATSAPP-BAILEYS"),
		},
		Quota: QuotaConfig{
			Timezone:          getEnv("QUOTA_TIMEZONE", "UTC"),
			MaxInstances:      getEnvInt("QUOTA_MAX_INSTANCES", 1),
			MaxMessagesPerDay: getEnvInt("QUOTA_MAX_MESSAGES_PER_DAY", 1000),
			MaxContacts:       getEnvInt("QUOTA_MAX_CONTACTS", 100),
			MaxGroups:         getEnvInt("QUOTA_MAX_GROUPS", 10),
		},
		Metrics: MetricsConfig{
			Namespace: getEnv("METRICS_NAMESPACE", "whatsapp_service"),
		},
		InternalSecret: getEnv("INTERNAL_SECRET", ""),
	}

	// Secrets are intentionally left out of this line.
	log.Printf("[config] WhatsApp Service loaded: port=%s db=%s/%s.%s gateway=%s tz=%s",
		cfg.Server.Port, cfg.Database.Host, cfg.Database.DBName, cfg.Database.Schema,
		cfg.Evolution.URL, cfg.Quota.Timezone)

	return cfg
}

// Validate checks that the configuration is usable and that no insecure
// secret made it into a running deployment.
func (c *Config) Validate() error {
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.InternalSecret) < 32 {
		return fmt.Errorf("INTERNAL_SECRET must be at least 32 characters long")
	}

	if c.Evolution.APIKey == "" {
		return fmt.Errorf("EVOLUTION_API_KEY must be set")
	}

	if _, err := time.LoadLocation(c.Quota.Timezone); err != nil {
		return fmt.Errorf("QUOTA_TIMEZONE %q is not a valid IANA timezone: %w", c.Quota.Timezone, err)
	}

	if c.Quota.MaxInstances < 1 || c.Quota.MaxMessagesPerDay < 1 {
		return fmt.Errorf("quota defaults must be >= 1")
	}

	return nil
}

// Location resolves the configured quota timezone. Validate ensures the
// name parses at startup; UTC is the fallback if it disappears at runtime.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Quota.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
