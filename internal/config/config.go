package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/squire-bot/squire/internal/guild"
	"gopkg.in/yaml.v3"
)

// Settings storage backends
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken  string
	CommandPrefix string

	// Storage
	SettingsBackend string
	DatabasePath    string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	// Confirmations
	ConfirmationTTL time.Duration
	SweepInterval   time.Duration

	// Default structure names used to discover guild settings
	DefaultNames guild.Names

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:    os.Getenv("DISCORD_BOT_TOKEN"),
		CommandPrefix:   getEnvOrDefault("COMMAND_PREFIX", "!"),
		SettingsBackend: getEnvOrDefault("SETTINGS_BACKEND", BackendSQLite),
		DatabasePath:    getEnvOrDefault("DATABASE_PATH", "./data/bot.db"),
		RedisAddr:       getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		DefaultNames:    guild.DefaultNames(),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	ttl, err := getEnvInt("CONFIRMATION_TTL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.ConfirmationTTL = time.Duration(ttl) * time.Second

	sweep, err := getEnvInt("SWEEP_INTERVAL_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	cfg.SweepInterval = time.Duration(sweep) * time.Second

	if path := os.Getenv("DEFAULT_NAMES_FILE"); path != "" {
		names, err := LoadNames(path)
		if err != nil {
			return nil, err
		}
		cfg.DefaultNames = names
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if c.CommandPrefix == "" {
		return fmt.Errorf("COMMAND_PREFIX cannot be empty")
	}
	switch c.SettingsBackend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("invalid SETTINGS_BACKEND %q: must be %s or %s", c.SettingsBackend, BackendSQLite, BackendRedis)
	}
	if c.ConfirmationTTL <= 0 {
		return fmt.Errorf("CONFIRMATION_TTL_SECONDS must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}
	return nil
}

// LoadNames reads default structure names from a YAML file.
// Names missing from the file keep their built-in values.
func LoadNames(path string) (guild.Names, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return guild.Names{}, fmt.Errorf("failed to read default names file: %w", err)
	}

	var names guild.Names
	if err := yaml.Unmarshal(data, &names); err != nil {
		return guild.Names{}, fmt.Errorf("failed to parse default names file: %w", err)
	}
	return names.WithDefaults(), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value, err := strconv.Atoi(getEnvOrDefault(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
