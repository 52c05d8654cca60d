package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigWithName loads configuration using the specified name,
// auto-detecting the file type. Useful when the configuration file extension
// is unknown or variable.
func LoadConfigWithName(configName string) (*Config, error) {
	return loadConfig(configName, "")
}

// LoadConfigWithNameAndType loads configuration with explicit name and type
// specification (e.g. "yaml", "json").
func LoadConfigWithNameAndType(configName, configType string) (*Config, error) {
	return loadConfig(configName, configType)
}

// LoadConfig loads configuration from a .env file using the provided base
// name. This is the preferred method for loading environment-specific
// configurations.
func LoadConfig(configName string) (*Config, error) {
	configFileName := fmt.Sprintf("%s.env", configName)
	return loadConfig(configFileName, "env")
}

// loadConfig handles configuration loading from files and environment
// variables. It implements a layered approach:
// 1. Load defaults
// 2. Override with config file values (if found)
// 3. Override with environment variables
// 4. Validate the final configuration
func loadConfig(configName, configType string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	if configType != "" {
		v.SetConfigType(configType)
	}

	// Add config paths in order of priority
	v.AddConfigPath("./configs") // First check in configs directory
	v.AddConfigPath(".")         // Then check in root directory

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Printf("INFO: No config file '%s' found, relying on environment variables and defaults.\n", configName)
		} else {
			fmt.Printf("WARNING: Error reading config file (%s): %v\n", v.ConfigFileUsed(), err)
		}
	} else {
		fmt.Printf("INFO: Config loaded from file: %s\n", v.ConfigFileUsed())
	}

	v.AutomaticEnv() // Automatically read matching environment variables

	config := &Config{
		Application: ApplicationConfig{
			Env:  v.GetString("APP_ENV"),
			Name: v.GetString("APP_NAME"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Server: ServerConfig{
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			AllowedOrigin:   v.GetString("SERVER_ALLOWED_ORIGIN"),
		},
		Postgres: PostgresConfig{
			URL:             v.GetString("POSTGRES_URL"),
			MaxConns:        int32(v.GetInt("POSTGRES_MAX_CONNS")),
			MinConns:        int32(v.GetInt("POSTGRES_MIN_CONNS")),
			ConnMaxLifetime: v.GetDuration("POSTGRES_MAX_CONN_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("POSTGRES_MAX_CONN_IDLE_TIME"),
			MigrationsPath:  v.GetString("POSTGRES_MIGRATIONS_PATH"),
		},
		Categorizer: CategorizerConfig{
			RulesPath:  v.GetString("CATEGORIZER_RULES_PATH"),
			MemoryPath: v.GetString("CATEGORIZER_MEMORY_PATH"),
			ModelPath:  v.GetString("CATEGORIZER_MODEL_PATH"),
		},
		Uploads: UploadsConfig{
			Dir: v.GetString("UPLOAD_DIR"),
		},
		WorkerPool: WorkerPoolConfig{
			Size: v.GetInt("WORKER_POOL_SIZE"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults establishes sensible defaults for all configuration values
func setDefaults(v *viper.Viper) {
	// Application defaults
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "yanga")

	// Logging defaults
	v.SetDefault("LOG_LEVEL", "info")

	// Server defaults
	v.SetDefault("SERVER_PORT", 8000)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("SERVER_ALLOWED_ORIGIN", "http://localhost:5173")

	// Postgres defaults
	v.SetDefault("POSTGRES_MAX_CONNS", 10)
	v.SetDefault("POSTGRES_MIN_CONNS", 2)
	v.SetDefault("POSTGRES_MAX_CONN_LIFETIME", time.Hour)
	v.SetDefault("POSTGRES_MAX_CONN_IDLE_TIME", 30*time.Minute)
	v.SetDefault("POSTGRES_MIGRATIONS_PATH", "./migrations/postgres")

	// Categorizer defaults
	v.SetDefault("CATEGORIZER_RULES_PATH", "./configs/category_rules.json")
	v.SetDefault("CATEGORIZER_MEMORY_PATH", "./configs/memory_map.json")
	v.SetDefault("CATEGORIZER_MODEL_PATH", "./configs/classifier_model.json")

	// Uploads defaults
	v.SetDefault("UPLOAD_DIR", "./uploads")

	// WorkerPool defaults
	v.SetDefault("WORKER_POOL_SIZE", 4)
}
