package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers accepted in DB_DRIVER
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Config struct {
	DBDriver       string
	DBPath         string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DBQueryTimeout time.Duration
	RedisHost      string
	RedisPort      string
	SessionSecret  string
	GinMode        string
	Port           string
	OpenAIAPIKey   string
	IdentityToken  string
	LogLevel       string
}

func Load() *Config {
	// A missing .env is normal in containers
	_ = godotenv.Load()

	driver := getEnv("DB_DRIVER", DriverSQLite)

	return &Config{
		DBDriver:       driver,
		DBPath:         getEnv("DB_PATH", "tasks.db"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", defaultPort(driver)),
		DBUser:         getEnv("DB_USER", "taskuser"),
		DBPassword:     getEnv("DB_PASSWORD", "taskpassword"),
		DBName:         getEnv("DB_NAME", "priority_matrix"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		DBQueryTimeout: getDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		RedisHost:      getEnv("REDIS_HOST", ""),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		SessionSecret:  getEnv("SESSION_SECRET", "priority-matrix-secret-change-me"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		Port:           getEnv("PORT", "3000"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		IdentityToken:  getEnv("IDENTITY_TOKEN", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

func defaultPort(driver string) string {
	switch driver {
	case DriverPostgres:
		return "5432"
	case DriverMySQL:
		return "3306"
	default:
		return ""
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
