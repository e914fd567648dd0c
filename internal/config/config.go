package config

import (
	"os"
	"strconv"
	"strings"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Kafka     KafkaConfig     `json:"kafka"`
	Logger    LoggerConfig    `json:"logger"`
	Insights  InsightsConfig  `json:"insights"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics представляет список топиков Kafka
type Topics struct {
	Visits   string `json:"visits"`
	Insights string `json:"insights"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// InsightsConfig хранит настройки движка инсайтов
type InsightsConfig struct {
	CacheTTLMinutes         int      `json:"cache_ttl_minutes"`
	RequestTimeoutSeconds   int      `json:"request_timeout_seconds"`
	MaxParallelModules      int      `json:"max_parallel_modules"`
	DefaultTopLimit         int      `json:"default_top_limit"`
	Timezone                string   `json:"timezone"`
	OpenHour                int      `json:"open_hour"`
	CloseHour               int      `json:"close_hour"`
	BasicServices           []string `json:"basic_services"`
	RevenuePerHourBenchmark float64  `json:"revenue_per_hour_benchmark"`
	NextVisitLimit          int      `json:"next_visit_limit"`
}

// RateLimitConfig описывает настройки rate limiting
type RateLimitConfig struct {
	Enabled       bool   `json:"enabled"`
	Requests      int    `json:"requests"`
	WindowSeconds int    `json:"window_seconds"`
	KeyPrefix     string `json:"key_prefix"`
}

// SchedulerConfig описывает периодическое обновление инсайтов
type SchedulerConfig struct {
	Enabled     bool   `json:"enabled"`
	RefreshSpec string `json:"refresh_spec"` // cron-выражение, например "@every 15m"
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "shop_user"),
			Password: getEnv("DB_PASSWORD", "shop_pass"),
			DBName:   getEnv("DB_NAME", "shop"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "shop-insights"),
			Topics: Topics{
				Visits:   getEnv("KAFKA_TOPIC_VISITS", "visits"),
				Insights: getEnv("KAFKA_TOPIC_INSIGHTS", "insights"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Insights: InsightsConfig{
			CacheTTLMinutes:         getEnvAsInt("INSIGHTS_CACHE_TTL_MINUTES", 10),
			RequestTimeoutSeconds:   getEnvAsInt("INSIGHTS_REQUEST_TIMEOUT_SECONDS", 8),
			MaxParallelModules:      getEnvAsInt("INSIGHTS_MAX_PARALLEL_MODULES", 7),
			DefaultTopLimit:         getEnvAsInt("INSIGHTS_DEFAULT_TOP_LIMIT", 10),
			Timezone:                getEnv("INSIGHTS_TIMEZONE", "UTC"),
			OpenHour:                getEnvAsInt("INSIGHTS_OPEN_HOUR", 9),
			CloseHour:               getEnvAsInt("INSIGHTS_CLOSE_HOUR", 20),
			BasicServices:           getEnvAsSlice("INSIGHTS_BASIC_SERVICES", []string{"Haircut", "Beard Trim", "Shave", "Hair Wash", "Blow Dry"}),
			RevenuePerHourBenchmark: getEnvAsFloat("INSIGHTS_REVENUE_PER_HOUR_BENCHMARK", 60),
			NextVisitLimit:          getEnvAsInt("INSIGHTS_NEXT_VISIT_LIMIT", 10),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", false),
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			KeyPrefix:     getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit"),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getEnvAsBool("SCHEDULER_ENABLED", true),
			RefreshSpec: getEnv("SCHEDULER_REFRESH_SPEC", "@every 15m"),
		},
	}
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat получает значение переменной окружения как float64 с значением по умолчанию
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool получает значение переменной окружения как bool с значением по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "true" || valueStr == "1" || valueStr == "yes" {
		return true
	}
	if valueStr == "false" || valueStr == "0" || valueStr == "no" {
		return false
	}
	return defaultValue
}

// getEnvAsSlice читает список через запятую, пустые элементы отбрасываются
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
