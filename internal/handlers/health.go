package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/IBM/sarama"
)

// HealthHandler представляет обработчик для проверки здоровья системы
type HealthHandler struct {
	db           DBHealth
	redis        RedisHealth
	kafkaBrokers []string
	kafkaCheck   KafkaHealthCheck
}

// NewHealthHandler создает новый обработчик здоровья. redis может быть nil,
// если сервис работает с кешем в памяти.
func NewHealthHandler(db DBHealth, redis RedisHealth, kafkaBrokers []string, kafkaCheck KafkaHealthCheck) *HealthHandler {
	if kafkaCheck == nil {
		kafkaCheck = CheckKafkaHealth
	}
	return &HealthHandler{
		db:           db,
		redis:        redis,
		kafkaBrokers: kafkaBrokers,
		kafkaCheck:   kafkaCheck,
	}
}

// HealthResponse представляет ответ проверки здоровья
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Version  string            `json:"version"`
	Uptime   string            `json:"uptime"`
}

var startTime = time.Now()

// Health проверяет состояние всех компонентов системы
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	overallStatus := "healthy"

	if err := h.db.Health(); err != nil {
		services["database"] = "unhealthy: " + err.Error()
		overallStatus = "unhealthy"
	} else {
		services["database"] = "healthy"
	}

	// без Redis инсайты кешируются в памяти: деградация, а не отказ
	switch {
	case h.redis == nil:
		services["redis"] = "disabled"
	case h.redis.Health(ctx) != nil:
		services["redis"] = "unhealthy"
		if overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	default:
		services["redis"] = "healthy"
	}

	if err := h.kafkaCheck(h.kafkaBrokers); err != nil {
		services["kafka"] = "unhealthy: " + err.Error()
		if overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	} else {
		services["kafka"] = "healthy"
	}

	response := HealthResponse{
		Status:   overallStatus,
		Services: services,
		Version:  "1.0.0",
		Uptime:   time.Since(startTime).String(),
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, response)
}

// Readiness проверяет готовность приложения к обработке запросов
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Health(); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Database not ready")
		return
	}

	if h.redis != nil {
		if err := h.redis.Health(ctx); err != nil {
			writeErrorResponse(w, http.StatusServiceUnavailable, "Redis not ready")
			return
		}
	}

	if err := h.kafkaCheck(h.kafkaBrokers); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Kafka not ready")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Liveness проверяет, что приложение живо
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(startTime).String(),
	})
}

// CheckKafkaHealth проверяет доступность Kafka брокеров
func CheckKafkaHealth(brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Net.DialTimeout = 3 * time.Second
	cfg.Net.ReadTimeout = 5 * time.Second
	cfg.Net.WriteTimeout = 5 * time.Second
	cfg.Metadata.Retry.Max = 1
	cfg.Metadata.Retry.Backoff = 500 * time.Millisecond

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return nil
}
