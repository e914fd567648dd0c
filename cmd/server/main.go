package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/database"
	"shop-insights/internal/handlers"
	"shop-insights/internal/insights"
	"shop-insights/internal/kafka"
	"shop-insights/internal/logger"
	"shop-insights/internal/models"
	"shop-insights/internal/redis"
	"shop-insights/internal/repository"
	"shop-insights/internal/scheduler"
	"shop-insights/internal/services"

	"github.com/joho/godotenv"
)

// Фабричные функции для подключения внешних сервисов (подменяемые в тестах).
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaProducer = kafka.NewProducer
	newKafkaConsumer = kafka.NewConsumer
	kafkaHealthCheck = handlers.CheckKafkaHealth
	loadConfig       = config.Load
	newLogger        = logger.New
)

// application агрегирует собранные зависимости.
type application struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *database.DB
	redis     *redis.Client
	engine    *insights.Engine
	producer  *kafka.Producer
	consumer  *kafka.Consumer
	scheduler *scheduler.Scheduler
	mux       *http.ServeMux
	server    *http.Server
}

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	app, err := buildApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.Info("Starting shop insights server...")

	go func() {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	app.shutdown(ctx)
	app.log.Info("Server exited")
}

// buildApplication создает все зависимости. Redis и Kafka необязательны:
// без Redis инсайты кешируются в памяти, без Kafka нет событий.
func buildApplication() (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)

	db, err := dbConnect(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	app := &application{cfg: cfg, log: log, db: db}

	var cache insights.Cache
	redisClient, err := redisConnect(&cfg.Redis, log)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, using in-memory insights cache")
		cache = insights.NewMemoryCache()
	} else {
		app.redis = redisClient
		cache = redisClient
	}

	app.engine = insights.NewEngine(
		repository.NewVisitRepository(db),
		repository.NewCatalogRepository(db),
		log,
		&cfg.Insights,
		insights.WithCache(cache, time.Duration(cfg.Insights.CacheTTLMinutes)*time.Minute),
	)

	producer, err := newKafkaProducer(&cfg.Kafka, log)
	if err != nil {
		log.WithError(err).Warn("Kafka producer unavailable, insight events disabled")
	} else {
		app.producer = producer
	}

	consumer, err := newKafkaConsumer(&cfg.Kafka, log)
	if err != nil {
		log.WithError(err).Warn("Kafka consumer unavailable, cache invalidation relies on TTL")
	} else {
		registerEventHandlers(consumer, app.engine, log)
		if err := consumer.Start(); err != nil {
			app.shutdown(context.Background())
			return nil, fmt.Errorf("kafka consumer start: %w", err)
		}
		app.consumer = consumer
	}

	if cfg.Scheduler.Enabled {
		var publisher scheduler.Publisher
		if app.producer != nil {
			publisher = app.producer
		}
		app.scheduler = scheduler.New(&cfg.Scheduler, app.engine, publisher, log)
		if err := app.scheduler.Start(); err != nil {
			app.shutdown(context.Background())
			return nil, fmt.Errorf("scheduler start: %w", err)
		}
	}

	var counters services.CounterStore
	var redisHealth handlers.RedisHealth
	if app.redis != nil {
		counters = app.redis
		redisHealth = app.redis
	}
	rateLimiter := services.NewRateLimiter(counters, log, &cfg.RateLimit)

	insightsHandler := handlers.NewInsightsHandler(app.engine, log, &cfg.Insights)
	healthHandler := handlers.NewHealthHandler(db, redisHealth, cfg.Kafka.Brokers, kafkaHealthCheck)
	rateLimitHandler := handlers.NewRateLimitHandler(rateLimiter, log, &cfg.RateLimit)

	app.mux = setupRoutes(insightsHandler, healthHandler, rateLimitHandler, rateLimiter, log)
	app.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      app.mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return app, nil
}

// shutdown останавливает компоненты в обратном порядке
func (a *application) shutdown(ctx context.Context) {
	if a.scheduler != nil {
		a.scheduler.Stop(ctx)
	}
	if a.consumer != nil {
		_ = a.consumer.Stop()
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.WithError(err).Error("Server forced to shutdown")
		}
	}
	_ = a.producer.Close()
	_ = a.redis.Close()
	if a.db != nil {
		_ = a.db.Close()
	}
}

// setupRoutes настраивает маршруты HTTP сервера
func setupRoutes(insightsHandler *handlers.InsightsHandler, healthHandler *handlers.HealthHandler, rateLimitHandler *handlers.RateLimitHandler, rateLimiter *services.RateLimiter, log *logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	applyAPI := func(h http.HandlerFunc) http.HandlerFunc {
		return corsMiddleware(handlers.RateLimitMiddleware(rateLimiter, log, h))
	}

	// Health check endpoints
	mux.HandleFunc("/health", corsMiddleware(healthHandler.Health))
	mux.HandleFunc("/health/readiness", corsMiddleware(healthHandler.Readiness))
	mux.HandleFunc("/health/liveness", corsMiddleware(healthHandler.Liveness))

	// Insights endpoints
	mux.HandleFunc("/api/insights", applyAPI(insightsHandler.GetAll))
	mux.HandleFunc("/api/insights/top", applyAPI(insightsHandler.GetTop))
	mux.HandleFunc("/api/insights/refresh", applyAPI(insightsHandler.Refresh))
	mux.HandleFunc("/api/insights/customers/", applyAPI(handleCustomerRoute(insightsHandler)))
	mux.HandleFunc("/api/insights/", applyAPI(insightsHandler.GetByCategory))

	// Rate limit status
	mux.HandleFunc("/api/rate-limit/status", applyAPI(rateLimitHandler.Status))

	return mux
}

// handleCustomerRoute обрабатывает персональные отчеты клиента
func handleCustomerRoute(handler *handlers.InsightsHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/recommendations"):
			handler.GetRecommendations(w, r)
		case strings.HasSuffix(r.URL.Path, "/next-visit"):
			handler.GetNextVisit(w, r)
		default:
			writeErrorResponse(w, http.StatusNotFound, "Unknown customer report")
		}
	}
}

// registerEventHandlers сбрасывает кеш инсайтов при изменении визитов
func registerEventHandlers(consumer *kafka.Consumer, engine *insights.Engine, log *logger.Logger) {
	invalidate := func(ctx context.Context, event *models.Event) error {
		visit, err := kafka.ParseVisitEvent(event)
		if err != nil {
			return err
		}
		if err := engine.Invalidate(ctx); err != nil {
			log.WithError(err).WithField("visit_id", visit.VisitID).Warn("Failed to invalidate insights cache")
			return nil
		}
		log.WithFields(map[string]interface{}{
			"event_type": event.Type,
			"visit_id":   visit.VisitID,
			"status":     visit.Status,
		}).Debug("Insights cache invalidated")
		return nil
	}

	consumer.RegisterHandler(models.EventTypeVisitCreated, invalidate)
	consumer.RegisterHandler(models.EventTypeVisitStatusChanged, invalidate)
	consumer.RegisterHandler(models.EventTypeVisitCompleted, invalidate)
}

func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	type errorResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}
