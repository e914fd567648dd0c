package handlers

import (
	"context"

	"shop-insights/internal/models"
	"shop-insights/internal/services"

	"github.com/google/uuid"
)

// ----- Insights -----

type InsightsProvider interface {
	GetAllInsights(ctx context.Context) map[models.InsightCategory][]models.Insight
	GetTopInsights(ctx context.Context, limit int) []models.Insight
	GetInsightsByCategory(ctx context.Context, category string, filter models.CategoryFilter) ([]models.Insight, error)
	Refresh(ctx context.Context) map[models.InsightCategory][]models.Insight
	RecommendServices(ctx context.Context, customerID uuid.UUID) ([]models.ServiceRecommendation, error)
	PredictNextVisit(ctx context.Context, customerID uuid.UUID) (*models.NextVisitPrediction, error)
}

// ----- Rate limit -----

// MiddlewareLimiter описывает контракт для rate limiter.
type MiddlewareLimiter interface {
	Allow(ctx context.Context, client string) services.Decision
	Enabled() bool
	Limit() int64
}

// RateLimitStatusProvider расширяет интерфейс для эндпоинта статуса.
type RateLimitStatusProvider interface {
	MiddlewareLimiter
	Usage(ctx context.Context, client string) (services.Decision, error)
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}

// KafkaHealthCheck проверяет доступность брокеров
type KafkaHealthCheck func(brokers []string) error
