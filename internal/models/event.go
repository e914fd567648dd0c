package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType представляет тип события в шине
type EventType string

const (
	EventTypeVisitCreated       EventType = "visit.created"
	EventTypeVisitStatusChanged EventType = "visit.status_changed"
	EventTypeVisitCompleted     EventType = "visit.completed"
	EventTypeInsightsRefreshed  EventType = "insights.refreshed"
	EventTypeInsightAlert       EventType = "insight.alert"
)

// Event представляет событие Kafka
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// VisitEventData - полезная нагрузка событий подсистемы бронирования
type VisitEventData struct {
	VisitID    uuid.UUID   `json:"visit_id"`
	CustomerID *uuid.UUID  `json:"customer_id,omitempty"`
	Status     VisitStatus `json:"status"`
}

// InsightsRefreshedData - сводка после пересчета инсайтов
type InsightsRefreshedData struct {
	Counts      map[InsightCategory]int `json:"counts"`
	Total       int                     `json:"total"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// InsightAlertData - важный инсайт для уведомлений
type InsightAlertData struct {
	Insight Insight `json:"insight"`
}
