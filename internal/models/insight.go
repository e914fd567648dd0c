package models

// InsightCategory описывает категорию инсайтов
type InsightCategory string

const (
	CategoryChurn           InsightCategory = "churn"
	CategoryNoShow          InsightCategory = "noshow"
	CategoryUpsell          InsightCategory = "upsell"
	CategoryRevenue         InsightCategory = "revenue"
	CategoryRepeatVisits    InsightCategory = "repeat_visits"
	CategoryOptimization    InsightCategory = "optimization"
	CategoryPersonalization InsightCategory = "personalization"
)

// AllCategories возвращает категории в порядке отображения
func AllCategories() []InsightCategory {
	return []InsightCategory{
		CategoryChurn,
		CategoryNoShow,
		CategoryUpsell,
		CategoryRevenue,
		CategoryRepeatVisits,
		CategoryOptimization,
		CategoryPersonalization,
	}
}

// Priority представляет уровень важности: 1 - критично, 5 - информационно
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
	PriorityInfo     Priority = 5
)

// String возвращает текстовое имя уровня
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	case PriorityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Valid сообщает, входит ли значение в диапазон 1..5
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityInfo
}

// Insight представляет готовый к показу бизнес-сигнал
type Insight struct {
	ID          string                 `json:"id"`
	Category    InsightCategory        `json:"category"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Emoji       string                 `json:"emoji"`
	Priority    Priority               `json:"priority"`
	Value       interface{}            `json:"value"` // строка или число
	Actionable  bool                   `json:"actionable,omitempty"`
	ActionLabel string                 `json:"actionLabel,omitempty"`
	ActionURL   string                 `json:"actionUrl,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// CategoryFilter задает необязательные фильтры выборки по категории
type CategoryFilter struct {
	Priority *Priority
	Limit    int
}
