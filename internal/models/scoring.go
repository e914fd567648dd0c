package models

import (
	"time"

	"github.com/google/uuid"
)

// ChurnLevel описывает уровень риска оттока
type ChurnLevel string

const (
	ChurnLevelNone   ChurnLevel = "none"
	ChurnLevelLow    ChurnLevel = "low"
	ChurnLevelMedium ChurnLevel = "medium"
	ChurnLevelHigh   ChurnLevel = "high"
)

// ChurnRisk - оценка риска оттока клиента
type ChurnRisk struct {
	CustomerID         uuid.UUID  `json:"customer_id"`
	Name               string     `json:"name"`
	DaysSinceLastVisit int        `json:"days_since_last_visit"`
	Level              ChurnLevel `json:"level"`
	Score              float64    `json:"score"`
}

// NoShowPrediction - вероятность неявки клиента с причинами
type NoShowPrediction struct {
	CustomerID  uuid.UUID `json:"customer_id"`
	Name        string    `json:"name"`
	Probability float64   `json:"probability"`
	Reasons     []string  `json:"reasons"`
}

// UpsellCandidate - клиент, которому стоит предложить премиальные услуги
type UpsellCandidate struct {
	CustomerID        uuid.UUID `json:"customer_id"`
	Name              string    `json:"name"`
	Confidence        float64   `json:"confidence"`
	SuggestedServices []string  `json:"suggested_services"`
	PotentialRevenue  float64   `json:"potential_revenue"`
}

// PricingSuggestion - рекомендация по изменению цены услуги
type PricingSuggestion struct {
	ServiceName    string  `json:"service_name"`
	CurrentPrice   float64 `json:"current_price"`
	SuggestedPrice float64 `json:"suggested_price"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
}

// RevenueBucket - выручка за интервал
type RevenueBucket struct {
	Label   string  `json:"label"`
	Revenue float64 `json:"revenue"`
	Visits  int     `json:"visits"`
}

// CashFlowReport - выручка по дням, неделям, месяцам, дням недели и часам
type CashFlowReport struct {
	Daily           []RevenueBucket `json:"daily"`
	Weekly          []RevenueBucket `json:"weekly"`
	Monthly         []RevenueBucket `json:"monthly"`
	ByWeekday       []RevenueBucket `json:"by_weekday"`
	ByHour          []RevenueBucket `json:"by_hour"`
	ThisWeek        float64         `json:"this_week"`
	LastWeek        float64         `json:"last_week"`
	WeekOverWeekPct float64         `json:"week_over_week_pct"`
}

// SlowHour - слабо загруженный слот (день недели, час)
type SlowHour struct {
	Weekday           time.Weekday `json:"weekday"`
	Hour              int          `json:"hour"`
	Bookings          int          `json:"bookings"`
	SuggestedDiscount int          `json:"suggested_discount"`
}

// BundleCandidate - пара услуг, которые часто берут вместе
type BundleCandidate struct {
	Services    []string `json:"services"`
	Frequency   int      `json:"frequency"`
	BundlePrice float64  `json:"bundle_price"`
	Savings     float64  `json:"savings"`
	Confidence  float64  `json:"confidence"`
}

// SlotRisk - риск неявок в слоте
type SlotRisk struct {
	Weekday        time.Weekday `json:"weekday"`
	Hour           int          `json:"hour"`
	Visits         int          `json:"visits"`
	Risk           float64      `json:"risk"`
	Recommendation string       `json:"recommendation"`
}

// NextVisitPrediction - прогноз следующего визита клиента
type NextVisitPrediction struct {
	CustomerID    uuid.UUID `json:"customer_id"`
	Name          string    `json:"name"`
	PredictedDate time.Time `json:"predicted_date"`
	DaysUntil     int       `json:"days_until"`
	Confidence    float64   `json:"confidence"`
}

// ServiceRecommendation - персональная рекомендация услуги
type ServiceRecommendation struct {
	ServiceName string  `json:"service_name"`
	Price       float64 `json:"price"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}
