package insights

import "shop-insights/internal/models"

// PriorityRule определяет приоритет инсайта: фиксированный уровень или взвешенная оценка
type PriorityRule interface {
	Resolve() models.Priority
}

// Fixed - приоритет, заданный правилом напрямую
type Fixed struct {
	Tier models.Priority
}

// Resolve возвращает заданный уровень (info, если уровень вне диапазона)
func (f Fixed) Resolve() models.Priority {
	if !f.Tier.Valid() {
		return models.PriorityInfo
	}
	return f.Tier
}

// Weighted - приоритет по срочности, влиянию и частоте (каждый фактор 0..100)
type Weighted struct {
	Urgency   float64
	Impact    float64
	Frequency float64
}

// Score возвращает взвешенную оценку
func (w Weighted) Score() float64 {
	// явные преобразования запрещают FMA и сохраняют точные границы уровней
	return float64(w.Urgency*0.5) + float64(w.Impact*0.3) + float64(w.Frequency*0.2)
}

// Resolve переводит оценку в уровень приоритета
func (w Weighted) Resolve() models.Priority {
	return ClassifyPriority(w.Urgency, w.Impact, w.Frequency)
}

// ClassifyPriority: score = urgency*0.5 + impact*0.3 + frequency*0.2,
// пороги 80/60/40/20 для critical/high/medium/low.
func ClassifyPriority(urgency, impact, frequency float64) models.Priority {
	score := Weighted{Urgency: urgency, Impact: impact, Frequency: frequency}.Score()
	switch {
	case score >= 80:
		return models.PriorityCritical
	case score >= 60:
		return models.PriorityHigh
	case score >= 40:
		return models.PriorityMedium
	case score >= 20:
		return models.PriorityLow
	default:
		return models.PriorityInfo
	}
}
