package insights

import (
	"context"
	"fmt"
	"math"
	"sort"

	"shop-insights/internal/models"
)

const (
	noShowWindowDays = 90
	noShowThreshold  = 50.0

	reasonIncomplete   = "frequently leaves visits unfinished"
	reasonLongGaps     = "long gaps between visits"
	reasonNewCustomer  = "new customer"
	reasonRecentAbsent = "no visit in over 30 days"
	reasonBasicOnly    = "books only basic services"
)

// NoShowPredictor оценивает вероятность неявки клиента
type NoShowPredictor struct {
	builder  *Builder
	settings Settings
}

// NewNoShowPredictor создает модуль неявок
func NewNoShowPredictor(builder *Builder, settings Settings) *NoShowPredictor {
	return &NoShowPredictor{builder: builder, settings: settings}
}

// Category возвращает категорию модуля
func (p *NoShowPredictor) Category() models.InsightCategory { return models.CategoryNoShow }

// Predictions возвращает прогноз неявки для каждого клиента окна
func (p *NoShowPredictor) Predictions(ctx context.Context) ([]models.NoShowPrediction, error) {
	histories, err := p.builder.BuildCustomerHistory(ctx, nil, noShowWindowDays)
	if err != nil {
		return nil, err
	}

	predictions := make([]models.NoShowPrediction, 0, len(histories))
	for _, h := range histories {
		predictions = append(predictions, p.predict(h))
	}
	sort.SliceStable(predictions, func(i, j int) bool {
		if predictions[i].Probability != predictions[j].Probability {
			return predictions[i].Probability > predictions[j].Probability
		}
		return predictions[i].CustomerID.String() < predictions[j].CustomerID.String()
	})

	return predictions, nil
}

func (p *NoShowPredictor) predict(h models.CustomerHistory) models.NoShowPrediction {
	var (
		score   float64
		reasons = []string{}
	)

	if h.TotalVisits > 0 && h.IncompleteVisits > 0 {
		score += float64(h.IncompleteVisits) / float64(h.TotalVisits) * 40
		reasons = append(reasons, reasonIncomplete)
	}
	if gap, ok := h.VisitGap(); ok && gap > 60 {
		score += 20
		reasons = append(reasons, reasonLongGaps)
	}
	if h.TotalVisits <= 2 {
		score += 15
		reasons = append(reasons, reasonNewCustomer)
	}
	if h.DaysSinceLastVisit > 30 {
		score += 10
		reasons = append(reasons, reasonRecentAbsent)
	}
	if p.onlyBasicServices(h.ServicesBooked) {
		score += 5
		reasons = append(reasons, reasonBasicOnly)
	}

	return models.NoShowPrediction{
		CustomerID:  h.CustomerID,
		Name:        h.Name,
		Probability: round2(math.Min(100, score)),
		Reasons:     reasons,
	}
}

func (p *NoShowPredictor) onlyBasicServices(booked []string) bool {
	if len(booked) == 0 {
		return false
	}
	for _, name := range booked {
		if !p.settings.isBasicService(name) {
			return false
		}
	}
	return true
}

// Generate выдает сводный инсайт, если есть клиенты с вероятностью неявки >= 50
func (p *NoShowPredictor) Generate(ctx context.Context) ([]models.Insight, error) {
	predictions, err := p.Predictions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		risky       int
		probability float64
		reasonCount = make(map[string]int)
	)
	for _, pr := range predictions {
		if pr.Probability < noShowThreshold {
			continue
		}
		risky++
		probability += pr.Probability
		for _, r := range pr.Reasons {
			reasonCount[r]++
		}
	}
	if risky == 0 {
		return nil, nil
	}

	avg := probability / float64(risky)
	share := float64(risky) / float64(len(predictions)) * 100
	priority := Weighted{
		Urgency:   avg,
		Impact:    math.Min(100, float64(risky)*10),
		Frequency: share,
	}.Resolve()

	return []models.Insight{{
		ID:          "noshow-high-risk",
		Category:    models.CategoryNoShow,
		Title:       "No-show risk",
		Description: fmt.Sprintf("%d customers are likely to miss their next appointment", risky),
		Emoji:       "📵",
		Priority:    priority,
		Value:       risky,
		Actionable:  true,
		ActionLabel: "Send reminders",
		ActionURL:   "/customers?filter=noshow-risk",
		Metadata: map[string]interface{}{
			"customers":          risky,
			"averageProbability": round2(avg),
			"share":              round2(share),
			"topReasons":         topKeys(reasonCount, 3),
		},
	}}, nil
}

func topKeys(counts map[string]int, limit int) []string {
	reasons := make([]string, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if counts[reasons[i]] != counts[reasons[j]] {
			return counts[reasons[i]] > counts[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	if len(reasons) > limit {
		reasons = reasons[:limit]
	}
	return reasons
}
