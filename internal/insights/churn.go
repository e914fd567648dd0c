package insights

import (
	"context"
	"fmt"
	"math"
	"sort"

	"shop-insights/internal/models"
)

// Module - независимый модуль, выдающий инсайты одной категории
type Module interface {
	Category() models.InsightCategory
	Generate(ctx context.Context) ([]models.Insight, error)
}

const churnWindowDays = 365

// ChurnAnalyzer оценивает риск оттока по давности последнего визита
type ChurnAnalyzer struct {
	builder *Builder
}

// NewChurnAnalyzer создает модуль оттока
func NewChurnAnalyzer(builder *Builder) *ChurnAnalyzer {
	return &ChurnAnalyzer{builder: builder}
}

// Category возвращает категорию модуля
func (a *ChurnAnalyzer) Category() models.InsightCategory { return models.CategoryChurn }

// Scores возвращает клиентов с риском оттока, самые рискованные первыми
func (a *ChurnAnalyzer) Scores(ctx context.Context) ([]models.ChurnRisk, error) {
	histories, err := a.builder.BuildCustomerHistory(ctx, nil, churnWindowDays)
	if err != nil {
		return nil, err
	}

	var risks []models.ChurnRisk
	for _, h := range histories {
		level, score := scoreChurn(h)
		if level == models.ChurnLevelNone {
			continue
		}
		risks = append(risks, models.ChurnRisk{
			CustomerID:         h.CustomerID,
			Name:               h.Name,
			DaysSinceLastVisit: h.DaysSinceLastVisit,
			Level:              level,
			Score:              round2(score),
		})
	}

	sort.SliceStable(risks, func(i, j int) bool {
		if risks[i].Score != risks[j].Score {
			return risks[i].Score > risks[j].Score
		}
		return risks[i].CustomerID.String() < risks[j].CustomerID.String()
	})

	return risks, nil
}

func scoreChurn(h models.CustomerHistory) (models.ChurnLevel, float64) {
	days := float64(h.DaysSinceLastVisit)

	var (
		level models.ChurnLevel
		score float64
	)
	switch {
	case days >= 90:
		level, score = models.ChurnLevelHigh, math.Min(100, 70+(days-90)/2)
	case days >= 60:
		level, score = models.ChurnLevelMedium, 40+(days-60)/30*30
	case days >= 30:
		level, score = models.ChurnLevelLow, 20+(days-30)/30*20
	default:
		return models.ChurnLevelNone, 0
	}

	if gap, ok := h.VisitGap(); ok && days > 1.5*gap {
		score += 10
		if level == models.ChurnLevelLow {
			level = models.ChurnLevelMedium
		}
	}
	if h.TotalSpent > 500 {
		score += 5
	}

	return level, math.Min(100, score)
}

// Generate выдает по одному инсайту на непустой уровень high/medium
func (a *ChurnAnalyzer) Generate(ctx context.Context) ([]models.Insight, error) {
	risks, err := a.Scores(ctx)
	if err != nil {
		return nil, err
	}

	tiers := []struct {
		level    models.ChurnLevel
		priority models.Priority
		title    string
		emoji    string
	}{
		{models.ChurnLevelHigh, models.PriorityHigh, "High churn risk", "🚨"},
		{models.ChurnLevelMedium, models.PriorityMedium, "Customers drifting away", "⚠️"},
	}

	var result []models.Insight
	for _, tier := range tiers {
		var (
			count    int
			scoreSum float64
		)
		for _, r := range risks {
			if r.Level != tier.level {
				continue
			}
			count++
			scoreSum += r.Score
		}
		if count == 0 {
			continue
		}

		result = append(result, models.Insight{
			ID:          fmt.Sprintf("churn-%s-risk", tier.level),
			Category:    models.CategoryChurn,
			Title:       tier.title,
			Description: fmt.Sprintf("%d customers show %s churn risk and may not come back without outreach", count, tier.level),
			Emoji:       tier.emoji,
			Priority:    Fixed{Tier: tier.priority}.Resolve(),
			Value:       count,
			Actionable:  true,
			ActionLabel: "View customers",
			ActionURL:   fmt.Sprintf("/customers?filter=churn-%s", tier.level),
			Metadata: map[string]interface{}{
				"customers":    count,
				"averageScore": round2(scoreSum / float64(count)),
				"level":        string(tier.level),
			},
		})
	}

	return result, nil
}
