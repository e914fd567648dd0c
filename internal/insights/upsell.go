package insights

import (
	"context"
	"fmt"
	"math"
	"sort"

	"shop-insights/internal/models"
)

const (
	upsellWindowDays     = 365
	upsellMinConfidence  = 40.0
	upsellSuggestedLimit = 3
)

// UpsellDetector ищет клиентов, которые берут только базовые услуги
type UpsellDetector struct {
	builder *Builder
}

// NewUpsellDetector создает модуль допродаж
func NewUpsellDetector(builder *Builder) *UpsellDetector {
	return &UpsellDetector{builder: builder}
}

// Category возвращает категорию модуля
func (d *UpsellDetector) Category() models.InsightCategory { return models.CategoryUpsell }

// Candidates возвращает кандидатов с уверенностью >= 40
func (d *UpsellDetector) Candidates(ctx context.Context) ([]models.UpsellCandidate, error) {
	histories, err := d.builder.BuildCustomerHistory(ctx, nil, upsellWindowDays)
	if err != nil {
		return nil, err
	}
	services, err := d.builder.services(ctx)
	if err != nil {
		return nil, err
	}

	return upsellCandidates(histories, newServiceTiers(services)), nil
}

func upsellCandidates(histories []models.CustomerHistory, tiers serviceTiers) []models.UpsellCandidate {
	var candidates []models.UpsellCandidate
	for _, h := range histories {
		if !tiers.onlyBasic(h.ServicesBooked) {
			continue
		}
		untried := tiers.untriedPremium(h.ServicesBooked, upsellSuggestedLimit)
		if len(untried) == 0 {
			continue
		}
		confidence := upsellConfidence(h)
		if confidence < upsellMinConfidence {
			continue
		}

		c := models.UpsellCandidate{
			CustomerID: h.CustomerID,
			Name:       h.Name,
			Confidence: confidence,
		}
		for _, s := range untried {
			c.SuggestedServices = append(c.SuggestedServices, s.Name)
			c.PotentialRevenue += s.Price
		}
		c.PotentialRevenue = round2(c.PotentialRevenue)
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		if candidates[i].PotentialRevenue != candidates[j].PotentialRevenue {
			return candidates[i].PotentialRevenue > candidates[j].PotentialRevenue
		}
		return candidates[i].CustomerID.String() < candidates[j].CustomerID.String()
	})

	return candidates
}

// upsellConfidence: 30 базовых, +20 траты > 200, +20 визитов >= 5,
// +20 интервал < 30 дней, +10 траты > 500, не выше 100.
func upsellConfidence(h models.CustomerHistory) float64 {
	confidence := 30.0
	if h.TotalSpent > 200 {
		confidence += 20
	}
	if h.TotalVisits >= 5 {
		confidence += 20
	}
	if gap, ok := h.VisitGap(); ok && gap < 30 {
		confidence += 20
	}
	if h.TotalSpent > 500 {
		confidence += 10
	}
	return math.Min(100, confidence)
}

// Generate выдает сводный инсайт по кандидатам на допродажу
func (d *UpsellDetector) Generate(ctx context.Context) ([]models.Insight, error) {
	candidates, err := d.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var potential float64
	serviceCount := make(map[string]int)
	for _, c := range candidates {
		potential += c.PotentialRevenue
		for _, s := range c.SuggestedServices {
			serviceCount[s]++
		}
	}

	return []models.Insight{{
		ID:          "upsell-basic-only",
		Category:    models.CategoryUpsell,
		Title:       "Upsell opportunities",
		Description: fmt.Sprintf("%d customers only book basic services and have not tried premium ones", len(candidates)),
		Emoji:       "💎",
		Priority:    Fixed{Tier: models.PriorityMedium}.Resolve(),
		Value:       fmt.Sprintf("$%.0f", potential),
		Actionable:  true,
		ActionLabel: "View candidates",
		ActionURL:   "/customers?filter=upsell",
		Metadata: map[string]interface{}{
			"customers":        len(candidates),
			"potentialRevenue": round2(potential),
			"topServices":      topKeys(serviceCount, upsellSuggestedLimit),
		},
	}}, nil
}
