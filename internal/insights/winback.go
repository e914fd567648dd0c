package insights

import (
	"context"
	"fmt"

	"shop-insights/internal/models"
)

const (
	winBackWindowDays    = 365
	repeatUpsellMinVisit = 3
)

type winBackTier struct {
	minDays  int
	maxDays  int // 0 - без верхней границы
	discount int
	priority models.Priority
}

var winBackTiers = []winBackTier{
	{minDays: 30, maxDays: 60, discount: 10, priority: models.PriorityLow},
	{minDays: 60, maxDays: 90, discount: 15, priority: models.PriorityMedium},
	{minDays: 90, discount: 20, priority: models.PriorityHigh},
}

func (t winBackTier) contains(days int) bool {
	return days >= t.minDays && (t.maxDays == 0 || days < t.maxDays)
}

// WinBackPlanner предлагает кампании возврата и выделяет постоянных клиентов для допродаж
type WinBackPlanner struct {
	builder *Builder
}

// NewWinBackPlanner создает модуль повторных визитов
func NewWinBackPlanner(builder *Builder) *WinBackPlanner {
	return &WinBackPlanner{builder: builder}
}

// Category возвращает категорию модуля
func (p *WinBackPlanner) Category() models.InsightCategory { return models.CategoryRepeatVisits }

// Generate выдает инсайт на каждый непустой уровень неактивности и сегмент допродаж
func (p *WinBackPlanner) Generate(ctx context.Context) ([]models.Insight, error) {
	histories, err := p.builder.BuildCustomerHistory(ctx, nil, winBackWindowDays)
	if err != nil {
		return nil, err
	}
	services, err := p.builder.services(ctx)
	if err != nil {
		return nil, err
	}

	var result []models.Insight
	for _, tier := range winBackTiers {
		count := 0
		for _, h := range histories {
			if tier.contains(h.DaysSinceLastVisit) {
				count++
			}
		}
		if count == 0 {
			continue
		}
		result = append(result, winBackInsight(tier, count))
	}

	segment := upsellSegment(histories, newServiceTiers(services))
	if len(segment) > 0 {
		result = append(result, segmentInsight(segment))
	}

	return result, nil
}

func winBackInsight(tier winBackTier, count int) models.Insight {
	window := fmt.Sprintf("%d+ days", tier.minDays)
	if tier.maxDays > 0 {
		window = fmt.Sprintf("%d-%d days", tier.minDays, tier.maxDays-1)
	}

	return models.Insight{
		ID:          fmt.Sprintf("winback-%d", tier.minDays),
		Category:    models.CategoryRepeatVisits,
		Title:       fmt.Sprintf("Win back with %d%% off", tier.discount),
		Description: fmt.Sprintf("%d customers have not visited for %s. Offer them %d%% off their next visit", count, window, tier.discount),
		Emoji:       "🎯",
		Priority:    Fixed{Tier: tier.priority}.Resolve(),
		Value:       count,
		Actionable:  true,
		ActionLabel: "Start campaign",
		ActionURL:   fmt.Sprintf("/campaigns/new?segment=inactive-%d&discount=%d", tier.minDays, tier.discount),
		Metadata: map[string]interface{}{
			"customers": count,
			"discount":  tier.discount,
			"minDays":   tier.minDays,
			"maxDays":   tier.maxDays,
		},
	}
}

// upsellSegment - постоянные клиенты (>= 3 визитов), которые берут только базовые услуги
func upsellSegment(histories []models.CustomerHistory, tiers serviceTiers) []models.UpsellCandidate {
	var segment []models.UpsellCandidate
	for _, h := range histories {
		if h.TotalVisits < repeatUpsellMinVisit || !tiers.onlyBasic(h.ServicesBooked) {
			continue
		}
		untried := tiers.untriedPremium(h.ServicesBooked, upsellSuggestedLimit)
		if len(untried) == 0 {
			continue
		}
		c := models.UpsellCandidate{
			CustomerID: h.CustomerID,
			Name:       h.Name,
			Confidence: upsellConfidence(h),
		}
		for _, s := range untried {
			c.SuggestedServices = append(c.SuggestedServices, s.Name)
			c.PotentialRevenue += s.Price
		}
		segment = append(segment, c)
	}
	return segment
}

func segmentInsight(segment []models.UpsellCandidate) models.Insight {
	var potential float64
	serviceCount := make(map[string]int)
	for _, c := range segment {
		potential += c.PotentialRevenue
		for _, s := range c.SuggestedServices {
			serviceCount[s]++
		}
	}

	return models.Insight{
		ID:          "repeat-upsell-segment",
		Category:    models.CategoryRepeatVisits,
		Title:       "Loyal customers ready for more",
		Description: fmt.Sprintf("%d regulars only book basic services. Suggest a premium service on their next visit", len(segment)),
		Emoji:       "🔁",
		Priority:    Fixed{Tier: models.PriorityLow}.Resolve(),
		Value:       fmt.Sprintf("$%.0f", potential),
		Actionable:  true,
		ActionLabel: "View segment",
		ActionURL:   "/customers?filter=regulars-basic",
		Metadata: map[string]interface{}{
			"customers":         len(segment),
			"potentialValue":    round2(potential),
			"suggestedServices": topKeys(serviceCount, upsellSuggestedLimit),
		},
	}
}
