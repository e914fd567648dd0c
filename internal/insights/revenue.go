package insights

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"shop-insights/internal/models"
)

const (
	revenuePeriodDays  = 30
	cashFlowWindowDays = 365
	cashFlowVisitLimit = 2000

	cashFlowDays   = 30
	cashFlowWeeks  = 12
	cashFlowMonths = 12

	decliningGrowth       = -20.0
	decliningMinBookings  = 3
	weekOverWeekThreshold = 20.0
	underperformanceRatio = 0.7
	underperformanceMin   = 5
)

// RevenueAnalyzer анализирует выручку, динамику услуг, мастеров и цены
type RevenueAnalyzer struct {
	builder  *Builder
	settings Settings
}

// NewRevenueAnalyzer создает модуль выручки
func NewRevenueAnalyzer(builder *Builder, settings Settings) *RevenueAnalyzer {
	return &RevenueAnalyzer{builder: builder, settings: settings}
}

// Category возвращает категорию модуля
func (a *RevenueAnalyzer) Category() models.InsightCategory { return models.CategoryRevenue }

// CashFlow возвращает выручку по дням, неделям, месяцам, дням недели и часам
func (a *RevenueAnalyzer) CashFlow(ctx context.Context) (*models.CashFlowReport, error) {
	visits, err := a.builder.recentVisits(ctx, cashFlowWindowDays, cashFlowVisitLimit, nil)
	if err != nil {
		return nil, err
	}
	services, err := a.builder.services(ctx)
	if err != nil {
		return nil, err
	}

	report := buildCashFlow(visits, newPriceIndex(services), a.builder.Now(), a.settings.location())
	return &report, nil
}

func buildCashFlow(visits []models.VisitRecord, prices *priceIndex, now time.Time, loc *time.Location) models.CashFlowReport {
	now = now.In(loc)
	today := startOfDay(now)
	thisWeek := startOfWeek(now)
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	report := models.CashFlowReport{
		Daily:     make([]models.RevenueBucket, cashFlowDays),
		Weekly:    make([]models.RevenueBucket, cashFlowWeeks),
		Monthly:   make([]models.RevenueBucket, cashFlowMonths),
		ByWeekday: make([]models.RevenueBucket, 7),
		ByHour:    make([]models.RevenueBucket, 24),
	}
	daily := make(map[string]int, cashFlowDays)
	for i := range report.Daily {
		label := today.AddDate(0, 0, i-cashFlowDays+1).Format("2006-01-02")
		report.Daily[i].Label = label
		daily[label] = i
	}
	weekly := make(map[string]int, cashFlowWeeks)
	for i := range report.Weekly {
		label := thisWeek.AddDate(0, 0, 7*(i-cashFlowWeeks+1)).Format("2006-01-02")
		report.Weekly[i].Label = label
		weekly[label] = i
	}
	monthly := make(map[string]int, cashFlowMonths)
	for i := range report.Monthly {
		label := thisMonth.AddDate(0, i-cashFlowMonths+1, 0).Format("2006-01")
		report.Monthly[i].Label = label
		monthly[label] = i
	}
	for i := range report.ByWeekday {
		report.ByWeekday[i].Label = time.Weekday(i).String()
	}
	for i := range report.ByHour {
		report.ByHour[i].Label = fmt.Sprintf("%02d:00", i)
	}

	add := func(b *models.RevenueBucket, amount float64) {
		b.Revenue += amount
		b.Visits++
	}

	weekAgo := now.Add(-7 * day)
	twoWeeksAgo := now.Add(-14 * day)
	for _, v := range visits {
		if !v.CountsTowardRevenue() {
			continue
		}
		amount := prices.price(v.ServiceName)
		at := v.CompletedAt.In(loc)

		if i, ok := daily[at.Format("2006-01-02")]; ok {
			add(&report.Daily[i], amount)
		}
		if i, ok := weekly[startOfWeek(at).Format("2006-01-02")]; ok {
			add(&report.Weekly[i], amount)
		}
		if i, ok := monthly[at.Format("2006-01")]; ok {
			add(&report.Monthly[i], amount)
		}
		add(&report.ByWeekday[at.Weekday()], amount)
		add(&report.ByHour[at.Hour()], amount)

		switch {
		case at.After(weekAgo) && !at.After(now):
			report.ThisWeek += amount
		case at.After(twoWeeksAgo) && !at.After(weekAgo):
			report.LastWeek += amount
		}
	}

	report.ThisWeek = round2(report.ThisWeek)
	report.LastWeek = round2(report.LastWeek)
	report.WeekOverWeekPct = round2(percentChange(report.ThisWeek, report.LastWeek))
	for _, buckets := range [][]models.RevenueBucket{report.Daily, report.Weekly, report.Monthly, report.ByWeekday, report.ByHour} {
		for i := range buckets {
			buckets[i].Revenue = round2(buckets[i].Revenue)
		}
	}

	return report
}

// percentChange - та же политика, что и growthRate, для денежных сумм
func percentChange(current, previous float64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return (current - previous) / previous * 100
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek - понедельник недели, в которую попадает t
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

// PricingSuggestions применяет три независимых ценовых правила к трендам услуг
func (a *RevenueAnalyzer) PricingSuggestions(ctx context.Context) ([]models.PricingSuggestion, error) {
	trends, err := a.builder.BuildServiceTrends(ctx, revenuePeriodDays)
	if err != nil {
		return nil, err
	}
	return pricingSuggestions(trends, a.settings.RevenuePerHourBenchmark), nil
}

func pricingSuggestions(trends []models.ServiceTrend, benchmark float64) []models.PricingSuggestion {
	var result []models.PricingSuggestion
	for _, t := range trends {
		if t.GrowthRate > 30 && t.BookingsThisPeriod >= 10 && t.Price < 50 {
			result = append(result, models.PricingSuggestion{
				ServiceName:    t.Name,
				CurrentPrice:   t.Price,
				SuggestedPrice: round2(math.Min(t.Price*1.15, t.Price+10)),
				Confidence:     70,
				Reason:         fmt.Sprintf("Demand grew %.0f%% with %d bookings this period", t.GrowthRate, t.BookingsThisPeriod),
			})
		}
		if t.GrowthRate < -30 && t.BookingsThisPeriod >= 5 {
			result = append(result, models.PricingSuggestion{
				ServiceName:    t.Name,
				CurrentPrice:   t.Price,
				SuggestedPrice: round2(math.Max(t.Price*0.9, t.Price-5)),
				Confidence:     60,
				Reason:         fmt.Sprintf("Demand fell %.0f%%, a lower price may win bookings back", math.Abs(t.GrowthRate)),
			})
		}
		perHour := revenuePerHour(t.TotalRevenue, t.CompletedBookings, t.Duration)
		if t.CompletedBookings >= 5 && perHour > 0 && perHour < 0.8*benchmark {
			result = append(result, models.PricingSuggestion{
				ServiceName:    t.Name,
				CurrentPrice:   t.Price,
				SuggestedPrice: round2(t.Price * 1.1),
				Confidence:     50,
				Reason:         fmt.Sprintf("Earns $%.2f per hour against a $%.0f benchmark", perHour, benchmark),
			})
		}
	}
	return result
}

// Generate собирает инсайты по услугам, денежному потоку, мастерам и ценам
func (a *RevenueAnalyzer) Generate(ctx context.Context) ([]models.Insight, error) {
	trends, err := a.builder.BuildServiceTrends(ctx, revenuePeriodDays)
	if err != nil {
		return nil, err
	}
	cash, err := a.CashFlow(ctx)
	if err != nil {
		return nil, err
	}
	staff, err := a.builder.BuildStaffPerformance(ctx, revenuePeriodDays)
	if err != nil {
		return nil, err
	}

	var result []models.Insight
	if in, ok := decliningServicesInsight(trends); ok {
		result = append(result, in)
	}
	if in, ok := topPerformerInsight(trends); ok {
		result = append(result, in)
	}
	if in, ok := weekOverWeekInsight(cash); ok {
		result = append(result, in)
	}
	if in, ok := staffInsight(staff); ok {
		result = append(result, in)
	}
	for _, s := range pricingSuggestions(trends, a.settings.RevenuePerHourBenchmark) {
		result = append(result, pricingInsight(s))
	}

	return result, nil
}

func decliningServicesInsight(trends []models.ServiceTrend) (models.Insight, bool) {
	var names []string
	for _, t := range trends {
		if t.GrowthRate < decliningGrowth && t.BookingsThisPeriod >= decliningMinBookings {
			names = append(names, t.Name)
		}
	}
	if len(names) == 0 {
		return models.Insight{}, false
	}

	return models.Insight{
		ID:          "revenue-declining-services",
		Category:    models.CategoryRevenue,
		Title:       "Declining services",
		Description: fmt.Sprintf("Bookings dropped by more than 20%% for: %s", strings.Join(names, ", ")),
		Emoji:       "📉",
		Priority:    Fixed{Tier: models.PriorityMedium}.Resolve(),
		Value:       len(names),
		Actionable:  true,
		ActionLabel: "Review services",
		ActionURL:   "/services?filter=declining",
		Metadata:    map[string]interface{}{"services": names},
	}, true
}

func topPerformerInsight(trends []models.ServiceTrend) (models.Insight, bool) {
	var (
		best    *models.ServiceTrend
		bestRPH float64
	)
	for i := range trends {
		rph := revenuePerHour(trends[i].TotalRevenue, trends[i].CompletedBookings, trends[i].Duration)
		if rph > bestRPH {
			best, bestRPH = &trends[i], rph
		}
	}
	if best == nil {
		return models.Insight{}, false
	}

	return models.Insight{
		ID:          "revenue-top-performer",
		Category:    models.CategoryRevenue,
		Title:       "Best earning service",
		Description: fmt.Sprintf("%s earns the most per hour of chair time", best.Name),
		Emoji:       "🏆",
		Priority:    Fixed{Tier: models.PriorityInfo}.Resolve(),
		Value:       fmt.Sprintf("$%.2f/hr", bestRPH),
		Metadata: map[string]interface{}{
			"service":        best.Name,
			"revenuePerHour": round2(bestRPH),
		},
	}, true
}

func weekOverWeekInsight(cash *models.CashFlowReport) (models.Insight, bool) {
	change := cash.WeekOverWeekPct
	meta := map[string]interface{}{
		"thisWeek": cash.ThisWeek,
		"lastWeek": cash.LastWeek,
		"change":   change,
	}

	switch {
	case change < -weekOverWeekThreshold:
		return models.Insight{
			ID:          "revenue-week-down",
			Category:    models.CategoryRevenue,
			Title:       "Revenue is down this week",
			Description: fmt.Sprintf("Revenue fell %.0f%% compared to last week", math.Abs(change)),
			Emoji:       "🔻",
			Priority:    Fixed{Tier: models.PriorityHigh}.Resolve(),
			Value:       fmt.Sprintf("%.0f%%", change),
			Actionable:  true,
			ActionLabel: "Open cash flow",
			ActionURL:   "/reports/cash-flow",
			Metadata:    meta,
		}, true
	case change > weekOverWeekThreshold:
		return models.Insight{
			ID:          "revenue-week-up",
			Category:    models.CategoryRevenue,
			Title:       "Revenue is up this week",
			Description: fmt.Sprintf("Revenue grew %.0f%% compared to last week", change),
			Emoji:       "📈",
			Priority:    Fixed{Tier: models.PriorityInfo}.Resolve(),
			Value:       fmt.Sprintf("+%.0f%%", change),
			Metadata:    meta,
		}, true
	}
	return models.Insight{}, false
}

func staffInsight(staff []models.StaffPerformance) (models.Insight, bool) {
	if len(staff) == 0 {
		return models.Insight{}, false
	}
	var total float64
	for _, s := range staff {
		total += s.TotalRevenue
	}
	average := total / float64(len(staff))
	if average <= 0 {
		return models.Insight{}, false
	}

	var names []string
	for _, s := range staff {
		if s.TotalRevenue < underperformanceRatio*average && s.CompletedServices >= underperformanceMin {
			names = append(names, s.Name)
		}
	}
	if len(names) == 0 {
		return models.Insight{}, false
	}

	return models.Insight{
		ID:          "revenue-staff-underperformance",
		Category:    models.CategoryRevenue,
		Title:       "Staff below team average",
		Description: fmt.Sprintf("%s earned less than 70%% of the team average revenue", strings.Join(names, ", ")),
		Emoji:       "👥",
		Priority:    Fixed{Tier: models.PriorityMedium}.Resolve(),
		Value:       len(names),
		Actionable:  true,
		ActionLabel: "View staff",
		ActionURL:   "/staff?filter=performance",
		Metadata: map[string]interface{}{
			"staff":          names,
			"averageRevenue": round2(average),
		},
	}, true
}

func pricingInsight(s models.PricingSuggestion) models.Insight {
	direction := "Raise"
	if s.SuggestedPrice < s.CurrentPrice {
		direction = "Lower"
	}
	return models.Insight{
		ID:          fmt.Sprintf("pricing-%s-%.0f", slug(s.ServiceName), s.Confidence),
		Category:    models.CategoryRevenue,
		Title:       fmt.Sprintf("%s price of %s", direction, s.ServiceName),
		Description: s.Reason,
		Emoji:       "🏷️",
		Priority:    Fixed{Tier: models.PriorityLow}.Resolve(),
		Value:       fmt.Sprintf("$%.2f → $%.2f", s.CurrentPrice, s.SuggestedPrice),
		Actionable:  true,
		ActionLabel: "Edit price",
		ActionURL:   "/services?name=" + slug(s.ServiceName),
		Metadata: map[string]interface{}{
			"service":        s.ServiceName,
			"currentPrice":   s.CurrentPrice,
			"suggestedPrice": s.SuggestedPrice,
			"confidence":     s.Confidence,
		},
	}
}
