package insights

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"shop-insights/internal/models"

	"github.com/google/uuid"
)

func gapOf(v float64) *float64 { return &v }

func TestScoreChurn_Tiers(t *testing.T) {
	cases := []struct {
		days  int
		level models.ChurnLevel
		score float64
	}{
		{10, models.ChurnLevelNone, 0},
		{30, models.ChurnLevelLow, 20},
		{45, models.ChurnLevelLow, 30},
		{60, models.ChurnLevelMedium, 40},
		{75, models.ChurnLevelMedium, 55},
		{90, models.ChurnLevelHigh, 70},
		{150, models.ChurnLevelHigh, 100},
	}
	for _, c := range cases {
		level, score := scoreChurn(models.CustomerHistory{DaysSinceLastVisit: c.days})
		if level != c.level || score != c.score {
			t.Fatalf("days=%d: got %s/%v, want %s/%v", c.days, level, score, c.level, c.score)
		}
	}
}

func TestScoreChurn_Adjustments(t *testing.T) {
	level, score := scoreChurn(models.CustomerHistory{
		DaysSinceLastVisit:       45,
		AverageDaysBetweenVisits: gapOf(20),
		TotalSpent:               600,
	})
	if level != models.ChurnLevelMedium {
		t.Fatalf("expected low escalated to medium, got %s", level)
	}
	if score != 45 {
		t.Fatalf("expected 30+10+5, got %v", score)
	}

	_, capped := scoreChurn(models.CustomerHistory{
		DaysSinceLastVisit:       200,
		AverageDaysBetweenVisits: gapOf(10),
		TotalSpent:               1000,
	})
	if capped != 100 {
		t.Fatalf("expected score capped at 100, got %v", capped)
	}
}

func TestScoreChurn_Monotonic(t *testing.T) {
	base := models.CustomerHistory{AverageDaysBetweenVisits: gapOf(35), TotalSpent: 300}
	prev := -1.0
	for days := 0; days <= 400; days++ {
		h := base
		h.DaysSinceLastVisit = days
		_, score := scoreChurn(h)
		if score < prev {
			t.Fatalf("score decreased at day %d: %v < %v", days, score, prev)
		}
		prev = score
	}
}

func TestChurnAnalyzer_Generate(t *testing.T) {
	f := newShopFixture()
	insights, err := NewChurnAnalyzer(f.builder()).Generate(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("expected only the high tier, got %+v", insights)
	}
	in := insights[0]
	if in.ID != "churn-high-risk" || in.Priority != models.PriorityHigh || in.Value != 1 {
		t.Fatalf("unexpected churn insight: %+v", in)
	}
	if in.ActionURL != "/customers?filter=churn-high" {
		t.Fatalf("unexpected deep link: %s", in.ActionURL)
	}
}

func TestNoShowPredictor_Reasons(t *testing.T) {
	p := NewNoShowPredictor(nil, DefaultSettings())
	pr := p.predict(models.CustomerHistory{
		TotalVisits:              2,
		IncompleteVisits:         1,
		AverageDaysBetweenVisits: gapOf(70),
		DaysSinceLastVisit:       40,
		ServicesBooked:           []string{"haircut", "Shave "},
	})

	// 20 + 20 + 15 + 10 + 5
	if pr.Probability != 70 {
		t.Fatalf("expected probability 70, got %v", pr.Probability)
	}
	want := []string{reasonIncomplete, reasonLongGaps, reasonNewCustomer, reasonRecentAbsent, reasonBasicOnly}
	if !reflect.DeepEqual(pr.Reasons, want) {
		t.Fatalf("unexpected reasons: %v", pr.Reasons)
	}

	calm := p.predict(models.CustomerHistory{TotalVisits: 8, ServicesBooked: []string{"Coloring"}})
	if calm.Probability != 0 || len(calm.Reasons) != 0 {
		t.Fatalf("expected no risk, got %+v", calm)
	}
}

func TestNoShowPredictor_Generate(t *testing.T) {
	f := newShopFixture()
	insights, err := NewNoShowPredictor(f.builder(), DefaultSettings()).Generate(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(insights) != 1 || insights[0].Value != 1 {
		t.Fatalf("expected one risky customer, got %+v", insights)
	}
	// urgency 70, impact 10, frequency 33.3 → 44.67
	if insights[0].Priority != models.PriorityMedium {
		t.Fatalf("expected weighted medium priority, got %v", insights[0].Priority)
	}
}

func TestUpsellDetector_Example(t *testing.T) {
	customer := uuid.New()
	var visits []models.VisitRecord
	for _, d := range []int{61, 41, 21, 1} {
		visits = append(visits, done(customer, "A", daysAgo(d)))
	}
	f := &fakeVisitStore{visits: visits}
	catalog := &fakeCatalog{services: []models.CatalogEntry{service("A", 100, 30), service("B", 200, 60)}}

	candidates, err := NewUpsellDetector(NewBuilder(f, catalog, fixedClock)).Candidates(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %+v", candidates)
	}
	c := candidates[0]
	if c.Confidence != 70 {
		t.Fatalf("expected confidence 70, got %v", c.Confidence)
	}
	if !reflect.DeepEqual(c.SuggestedServices, []string{"B"}) || c.PotentialRevenue != 200 {
		t.Fatalf("unexpected suggestion: %+v", c)
	}
}

func TestUpsellDetector_SkipsPremiumCustomersAndLowConfidence(t *testing.T) {
	premium, newcomer := uuid.New(), uuid.New()
	f := &fakeVisitStore{visits: []models.VisitRecord{
		done(premium, "A", daysAgo(20)),
		done(premium, "B", daysAgo(10)),
		done(newcomer, "A", daysAgo(3)),
	}}
	catalog := &fakeCatalog{services: []models.CatalogEntry{service("A", 100, 30), service("B", 200, 60)}}

	candidates, err := NewUpsellDetector(NewBuilder(f, catalog, fixedClock)).Candidates(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %+v", candidates)
	}
}

func TestPricingSuggestions_Rules(t *testing.T) {
	trends := []models.ServiceTrend{
		{Name: "Hot", Price: 40, GrowthRate: 50, BookingsThisPeriod: 12},
		{Name: "Cold", Price: 80, GrowthRate: -40, BookingsThisPeriod: 6},
		{Name: "Slow", Price: 30, Duration: 60, CompletedBookings: 5, TotalRevenue: 150},
		{Name: "Cheap", Price: 20, GrowthRate: -35, BookingsThisPeriod: 5},
	}

	got := pricingSuggestions(trends, 60)
	if len(got) != 4 {
		t.Fatalf("expected 4 suggestions, got %+v", got)
	}
	if got[0].ServiceName != "Hot" || got[0].SuggestedPrice != 46 || got[0].Confidence != 70 {
		t.Fatalf("unexpected rule a: %+v", got[0])
	}
	if got[1].ServiceName != "Cold" || got[1].SuggestedPrice != 75 || got[1].Confidence != 60 {
		t.Fatalf("unexpected rule b: %+v", got[1])
	}
	// 30 $/ч < 0.8 * 60
	if got[2].ServiceName != "Slow" || got[2].SuggestedPrice != 33 || got[2].Confidence != 50 {
		t.Fatalf("unexpected rule c: %+v", got[2])
	}
	if got[3].SuggestedPrice != 18 {
		t.Fatalf("expected max(price*0.9, price-5) = 18, got %v", got[3].SuggestedPrice)
	}
}

func TestBuildCashFlow_WeekOverWeek(t *testing.T) {
	customer := uuid.New()
	prices := newPriceIndex([]models.CatalogEntry{{Name: "Haircut", Price: 50}})
	visits := []models.VisitRecord{
		done(customer, "Haircut", daysAgo(1)),
		done(customer, "Haircut", daysAgo(9)),
		done(customer, "Haircut", daysAgo(10)),
		done(customer, "Haircut", daysAgo(11)),
	}

	report := buildCashFlow(visits, prices, testNow, time.UTC)
	if report.ThisWeek != 50 || report.LastWeek != 150 {
		t.Fatalf("unexpected weekly totals: %+v", report)
	}
	if report.WeekOverWeekPct != -66.67 {
		t.Fatalf("unexpected change: %v", report.WeekOverWeekPct)
	}
	if len(report.Daily) != 30 || report.Daily[29].Label != "2024-06-15" {
		t.Fatalf("unexpected daily buckets: %+v", report.Daily[29])
	}
	if report.Daily[28].Revenue != 50 || report.Daily[28].Visits != 1 {
		t.Fatalf("expected yesterday's visit in daily buckets: %+v", report.Daily[28])
	}
	if len(report.Weekly) != 12 || report.Weekly[11].Label != "2024-06-10" {
		t.Fatalf("expected weeks to start on Monday: %+v", report.Weekly[11])
	}
	if report.Monthly[11].Label != "2024-06" || report.Monthly[11].Revenue != 200 {
		t.Fatalf("unexpected monthly bucket: %+v", report.Monthly[11])
	}
	if report.ByHour[12].Visits != 4 {
		t.Fatalf("expected all completions at 12:00, got %+v", report.ByHour[12])
	}

	in, ok := weekOverWeekInsight(&report)
	if !ok || in.ID != "revenue-week-down" || in.Priority != models.PriorityHigh {
		t.Fatalf("expected a high priority drop insight, got %+v", in)
	}
}

func TestStaffInsight_Underperformance(t *testing.T) {
	staff := []models.StaffPerformance{
		{Name: "Alex", TotalRevenue: 1000, CompletedServices: 20},
		{Name: "Bo", TotalRevenue: 1000, CompletedServices: 20},
		{Name: "Cy", TotalRevenue: 300, CompletedServices: 6},
		{Name: "Di", TotalRevenue: 100, CompletedServices: 2},
	}
	in, ok := staffInsight(staff)
	if !ok {
		t.Fatalf("expected underperformance insight")
	}
	if !reflect.DeepEqual(in.Metadata["staff"], []string{"Cy"}) {
		t.Fatalf("expected only Cy to be flagged, got %v", in.Metadata["staff"])
	}
	if in.Priority != models.PriorityMedium {
		t.Fatalf("expected medium priority, got %v", in.Priority)
	}
}

func TestRevenueAnalyzer_StaffFailureBubbles(t *testing.T) {
	f := newShopFixture()
	f.catalog.staffErr = errors.New("staff unavailable")

	if _, err := NewRevenueAnalyzer(f.builder(), DefaultSettings()).Generate(context.Background()); err == nil {
		t.Fatalf("expected staff failure to fail the revenue module")
	}
}

func TestWinBackPlanner_Generate(t *testing.T) {
	f := newShopFixture()
	insights, err := NewWinBackPlanner(f.builder()).Generate(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	low, ok := findInsight(insights, "winback-30")
	if !ok || low.Priority != models.PriorityLow || low.Metadata["discount"] != 10 {
		t.Fatalf("unexpected 30-day tier: %+v", low)
	}
	high, ok := findInsight(insights, "winback-90")
	if !ok || high.Priority != models.PriorityHigh || high.Metadata["discount"] != 20 {
		t.Fatalf("unexpected 90-day tier: %+v", high)
	}
	if _, ok := findInsight(insights, "winback-60"); ok {
		t.Fatalf("expected empty 60-day tier to be skipped")
	}
	segment, ok := findInsight(insights, "repeat-upsell-segment")
	if !ok || segment.Metadata["customers"] != 3 {
		t.Fatalf("unexpected upsell segment: %+v", segment)
	}
}

func TestWinBackTier_Boundaries(t *testing.T) {
	for days, want := range map[int]int{29: -1, 30: 0, 59: 0, 60: 1, 89: 1, 90: 2, 400: 2} {
		got := -1
		for i, tier := range winBackTiers {
			if tier.contains(days) {
				got = i
			}
		}
		if got != want {
			t.Fatalf("days=%d: got tier %d, want %d", days, got, want)
		}
	}
}

func TestSlowHours_Example(t *testing.T) {
	customer := uuid.New()
	monday := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	tuesday := monday.Add(24 * time.Hour)

	var visits []models.VisitRecord
	for i := 0; i < 3; i++ {
		visits = append(visits, done(customer, "Haircut", monday.Add(time.Duration(i)*time.Minute)))
		visits = append(visits, done(customer, "Haircut", tuesday.Add(time.Duration(i)*time.Minute)))
	}

	slow := slowHours(visits, DefaultSettings())

	var sunday9 *models.SlowHour
	for i := range slow {
		if slow[i].Weekday == time.Monday && slow[i].Hour == 10 {
			t.Fatalf("busy slot flagged as slow")
		}
		if slow[i].Weekday == time.Sunday && slow[i].Hour == 9 {
			sunday9 = &slow[i]
		}
	}
	if sunday9 == nil || sunday9.SuggestedDiscount != 25 || sunday9.Bookings != 0 {
		t.Fatalf("expected empty Sunday 09:00 slot with 25%% discount, got %+v", sunday9)
	}
	// 7 дней * 11 часов - 2 занятых слота
	if len(slow) != 75 {
		t.Fatalf("expected 75 slow slots, got %d", len(slow))
	}
}

func TestSlowHours_SingleBookingGetsSmallerDiscount(t *testing.T) {
	customer := uuid.New()
	monday := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

	var visits []models.VisitRecord
	for i := 0; i < 6; i++ {
		visits = append(visits, done(customer, "Haircut", monday.Add(time.Duration(i)*time.Minute)))
	}
	visits = append(visits, done(customer, "Haircut", monday.Add(time.Hour)))

	for _, s := range slowHours(visits, DefaultSettings()) {
		if s.Weekday == time.Monday && s.Hour == 11 {
			if s.SuggestedDiscount != 15 {
				t.Fatalf("expected 15%% for a single booking, got %d", s.SuggestedDiscount)
			}
			return
		}
	}
	t.Fatalf("expected Monday 11:00 to be slow")
}

func TestMineBundles_Example(t *testing.T) {
	prices := newPriceIndex([]models.CatalogEntry{{Name: "A", Price: 100}, {Name: "B", Price: 200}})

	var visits []models.VisitRecord
	for i := 0; i < 3; i++ {
		customer := uuid.New()
		start := daysAgo(30 + i*5)
		visits = append(visits,
			done(customer, "A", start),
			done(customer, "B", start.Add(3*day)),
		)
	}

	bundles := mineBundles(visits, prices)
	if len(bundles) != 1 {
		t.Fatalf("expected one bundle, got %+v", bundles)
	}
	b := bundles[0]
	if !reflect.DeepEqual(b.Services, []string{"A", "B"}) || b.Frequency != 3 || b.BundlePrice != 255 {
		t.Fatalf("unexpected bundle: %+v", b)
	}
	if b.Savings != 45 || b.Confidence != 60 {
		t.Fatalf("unexpected savings/confidence: %+v", b)
	}
}

func TestMineBundles_IgnoresDistantAndRepeatedPairs(t *testing.T) {
	prices := newPriceIndex([]models.CatalogEntry{{Name: "A", Price: 100}, {Name: "B", Price: 200}})
	customer := uuid.New()
	start := daysAgo(60)

	visits := []models.VisitRecord{
		done(customer, "A", start),
		done(customer, "B", start.Add(1*day)),
		done(customer, "B", start.Add(2*day)),
		done(customer, "A", start.Add(20*day)),
		done(customer, "B", start.Add(28*day)),
	}

	if bundles := mineBundles(visits, prices); len(bundles) != 0 {
		t.Fatalf("expected fewer than 3 qualifying windows, got %+v", bundles)
	}
}

func TestSlotRisks_Thresholds(t *testing.T) {
	customer := uuid.New()
	monday := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

	var visits []models.VisitRecord
	for i := 0; i < 3; i++ {
		visits = append(visits, visitAt(customer, "Haircut", models.VisitStatusOther, monday.Add(time.Duration(i)*time.Minute)))
	}
	for i := 0; i < 2; i++ {
		visits = append(visits, done(customer, "Haircut", monday.Add(time.Duration(10+i)*time.Minute)))
	}
	for i := 0; i < 4; i++ {
		visits = append(visits, done(customer, "Haircut", monday.Add(time.Hour)))
	}

	risks := slotRisks(visits, time.UTC)
	if len(risks) != 1 {
		t.Fatalf("expected only buckets with 5+ visits, got %+v", risks)
	}
	// 0.6*50 + 0.6*30
	if risks[0].Risk != 48 || risks[0].Recommendation != "consider confirmation calls" {
		t.Fatalf("unexpected risk: %+v", risks[0])
	}

	in := slotRiskInsight(risks[0])
	if in.Priority != ClassifyPriority(48, 25, 50) {
		t.Fatalf("expected weighted priority, got %v", in.Priority)
	}
}

func TestPersonalizer_Predict(t *testing.T) {
	p := NewPersonalizer(nil, DefaultSettings())
	last := daysAgo(10)

	pr, ok := p.predict(models.CustomerHistory{
		TotalVisits:              12,
		LastVisitDate:            last,
		DaysSinceLastVisit:       10,
		AverageDaysBetweenVisits: gapOf(13.6),
	})
	if !ok {
		t.Fatalf("expected a prediction")
	}
	if pr.DaysUntil != 4 || !pr.PredictedDate.Equal(last.Add(14*day)) {
		t.Fatalf("unexpected prediction: %+v", pr)
	}
	// 50 + 20 (>=10 визитов) + 20 (низкий разброс)
	if pr.Confidence != 90 {
		t.Fatalf("expected confidence 90, got %v", pr.Confidence)
	}

	if _, ok := p.predict(models.CustomerHistory{TotalVisits: 1}); ok {
		t.Fatalf("expected no prediction without a gap")
	}
}

func TestPersonalizer_GenerateRespectsHorizonAndLimit(t *testing.T) {
	f := newShopFixture()
	settings := DefaultSettings()
	settings.NextVisitLimit = 1

	insights, err := NewPersonalizer(f.builder(), settings).Generate(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("expected limit to cap insights, got %d", len(insights))
	}
	if insights[0].Priority != models.PriorityHigh || insights[0].Value != "today" {
		t.Fatalf("expected a due-today insight, got %+v", insights[0])
	}
}

func TestPersonalizer_RecommendServices(t *testing.T) {
	customer := uuid.New()
	var visits []models.VisitRecord
	for _, d := range []int{60, 40, 20} {
		visits = append(visits, done(customer, "Haircut", daysAgo(d)))
	}
	catalog := &fakeCatalog{services: []models.CatalogEntry{
		service("Haircut", 40, 30),
		service("Kids Cut", 35, 20),
		service("Beard Trim", 20, 20),
		service("Coloring", 120, 90),
		service("Spa", 150, 60),
	}}
	p := NewPersonalizer(NewBuilder(&fakeVisitStore{visits: visits}, catalog, fixedClock), DefaultSettings())

	recs, err := p.RecommendServices(context.Background(), customer)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.ServiceName
	}
	// premium: 30 +20 (интервал < 30); Kids Cut: комплемент 50 > полоса чека 40
	want := []string{"Coloring", "Kids Cut", "Spa"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("unexpected recommendations: %v", names)
	}
	if recs[1].Confidence != 50 || recs[1].Reason != "Pairs well with Haircut" {
		t.Fatalf("expected max confidence to win the merge: %+v", recs[1])
	}
}

func TestPersonalizer_UnknownCustomer(t *testing.T) {
	p := NewPersonalizer(NewBuilder(&fakeVisitStore{}, &fakeCatalog{}, fixedClock), DefaultSettings())
	if _, err := p.PredictNextVisit(context.Background(), uuid.New()); err == nil {
		t.Fatalf("expected not found error")
	}
}
