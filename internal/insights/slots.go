package insights

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"shop-insights/internal/models"

	"github.com/google/uuid"
)

const (
	slotWindowDays  = 90
	slotVisitLimit  = 2000
	bundleWindow    = 7 * day
	bundleMinWindow = 3
	bundleDiscount  = 0.85
	slotRiskMinSize = 5

	riskCallThreshold     = 30.0
	riskReminderThreshold = 50.0
)

// скидка для слабого слота по числу бронирований в нем
var slowHourDiscount = map[int]int{0: 25, 1: 15, 2: 10}

type slotKey struct {
	weekday time.Weekday
	hour    int
}

func (k slotKey) String() string {
	return fmt.Sprintf("%s %02d:00", k.weekday.String()[:3], k.hour)
}

// SlotOptimizer ищет слабые часы, пакеты услуг и слоты с риском неявок
type SlotOptimizer struct {
	builder  *Builder
	settings Settings
}

// NewSlotOptimizer создает модуль оптимизации расписания
func NewSlotOptimizer(builder *Builder, settings Settings) *SlotOptimizer {
	return &SlotOptimizer{builder: builder, settings: settings}
}

// Category возвращает категорию модуля
func (o *SlotOptimizer) Category() models.InsightCategory { return models.CategoryOptimization }

func (o *SlotOptimizer) load(ctx context.Context) ([]models.VisitRecord, *priceIndex, error) {
	visits, err := o.builder.recentVisits(ctx, slotWindowDays, slotVisitLimit, nil)
	if err != nil {
		return nil, nil, err
	}
	services, err := o.builder.services(ctx)
	if err != nil {
		return nil, nil, err
	}
	return visits, newPriceIndex(services), nil
}

// SlowHours возвращает слабо загруженные слоты в часы работы
func (o *SlotOptimizer) SlowHours(ctx context.Context) ([]models.SlowHour, error) {
	visits, _, err := o.load(ctx)
	if err != nil {
		return nil, err
	}
	return slowHours(visits, o.settings), nil
}

func slowHours(visits []models.VisitRecord, settings Settings) []models.SlowHour {
	loc := settings.location()
	counts := make(map[slotKey]int)
	for _, v := range visits {
		at := v.CreatedAt.In(loc)
		if at.Hour() < settings.OpenHour || at.Hour() >= settings.CloseHour {
			continue
		}
		counts[slotKey{at.Weekday(), at.Hour()}]++
	}
	if len(counts) == 0 {
		return nil
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	mean := float64(total) / float64(len(counts))

	var result []models.SlowHour
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		for hour := settings.OpenHour; hour < settings.CloseHour; hour++ {
			n := counts[slotKey{wd, hour}]
			if n >= 2 || float64(n) >= 0.5*mean {
				continue
			}
			result = append(result, models.SlowHour{
				Weekday:           wd,
				Hour:              hour,
				Bookings:          n,
				SuggestedDiscount: slowHourDiscount[n],
			})
		}
	}
	return result
}

// Bundles возвращает пары услуг, которые клиенты берут в пределах недели
func (o *SlotOptimizer) Bundles(ctx context.Context) ([]models.BundleCandidate, error) {
	visits, prices, err := o.load(ctx)
	if err != nil {
		return nil, err
	}
	return mineBundles(visits, prices), nil
}

func mineBundles(visits []models.VisitRecord, prices *priceIndex) []models.BundleCandidate {
	type resolved struct {
		id      uuid.UUID
		service models.CatalogEntry
		at      time.Time
	}

	byCustomer := make(map[uuid.UUID][]resolved)
	for _, v := range visits {
		if v.CustomerID == nil {
			continue
		}
		entry, ok := prices.lookup(v.ServiceName)
		if !ok {
			continue
		}
		byCustomer[*v.CustomerID] = append(byCustomer[*v.CustomerID], resolved{id: v.ID, service: entry, at: v.CreatedAt})
	}

	type pair struct {
		a, b models.CatalogEntry
	}
	pairs := make(map[string]pair)
	occurrences := make(map[string]int)
	seen := make(map[string]bool)

	for customerID, list := range byCustomer {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].at.Equal(list[j].at) {
				return list[i].at.Before(list[j].at)
			}
			return list[i].id.String() < list[j].id.String()
		})

		for i := range list {
			for j := i + 1; j < len(list); j++ {
				if list[j].at.Sub(list[i].at) > bundleWindow {
					break
				}
				a, b := list[i].service, list[j].service
				if a.Name == b.Name {
					continue
				}
				if b.Name < a.Name {
					a, b = b, a
				}
				key := a.Name + "|" + b.Name
				window := customerID.String() + "|" + key + "|" + list[i].id.String()
				if seen[window] {
					continue
				}
				seen[window] = true
				pairs[key] = pair{a: a, b: b}
				occurrences[key]++
			}
		}
	}

	var result []models.BundleCandidate
	for key, n := range occurrences {
		if n < bundleMinWindow {
			continue
		}
		p := pairs[key]
		if p.a.Price <= 0 || p.b.Price <= 0 {
			continue
		}
		sum := p.a.Price + p.b.Price
		price := math.Round(bundleDiscount * sum)
		result = append(result, models.BundleCandidate{
			Services:    []string{p.a.Name, p.b.Name},
			Frequency:   n,
			BundlePrice: price,
			Savings:     round2(sum - price),
			Confidence:  math.Min(100, float64(n)*20),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Frequency != result[j].Frequency {
			return result[i].Frequency > result[j].Frequency
		}
		return strings.Join(result[i].Services, "|") < strings.Join(result[j].Services, "|")
	})

	return result
}

// SlotRisks возвращает риск неявок для слотов с достаточным числом визитов
func (o *SlotOptimizer) SlotRisks(ctx context.Context) ([]models.SlotRisk, error) {
	visits, _, err := o.load(ctx)
	if err != nil {
		return nil, err
	}
	return slotRisks(visits, o.settings.location()), nil
}

func slotRisks(visits []models.VisitRecord, loc *time.Location) []models.SlotRisk {
	type tally struct{ total, completed, incomplete int }
	buckets := make(map[slotKey]*tally)
	for _, v := range visits {
		at := v.CreatedAt.In(loc)
		key := slotKey{at.Weekday(), at.Hour()}
		t, ok := buckets[key]
		if !ok {
			t = &tally{}
			buckets[key] = t
		}
		t.total++
		if v.IsCompleted() {
			t.completed++
		}
		if v.IsIncomplete() {
			t.incomplete++
		}
	}

	var result []models.SlotRisk
	for key, t := range buckets {
		if t.total < slotRiskMinSize {
			continue
		}
		incompleteRate := float64(t.incomplete) / float64(t.total)
		completionRate := float64(t.completed) / float64(t.total)
		risk := round2(incompleteRate*50 + (1-completionRate)*30)

		var recommendation string
		switch {
		case risk >= riskReminderThreshold:
			recommendation = "send confirmation reminders"
		case risk >= riskCallThreshold:
			recommendation = "consider confirmation calls"
		}

		result = append(result, models.SlotRisk{
			Weekday:        key.weekday,
			Hour:           key.hour,
			Visits:         t.total,
			Risk:           risk,
			Recommendation: recommendation,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Risk != result[j].Risk {
			return result[i].Risk > result[j].Risk
		}
		if result[i].Weekday != result[j].Weekday {
			return result[i].Weekday < result[j].Weekday
		}
		return result[i].Hour < result[j].Hour
	})

	return result
}

// Generate выдает инсайты по слабым часам, пакетам и рискованным слотам
func (o *SlotOptimizer) Generate(ctx context.Context) ([]models.Insight, error) {
	visits, prices, err := o.load(ctx)
	if err != nil {
		return nil, err
	}

	var result []models.Insight
	if slow := slowHours(visits, o.settings); len(slow) > 0 {
		result = append(result, slowHoursInsight(slow))
	}
	for _, b := range mineBundles(visits, prices) {
		result = append(result, bundleInsight(b))
	}
	for _, r := range slotRisks(visits, o.settings.location()) {
		if r.Risk < riskCallThreshold {
			continue
		}
		result = append(result, slotRiskInsight(r))
	}

	return result, nil
}

func slowHoursInsight(slow []models.SlowHour) models.Insight {
	slots := make([]string, 0, len(slow))
	maxDiscount := 0
	for _, s := range slow {
		slots = append(slots, slotKey{s.Weekday, s.Hour}.String())
		if s.SuggestedDiscount > maxDiscount {
			maxDiscount = s.SuggestedDiscount
		}
	}
	preview := slots
	if len(preview) > 5 {
		preview = preview[:5]
	}

	return models.Insight{
		ID:          "optimization-slow-hours",
		Category:    models.CategoryOptimization,
		Title:       "Quiet hours to fill",
		Description: fmt.Sprintf("%d time slots are rarely booked, e.g. %s. Try happy-hour discounts", len(slow), strings.Join(preview, ", ")),
		Emoji:       "⏰",
		Priority:    Fixed{Tier: models.PriorityLow}.Resolve(),
		Value:       len(slow),
		Actionable:  true,
		ActionLabel: "Create promotion",
		ActionURL:   "/promotions/new?type=happy-hour",
		Metadata: map[string]interface{}{
			"slots":       slots,
			"maxDiscount": maxDiscount,
		},
	}
}

func bundleInsight(b models.BundleCandidate) models.Insight {
	name := strings.Join(b.Services, " + ")
	return models.Insight{
		ID:          "bundle-" + slug(b.Services[0]) + "-" + slug(b.Services[1]),
		Category:    models.CategoryOptimization,
		Title:       "Bundle: " + name,
		Description: fmt.Sprintf("Customers booked %s within a week %d times. Offer it as a package for $%.0f", name, b.Frequency, b.BundlePrice),
		Emoji:       "🎁",
		Priority:    Fixed{Tier: models.PriorityLow}.Resolve(),
		Value:       fmt.Sprintf("$%.0f", b.BundlePrice),
		Actionable:  true,
		ActionLabel: "Create bundle",
		ActionURL:   "/services/bundles/new",
		Metadata: map[string]interface{}{
			"services":   b.Services,
			"frequency":  b.Frequency,
			"savings":    b.Savings,
			"confidence": b.Confidence,
		},
	}
}

func slotRiskInsight(r models.SlotRisk) models.Insight {
	key := slotKey{r.Weekday, r.Hour}
	return models.Insight{
		ID:          fmt.Sprintf("slot-risk-%d-%02d", int(r.Weekday), r.Hour),
		Category:    models.CategoryOptimization,
		Title:       "No-show prone slot: " + key.String(),
		Description: fmt.Sprintf("Bookings at %s often go unfinished, %s", key.String(), r.Recommendation),
		Emoji:       "📞",
		Priority: Weighted{
			Urgency:   r.Risk,
			Impact:    math.Min(100, float64(r.Visits)*5),
			Frequency: 50,
		}.Resolve(),
		Value:       fmt.Sprintf("%.0f%%", r.Risk),
		Actionable:  true,
		ActionLabel: "Set up reminders",
		ActionURL:   "/settings/reminders",
		Metadata: map[string]interface{}{
			"visits": r.Visits,
			"risk":   r.Risk,
		},
	}
}
