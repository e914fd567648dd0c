package insights

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"shop-insights/internal/apperror"
	"shop-insights/internal/models"

	"github.com/google/uuid"
)

const (
	personalizationWindowDays = 365
	nextVisitHorizonDays      = 7
	recommendationLimit       = 5

	complementBand       = 0.3
	complementConfidence = 50.0
	ticketBand           = 0.2
	ticketConfidence     = 40.0

	// Разброс интервалов не вычисляется: считается низким для всех клиентов.
	assumeLowVariance = true
)

// Personalizer прогнозирует следующий визит и подбирает услуги клиенту
type Personalizer struct {
	builder  *Builder
	settings Settings
}

// NewPersonalizer создает модуль персонализации
func NewPersonalizer(builder *Builder, settings Settings) *Personalizer {
	return &Personalizer{builder: builder, settings: settings}
}

// Category возвращает категорию модуля
func (p *Personalizer) Category() models.InsightCategory { return models.CategoryPersonalization }

func (p *Personalizer) predict(h models.CustomerHistory) (models.NextVisitPrediction, bool) {
	gap, ok := h.VisitGap()
	if !ok {
		return models.NextVisitPrediction{}, false
	}
	interval := int(math.Round(gap))

	confidence := 50.0
	if h.TotalVisits >= 10 {
		confidence += 20
	}
	if h.TotalVisits >= 20 {
		confidence += 10
	}
	if assumeLowVariance {
		confidence += 20
	}

	return models.NextVisitPrediction{
		CustomerID:    h.CustomerID,
		Name:          h.Name,
		PredictedDate: h.LastVisitDate.Add(time.Duration(interval) * day),
		DaysUntil:     interval - h.DaysSinceLastVisit,
		Confidence:    math.Min(100, confidence),
	}, true
}

// NextVisits возвращает прогнозы для клиентов с двумя и более визитами, ближайшие первыми
func (p *Personalizer) NextVisits(ctx context.Context) ([]models.NextVisitPrediction, error) {
	histories, err := p.builder.BuildCustomerHistory(ctx, nil, personalizationWindowDays)
	if err != nil {
		return nil, err
	}

	var predictions []models.NextVisitPrediction
	for _, h := range histories {
		if pr, ok := p.predict(h); ok {
			predictions = append(predictions, pr)
		}
	}
	sort.SliceStable(predictions, func(i, j int) bool {
		if predictions[i].DaysUntil != predictions[j].DaysUntil {
			return predictions[i].DaysUntil < predictions[j].DaysUntil
		}
		return predictions[i].CustomerID.String() < predictions[j].CustomerID.String()
	})

	return predictions, nil
}

// PredictNextVisit возвращает прогноз для одного клиента
func (p *Personalizer) PredictNextVisit(ctx context.Context, customerID uuid.UUID) (*models.NextVisitPrediction, error) {
	h, err := p.customer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	pr, ok := p.predict(*h)
	if !ok {
		return nil, apperror.NotFound("not enough visits to predict the next one", nil)
	}
	return &pr, nil
}

func (p *Personalizer) customer(ctx context.Context, customerID uuid.UUID) (*models.CustomerHistory, error) {
	histories, err := p.builder.BuildCustomerHistory(ctx, &customerID, personalizationWindowDays)
	if err != nil {
		return nil, err
	}
	for i := range histories {
		if histories[i].CustomerID == customerID {
			return &histories[i], nil
		}
	}
	return nil, apperror.NotFound("customer has no visits", nil)
}

// RecommendServices возвращает до 5 услуг для клиента, по убыванию уверенности
func (p *Personalizer) RecommendServices(ctx context.Context, customerID uuid.UUID) ([]models.ServiceRecommendation, error) {
	h, err := p.customer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	services, err := p.builder.services(ctx)
	if err != nil {
		return nil, err
	}
	return recommend(*h, newServiceTiers(services), services), nil
}

func recommend(h models.CustomerHistory, tiers serviceTiers, services []models.CatalogEntry) []models.ServiceRecommendation {
	tried := tiers.tried(h.ServicesBooked)
	merged := make(map[string]models.ServiceRecommendation)
	offer := func(s models.CatalogEntry, confidence float64, reason string) {
		if tried[s.Name] {
			return
		}
		if cur, ok := merged[s.Name]; ok && cur.Confidence >= confidence {
			return
		}
		merged[s.Name] = models.ServiceRecommendation{
			ServiceName: s.Name,
			Price:       s.Price,
			Confidence:  confidence,
			Reason:      reason,
		}
	}

	upgrade := upsellConfidence(h)
	for _, s := range tiers.premium {
		offer(s, upgrade, "Premium upgrade")
	}

	if len(h.FavoriteServices) > 0 {
		if fav, ok := tiers.index.lookup(h.FavoriteServices[0]); ok && fav.Price > 0 {
			for _, s := range services {
				if s.Name != fav.Name && withinBand(s.Price, fav.Price, complementBand) {
					offer(s, complementConfidence, "Pairs well with "+fav.Name)
				}
			}
		}
	}

	if h.AverageTicketSize > 0 {
		for _, s := range services {
			if withinBand(s.Price, h.AverageTicketSize, ticketBand) {
				offer(s, ticketConfidence, "Fits the usual spend")
			}
		}
	}

	result := make([]models.ServiceRecommendation, 0, len(merged))
	for _, r := range merged {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Confidence != result[j].Confidence {
			return result[i].Confidence > result[j].Confidence
		}
		return result[i].ServiceName < result[j].ServiceName
	})
	if len(result) > recommendationLimit {
		result = result[:recommendationLimit]
	}
	return result
}

func withinBand(price, anchor, band float64) bool {
	return price >= anchor*(1-band) && price <= anchor*(1+band)
}

// Generate выдает инсайт на каждого клиента, чей визит ожидается в пределах недели
func (p *Personalizer) Generate(ctx context.Context) ([]models.Insight, error) {
	predictions, err := p.NextVisits(ctx)
	if err != nil {
		return nil, err
	}

	var result []models.Insight
	for _, pr := range predictions {
		if pr.DaysUntil < -nextVisitHorizonDays || pr.DaysUntil > nextVisitHorizonDays {
			continue
		}
		result = append(result, nextVisitInsight(pr))
		if len(result) == p.settings.NextVisitLimit {
			break
		}
	}
	return result, nil
}

func nextVisitInsight(pr models.NextVisitPrediction) models.Insight {
	priority := models.PriorityMedium
	value := fmt.Sprintf("in %d days", pr.DaysUntil)
	switch {
	case pr.DaysUntil < 0:
		priority = models.PriorityHigh
		value = fmt.Sprintf("overdue by %d days", -pr.DaysUntil)
	case pr.DaysUntil == 0:
		priority = models.PriorityHigh
		value = "today"
	}

	name := pr.Name
	if name == "" {
		name = "Customer"
	}

	return models.Insight{
		ID:          "next-visit-" + pr.CustomerID.String(),
		Category:    models.CategoryPersonalization,
		Title:       "Next visit due: " + name,
		Description: fmt.Sprintf("%s usually comes back around %s", name, pr.PredictedDate.Format("Jan 2")),
		Emoji:       "📅",
		Priority:    Fixed{Tier: priority}.Resolve(),
		Value:       value,
		Actionable:  true,
		ActionLabel: "Send reminder",
		ActionURL:   "/customers/" + pr.CustomerID.String(),
		Metadata: map[string]interface{}{
			"customerId":    pr.CustomerID.String(),
			"predictedDate": pr.PredictedDate.Format("2006-01-02"),
			"daysUntil":     pr.DaysUntil,
			"confidence":    pr.Confidence,
		},
	}
}
