package insights

import (
	"context"
	"math"
	"sort"
	"time"

	"shop-insights/internal/apperror"
	"shop-insights/internal/models"

	"github.com/google/uuid"
)

const (
	customerHistoryLimit = 1000
	trendVisitLimit      = 2000
	staffVisitLimit      = 2000

	day = 24 * time.Hour

	// заглушка загрузки мастера, пока нет расписания смен
	placeholderUtilization = 70.0
	favoriteServicesLimit  = 5
)

// Builder строит производные представления из визитов и каталога.
// Все представления вычисляются на каждый запрос и нигде не хранятся.
type Builder struct {
	visits  VisitStore
	catalog CatalogStore
	now     func() time.Time
}

// NewBuilder создает построитель проекций
func NewBuilder(visits VisitStore, catalog CatalogStore, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{visits: visits, catalog: catalog, now: now}
}

// Now возвращает текущее время построителя
func (b *Builder) Now() time.Time {
	return b.now()
}

func (b *Builder) recentVisits(ctx context.Context, days, limit int, customerID *uuid.UUID) ([]models.VisitRecord, error) {
	from := b.now().Add(-time.Duration(days) * day)
	visits, err := b.visits.ListVisits(ctx, models.VisitQuery{
		From:       &from,
		CustomerID: customerID,
		Limit:      limit,
	})
	if err != nil {
		return nil, apperror.Unavailable("visit store unavailable", err)
	}
	return visits, nil
}

func (b *Builder) services(ctx context.Context) ([]models.CatalogEntry, error) {
	services, err := b.catalog.ListActiveServices(ctx)
	if err != nil {
		return nil, apperror.Unavailable("service catalog unavailable", err)
	}
	return services, nil
}

// BuildCustomerHistory группирует визиты окна по клиентам.
// customerID ограничивает выборку одним клиентом.
func (b *Builder) BuildCustomerHistory(ctx context.Context, customerID *uuid.UUID, periodDays int) ([]models.CustomerHistory, error) {
	visits, err := b.recentVisits(ctx, periodDays, customerHistoryLimit, customerID)
	if err != nil {
		return nil, err
	}
	services, err := b.services(ctx)
	if err != nil {
		return nil, err
	}
	prices := newPriceIndex(services)

	grouped := make(map[uuid.UUID][]models.VisitRecord)
	for _, v := range visits {
		if v.CustomerID == nil {
			continue
		}
		grouped[*v.CustomerID] = append(grouped[*v.CustomerID], v)
	}
	if len(grouped) == 0 {
		return []models.CustomerHistory{}, nil
	}

	ids := make([]uuid.UUID, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	customers, err := b.catalog.ListCustomers(ctx, ids)
	if err != nil {
		return nil, apperror.Unavailable("customer directory unavailable", err)
	}

	now := b.now()
	histories := make([]models.CustomerHistory, 0, len(ids))
	for _, id := range ids {
		h := summarizeCustomer(grouped[id], prices, now)
		h.CustomerID = id
		if c, ok := customers[id]; ok {
			h.Name = c.Name
			h.Phone = c.Phone
		}
		histories = append(histories, h)
	}

	return histories, nil
}

func summarizeCustomer(visits []models.VisitRecord, prices *priceIndex, now time.Time) models.CustomerHistory {
	sort.SliceStable(visits, func(i, j int) bool {
		if !visits[i].CreatedAt.Equal(visits[j].CreatedAt) {
			return visits[i].CreatedAt.Before(visits[j].CreatedAt)
		}
		return visits[i].ID.String() < visits[j].ID.String()
	})

	h := models.CustomerHistory{TotalVisits: len(visits)}
	frequency := make(map[string]int)
	for _, v := range visits {
		frequency[v.ServiceName]++
		if v.IsCompleted() {
			h.CompletedVisits++
		}
		if v.IsIncomplete() {
			h.IncompleteVisits++
		}
		if v.CountsTowardRevenue() {
			h.TotalSpent += prices.price(v.ServiceName)
		}
	}

	first := visits[0].CreatedAt
	h.LastVisitDate = visits[len(visits)-1].CreatedAt
	h.DaysSinceLastVisit = daysBetween(h.LastVisitDate, now)
	if len(visits) >= 2 {
		gap := h.LastVisitDate.Sub(first).Hours() / 24 / float64(len(visits)-1)
		h.AverageDaysBetweenVisits = &gap
	}
	if h.CompletedVisits > 0 {
		h.AverageTicketSize = h.TotalSpent / float64(h.CompletedVisits)
	}

	h.ServicesBooked = make([]string, 0, len(frequency))
	for name := range frequency {
		h.ServicesBooked = append(h.ServicesBooked, name)
	}
	sort.Strings(h.ServicesBooked)

	favorites := append([]string(nil), h.ServicesBooked...)
	sort.SliceStable(favorites, func(i, j int) bool {
		return frequency[favorites[i]] > frequency[favorites[j]]
	})
	if len(favorites) > favoriteServicesLimit {
		favorites = favorites[:favoriteServicesLimit]
	}
	h.FavoriteServices = favorites

	return h
}

// daysBetween - целое число полных суток между from и to (не меньше 0)
func daysBetween(from, to time.Time) int {
	d := int(math.Floor(to.Sub(from).Hours() / 24))
	if d < 0 {
		return 0
	}
	return d
}

// BuildServiceTrends считает спрос на активные услуги: окно 2*periodDays делится
// на текущий и предыдущий периоды.
func (b *Builder) BuildServiceTrends(ctx context.Context, periodDays int) ([]models.ServiceTrend, error) {
	services, err := b.services(ctx)
	if err != nil {
		return nil, err
	}
	visits, err := b.recentVisits(ctx, 2*periodDays, trendVisitLimit, nil)
	if err != nil {
		return nil, err
	}

	prices := newPriceIndex(services)
	boundary := b.now().Add(-time.Duration(periodDays) * day)

	trends := make(map[string]*models.ServiceTrend, len(services))
	for _, s := range services {
		trends[s.Name] = &models.ServiceTrend{
			ServiceID: s.ID,
			Name:      s.Name,
			Price:     s.Price,
			Duration:  s.Duration,
		}
	}

	for _, v := range visits {
		entry, ok := prices.lookup(v.ServiceName)
		if !ok {
			continue
		}
		t := trends[entry.Name]
		t.TotalBookings++
		if v.IsCompleted() {
			t.CompletedBookings++
		}
		if v.CountsTowardRevenue() {
			t.TotalRevenue += entry.Price
		}
		if v.CreatedAt.Before(boundary) {
			t.BookingsLastPeriod++
		} else {
			t.BookingsThisPeriod++
		}
	}

	result := make([]models.ServiceTrend, 0, len(trends))
	for _, t := range trends {
		t.GrowthRate = round2(growthRate(t.BookingsThisPeriod, t.BookingsLastPeriod))
		if t.CompletedBookings > 0 {
			t.AverageRevenuePerBooking = round2(t.TotalRevenue / float64(t.CompletedBookings))
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// BuildStaffPerformance считает показатели активных мастеров за окно
func (b *Builder) BuildStaffPerformance(ctx context.Context, periodDays int) ([]models.StaffPerformance, error) {
	staff, err := b.catalog.ListActiveStaff(ctx)
	if err != nil {
		return nil, apperror.Unavailable("staff directory unavailable", err)
	}
	services, err := b.services(ctx)
	if err != nil {
		return nil, err
	}
	visits, err := b.recentVisits(ctx, periodDays, staffVisitLimit, nil)
	if err != nil {
		return nil, err
	}

	prices := newPriceIndex(services)

	type accumulator struct {
		perf          models.StaffPerformance
		durationTotal float64
		customers     map[uuid.UUID]int
	}
	acc := make(map[uuid.UUID]*accumulator, len(staff))
	for _, m := range staff {
		acc[m.ID] = &accumulator{
			perf:      models.StaffPerformance{StaffID: m.ID, Name: m.Name},
			customers: make(map[uuid.UUID]int),
		}
	}

	for _, v := range visits {
		if v.StaffID == nil {
			continue
		}
		a, ok := acc[*v.StaffID]
		if !ok {
			continue
		}
		a.perf.TotalServices++
		if v.CustomerID != nil {
			a.customers[*v.CustomerID]++
		}
		if !v.IsCompleted() {
			continue
		}
		a.perf.CompletedServices++
		entry, known := prices.lookup(v.ServiceName)
		if v.CountsTowardRevenue() && known {
			a.perf.TotalRevenue += entry.Price
		}
		switch {
		case v.StartedAt != nil && v.CompletedAt != nil && v.CompletedAt.After(*v.StartedAt):
			a.durationTotal += v.CompletedAt.Sub(*v.StartedAt).Minutes()
		case known:
			a.durationTotal += float64(entry.Duration)
		}
	}

	result := make([]models.StaffPerformance, 0, len(acc))
	for _, a := range acc {
		p := a.perf
		if p.CompletedServices > 0 {
			p.AverageTicketSize = round2(p.TotalRevenue / float64(p.CompletedServices))
			p.AverageServiceDuration = round2(a.durationTotal / float64(p.CompletedServices))
			p.UtilizationRate = placeholderUtilization
		}
		p.UniqueCustomers = len(a.customers)
		if p.UniqueCustomers > 0 {
			repeat := 0
			for _, n := range a.customers {
				if n > 1 {
					repeat++
				}
			}
			p.RebookingRate = round2(float64(repeat) / float64(p.UniqueCustomers) * 100)
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].StaffID.String() < result[j].StaffID.String()
	})

	return result, nil
}
