package insights

import (
	"context"
	"sort"
	"sync"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"
	"shop-insights/internal/models"

	"github.com/google/uuid"
)

// суббота, полдень
var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "debug", Format: "json"})
}

type fakeVisitStore struct {
	mu     sync.Mutex
	visits []models.VisitRecord
	err    error
	calls  int
}

func (s *fakeVisitStore) ListVisits(_ context.Context, q models.VisitQuery) ([]models.VisitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	var result []models.VisitRecord
	for _, v := range s.visits {
		if q.From != nil && v.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && v.CreatedAt.After(*q.To) {
			continue
		}
		if q.CustomerID != nil && (v.CustomerID == nil || *v.CustomerID != *q.CustomerID) {
			continue
		}
		result = append(result, v)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

type fakeCatalog struct {
	mu           sync.Mutex
	services     []models.CatalogEntry
	staff        []models.StaffMember
	customers    map[uuid.UUID]models.Customer
	servicesErr  error
	staffErr     error
	customersErr error
}

func (c *fakeCatalog) ListActiveServices(context.Context) ([]models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.servicesErr != nil {
		return nil, c.servicesErr
	}
	return append([]models.CatalogEntry(nil), c.services...), nil
}

func (c *fakeCatalog) ListActiveStaff(context.Context) ([]models.StaffMember, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staffErr != nil {
		return nil, c.staffErr
	}
	return append([]models.StaffMember(nil), c.staff...), nil
}

func (c *fakeCatalog) ListCustomers(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Customer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.customersErr != nil {
		return nil, c.customersErr
	}
	result := make(map[uuid.UUID]models.Customer, len(ids))
	for _, id := range ids {
		if cust, ok := c.customers[id]; ok {
			result[id] = cust
		}
	}
	return result, nil
}

func (c *fakeCatalog) setStaffErr(err error) {
	c.mu.Lock()
	c.staffErr = err
	c.mu.Unlock()
}

func service(name string, price float64, duration int) models.CatalogEntry {
	return models.CatalogEntry{ID: uuid.New(), Name: name, Price: price, Duration: duration, IsActive: true}
}

func daysAgo(n int) time.Time {
	return testNow.Add(-time.Duration(n) * day)
}

// visitAt создает визит; для done проставляются started_at и completed_at (+30 минут)
func visitAt(customer uuid.UUID, serviceName string, status models.VisitStatus, at time.Time) models.VisitRecord {
	id := customer
	v := models.VisitRecord{
		ID:          uuid.New(),
		CustomerID:  &id,
		ServiceName: serviceName,
		Status:      status,
		CreatedAt:   at,
	}
	if status == models.VisitStatusDone {
		started := at
		completed := at.Add(30 * time.Minute)
		v.StartedAt = &started
		v.CompletedAt = &completed
	}
	return v
}

func done(customer uuid.UUID, serviceName string, at time.Time) models.VisitRecord {
	return visitAt(customer, serviceName, models.VisitStatusDone, at)
}

// shopFixture - набор данных, на котором каждая категория выдает хотя бы один инсайт
type shopFixture struct {
	visits  *fakeVisitStore
	catalog *fakeCatalog

	churned uuid.UUID
	regular uuid.UUID
	due     uuid.UUID
	flaky   uuid.UUID
	staffID uuid.UUID
}

func newShopFixture() *shopFixture {
	f := &shopFixture{
		churned: uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		regular: uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		due:     uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		flaky:   uuid.MustParse("00000000-0000-0000-0000-000000000004"),
		staffID: uuid.MustParse("00000000-0000-0000-0000-0000000000aa"),
	}

	var visits []models.VisitRecord
	// давно не приходил: 200, 150, 120 дней назад
	for _, d := range []int{200, 150, 120} {
		visits = append(visits, done(f.churned, "Haircut", daysAgo(d)))
	}
	// постоянный клиент: каждые 20 дней, последний визит 2 дня назад
	for _, d := range []int{62, 42, 22, 2} {
		v := done(f.regular, "Haircut", daysAgo(d))
		v.StaffID = &f.staffID
		visits = append(visits, v)
	}
	// визит ожидается сегодня: каждые 10 дней
	for _, d := range []int{30, 20, 10} {
		visits = append(visits, done(f.due, "Beard Trim", daysAgo(d)))
	}
	// не доходит до конца
	visits = append(visits,
		visitAt(f.flaky, "Haircut", models.VisitStatusOther, daysAgo(80)),
		visitAt(f.flaky, "Haircut", models.VisitStatusOther, daysAgo(40)),
	)

	f.visits = &fakeVisitStore{visits: visits}
	f.catalog = &fakeCatalog{
		services: []models.CatalogEntry{
			service("Beard Trim", 20, 20),
			service("Coloring", 120, 90),
			service("Haircut", 30, 30),
			service("Spa", 150, 60),
		},
		staff: []models.StaffMember{{ID: f.staffID, Name: "Alex"}},
		customers: map[uuid.UUID]models.Customer{
			f.churned: {ID: f.churned, Name: "Chris", Phone: "+100"},
			f.regular: {ID: f.regular, Name: "Riley", Phone: "+200"},
			f.due:     {ID: f.due, Name: "Dana", Phone: "+300"},
			f.flaky:   {ID: f.flaky, Name: "Frankie", Phone: "+400"},
		},
	}
	return f
}

func (f *shopFixture) builder() *Builder {
	return NewBuilder(f.visits, f.catalog, fixedClock)
}

func (f *shopFixture) engine(opts ...Option) *Engine {
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewEngine(f.visits, f.catalog, newTestLogger(), nil, opts...)
}

func findInsight(list []models.Insight, id string) (models.Insight, bool) {
	for _, in := range list {
		if in.ID == id {
			return in, true
		}
	}
	return models.Insight{}, false
}
