package insights

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"shop-insights/internal/apperror"
	"shop-insights/internal/config"
	"shop-insights/internal/logger"
	"shop-insights/internal/models"
	"shop-insights/internal/redis"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCacheTTL       = 10 * time.Minute
	defaultRequestTimeout = 8 * time.Second
	defaultTopLimit       = 10
)

// InvalidCategoryError - запрошена категория вне фиксированного списка
type InvalidCategoryError struct {
	Category string
	Valid    []models.InsightCategory
}

func (e *InvalidCategoryError) Error() string {
	valid := make([]string, len(e.Valid))
	for i, c := range e.Valid {
		valid[i] = string(c)
	}
	return fmt.Sprintf("unknown insight category %q, valid categories: %s", e.Category, strings.Join(valid, ", "))
}

// ParseCategory проверяет ключ категории
func ParseCategory(raw string) (models.InsightCategory, error) {
	for _, c := range models.AllCategories() {
		if string(c) == raw {
			return c, nil
		}
	}
	err := &InvalidCategoryError{Category: raw, Valid: models.AllCategories()}
	return "", apperror.Validation(err.Error(), err)
}

// Engine запускает модули инсайтов параллельно и собирает результаты
type Engine struct {
	modules      map[models.InsightCategory]Module
	personalizer *Personalizer
	cache        Cache
	cacheTTL     time.Duration
	timeout      time.Duration
	maxParallel  int
	defaultTop   int
	now          func() time.Time
	overrides    []Module
	log          *logger.Logger
}

// Option настраивает Engine
type Option func(*Engine)

// WithCache подключает кеш с заданным сроком жизни записей
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = cache
		if ttl > 0 {
			e.cacheTTL = ttl
		}
	}
}

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTimeout задает общий дедлайн агрегации
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithModule заменяет модуль своей категории
func WithModule(m Module) Option {
	return func(e *Engine) { e.overrides = append(e.overrides, m) }
}

// NewEngine создает движок инсайтов поверх хранилищ визитов и каталога
func NewEngine(visits VisitStore, catalog CatalogStore, log *logger.Logger, cfg *config.InsightsConfig, opts ...Option) *Engine {
	e := &Engine{
		cacheTTL:    defaultCacheTTL,
		timeout:     defaultRequestTimeout,
		maxParallel: len(models.AllCategories()),
		defaultTop:  defaultTopLimit,
		now:         time.Now,
		log:         log,
	}
	if cfg != nil {
		if cfg.CacheTTLMinutes > 0 {
			e.cacheTTL = time.Duration(cfg.CacheTTLMinutes) * time.Minute
		}
		if cfg.RequestTimeoutSeconds > 0 {
			e.timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
		}
		if cfg.MaxParallelModules > 0 {
			e.maxParallel = cfg.MaxParallelModules
		}
		if cfg.DefaultTopLimit > 0 {
			e.defaultTop = cfg.DefaultTopLimit
		}
	}
	for _, opt := range opts {
		opt(e)
	}

	settings := SettingsFromConfig(cfg, log)
	builder := NewBuilder(visits, catalog, e.now)
	e.personalizer = NewPersonalizer(builder, settings)

	e.modules = make(map[models.InsightCategory]Module, len(models.AllCategories()))
	for _, m := range []Module{
		NewChurnAnalyzer(builder),
		NewNoShowPredictor(builder, settings),
		NewUpsellDetector(builder),
		NewRevenueAnalyzer(builder, settings),
		NewWinBackPlanner(builder),
		NewSlotOptimizer(builder, settings),
		e.personalizer,
	} {
		e.modules[m.Category()] = m
	}
	for _, m := range e.overrides {
		e.modules[m.Category()] = m
	}

	return e
}

type moduleResult struct {
	category models.InsightCategory
	insights []models.Insight
	err      error
}

// GetAllInsights возвращает инсайты по всем категориям. Сбой модуля дает пустой список
// его категории и не влияет на остальные.
func (e *Engine) GetAllInsights(ctx context.Context) map[models.InsightCategory][]models.Insight {
	key := allInsightsKey()

	var cached map[models.InsightCategory][]models.Insight
	if e.tryGetFromCache(ctx, key, &cached) {
		return cached
	}

	result, complete := e.compute(ctx, models.AllCategories())
	if complete {
		e.saveToCache(ctx, key, result)
	}
	return result
}

// GetTopInsights возвращает общий список, отсортированный по приоритету
func (e *Engine) GetTopInsights(ctx context.Context, limit int) []models.Insight {
	if limit <= 0 {
		limit = e.defaultTop
	}
	list := Flatten(e.GetAllInsights(ctx))
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

// GetInsightsByCategory возвращает инсайты одной категории с фильтрами приоритета и лимита
func (e *Engine) GetInsightsByCategory(ctx context.Context, category string, filter models.CategoryFilter) ([]models.Insight, error) {
	cat, err := ParseCategory(category)
	if err != nil {
		return nil, err
	}
	if filter.Priority != nil && !filter.Priority.Valid() {
		return nil, apperror.Validation("priority must be between 1 and 5", nil)
	}
	if filter.Limit < 0 {
		return nil, apperror.Validation("limit must not be negative", nil)
	}

	list := e.categoryInsights(ctx, cat)

	filtered := make([]models.Insight, 0, len(list))
	for _, in := range list {
		if filter.Priority != nil && in.Priority != *filter.Priority {
			continue
		}
		filtered = append(filtered, in)
	}
	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[:filter.Limit]
	}
	return filtered, nil
}

func (e *Engine) categoryInsights(ctx context.Context, cat models.InsightCategory) []models.Insight {
	var all map[models.InsightCategory][]models.Insight
	if e.tryGetFromCache(ctx, allInsightsKey(), &all) {
		return all[cat]
	}

	key := categoryKey(cat)
	var cached []models.Insight
	if e.tryGetFromCache(ctx, key, &cached) {
		return cached
	}

	result, complete := e.compute(ctx, []models.InsightCategory{cat})
	if complete {
		e.saveToCache(ctx, key, result[cat])
	}
	return result[cat]
}

// Refresh сбрасывает кеш и пересчитывает все категории
func (e *Engine) Refresh(ctx context.Context) map[models.InsightCategory][]models.Insight {
	if err := e.Invalidate(ctx); err != nil {
		e.log.WithError(err).Warn("Failed to invalidate insights cache")
	}

	result, complete := e.compute(ctx, models.AllCategories())
	if complete {
		e.saveToCache(ctx, allInsightsKey(), result)
	}
	return result
}

// Invalidate удаляет все закешированные инсайты
func (e *Engine) Invalidate(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.DeleteByPrefix(ctx, redis.KeyPrefixInsights+":")
}

// RecommendServices возвращает персональные рекомендации услуг клиенту
func (e *Engine) RecommendServices(ctx context.Context, customerID uuid.UUID) ([]models.ServiceRecommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.personalizer.RecommendServices(ctx, customerID)
}

// PredictNextVisit возвращает прогноз следующего визита клиента
func (e *Engine) PredictNextVisit(ctx context.Context, customerID uuid.UUID) (*models.NextVisitPrediction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.personalizer.PredictNextVisit(ctx, customerID)
}

// compute запускает модули категорий под общим дедлайном. complete == false,
// если хотя бы один модуль упал или не успел.
func (e *Engine) compute(ctx context.Context, categories []models.InsightCategory) (map[models.InsightCategory][]models.Insight, bool) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result := make(map[models.InsightCategory][]models.Insight, len(categories))
	for _, c := range categories {
		result[c] = []models.Insight{}
	}

	results := make(chan moduleResult, len(categories))
	go func() {
		g := new(errgroup.Group)
		g.SetLimit(e.maxParallel)
		for _, c := range categories {
			m := e.modules[c]
			g.Go(func() error {
				results <- e.run(ctx, m)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	complete := true
	pending := make(map[models.InsightCategory]bool, len(categories))
	for _, c := range categories {
		pending[c] = true
	}

	for len(pending) > 0 {
		select {
		case r, ok := <-results:
			if !ok {
				return result, complete
			}
			delete(pending, r.category)
			if r.err != nil {
				complete = false
				continue
			}
			result[r.category] = r.insights
		case <-ctx.Done():
			for c := range pending {
				e.log.WithCategory(string(c)).WithError(ctx.Err()).Warn("Insight module did not finish before the deadline")
			}
			return result, false
		}
	}

	return result, complete
}

func (e *Engine) run(ctx context.Context, m Module) (res moduleResult) {
	res.category = m.Category()
	res.insights = []models.Insight{}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.insights = []models.Insight{}
			res.err = fmt.Errorf("module panicked: %v", r)
			e.log.WithCategory(string(res.category)).WithField("panic", r).Error("Insight module panicked")
		}
	}()

	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	list, err := m.Generate(ctx)
	if err != nil {
		res.err = err
		entry := e.log.WithCategory(string(res.category)).WithError(err)
		if apperror.Is(err, apperror.KindUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			entry.Warn("Insight module skipped, data unavailable")
		} else {
			entry.Error("Insight module failed")
		}
		return res
	}

	if list != nil {
		sortByPriority(list)
		res.insights = list
	}

	e.log.WithCategory(string(res.category)).WithFields(map[string]interface{}{
		"count":    len(res.insights),
		"duration": time.Since(start).String(),
	}).Debug("Insight module finished")

	return res
}

// Flatten объединяет категории в фиксированном порядке и сортирует по приоритету
func Flatten(byCategory map[models.InsightCategory][]models.Insight) []models.Insight {
	var list []models.Insight
	for _, c := range models.AllCategories() {
		list = append(list, byCategory[c]...)
	}
	if list == nil {
		return []models.Insight{}
	}
	sortByPriority(list)
	return list
}

func sortByPriority(list []models.Insight) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority < list[j].Priority
	})
}

func allInsightsKey() string {
	return redis.GenerateKey(redis.KeyPrefixInsights, "all")
}

func categoryKey(cat models.InsightCategory) string {
	return redis.GenerateKey(redis.KeyPrefixInsights, "category:"+string(cat))
}

func (e *Engine) tryGetFromCache(ctx context.Context, key string, dest interface{}) bool {
	if e.cache == nil {
		return false
	}
	if err := e.cache.Get(ctx, key, dest); err != nil {
		return false
	}
	return true
}

func (e *Engine) saveToCache(ctx context.Context, key string, value interface{}) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, key, value, e.cacheTTL); err != nil {
		e.log.WithError(err).WithField("key", key).Warn("Failed to cache insights")
	}
}
