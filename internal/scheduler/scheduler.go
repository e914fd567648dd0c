package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"
	"shop-insights/internal/models"

	"github.com/robfig/cron/v3"
)

const defaultRunTimeout = 30 * time.Second

// Refresher пересчитывает инсайты в обход кеша
type Refresher interface {
	Refresh(ctx context.Context) map[models.InsightCategory][]models.Insight
}

// Publisher отправляет результаты пересчета в шину
type Publisher interface {
	PublishInsightsRefreshed(byCategory map[models.InsightCategory][]models.Insight, generatedAt time.Time) error
	PublishInsightAlert(insight models.Insight) error
}

// Scheduler периодически пересчитывает инсайты и рассылает новые важные сигналы
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	refresher Refresher
	publisher Publisher
	log       *logger.Logger
	now       func() time.Time
	timeout   time.Duration

	mu      sync.Mutex
	alerted map[string]struct{}
}

// New создает планировщик. publisher может быть nil, тогда события не публикуются.
func New(cfg *config.SchedulerConfig, refresher Refresher, publisher Publisher, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		spec:      cfg.RefreshSpec,
		refresher: refresher,
		publisher: publisher,
		log:       log,
		now:       time.Now,
		timeout:   defaultRunTimeout,
		alerted:   make(map[string]struct{}),
	}
}

// Start регистрирует задачу и запускает cron
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.log.WithField("spec", s.spec).Info("Insights scheduler started")
	return nil
}

// Stop останавливает cron и ждет завершения текущего запуска
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("Insights scheduler stopped")
	case <-ctx.Done():
		s.log.WithError(ctx.Err()).Warn("Insights scheduler stop timed out")
	}
}

// RunOnce пересчитывает инсайты, публикует сводку и алерты по новым
// инсайтам с приоритетом high и выше. Возвращает число отправленных алертов.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	start := s.now()
	result := s.refresher.Refresh(ctx)

	total := 0
	for _, list := range result {
		total += len(list)
	}
	s.log.WithFields(map[string]interface{}{
		"total":    total,
		"duration": s.now().Sub(start).String(),
	}).Info("Insights refreshed")

	if s.publisher == nil {
		return 0
	}

	if err := s.publisher.PublishInsightsRefreshed(result, start.UTC()); err != nil {
		s.log.WithError(err).Warn("Failed to publish insights refresh")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]struct{})
	sent := 0
	for _, c := range models.AllCategories() {
		for _, in := range result[c] {
			if in.Priority > models.PriorityHigh {
				continue
			}
			current[in.ID] = struct{}{}
			if _, seen := s.alerted[in.ID]; seen {
				continue
			}
			if err := s.publisher.PublishInsightAlert(in); err != nil {
				s.log.WithCategory(string(c)).WithError(err).WithField("insight_id", in.ID).Warn("Failed to publish insight alert")
				delete(current, in.ID)
				continue
			}
			sent++
		}
	}
	s.alerted = current

	return sent
}
