package insights

import (
	"context"
	"strings"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"
	"shop-insights/internal/models"

	"github.com/google/uuid"
)

// VisitStore - источник визитов (подсистема бронирования)
type VisitStore interface {
	ListVisits(ctx context.Context, q models.VisitQuery) ([]models.VisitRecord, error)
}

// CatalogStore - каталог услуг, мастеров и справочник клиентов
type CatalogStore interface {
	ListActiveServices(ctx context.Context) ([]models.CatalogEntry, error)
	ListActiveStaff(ctx context.Context) ([]models.StaffMember, error)
	ListCustomers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Customer, error)
}

// Settings - параметры эвристик, не зависящие от данных
type Settings struct {
	BasicServices           []string
	RevenuePerHourBenchmark float64
	OpenHour                int
	CloseHour               int
	NextVisitLimit          int
	Location                *time.Location
}

const (
	defaultRevenuePerHourBenchmark = 60.0
	defaultOpenHour                = 9
	defaultCloseHour               = 20
	defaultNextVisitLimit          = 10
)

// DefaultSettings возвращает настройки по умолчанию
func DefaultSettings() Settings {
	return Settings{
		BasicServices:           []string{"Haircut", "Beard Trim", "Shave", "Hair Wash", "Blow Dry"},
		RevenuePerHourBenchmark: defaultRevenuePerHourBenchmark,
		OpenHour:                defaultOpenHour,
		CloseHour:               defaultCloseHour,
		NextVisitLimit:          defaultNextVisitLimit,
		Location:                time.UTC,
	}
}

// SettingsFromConfig строит настройки из конфигурации, подставляя значения по умолчанию
func SettingsFromConfig(cfg *config.InsightsConfig, log *logger.Logger) Settings {
	s := DefaultSettings()
	if cfg == nil {
		return s
	}

	if len(cfg.BasicServices) > 0 {
		s.BasicServices = cfg.BasicServices
	}
	if cfg.RevenuePerHourBenchmark > 0 {
		s.RevenuePerHourBenchmark = cfg.RevenuePerHourBenchmark
	}
	if cfg.OpenHour >= 0 && cfg.CloseHour <= 24 && cfg.OpenHour < cfg.CloseHour {
		s.OpenHour = cfg.OpenHour
		s.CloseHour = cfg.CloseHour
	}
	if cfg.NextVisitLimit > 0 {
		s.NextVisitLimit = cfg.NextVisitLimit
	}
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			if log != nil {
				log.WithError(err).WithField("timezone", cfg.Timezone).Warn("Unknown timezone, using UTC")
			}
		} else {
			s.Location = loc
		}
	}

	return s
}

func (s Settings) isBasicService(name string) bool {
	key := normalizeName(name)
	for _, basic := range s.BasicServices {
		if normalizeName(basic) == key {
			return true
		}
	}
	return false
}

func (s Settings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
