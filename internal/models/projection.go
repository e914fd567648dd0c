package models

import (
	"time"

	"github.com/google/uuid"
)

// CustomerHistory агрегирует историю визитов клиента за окно
type CustomerHistory struct {
	CustomerID               uuid.UUID `json:"customer_id"`
	Name                     string    `json:"name"`
	Phone                    string    `json:"phone"`
	TotalVisits              int       `json:"total_visits"`
	CompletedVisits          int       `json:"completed_visits"`
	IncompleteVisits         int       `json:"incomplete_visits"`
	LastVisitDate            time.Time `json:"last_visit_date"`
	DaysSinceLastVisit       int       `json:"days_since_last_visit"`
	AverageDaysBetweenVisits *float64  `json:"average_days_between_visits,omitempty"`
	TotalSpent               float64   `json:"total_spent"`
	AverageTicketSize        float64   `json:"average_ticket_size"`
	FavoriteServices         []string  `json:"favorite_services"`
	ServicesBooked           []string  `json:"services_booked"`
}

// VisitGap возвращает средний интервал между визитами, если он определен (>= 2 визитов)
func (h *CustomerHistory) VisitGap() (float64, bool) {
	if h.AverageDaysBetweenVisits == nil {
		return 0, false
	}
	return *h.AverageDaysBetweenVisits, true
}

// ServiceTrend описывает динамику спроса на услугу
type ServiceTrend struct {
	ServiceID                uuid.UUID `json:"service_id"`
	Name                     string    `json:"name"`
	Price                    float64   `json:"price"`
	Duration                 int       `json:"duration"`
	TotalBookings            int       `json:"total_bookings"`
	CompletedBookings        int       `json:"completed_bookings"`
	TotalRevenue             float64   `json:"total_revenue"`
	BookingsThisPeriod       int       `json:"bookings_this_period"`
	BookingsLastPeriod       int       `json:"bookings_last_period"`
	GrowthRate               float64   `json:"growth_rate"`
	AverageRevenuePerBooking float64   `json:"average_revenue_per_booking"`
}

// StaffPerformance описывает показатели мастера за окно
type StaffPerformance struct {
	StaffID                uuid.UUID `json:"staff_id"`
	Name                   string    `json:"name"`
	TotalServices          int       `json:"total_services"`
	CompletedServices      int       `json:"completed_services"`
	TotalRevenue           float64   `json:"total_revenue"`
	AverageTicketSize      float64   `json:"average_ticket_size"`
	AverageServiceDuration float64   `json:"average_service_duration"`
	RebookingRate          float64   `json:"rebooking_rate"`
	UniqueCustomers        int       `json:"unique_customers"`
	// UtilizationRate - заглушка (70 при наличии завершенных услуг), а не расчет по расписанию.
	UtilizationRate float64 `json:"utilization_rate"`
}
