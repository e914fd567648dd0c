package models

import (
	"time"

	"github.com/google/uuid"
)

// VisitStatus представляет статус визита в очереди
type VisitStatus string

const (
	VisitStatusWaiting    VisitStatus = "waiting"
	VisitStatusInProgress VisitStatus = "in-progress"
	VisitStatusDone       VisitStatus = "done"
	VisitStatusOther      VisitStatus = "other"
)

// VisitRecord представляет визит клиента. Записи принадлежат подсистеме бронирования,
// движок инсайтов их только читает.
type VisitRecord struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	CustomerID  *uuid.UUID  `json:"customer_id,omitempty" db:"customer_id"`
	ServiceName string      `json:"service_name" db:"service_name"`
	StaffID     *uuid.UUID  `json:"staff_id,omitempty" db:"staff_id"`
	Status      VisitStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

// IsCompleted сообщает, завершен ли визит
func (v *VisitRecord) IsCompleted() bool {
	return v.Status == VisitStatusDone
}

// CountsTowardRevenue: завершенный визит без completed_at в выручку не попадает.
func (v *VisitRecord) CountsTowardRevenue() bool {
	return v.Status == VisitStatusDone && v.CompletedAt != nil
}

// IsIncomplete сообщает, что визит не завершен и уже не ожидает (брошен, прерван и т.п.)
func (v *VisitRecord) IsIncomplete() bool {
	return v.Status != VisitStatusDone && v.Status != VisitStatusWaiting
}

// VisitQuery задает фильтр выборки визитов
type VisitQuery struct {
	From        *time.Time
	To          *time.Time
	Status      *VisitStatus
	ServiceName string
	StaffID     *uuid.UUID
	CustomerID  *uuid.UUID
	Limit       int
}
