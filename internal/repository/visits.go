package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"shop-insights/internal/database"
	"shop-insights/internal/models"

	"github.com/google/uuid"
)

const (
	// DefaultVisitLimit ограничивает выборку, если лимит не задан
	DefaultVisitLimit = 1000
	// MaxVisitLimit - жесткий потолок выборки
	MaxVisitLimit = 2000
)

// VisitRepository читает визиты из таблицы подсистемы бронирования
type VisitRepository struct {
	db *database.DB
}

// NewVisitRepository создает репозиторий визитов
func NewVisitRepository(db *database.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// ListVisits возвращает визиты по фильтру, самые свежие первыми
func (r *VisitRepository) ListVisits(ctx context.Context, q models.VisitQuery) ([]models.VisitRecord, error) {
	query, args := buildVisitQuery(q)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}
	defer rows.Close()

	var visits []models.VisitRecord
	for rows.Next() {
		var (
			v          models.VisitRecord
			customerID uuid.NullUUID
			staffID    uuid.NullUUID
			startedAt  sql.NullTime
			finishedAt sql.NullTime
		)
		if err := rows.Scan(&v.ID, &customerID, &v.ServiceName, &staffID, &v.Status, &v.CreatedAt, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		if customerID.Valid {
			id := customerID.UUID
			v.CustomerID = &id
		}
		if staffID.Valid {
			id := staffID.UUID
			v.StaffID = &id
		}
		if startedAt.Valid {
			t := startedAt.Time
			v.StartedAt = &t
		}
		if finishedAt.Valid {
			t := finishedAt.Time
			v.CompletedAt = &t
		}
		visits = append(visits, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate visits: %w", err)
	}

	return visits, nil
}

func buildVisitQuery(q models.VisitQuery) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if q.From != nil {
		add("created_at >= $%d", *q.From)
	}
	if q.To != nil {
		add("created_at <= $%d", *q.To)
	}
	if q.Status != nil {
		add("status = $%d", string(*q.Status))
	}
	if q.ServiceName != "" {
		add("service_name = $%d", q.ServiceName)
	}
	if q.StaffID != nil {
		add("staff_id = $%d", *q.StaffID)
	}
	if q.CustomerID != nil {
		add("customer_id = $%d", *q.CustomerID)
	}

	query := `
		SELECT id, customer_id, service_name, staff_id, status, created_at, started_at, completed_at
		FROM visits`
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultVisitLimit
	}
	if limit > MaxVisitLimit {
		limit = MaxVisitLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf("\n\t\tORDER BY created_at DESC, id ASC\n\t\tLIMIT $%d", len(args))

	return query, args
}
