package repository

import (
	"context"
	"fmt"

	"shop-insights/internal/database"
	"shop-insights/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CatalogRepository читает каталог услуг, мастеров и клиентов
type CatalogRepository struct {
	db *database.DB
}

// NewCatalogRepository создает репозиторий каталога
func NewCatalogRepository(db *database.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListActiveServices возвращает активные услуги каталога
func (r *CatalogRepository) ListActiveServices(ctx context.Context) ([]models.CatalogEntry, error) {
	query := `
		SELECT id, name, price, duration, is_active
		FROM services
		WHERE is_active = true
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	var services []models.CatalogEntry
	for rows.Next() {
		var s models.CatalogEntry
		if err := rows.Scan(&s.ID, &s.Name, &s.Price, &s.Duration, &s.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate services: %w", err)
	}

	return services, nil
}

// ListActiveStaff возвращает активных мастеров
func (r *CatalogRepository) ListActiveStaff(ctx context.Context) ([]models.StaffMember, error) {
	query := `
		SELECT id, name
		FROM staff
		WHERE is_active = true
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	defer rows.Close()

	var staff []models.StaffMember
	for rows.Next() {
		var m models.StaffMember
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan staff member: %w", err)
		}
		staff = append(staff, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staff: %w", err)
	}

	return staff, nil
}

// ListCustomers возвращает контакты клиентов по списку идентификаторов
func (r *CatalogRepository) ListCustomers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Customer, error) {
	result := make(map[uuid.UUID]models.Customer, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	query := `
		SELECT id, name, phone
		FROM customers
		WHERE id = ANY($1::uuid[])
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		result[c.ID] = c
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customers: %w", err)
	}

	return result, nil
}
