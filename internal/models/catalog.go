package models

import "github.com/google/uuid"

// CatalogEntry представляет услугу из каталога
type CatalogEntry struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	Price    float64   `json:"price" db:"price"`
	Duration int       `json:"duration" db:"duration"` // в минутах
	IsActive bool      `json:"is_active" db:"is_active"`
}

// StaffMember представляет мастера
type StaffMember struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
}

// Customer содержит контактные данные клиента для отчетов
type Customer struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Name  string    `json:"name" db:"name"`
	Phone string    `json:"phone" db:"phone"`
}
