package database

import (
	"database/sql"
	"fmt"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"

	_ "github.com/lib/pq"
)

// DB представляет подключение к базе данных
type DB struct {
	*sql.DB
}

// Connect создает подключение к PostgreSQL
func Connect(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Движок инсайтов только читает, поэтому пул небольшой
	db.SetMaxOpenConns(15)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Successfully connected to database")

	return &DB{DB: db}, nil
}

// Close закрывает подключение к базе данных
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// Health проверяет доступность базы данных
func (db *DB) Health() error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	return db.Ping()
}
