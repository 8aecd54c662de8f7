package database

import (
	"context"
	"database/sql"
	"fmt"

	"netquality-tester/pkg/models"

	"github.com/spf13/viper"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type DB struct {
	*bun.DB
}

func NewDB() (*DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		viper.GetString("database.user"),
		viper.GetString("database.password"),
		viper.GetString("database.host"),
		viper.GetInt("database.port"),
		viper.GetString("database.dbname"),
		viper.GetString("database.sslmode"),
	)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &DB{db}, nil
}

// InitSchema creates the runs table if it doesn't exist
func (db *DB) InitSchema(ctx context.Context) error {
	_, err := db.NewCreateTable().
		Model((*models.Run)(nil)).
		IfNotExists().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	return nil
}

// InsertRun saves one measurement run
func (db *DB) InsertRun(ctx context.Context, run *models.Run) error {
	_, err := db.NewInsert().
		Model(run).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error inserting run: %v", err)
	}

	return nil
}

// RecentRuns returns the latest runs, newest first
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]models.Run, error) {
	var runs []models.Run
	err := db.NewSelect().
		Model(&runs).
		Order("time DESC").
		Limit(limit).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting recent runs: %v", err)
	}

	return runs, nil
}

// RunsUsingFallback returns runs where no catalog candidate was reachable
func (db *DB) RunsUsingFallback(ctx context.Context, limit int) ([]models.Run, error) {
	var runs []models.Run
	err := db.NewSelect().
		Model(&runs).
		Where("used_fallback = TRUE").
		Order("time DESC").
		Limit(limit).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting fallback runs: %v", err)
	}

	return runs, nil
}
