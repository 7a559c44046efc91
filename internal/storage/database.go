package storage

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the gorm handle and exposes the repositories.
type Database struct {
	DB *gorm.DB

	Bots      *BotRepository
	Trades    *TradeRepository
	Screening *ScreeningRepository
}

// Open connects to postgres and migrates the schema.
func Open(dsn string) (*Database, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return newDatabase(db)
}

// NewWithGorm wraps an existing gorm handle, used by tests with sqlite.
func NewWithGorm(db *gorm.DB) (*Database, error) {
	return newDatabase(db)
}

func newDatabase(db *gorm.DB) (*Database, error) {
	if err := db.AutoMigrate(&TradingBot{}, &Trade{}, &ScreeningResult{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Database{
		DB:        db,
		Bots:      &BotRepository{db: db},
		Trades:    &TradeRepository{db: db},
		Screening: &ScreeningRepository{db: db},
	}, nil
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
