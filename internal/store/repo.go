package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func OpenPostgres(user, password, dbName, host, port, sslMode string) (*gorm.DB, error) {
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC", host, user, password, dbName, port, sslMode)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

func New(db *gorm.DB) (*Repo, error) {
	if err := db.AutoMigrate(&Device{}, &Reading{}); err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}
