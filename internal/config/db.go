// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package config

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rapidaai/voicecampaign/internal/model"
)

// OpenDatabase dials postgres in production and falls back to an
// in-memory sqlite database when PostgresConfig.UseSQLiteMemory is set
// (local/dev and CI; go.mod carries both drivers for this split).
func OpenDatabase(cfg PostgresConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if cfg.UseSQLiteMemory {
		db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("config: open sqlite: %w", err)
		}
		return db, migrate(db)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, firstNonEmptyStr(cfg.SSLMode, "disable"),
	)
	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("config: open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("config: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(firstPositiveInt(cfg.MaxOpenConn, 10))
	sqlDB.SetMaxIdleConns(firstPositiveInt(cfg.MaxIdleConn, 10))

	return db, migrate(db)
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Campaign{}, &model.Contact{}, &model.CallRow{}, &model.CallRecording{}, &model.QueueEntry{}); err != nil {
		return fmt.Errorf("config: automigrate: %w", err)
	}
	return nil
}

func firstNonEmptyStr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func firstPositiveInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
