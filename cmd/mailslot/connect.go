package main

import (
	"fmt"

	"github.com/zulandar/mailslot/internal/config"
	"github.com/zulandar/mailslot/internal/db"
	"github.com/zulandar/mailslot/internal/ledger"
	"gorm.io/gorm"
)

// connectFromConfig loads the config, opens and migrates the relational
// mirror.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// openLedger builds the dual-representation ledger over data_dir and gormDB.
func openLedger(cfg *config.Config, gormDB *gorm.DB) (*ledger.Ledger, error) {
	flat, err := ledger.NewFileBackend(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	mirror, err := ledger.NewSQLBackend(gormDB)
	if err != nil {
		return nil, err
	}
	return ledger.New(ledger.Opts{Flat: flat, Mirror: mirror})
}
