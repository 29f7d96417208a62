package models

import "time"

// Balance is the relational mirror of one user's balance.
type Balance struct {
	UserID    int64   `gorm:"primaryKey;autoIncrement:false"`
	Balance   float64 `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (Balance) TableName() string { return "balances" }
