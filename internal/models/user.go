package models

import "time"

// User is a registered bot user. Rows are never deleted.
type User struct {
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time
}

// TableName pins the table name shared with the flat user log.
func (User) TableName() string { return "users" }
