package models

import "time"

// Publication claims a submission for the channel. The unique ClaimKey is
// what keeps a second publish of the same submission from crediting twice.
type Publication struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ClaimKey    string `gorm:"size:128;not null;uniqueIndex"`
	SubmitterID int64  `gorm:"not null;index"`
	AdminID     int64  `gorm:"not null"`
	CreatedAt   time.Time
}
