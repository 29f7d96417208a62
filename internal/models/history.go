package models

// HistoryEntry is one submission as recorded in the relational mirror. The
// surrogate ID gives iteration order; Timestamp keeps the exact text written
// to the flat history log so the two representations stay byte-identical.
type HistoryEntry struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    int64  `gorm:"not null;index"`
	Username  string `gorm:"size:64"`
	Mode      string `gorm:"size:32;not null"`
	Content   string `gorm:"type:text;not null"`
	Timestamp string `gorm:"column:created_at;size:64;not null"`
}

// TableName pins the table name.
func (HistoryEntry) TableName() string { return "history" }
