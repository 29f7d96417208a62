package dashboard

import (
	"fmt"

	"github.com/zulandar/mailslot/internal/models"
	"github.com/zulandar/mailslot/internal/relay"
	"gorm.io/gorm"
)

// Stats holds ledger-wide counts for display.
type Stats struct {
	Users        int64   `json:"users"`
	Balances     int64   `json:"balances"`
	History      int64   `json:"history"`
	Publications int64   `json:"publications"`
	TotalBalance float64 `json:"total_balance"`
}

// LedgerStats counts rows in the relational mirror.
func LedgerStats(db *gorm.DB) (Stats, error) {
	var s Stats
	if err := db.Model(&models.User{}).Count(&s.Users).Error; err != nil {
		return s, fmt.Errorf("count users: %w", err)
	}
	if err := db.Model(&models.Balance{}).Count(&s.Balances).Error; err != nil {
		return s, fmt.Errorf("count balances: %w", err)
	}
	if err := db.Model(&models.HistoryEntry{}).Count(&s.History).Error; err != nil {
		return s, fmt.Errorf("count history: %w", err)
	}
	if err := db.Model(&models.Publication{}).Count(&s.Publications).Error; err != nil {
		return s, fmt.Errorf("count publications: %w", err)
	}
	if err := db.Model(&models.Balance{}).Select("COALESCE(SUM(balance), 0)").Scan(&s.TotalBalance).Error; err != nil {
		return s, fmt.Errorf("sum balances: %w", err)
	}
	return s, nil
}

// UserSummary holds one user's ledger state.
type UserSummary struct {
	UserID       int64   `json:"user_id"`
	Registered   bool    `json:"registered"`
	Balance      float64 `json:"balance"`
	Posts        int64   `json:"posts"`
	Publications int64   `json:"publications"`
}

// UserDetail returns the balance and submission counts for userID.
func UserDetail(db *gorm.DB, userID int64) (UserSummary, error) {
	s := UserSummary{UserID: userID}

	var users int64
	if err := db.Model(&models.User{}).Where("user_id = ?", userID).Count(&users).Error; err != nil {
		return s, fmt.Errorf("find user: %w", err)
	}
	s.Registered = users > 0

	var bal models.Balance
	res := db.Where("user_id = ?", userID).Limit(1).Find(&bal)
	if res.Error != nil {
		return s, fmt.Errorf("find balance: %w", res.Error)
	}
	s.Balance = bal.Balance

	if err := db.Model(&models.HistoryEntry{}).Where("user_id = ?", userID).Count(&s.Posts).Error; err != nil {
		return s, fmt.Errorf("count history: %w", err)
	}
	claims, err := relay.NewClaims(db)
	if err != nil {
		return s, err
	}
	if s.Publications, err = claims.Count(userID); err != nil {
		return s, err
	}
	return s, nil
}

// HistoryRow is one submission for display.
type HistoryRow struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Mode      string `json:"mode"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// RecentHistory returns the newest limit submissions, newest first.
func RecentHistory(db *gorm.DB, limit int) ([]HistoryRow, error) {
	var entries []models.HistoryEntry
	if err := db.Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	rows := make([]HistoryRow, len(entries))
	for i, e := range entries {
		rows[i] = HistoryRow{
			UserID:    e.UserID,
			Username:  e.Username,
			Mode:      e.Mode,
			Content:   e.Content,
			CreatedAt: e.Timestamp,
		}
	}
	return rows, nil
}
