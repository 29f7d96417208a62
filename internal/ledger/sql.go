package ledger

import (
	"errors"
	"fmt"

	"github.com/zulandar/mailslot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLBackend is the relational mirror, backed by GORM.
type SQLBackend struct {
	db *gorm.DB
}

// NewSQLBackend creates a SQLBackend. The tables must already be migrated.
func NewSQLBackend(db *gorm.DB) (*SQLBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: sql backend: db is required")
	}
	return &SQLBackend{db: db}, nil
}

// HasUser reports whether a users row exists.
func (s *SQLBackend) HasUser(userID int64) (bool, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("ledger: sql has user %d: %w", userID, err)
	}
	return count > 0, nil
}

// AddUser inserts a users row, ignoring an existing one.
func (s *SQLBackend) AddUser(userID int64) error {
	return insertUser(s.db, userID)
}

func insertUser(tx *gorm.DB, userID int64) error {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.User{UserID: userID}).Error
	if err != nil {
		return fmt.Errorf("ledger: sql add user %d: %w", userID, err)
	}
	return nil
}

// Users returns all user ids ordered by id.
func (s *SQLBackend) Users() ([]int64, error) {
	var ids []int64
	if err := s.db.Model(&models.User{}).Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("ledger: sql users: %w", err)
	}
	return ids, nil
}

// Balance returns the balances row for the user.
func (s *SQLBackend) Balance(userID int64) (float64, bool, error) {
	var b models.Balance
	err := s.db.Where("user_id = ?", userID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("ledger: sql balance %d: %w", userID, err)
	}
	return b.Balance, true, nil
}

// SetBalance upserts the balances row, registering the user if needed.
func (s *SQLBackend) SetBalance(userID int64, amount float64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := insertUser(tx, userID); err != nil {
			return err
		}
		return upsertBalance(tx, userID, amount)
	})
}

func upsertBalance(tx *gorm.DB, userID int64, amount float64) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
	}).Create(&models.Balance{UserID: userID, Balance: amount}).Error
	if err != nil {
		return fmt.Errorf("ledger: sql set balance %d: %w", userID, err)
	}
	return nil
}

// AppendHistory inserts a history row, registering the user if needed.
func (s *SQLBackend) AppendHistory(e HistoryEntry) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := insertUser(tx, e.UserID); err != nil {
			return err
		}
		return insertHistory(tx, e)
	})
}

func insertHistory(tx *gorm.DB, e HistoryEntry) error {
	row := models.HistoryEntry{
		UserID:    e.UserID,
		Username:  e.Handle,
		Mode:      e.Mode,
		Content:   e.Content,
		Timestamp: e.CreatedAt,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("ledger: sql append history: %w", err)
	}
	return nil
}

// CountHistory counts history rows for the user.
func (s *SQLBackend) CountHistory(userID int64) (int, error) {
	var count int64
	if err := s.db.Model(&models.HistoryEntry{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("ledger: sql count history %d: %w", userID, err)
	}
	return int(count), nil
}

// Snapshot reads all three tables: users and balances by user id, history by
// surrogate id.
func (s *SQLBackend) Snapshot() (Snapshot, error) {
	var snap Snapshot
	users, err := s.Users()
	if err != nil {
		return snap, err
	}
	snap.Users = users

	var balances []models.Balance
	if err := s.db.Order("user_id").Find(&balances).Error; err != nil {
		return snap, fmt.Errorf("ledger: sql balances: %w", err)
	}
	for _, b := range balances {
		snap.Balances = append(snap.Balances, BalanceRecord{UserID: b.UserID, Amount: b.Balance})
	}

	var rows []models.HistoryEntry
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return snap, fmt.Errorf("ledger: sql history: %w", err)
	}
	for _, r := range rows {
		snap.History = append(snap.History, HistoryEntry{
			UserID:    r.UserID,
			Handle:    r.Username,
			Mode:      r.Mode,
			Content:   r.Content,
			CreatedAt: r.Timestamp,
		})
	}
	return snap, nil
}

// Replace deletes every row and inserts s inside one transaction, so other
// connections see either the old or the new content.
func (s *SQLBackend) Replace(snap Snapshot) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&models.HistoryEntry{}, &models.Balance{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return fmt.Errorf("clear: %w", err)
			}
		}
		for _, id := range snap.Users {
			if err := insertUser(tx, id); err != nil {
				return err
			}
		}
		for _, b := range snap.Balances {
			if err := insertUser(tx, b.UserID); err != nil {
				return err
			}
			if err := upsertBalance(tx, b.UserID, b.Amount); err != nil {
				return err
			}
		}
		for _, e := range snap.History {
			if err := insertUser(tx, e.UserID); err != nil {
				return err
			}
			if err := insertHistory(tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger: sql replace: %w", err)
	}
	return nil
}

// RemoveUser deletes the users row.
func (s *SQLBackend) RemoveUser(userID int64) error {
	if err := s.db.Where("user_id = ?", userID).Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("ledger: sql remove user %d: %w", userID, err)
	}
	return nil
}

// RemoveBalance deletes the balances row.
func (s *SQLBackend) RemoveBalance(userID int64) error {
	if err := s.db.Where("user_id = ?", userID).Delete(&models.Balance{}).Error; err != nil {
		return fmt.Errorf("ledger: sql remove balance %d: %w", userID, err)
	}
	return nil
}

// RemoveLastHistory deletes the user's history row with the highest id.
func (s *SQLBackend) RemoveLastHistory(userID int64) error {
	var row models.HistoryEntry
	err := s.db.Where("user_id = ?", userID).Order("id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: sql last history %d: %w", userID, err)
	}
	if err := s.db.Delete(&models.HistoryEntry{}, row.ID).Error; err != nil {
		return fmt.Errorf("ledger: sql remove history %d: %w", row.ID, err)
	}
	return nil
}
