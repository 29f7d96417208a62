// Package ledger keeps user registrations, balances and submission history in
// two physical representations: flat append/rewrite logs and a relational
// mirror. The mirror answers queries; the flat logs are the recovery source
// that Reconcile rebuilds the mirror from.
package ledger

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// HistoryTimeLayout is the timestamp format written into history entries.
const HistoryTimeLayout = "2006-01-02 15:04:05 UTC"

// ErrWriteFailed marks a write that did not land in both representations.
var ErrWriteFailed = errors.New("ledger: write failed")

// BalanceRecord is one user's balance.
type BalanceRecord struct {
	UserID int64
	Amount float64
}

// HistoryEntry is an immutable record of one submission.
type HistoryEntry struct {
	UserID    int64
	Handle    string // "@name" or "—"
	Mode      string // display label, e.g. "Анонимное"
	Content   string
	CreatedAt string // HistoryTimeLayout
}

// Snapshot is the full content of one representation.
type Snapshot struct {
	Users    []int64
	Balances []BalanceRecord
	History  []HistoryEntry
}

// Counts reports row counts per entity.
type Counts struct {
	Users    int
	Balances int
	History  int
}

// Counts returns the row counts of the snapshot.
func (s Snapshot) Counts() Counts {
	return Counts{Users: len(s.Users), Balances: len(s.Balances), History: len(s.History)}
}

// Backend is one physical representation of the ledger. Implementations are
// not required to be safe for concurrent use; Ledger serializes access.
type Backend interface {
	HasUser(userID int64) (bool, error)
	AddUser(userID int64) error
	Users() ([]int64, error)
	// Balance returns the stored amount and whether a record exists.
	Balance(userID int64) (float64, bool, error)
	SetBalance(userID int64, amount float64) error
	AppendHistory(e HistoryEntry) error
	CountHistory(userID int64) (int, error)
	Snapshot() (Snapshot, error)
	// Replace swaps the whole content for s in one step. Readers never see
	// a partially replaced representation.
	Replace(s Snapshot) error

	// Undo operations used to roll back one side of a failed dual write.
	RemoveUser(userID int64) error
	RemoveBalance(userID int64) error
	// RemoveLastHistory drops the most recent entry of the user.
	RemoveLastHistory(userID int64) error
}

// Ledger is the single entry point for balance and history facts. Every
// write goes to both backends inside one writer section; when the second
// write fails the first is rolled back, so a failed write leaves both
// representations as they were. Reconcile holds the section exclusively for
// its whole duration.
type Ledger struct {
	mu     sync.RWMutex
	flat   Backend
	mirror Backend
	now    func() time.Time
}

// Opts holds parameters for creating a Ledger.
type Opts struct {
	Flat   Backend // append/rewrite logs, the recovery source
	Mirror Backend // relational mirror, the query-of-record
	Now    func() time.Time
}

// New creates a Ledger.
func New(opts Opts) (*Ledger, error) {
	if opts.Flat == nil {
		return nil, fmt.Errorf("ledger: flat backend is required")
	}
	if opts.Mirror == nil {
		return nil, fmt.Errorf("ledger: mirror backend is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{flat: opts.Flat, mirror: opts.Mirror, now: now}, nil
}

// Balance returns the user's balance, 0 if unknown. The mirror wins when
// both representations hold a value.
func (l *Ledger) Balance(userID int64) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(userID)
}

func (l *Ledger) balanceLocked(userID int64) (float64, error) {
	amount, ok, err := l.mirror.Balance(userID)
	if err != nil {
		log.Printf("ledger: mirror balance %d: %v (falling back to flat log)", userID, err)
	} else if ok {
		return amount, nil
	}
	amount, ok, err = l.flat.Balance(userID)
	if err != nil {
		return 0, fmt.Errorf("ledger: balance %d: %w", userID, err)
	}
	if !ok {
		return 0, nil
	}
	return amount, nil
}

// SetBalance writes amount to both representations.
func (l *Ledger) SetBalance(userID int64, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.setBalanceLocked(userID, amount)
}

func (l *Ledger) setBalanceLocked(userID int64, amount float64) error {
	undo, err := l.mirrorUndo(userID, true)
	if err != nil {
		return fmt.Errorf("%w: mirror balance %d: %v", ErrWriteFailed, userID, err)
	}
	if err := l.mirror.SetBalance(userID, amount); err != nil {
		return fmt.Errorf("%w: mirror balance %d: %v", ErrWriteFailed, userID, err)
	}
	if err := l.flat.SetBalance(userID, amount); err != nil {
		undo()
		return fmt.Errorf("%w: flat balance %d: %v", ErrWriteFailed, userID, err)
	}
	return nil
}

// mirrorUndo captures the mirror's current user row and, when withBalance is
// set, its balance row for userID. The returned func restores them after the
// flat half of a dual write failed.
func (l *Ledger) mirrorUndo(userID int64, withBalance bool) (func(), error) {
	hadUser, err := l.mirror.HasUser(userID)
	if err != nil {
		return nil, err
	}
	var prior float64
	var hadBalance bool
	if withBalance {
		prior, hadBalance, err = l.mirror.Balance(userID)
		if err != nil {
			return nil, err
		}
	}
	return func() {
		var errs []error
		if withBalance {
			if hadBalance {
				errs = append(errs, l.mirror.SetBalance(userID, prior))
			} else {
				errs = append(errs, l.mirror.RemoveBalance(userID))
			}
		}
		if !hadUser {
			errs = append(errs, l.mirror.RemoveUser(userID))
		}
		if err := errors.Join(errs...); err != nil {
			log.Printf("ledger: roll back mirror %d: %v", userID, err)
		}
	}, nil
}

// Credit adds amount to the user's balance and returns the new balance. The
// ledger does no deduplication; callers guarantee at-most-once invocation.
func (l *Ledger) Credit(userID int64, amount float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, err := l.balanceLocked(userID)
	if err != nil {
		return 0, err
	}
	next := cur + amount
	if err := l.setBalanceLocked(userID, next); err != nil {
		return 0, err
	}
	return next, nil
}

// Drain sets the user's balance to exactly zero and returns the amount it
// held before.
func (l *Ledger) Drain(userID int64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, err := l.balanceLocked(userID)
	if err != nil {
		return 0, err
	}
	if err := l.setBalanceLocked(userID, 0); err != nil {
		return 0, err
	}
	return cur, nil
}

// RegisterUser records the user in both representations and reports whether
// the user was new to the flat user log.
func (l *Ledger) RegisterUser(userID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exists, err := l.flat.HasUser(userID)
	if err != nil {
		return false, fmt.Errorf("ledger: register %d: %w", userID, err)
	}
	if !exists {
		if err := l.flat.AddUser(userID); err != nil {
			return false, fmt.Errorf("%w: flat user %d: %v", ErrWriteFailed, userID, err)
		}
	}
	if err := l.mirror.AddUser(userID); err != nil {
		if !exists {
			if rerr := l.flat.RemoveUser(userID); rerr != nil {
				log.Printf("ledger: roll back flat user %d: %v", userID, rerr)
			}
		}
		return false, fmt.Errorf("%w: mirror user %d: %v", ErrWriteFailed, userID, err)
	}
	return !exists, nil
}

// AppendHistory appends e to both representations. A zero CreatedAt is
// stamped with the current UTC time.
func (l *Ledger) AppendHistory(e HistoryEntry) (HistoryEntry, error) {
	if e.CreatedAt == "" {
		e.CreatedAt = l.now().UTC().Format(HistoryTimeLayout)
	}
	if e.Handle == "" {
		e.Handle = NoHandle
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	undo, err := l.mirrorUndo(e.UserID, false)
	if err != nil {
		return e, fmt.Errorf("%w: mirror history: %v", ErrWriteFailed, err)
	}
	if err := l.mirror.AppendHistory(e); err != nil {
		return e, fmt.Errorf("%w: mirror history: %v", ErrWriteFailed, err)
	}
	if err := l.flat.AppendHistory(e); err != nil {
		if rerr := l.mirror.RemoveLastHistory(e.UserID); rerr != nil {
			log.Printf("ledger: roll back mirror history %d: %v", e.UserID, rerr)
		}
		undo()
		return e, fmt.Errorf("%w: flat history: %v", ErrWriteFailed, err)
	}
	return e, nil
}

// CountHistory returns the number of history entries for the user.
func (l *Ledger) CountHistory(userID int64) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, err := l.mirror.CountHistory(userID)
	if err == nil {
		return n, nil
	}
	log.Printf("ledger: mirror history count %d: %v (falling back to flat log)", userID, err)
	n, err = l.flat.CountHistory(userID)
	if err != nil {
		return 0, fmt.Errorf("ledger: count history %d: %w", userID, err)
	}
	return n, nil
}

// Users returns every registered user id.
func (l *Ledger) Users() ([]int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids, err := l.mirror.Users()
	if err == nil {
		return ids, nil
	}
	log.Printf("ledger: mirror users: %v (falling back to flat log)", err)
	ids, err = l.flat.Users()
	if err != nil {
		return nil, fmt.Errorf("ledger: users: %w", err)
	}
	return ids, nil
}

// Stats returns the row counts of the mirror.
func (l *Ledger) Stats() (Counts, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap, err := l.mirror.Snapshot()
	if err != nil {
		return Counts{}, fmt.Errorf("ledger: stats: %w", err)
	}
	return snap.Counts(), nil
}

// Reconcile rebuilds the mirror entirely from the flat logs, then rewrites
// the flat logs from the rebuilt mirror. It holds the writer section for the
// whole operation, so no read or write interleaves with it.
func (l *Ledger) Reconcile() (Counts, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	src, err := l.flat.Snapshot()
	if err != nil {
		return Counts{}, fmt.Errorf("ledger: reconcile: read flat logs: %w", err)
	}
	if err := l.mirror.Replace(normalize(src)); err != nil {
		return Counts{}, fmt.Errorf("ledger: reconcile: rebuild mirror: %w", err)
	}
	out, err := l.mirror.Snapshot()
	if err != nil {
		return Counts{}, fmt.Errorf("ledger: reconcile: read mirror: %w", err)
	}
	if err := l.flat.Replace(out); err != nil {
		return Counts{}, fmt.Errorf("ledger: reconcile: rewrite flat logs: %w", err)
	}
	return out.Counts(), nil
}

// normalize dedupes users (adding any referenced only by balances or
// history), keeps the last balance per user and sorts users and balances by
// id. History order is preserved.
func normalize(s Snapshot) Snapshot {
	seen := make(map[int64]bool)
	var users []int64
	addUser := func(id int64) {
		if !seen[id] {
			seen[id] = true
			users = append(users, id)
		}
	}
	for _, id := range s.Users {
		addUser(id)
	}

	last := make(map[int64]float64)
	for _, b := range s.Balances {
		addUser(b.UserID)
		last[b.UserID] = b.Amount
	}
	for _, h := range s.History {
		addUser(h.UserID)
	}

	balances := make([]BalanceRecord, 0, len(last))
	for id, amount := range last {
		balances = append(balances, BalanceRecord{UserID: id, Amount: amount})
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	sort.Slice(balances, func(i, j int) bool { return balances[i].UserID < balances[j].UserID })

	history := make([]HistoryEntry, len(s.History))
	copy(history, s.History)
	return Snapshot{Users: users, Balances: balances, History: history}
}
