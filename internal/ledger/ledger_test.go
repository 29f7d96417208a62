package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/mailslot/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Balance{}, &models.HistoryEntry{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

type testLedger struct {
	*Ledger
	flat   *FileBackend
	mirror *SQLBackend
	dir    string
}

func newTestLedger(t *testing.T) testLedger {
	t.Helper()
	dir := t.TempDir()
	flat, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}
	mirror, err := NewSQLBackend(openTestDB(t))
	if err != nil {
		t.Fatalf("new sql backend: %v", err)
	}
	fixed := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	l, err := New(Opts{Flat: flat, Mirror: mirror, Now: func() time.Time { return fixed }})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return testLedger{Ledger: l, flat: flat, mirror: mirror, dir: dir}
}

func TestNew_RequiresBackends(t *testing.T) {
	if _, err := New(Opts{Mirror: &SQLBackend{}}); err == nil {
		t.Error("expected error for nil flat backend")
	}
	if _, err := New(Opts{Flat: &FileBackend{}}); err == nil {
		t.Error("expected error for nil mirror backend")
	}
}

func TestBalance_UnknownUserIsZero(t *testing.T) {
	tl := newTestLedger(t)
	got, err := tl.Balance(404)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if got != 0 {
		t.Errorf("Balance = %v, want 0", got)
	}
}

func TestSetBalance_WritesBothRepresentations(t *testing.T) {
	tl := newTestLedger(t)
	for _, amount := range []float64{1, 16.5, 0, 350} {
		if err := tl.SetBalance(7, amount); err != nil {
			t.Fatalf("SetBalance(%v): %v", amount, err)
		}
		got, err := tl.Balance(7)
		if err != nil {
			t.Fatalf("Balance: %v", err)
		}
		if got != amount {
			t.Errorf("Balance = %v, want %v", got, amount)
		}
		flat, ok, _ := tl.flat.Balance(7)
		if !ok || flat != amount {
			t.Errorf("flat balance = %v (ok=%v), want %v", flat, ok, amount)
		}
		mirror, ok, _ := tl.mirror.Balance(7)
		if !ok || mirror != amount {
			t.Errorf("mirror balance = %v (ok=%v), want %v", mirror, ok, amount)
		}
	}
}

func TestBalance_MirrorWinsOnDisagreement(t *testing.T) {
	tl := newTestLedger(t)
	if err := tl.flat.SetBalance(5, 100); err != nil {
		t.Fatal(err)
	}
	if err := tl.mirror.SetBalance(5, 40); err != nil {
		t.Fatal(err)
	}
	got, _ := tl.Balance(5)
	if got != 40 {
		t.Errorf("Balance = %v, want mirror value 40", got)
	}
}

func TestBalance_FallsBackToFlatWhenMirrorHasNoRow(t *testing.T) {
	tl := newTestLedger(t)
	if err := tl.flat.SetBalance(5, 12.5); err != nil {
		t.Fatal(err)
	}
	got, _ := tl.Balance(5)
	if got != 12.5 {
		t.Errorf("Balance = %v, want flat value 12.5", got)
	}
}

func TestCreditAndDrain(t *testing.T) {
	tl := newTestLedger(t)
	if _, err := tl.Credit(9, 1); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	got, err := tl.Credit(9, 15)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if got != 16 {
		t.Errorf("Credit returned %v, want 16", got)
	}

	if err := tl.SetBalance(9, 350); err != nil {
		t.Fatal(err)
	}
	prev, err := tl.Drain(9)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if prev != 350 {
		t.Errorf("Drain returned %v, want 350", prev)
	}
	after, _ := tl.Balance(9)
	if after != 0 {
		t.Errorf("balance after Drain = %v, want 0", after)
	}
}

func TestCredit_ConcurrentDifferentUsers(t *testing.T) {
	tl := newTestLedger(t)
	var wg sync.WaitGroup
	for u := int64(1); u <= 4; u++ {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(u int64) {
				defer wg.Done()
				if _, err := tl.Credit(u, 15); err != nil {
					t.Errorf("Credit(%d): %v", u, err)
				}
			}(u)
		}
	}
	wg.Wait()

	for u := int64(1); u <= 4; u++ {
		got, _ := tl.Balance(u)
		if got != 75 {
			t.Errorf("Balance(%d) = %v, want 75", u, got)
		}
		flat, _, _ := tl.flat.Balance(u)
		if flat != 75 {
			t.Errorf("flat Balance(%d) = %v, want 75", u, flat)
		}
	}
}

func TestRegisterUser(t *testing.T) {
	tl := newTestLedger(t)
	isNew, err := tl.RegisterUser(11)
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if !isNew {
		t.Error("first registration should report new")
	}
	isNew, err = tl.RegisterUser(11)
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if isNew {
		t.Error("second registration should not report new")
	}
	users, _ := tl.flat.Users()
	if !reflect.DeepEqual(users, []int64{11}) {
		t.Errorf("flat users = %v, want [11]", users)
	}
	ok, _ := tl.mirror.HasUser(11)
	if !ok {
		t.Error("mirror should hold user 11")
	}
}

func TestAppendHistory_BothRepresentations(t *testing.T) {
	tl := newTestLedger(t)
	e, err := tl.AppendHistory(HistoryEntry{UserID: 3, Mode: "Анонимное", Content: "hello"})
	if err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if e.CreatedAt != "2025-03-01 12:30:00 UTC" {
		t.Errorf("CreatedAt = %q, want stamped from clock", e.CreatedAt)
	}
	if e.Handle != NoHandle {
		t.Errorf("Handle = %q, want %q", e.Handle, NoHandle)
	}

	n, _ := tl.CountHistory(3)
	if n != 1 {
		t.Errorf("CountHistory = %d, want 1", n)
	}
	flatN, _ := tl.flat.CountHistory(3)
	if flatN != 1 {
		t.Errorf("flat CountHistory = %d, want 1", flatN)
	}

	data, err := os.ReadFile(filepath.Join(tl.dir, HistoryFile))
	if err != nil {
		t.Fatal(err)
	}
	want := "3 | — | Анонимное | hello | 2025-03-01 12:30:00 UTC\n"
	if string(data) != want {
		t.Errorf("history file = %q, want %q", data, want)
	}
}

func TestReconcile_RebuildsMirrorFromFlatLogs(t *testing.T) {
	tl := newTestLedger(t)

	writeFile(t, tl.dir, UsersFile, "20\n10\n10\nnot-a-number\n")
	writeFile(t, tl.dir, BalanceFile, "10 5.0\n30 2.5\n10 7\ngarbage\n")
	writeFile(t, tl.dir, HistoryFile,
		"10 | @ann | Анонимное | first | 2025-01-01 00:00:00 UTC\n"+
			"40 | — | Не анонимное | a | b | 2025-01-02 00:00:00 UTC\n"+
			"short | line\n")

	// Stale mirror content must disappear.
	if err := tl.mirror.SetBalance(99, 1000); err != nil {
		t.Fatal(err)
	}

	counts, err := tl.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	want := Counts{Users: 4, Balances: 2, History: 2}
	if counts != want {
		t.Errorf("Reconcile counts = %+v, want %+v", counts, want)
	}

	if ok, _ := tl.mirror.HasUser(99); ok {
		t.Error("stale mirror user 99 should be gone")
	}
	if got, _ := tl.Balance(10); got != 7 {
		t.Errorf("Balance(10) = %v, want last flat value 7", got)
	}

	flatSnap, err := tl.flat.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	mirrorSnap, err := tl.mirror.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(flatSnap, mirrorSnap) {
		t.Errorf("representations differ after reconcile:\nflat   %+v\nmirror %+v", flatSnap, mirrorSnap)
	}

	assertFile(t, tl.dir, UsersFile, "10\n20\n30\n40\n")
	assertFile(t, tl.dir, BalanceFile, "10 7.0\n30 2.5\n")
	assertFile(t, tl.dir, HistoryFile,
		"10 | @ann | Анонимное | first | 2025-01-01 00:00:00 UTC\n"+
			"40 | — | Не анонимное | a \\| b | 2025-01-02 00:00:00 UTC\n")
}

func TestReconcile_Idempotent(t *testing.T) {
	tl := newTestLedger(t)
	tl.RegisterUser(1)
	tl.Credit(1, 16)
	tl.AppendHistory(HistoryEntry{UserID: 1, Handle: "@a", Mode: "Анонимное", Content: "line one\nМедиа: media/photo_1.jpg"})

	if _, err := tl.Reconcile(); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	before := readAll(t, tl.dir)
	if _, err := tl.Reconcile(); err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	after := readAll(t, tl.dir)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("second reconcile changed flat logs:\nbefore %q\nafter  %q", before, after)
	}

	snap, _ := tl.mirror.Snapshot()
	if snap.History[0].Content != "line one\nМедиа: media/photo_1.jpg" {
		t.Errorf("multi-line content = %q, not preserved", snap.History[0].Content)
	}
}

func TestStatsAndUsers(t *testing.T) {
	tl := newTestLedger(t)
	tl.RegisterUser(2)
	tl.RegisterUser(1)
	tl.Credit(1, 1)
	tl.AppendHistory(HistoryEntry{UserID: 2, Mode: "Анонимное", Content: "x"})

	users, err := tl.Users()
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if !reflect.DeepEqual(users, []int64{1, 2}) {
		t.Errorf("Users = %v, want [1 2]", users)
	}
	stats, err := tl.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats != (Counts{Users: 2, Balances: 1, History: 1}) {
		t.Errorf("Stats = %+v", stats)
	}
}

// failingBackend wraps a Backend and fails selected writes.
type failingBackend struct {
	Backend
	failUser    bool
	failBalance bool
	failHistory bool
}

func (f *failingBackend) AddUser(userID int64) error {
	if f.failUser {
		return errors.New("disk full")
	}
	return f.Backend.AddUser(userID)
}

func (f *failingBackend) SetBalance(userID int64, amount float64) error {
	if f.failBalance {
		return errors.New("disk full")
	}
	return f.Backend.SetBalance(userID, amount)
}

func (f *failingBackend) AppendHistory(e HistoryEntry) error {
	if f.failHistory {
		return errors.New("disk full")
	}
	return f.Backend.AppendHistory(e)
}

func snapshot(t *testing.T, b Backend) Snapshot {
	t.Helper()
	snap, err := b.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func TestWriteFailure_LeavesBothRepresentationsUnchanged(t *testing.T) {
	flat, _ := NewFileBackend(t.TempDir())
	mirror, _ := NewSQLBackend(openTestDB(t))
	fb := &failingBackend{Backend: flat}
	l, _ := New(Opts{Flat: fb, Mirror: mirror})

	if err := l.SetBalance(7, 350); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if _, err := l.AppendHistory(HistoryEntry{UserID: 7, Mode: "m", Content: "first"}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	mirrorBefore := snapshot(t, mirror)
	flatBefore := snapshot(t, flat)

	fb.failBalance, fb.failHistory = true, true

	if err := l.SetBalance(7, 5); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("SetBalance error = %v, want ErrWriteFailed", err)
	}
	if _, err := l.Credit(7, 15); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Credit error = %v, want ErrWriteFailed", err)
	}
	if _, err := l.Drain(7); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Drain error = %v, want ErrWriteFailed", err)
	}
	if err := l.SetBalance(8, 1); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("SetBalance(new user) error = %v, want ErrWriteFailed", err)
	}
	if _, err := l.AppendHistory(HistoryEntry{UserID: 7, Mode: "m", Content: "second"}); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("AppendHistory error = %v, want ErrWriteFailed", err)
	}
	if _, err := l.AppendHistory(HistoryEntry{UserID: 9, Mode: "m", Content: "new"}); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("AppendHistory(new user) error = %v, want ErrWriteFailed", err)
	}

	if bal, _ := l.Balance(7); bal != 350 {
		t.Errorf("Balance(7) = %v, want 350", bal)
	}
	if bal, _ := l.Balance(8); bal != 0 {
		t.Errorf("Balance(8) = %v, want 0", bal)
	}
	if n, _ := l.CountHistory(7); n != 1 {
		t.Errorf("CountHistory(7) = %d, want 1", n)
	}
	if got := snapshot(t, mirror); !reflect.DeepEqual(got, mirrorBefore) {
		t.Errorf("mirror changed by failed writes:\n got %+v\nwant %+v", got, mirrorBefore)
	}
	if got := snapshot(t, flat); !reflect.DeepEqual(got, flatBefore) {
		t.Errorf("flat logs changed by failed writes:\n got %+v\nwant %+v", got, flatBefore)
	}

	fb.failBalance, fb.failHistory = false, false
	if _, err := l.Reconcile(); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if bal, _ := l.Balance(7); bal != 350 {
		t.Errorf("Balance(7) after reconcile = %v, want 350", bal)
	}
}

func TestRegisterUser_MirrorFailureRollsBackFlat(t *testing.T) {
	flat, _ := NewFileBackend(t.TempDir())
	sqlMirror, _ := NewSQLBackend(openTestDB(t))
	mirror := &failingBackend{Backend: sqlMirror, failUser: true}
	l, _ := New(Opts{Flat: flat, Mirror: mirror})

	if _, err := l.RegisterUser(11); !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("RegisterUser error = %v, want ErrWriteFailed", err)
	}
	if ok, _ := flat.HasUser(11); ok {
		t.Error("flat user log should not keep a user the mirror rejected")
	}

	mirror.failUser = false
	isNew, err := l.RegisterUser(11)
	if err != nil {
		t.Fatalf("RegisterUser retry: %v", err)
	}
	if !isNew {
		t.Error("retry after a failed registration should still report a new user")
	}
}

func TestBackends_RemoveOperations(t *testing.T) {
	flat, _ := NewFileBackend(t.TempDir())
	mirror, _ := NewSQLBackend(openTestDB(t))
	for name, b := range map[string]Backend{"flat": flat, "sql": mirror} {
		t.Run(name, func(t *testing.T) {
			for _, id := range []int64{1, 2} {
				if err := b.AddUser(id); err != nil {
					t.Fatal(err)
				}
				if err := b.SetBalance(id, float64(id)); err != nil {
					t.Fatal(err)
				}
			}
			for _, c := range []string{"a", "b"} {
				if err := b.AppendHistory(HistoryEntry{UserID: 1, Handle: NoHandle, Mode: "m", Content: c, CreatedAt: "t"}); err != nil {
					t.Fatal(err)
				}
			}
			if err := b.AppendHistory(HistoryEntry{UserID: 2, Handle: NoHandle, Mode: "m", Content: "z", CreatedAt: "t"}); err != nil {
				t.Fatal(err)
			}

			if err := b.RemoveLastHistory(1); err != nil {
				t.Fatalf("RemoveLastHistory: %v", err)
			}
			if err := b.RemoveBalance(2); err != nil {
				t.Fatalf("RemoveBalance: %v", err)
			}
			if err := b.RemoveUser(2); err != nil {
				t.Fatalf("RemoveUser: %v", err)
			}

			snap := snapshot(t, b)
			if !reflect.DeepEqual(snap.Users, []int64{1}) {
				t.Errorf("Users = %v, want [1]", snap.Users)
			}
			if !reflect.DeepEqual(snap.Balances, []BalanceRecord{{UserID: 1, Amount: 1}}) {
				t.Errorf("Balances = %+v", snap.Balances)
			}
			var contents []string
			for _, e := range snap.History {
				contents = append(contents, e.Content)
			}
			if !reflect.DeepEqual(contents, []string{"a", "z"}) {
				t.Errorf("History contents = %v, want [a z]", contents)
			}
			if err := b.RemoveLastHistory(42); err != nil {
				t.Errorf("RemoveLastHistory(unknown) = %v, want nil", err)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertFile(t *testing.T, dir, name, want string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != want {
		t.Errorf("%s = %q, want %q", name, data, want)
	}
}

func readAll(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, name := range []string{UsersFile, BalanceFile, HistoryFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		out[name] = string(data)
	}
	return out
}
