package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Flat log file names inside the data directory.
const (
	UsersFile   = "users.txt"
	BalanceFile = "balance.txt"
	HistoryFile = "history.txt"
)

// FileBackend stores the ledger as three line-oriented text logs. Every
// rewrite goes to a temporary file that is renamed over the original, so a
// reader of the directory sees either the old or the new file.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a FileBackend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("ledger: file backend: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: file backend: create %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) path(name string) string { return filepath.Join(f.dir, name) }

// HasUser reports whether the user id is listed in the user log.
func (f *FileBackend) HasUser(userID int64) (bool, error) {
	ids, err := f.Users()
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// AddUser appends the user id to the user log unless already present.
func (f *FileBackend) AddUser(userID int64) error {
	exists, err := f.HasUser(userID)
	if err != nil || exists {
		return err
	}
	lines, err := readLines(f.path(UsersFile))
	if err != nil {
		return err
	}
	return writeLines(f.path(UsersFile), append(lines, strconv.FormatInt(userID, 10)))
}

// Users returns the ids in the user log in file order. Malformed lines are skipped.
func (f *FileBackend) Users() ([]int64, error) {
	lines, err := readLines(f.path(UsersFile))
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Balance returns the first balance line for the user.
func (f *FileBackend) Balance(userID int64) (float64, bool, error) {
	lines, err := readLines(f.path(BalanceFile))
	if err != nil {
		return 0, false, err
	}
	for _, line := range lines {
		if b, ok := parseBalanceLine(line); ok && b.UserID == userID {
			return b.Amount, true, nil
		}
	}
	return 0, false, nil
}

// SetBalance rewrites the user's balance line in place, appending one if absent.
func (f *FileBackend) SetBalance(userID int64, amount float64) error {
	lines, err := readLines(f.path(BalanceFile))
	if err != nil {
		return err
	}
	rec := formatBalanceLine(BalanceRecord{UserID: userID, Amount: amount})
	updated := false
	prefix := strconv.FormatInt(userID, 10)
	for i, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 && fields[0] == prefix {
			lines[i] = rec
			updated = true
		}
	}
	if !updated {
		lines = append(lines, rec)
	}
	return writeLines(f.path(BalanceFile), lines)
}

// AppendHistory appends one line to the history log.
func (f *FileBackend) AppendHistory(e HistoryEntry) error {
	file, err := os.OpenFile(f.path(HistoryFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open %s: %w", HistoryFile, err)
	}
	if _, err := file.WriteString(formatHistoryLine(e) + "\n"); err != nil {
		file.Close()
		return fmt.Errorf("ledger: append %s: %w", HistoryFile, err)
	}
	return file.Close()
}

// CountHistory counts history lines belonging to the user.
func (f *FileBackend) CountHistory(userID int64) (int, error) {
	lines, err := readLines(f.path(HistoryFile))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, line := range lines {
		if e, ok := parseHistoryLine(line); ok && e.UserID == userID {
			n++
		}
	}
	return n, nil
}

// Snapshot parses all three logs. Malformed lines are skipped.
func (f *FileBackend) Snapshot() (Snapshot, error) {
	var snap Snapshot
	users, err := f.Users()
	if err != nil {
		return snap, err
	}
	snap.Users = users

	lines, err := readLines(f.path(BalanceFile))
	if err != nil {
		return snap, err
	}
	for _, line := range lines {
		if b, ok := parseBalanceLine(line); ok {
			snap.Balances = append(snap.Balances, b)
		}
	}

	lines, err = readLines(f.path(HistoryFile))
	if err != nil {
		return snap, err
	}
	for _, line := range lines {
		if e, ok := parseHistoryLine(line); ok {
			snap.History = append(snap.History, e)
		}
	}
	return snap, nil
}

// Replace rewrites all three logs from s.
func (f *FileBackend) Replace(s Snapshot) error {
	users := make([]string, len(s.Users))
	for i, id := range s.Users {
		users[i] = strconv.FormatInt(id, 10)
	}
	balances := make([]string, len(s.Balances))
	for i, b := range s.Balances {
		balances[i] = formatBalanceLine(b)
	}
	history := make([]string, len(s.History))
	for i, e := range s.History {
		history[i] = formatHistoryLine(e)
	}

	if err := writeLines(f.path(UsersFile), users); err != nil {
		return err
	}
	if err := writeLines(f.path(BalanceFile), balances); err != nil {
		return err
	}
	return writeLines(f.path(HistoryFile), history)
}

// readLines returns the non-blank, trimmed lines of path, or nothing if it
// does not exist.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	var lines []string
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", filepath.Base(path), err)
	}
	return lines, nil
}

// writeLines replaces path with lines, one per line, via a temp file rename.
func writeLines(path string, lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("ledger: write %s: %w", filepath.Base(path), err)
	}
	var body string
	if len(lines) > 0 {
		body = strings.Join(lines, "\n") + "\n"
	}
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("ledger: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("ledger: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("ledger: swap %s: %w", filepath.Base(path), err)
	}
	return nil
}

// RemoveUser drops the user id from the user log.
func (f *FileBackend) RemoveUser(userID int64) error {
	lines, err := readLines(f.path(UsersFile))
	if err != nil {
		return err
	}
	id := strconv.FormatInt(userID, 10)
	kept := lines[:0]
	for _, line := range lines {
		if line != id {
			kept = append(kept, line)
		}
	}
	return writeLines(f.path(UsersFile), kept)
}

// RemoveBalance drops the user's balance line.
func (f *FileBackend) RemoveBalance(userID int64) error {
	lines, err := readLines(f.path(BalanceFile))
	if err != nil {
		return err
	}
	prefix := strconv.FormatInt(userID, 10)
	kept := lines[:0]
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 && fields[0] == prefix {
			continue
		}
		kept = append(kept, line)
	}
	return writeLines(f.path(BalanceFile), kept)
}

// RemoveLastHistory drops the user's last line from the history log.
func (f *FileBackend) RemoveLastHistory(userID int64) error {
	lines, err := readLines(f.path(HistoryFile))
	if err != nil {
		return err
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if e, ok := parseHistoryLine(lines[i]); ok && e.UserID == userID {
			lines = append(lines[:i], lines[i+1:]...)
			return writeLines(f.path(HistoryFile), lines)
		}
	}
	return nil
}
