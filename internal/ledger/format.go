package ledger

import (
	"strconv"
	"strings"
)

// NoHandle is recorded when a user has no public handle.
const NoHandle = "—"

// FormatAmount renders a balance the way the flat balance log stores it:
// shortest round-trip form, always with a fractional part ("16.0", "0.5").
func FormatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

var fieldEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "|", `\|`)

// escapeField makes a value safe for one "|"-delimited history column.
func escapeField(s string) string {
	return fieldEscaper.Replace(s)
}

// splitFields splits a history line on unescaped "|" and unescapes each
// field. Surrounding spaces of every field are trimmed.
func splitFields(line string) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			switch line[i] {
			case 'n':
				cur.WriteByte('\n')
			default:
				cur.WriteByte(line[i])
			}
		case c == '|':
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, strings.TrimSpace(cur.String()))
	return fields
}

// formatHistoryLine renders e as "id | handle | mode | content | timestamp".
func formatHistoryLine(e HistoryEntry) string {
	handle := e.Handle
	if handle == "" {
		handle = NoHandle
	}
	return strconv.FormatInt(e.UserID, 10) + " | " + escapeField(handle) + " | " +
		escapeField(e.Mode) + " | " + escapeField(e.Content) + " | " + escapeField(e.CreatedAt)
}

// parseHistoryLine is the inverse of formatHistoryLine. Lines written by
// older versions may carry unescaped "|" inside the content; the extra
// fields are folded back into it.
func parseHistoryLine(line string) (HistoryEntry, bool) {
	parts := splitFields(line)
	if len(parts) < 5 {
		return HistoryEntry{}, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return HistoryEntry{}, false
	}
	last := len(parts) - 1
	return HistoryEntry{
		UserID:    id,
		Handle:    parts[1],
		Mode:      parts[2],
		Content:   strings.Join(parts[3:last], " | "),
		CreatedAt: parts[last],
	}, true
}

// parseBalanceLine parses "user_id amount".
func parseBalanceLine(line string) (BalanceRecord, bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return BalanceRecord{}, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return BalanceRecord{}, false
	}
	amount, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return BalanceRecord{}, false
	}
	return BalanceRecord{UserID: id, Amount: amount}, true
}

func formatBalanceLine(b BalanceRecord) string {
	return strconv.FormatInt(b.UserID, 10) + " " + FormatAmount(b.Amount)
}
