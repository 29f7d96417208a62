package ledger

import "testing"

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{1, "1.0"},
		{16, "16.0"},
		{2.5, "2.5"},
		{350.25, "350.25"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.in); got != tt.want {
			t.Errorf("FormatAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHistoryLine_RoundTripWithSpecialCharacters(t *testing.T) {
	e := HistoryEntry{
		UserID:    42,
		Handle:    "@pipe|user",
		Mode:      "Не анонимное",
		Content:   "line one\nline | two\\end",
		CreatedAt: "2025-01-01 00:00:00 UTC",
	}
	line := formatHistoryLine(e)
	got, ok := parseHistoryLine(line)
	if !ok {
		t.Fatalf("parseHistoryLine(%q) failed", line)
	}
	if got != e {
		t.Errorf("round trip = %+v, want %+v", got, e)
	}
}

func TestParseHistoryLine_Malformed(t *testing.T) {
	for _, line := range []string{"", "1 | 2 | 3", "x | @a | m | c | ts"} {
		if _, ok := parseHistoryLine(line); ok {
			t.Errorf("parseHistoryLine(%q) should fail", line)
		}
	}
}

func TestParseBalanceLine(t *testing.T) {
	b, ok := parseBalanceLine("123 16.0")
	if !ok || b.UserID != 123 || b.Amount != 16 {
		t.Errorf("parseBalanceLine = %+v, %v", b, ok)
	}
	for _, line := range []string{"123", "abc 1.0", "1 abc"} {
		if _, ok := parseBalanceLine(line); ok {
			t.Errorf("parseBalanceLine(%q) should fail", line)
		}
	}
}
