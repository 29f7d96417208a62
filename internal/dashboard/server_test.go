package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/mailslot/internal/db"
	"github.com/zulandar/mailslot/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "dash.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func seed(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	for _, v := range []any{
		&models.User{UserID: 42},
		&models.User{UserID: 7},
		&models.Balance{UserID: 42, Balance: 16},
		&models.Balance{UserID: 7, Balance: 1.5},
		&models.HistoryEntry{UserID: 42, Username: "@alice", Mode: "Анонимное", Content: "first", Timestamp: "2025-03-01 12:00:00 UTC"},
		&models.HistoryEntry{UserID: 42, Username: "@alice", Mode: "Не анонимное", Content: "second", Timestamp: "2025-03-01 12:05:00 UTC"},
		&models.HistoryEntry{UserID: 7, Username: "—", Mode: "Анонимное", Content: "third", Timestamp: "2025-03-01 12:10:00 UTC"},
		&models.Publication{ClaimKey: "sub:01", SubmitterID: 42, AdminID: 100},
	} {
		if err := gdb.Create(v).Error; err != nil {
			t.Fatalf("seed %T: %v", v, err)
		}
	}
}

func get(t *testing.T, gdb *gorm.DB, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	newRouter(gdb).ServeHTTP(rec, req)
	return rec
}

func TestStart_NilDB(t *testing.T) {
	err := Start(context.Background(), StartOpts{DB: nil})
	if err == nil {
		t.Fatal("expected error for nil db")
	}
	if !strings.Contains(err.Error(), "db is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db is required")
	}
}

func TestHealthz(t *testing.T) {
	rec := get(t, testDB(t), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStats(t *testing.T) {
	gdb := testDB(t)
	seed(t, gdb)

	rec := get(t, gdb, "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := Stats{Users: 2, Balances: 2, History: 3, Publications: 1, TotalBalance: 17.5}
	if got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
}

func TestStats_EmptyDB(t *testing.T) {
	got, err := LedgerStats(testDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if got != (Stats{}) {
		t.Errorf("stats = %+v, want zero", got)
	}
}

func TestUser(t *testing.T) {
	gdb := testDB(t)
	seed(t, gdb)

	rec := get(t, gdb, "/api/users/42")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got UserSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := UserSummary{UserID: 42, Registered: true, Balance: 16, Posts: 2, Publications: 1}
	if got != want {
		t.Errorf("user = %+v, want %+v", got, want)
	}
}

func TestUser_Errors(t *testing.T) {
	gdb := testDB(t)
	seed(t, gdb)

	tests := []struct {
		path string
		code int
	}{
		{"/api/users/abc", http.StatusBadRequest},
		{"/api/users/0", http.StatusBadRequest},
		{"/api/users/999", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := get(t, gdb, tt.path); rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestHistory_NewestFirstWithLimit(t *testing.T) {
	gdb := testDB(t)
	seed(t, gdb)

	rec := get(t, gdb, "/api/history?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Entries []HistoryRow `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(body.Entries))
	}
	if body.Entries[0].Content != "third" || body.Entries[1].Content != "second" {
		t.Errorf("order = %q, %q", body.Entries[0].Content, body.Entries[1].Content)
	}
}

func TestHistory_InvalidLimit(t *testing.T) {
	if rec := get(t, testDB(t), "/api/history?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	if rec := get(t, testDB(t), "/nonexistent"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
