package relay

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/zulandar/mailslot/internal/db"
	"github.com/zulandar/mailslot/internal/ledger"
	"github.com/zulandar/mailslot/internal/telegraph"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	adminA int64 = 100
	adminB int64 = 200
	author int64 = 42
)

type fixture struct {
	ctx     context.Context
	adapter *telegraph.MockAdapter
	gdb     *gorm.DB
	ledger  *ledger.Ledger
	claims  *Claims
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(dir, "relay.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	flat, err := ledger.NewFileBackend(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	mirror, err := ledger.NewSQLBackend(gdb)
	if err != nil {
		t.Fatal(err)
	}
	l, err := ledger.New(ledger.Opts{Flat: flat, Mirror: mirror})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := NewClaims(gdb)
	if err != nil {
		t.Fatal(err)
	}
	a := telegraph.NewMockAdapter()
	ctx := context.Background()
	if err := a.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	return &fixture{ctx: ctx, adapter: a, gdb: gdb, ledger: l, claims: claims, dir: dir}
}
