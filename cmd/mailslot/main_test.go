package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/zulandar/mailslot/internal/config"
)

func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeConfig writes a minimal sqlite-backed config into a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`telegram:
  token: "123:abc"
admins:
  primary: 100
channel:
  id: "@mailslot_channel"
storage:
  data_dir: %q
  media_dir: %q
`, filepath.Join(dir, "data"), filepath.Join(dir, "media"))
	path := filepath.Join(dir, "mailslot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := execCmd(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "mailslot dev") {
		t.Errorf("expected output to contain 'mailslot dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out, err := execCmd(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "mailslot 1.0.0 (commit: abc123, built: 2026-01-01)") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := execCmd(t, "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	for _, sub := range []string{"run", "sync", "balance", "db", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help output to list %q, got: %s", sub, out)
		}
	}
}

func TestSubcommandsHaveConfigFlag(t *testing.T) {
	root := newRootCmd()
	var check func(c *cobra.Command)
	check = func(c *cobra.Command) {
		if c.RunE != nil {
			f := c.Flags().Lookup("config")
			if f == nil {
				t.Errorf("%s: missing --config flag", c.CommandPath())
			} else if f.DefValue != defaultConfigPath || f.Shorthand != "c" {
				t.Errorf("%s: --config default=%q shorthand=%q", c.CommandPath(), f.DefValue, f.Shorthand)
			}
		}
		for _, sub := range c.Commands() {
			check(sub)
		}
	}
	check(root)
}

func TestMissingConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	cases := [][]string{
		{"run", "-c", missing},
		{"sync", "-c", missing},
		{"db", "migrate", "-c", missing},
		{"balance", "get", "42", "-c", missing},
	}
	for _, args := range cases {
		t.Run(strings.Join(args[:len(args)-2], " "), func(t *testing.T) {
			_, err := execCmd(t, args...)
			if err == nil {
				t.Fatal("expected error for missing config")
			}
			if !strings.Contains(err.Error(), "load config") {
				t.Errorf("error = %v, want load config failure", err)
			}
		})
	}
}

func TestBalanceArgsValidation(t *testing.T) {
	cfg := writeConfig(t)
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"balance", "get", "abc", "-c", cfg}, "invalid user id"},
		{[]string{"balance", "get", "0", "-c", cfg}, "invalid user id"},
		{[]string{"balance", "set", "42", "lots", "-c", cfg}, "invalid amount"},
	}
	for _, tc := range cases {
		_, err := execCmd(t, tc.args...)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%v: error = %v, want %q", tc.args, err, tc.want)
		}
	}
}

func TestDBMigrate(t *testing.T) {
	cfg := writeConfig(t)
	out, err := execCmd(t, "db", "migrate", "-c", cfg)
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "(sqlite)") {
		t.Errorf("output = %q", out)
	}
}

func TestBalanceSetGetAndSync(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execCmd(t, "balance", "set", "42", "12.5", "-c", cfg)
	if err != nil {
		t.Fatalf("balance set: %v", err)
	}
	if !strings.Contains(out, "42: balance set to 12.5") {
		t.Errorf("set output = %q", out)
	}

	out, err = execCmd(t, "balance", "get", "42", "-c", cfg)
	if err != nil {
		t.Fatalf("balance get: %v", err)
	}
	if strings.TrimSpace(out) != "42: 12.5" {
		t.Errorf("get output = %q, want %q", out, "42: 12.5")
	}

	out, err = execCmd(t, "sync", "-c", cfg)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !strings.Contains(out, "Mirror before sync: 1 users, 1 balances, 0 history entries") {
		t.Errorf("sync output missing mirror counts: %q", out)
	}
	if !strings.Contains(out, "Synced: 1 users, 1 balances, 0 history entries") {
		t.Errorf("sync output = %q", out)
	}

	// The flat log survives a sync and remains the source of the balance.
	out, err = execCmd(t, "balance", "get", "42", "-c", cfg)
	if err != nil {
		t.Fatalf("balance get after sync: %v", err)
	}
	if strings.TrimSpace(out) != "42: 12.5" {
		t.Errorf("get after sync = %q", out)
	}
}

func TestCreateAlertSink(t *testing.T) {
	base := `telegram: {token: "123:abc"}
admins: {primary: 100}
channel: {id: "@mailslot_channel"}
`
	cases := []struct {
		name   string
		alerts string
		want   string
	}{
		{"none", "", "alert.Nop"},
		{"slack", "alerts: {platform: slack, channel: C1, slack: {bot_token: xoxb-1}}\n", "*slack.Sink"},
		{"discord", "alerts: {platform: discord, channel: \"42\", discord: {bot_token: tok}}\n", "*discord.Sink"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(base + tc.alerts))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			sink, err := createAlertSink(cfg)
			if err != nil {
				t.Fatalf("createAlertSink: %v", err)
			}
			if got := fmt.Sprintf("%T", sink); got != tc.want {
				t.Errorf("sink = %s, want %s", got, tc.want)
			}
		})
	}
}
