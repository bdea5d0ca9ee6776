package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/config"
	"github.com/zulandar/livedesk/internal/models"
)

// writeConfig points a config at a fresh sqlite file under a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "livedesk.yaml")
	yaml := "store:\n  driver: sqlite\n  path: " + filepath.Join(dir, "desk.db") + "\nlog:\n  level: error\n  format: json\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// mustRun runs a command that is expected to succeed.
func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, stdin, args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func assertContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}

func createdID(t *testing.T, out string) string {
	t.Helper()
	fields := strings.Fields(out)
	if len(fields) < 3 || fields[0] != "Created" {
		t.Fatalf("unexpected create output: %s", out)
	}
	return fields[2]
}

func createAda(t *testing.T, cfg string) string {
	t.Helper()
	return createdID(t, mustRun(t, "", "session", "create", "-c", cfg, "--name", "Ada", "--contact", "ada@example.com"))
}

func TestDBInitCmd_SQLite(t *testing.T) {
	cfg := writeConfig(t)

	out := mustRun(t, "", "db", "init", "-c", cfg)
	assertContains(t, out, "Store sqlite", "Migrated 2 tables")
}

func TestDBInitCmd_MissingConfig(t *testing.T) {
	_, err := run(t, "", "db", "init", "-c", "/nonexistent/livedesk.yaml")
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("err = %v, want load config failure", err)
	}
}

func TestDBResetCmd_Aborted(t *testing.T) {
	cfg := writeConfig(t)

	out := mustRun(t, "no\n", "db", "reset", "-c", cfg)
	assertContains(t, out, "WARNING", "Aborted.")
}

func TestDBResetCmd_ConfirmedClearsSessions(t *testing.T) {
	cfg := writeConfig(t)
	createAda(t, cfg)

	out := mustRun(t, "yes\n", "db", "reset", "-c", cfg)
	assertContains(t, out, "Reset sqlite")

	out = mustRun(t, "", "session", "list", "-c", cfg)
	assertContains(t, out, "No sessions.")
}

func TestDBResetCmd_YesSkipsPrompt(t *testing.T) {
	cfg := writeConfig(t)

	out := mustRun(t, "", "db", "reset", "-y", "-c", cfg)
	if strings.Contains(out, "WARNING") {
		t.Errorf("-y still prompted: %s", out)
	}
	assertContains(t, out, "Reset sqlite")
}

func TestSessionCreateCmd_RequiresFlags(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "", "session", "create", "-c", cfg, "--name", "Ada")
	if err == nil || !strings.Contains(err.Error(), "contact") {
		t.Errorf("err = %v, want missing contact", err)
	}
}

func TestSessionCreateCmd_BlankName(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "", "session", "create", "-c", cfg, "--name", "   ", "--contact", "ada@example.com")
	if !errors.Is(err, chat.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestSessionLifecycleCommands(t *testing.T) {
	cfg := writeConfig(t)

	out := mustRun(t, "", "session", "create", "-c", cfg, "--name", "Ada", "--contact", "ada@example.com")
	assertContains(t, out, "(waiting)")
	id := createdID(t, out)

	out = mustRun(t, "", "session", "list", "-c", cfg)
	assertContains(t, out, "STATUS", id, "waiting")

	out = mustRun(t, "", "session", "activate", id, "-c", cfg, "--agent", "agent-7")
	assertContains(t, out, "active")

	out = mustRun(t, "", "session", "list", "-c", cfg)
	assertContains(t, out, "agent-7")

	out = mustRun(t, "", "session", "close", id, "-c", cfg)
	assertContains(t, out, "closed")

	// Closing twice is a no-op.
	mustRun(t, "", "session", "close", id, "-c", cfg)

	// A closed session cannot be reactivated.
	if _, err := run(t, "", "session", "activate", id, "-c", cfg); err == nil {
		t.Error("expected error activating a closed session")
	}
}

func TestSessionCloseCmd_UnknownSession(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "", "session", "close", "missing", "-c", cfg)
	if !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMessageSendCmd(t *testing.T) {
	cfg := writeConfig(t)
	id := createAda(t, cfg)

	out := mustRun(t, "", "message", "send", id, "hello", "-c", cfg)
	assertContains(t, out, "seq 1")

	out = mustRun(t, "", "message", "send", id, "hi Ada", "-c", cfg, "--role", "agent", "--agent", "agent-1")
	assertContains(t, out, "seq 2")

	// First agent message activates the session.
	out = mustRun(t, "", "session", "list", "-c", cfg)
	assertContains(t, out, "active")
}

func TestMessageSendCmd_CorrelationIsIdempotent(t *testing.T) {
	cfg := writeConfig(t)
	id := createAda(t, cfg)

	first := mustRun(t, "", "message", "send", id, "hello", "-c", cfg, "--correlation", "c-1")
	second := mustRun(t, "", "message", "send", id, "hello", "-c", cfg, "--correlation", "c-1")
	if first != second {
		t.Errorf("retry output %q differs from first %q", second, first)
	}
}

func TestMessageSendCmd_Validation(t *testing.T) {
	cfg := writeConfig(t)
	id := createAda(t, cfg)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"blank body", []string{"message", "send", id, "   ", "-c", cfg}, chat.ErrValidation},
		{"bad role", []string{"message", "send", id, "hello", "-c", cfg, "--role", "bot"}, chat.ErrValidation},
		{"unknown session", []string{"message", "send", "missing", "hello", "-c", cfg}, chat.ErrNotFound},
	}
	for _, tt := range tests {
		if _, err := run(t, "", tt.args...); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestWatchCmd_BadSince(t *testing.T) {
	cfg := writeConfig(t)

	if _, err := run(t, "", "watch", "any", "-c", cfg, "--since", "not-a-cursor"); err == nil {
		t.Error("expected error for malformed --since")
	}
}

func TestPrintWatchMessage(t *testing.T) {
	buf := new(bytes.Buffer)
	printWatchMessage(buf, models.Message{
		Seq:       3,
		Role:      models.RoleAgent,
		SenderID:  "agent-1",
		Body:      "on it",
		CreatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	})

	assertContains(t, buf.String(), "#3", "agent:agent-1", "on it")
}

func TestDescribeStore(t *testing.T) {
	tests := []struct {
		store config.StoreConfig
		want  string
	}{
		{config.StoreConfig{Driver: config.DriverSQLite, Path: "/tmp/desk.db"}, "sqlite /tmp/desk.db"},
		{config.StoreConfig{Driver: config.DriverMySQL, Host: "db", Port: 3306, Database: "livedesk"}, "mysql db:3306/livedesk"},
	}
	for _, tt := range tests {
		if got := describeStore(tt.store); got != tt.want {
			t.Errorf("describeStore(%s) = %q, want %q", tt.store.Driver, got, tt.want)
		}
	}
}

func TestLoadConfig_DefaultPathFallsBack(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("loadConfig(default): %v", err)
	}
	if cfg.Store.Driver != config.DriverSQLite {
		t.Errorf("Driver = %q, want sqlite", cfg.Store.Driver)
	}

	if _, err := loadConfig("other.yaml"); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}
