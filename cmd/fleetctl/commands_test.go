package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fleet-risk-engine/internal/auth"
	"fleet-risk-engine/internal/platform/config"
)

func testConfig() config.Config {
	return config.Config{
		LogLevel:  "error",
		JWTSecret: "cli-secret",
		Store:     config.Store{Driver: config.StoreMemory},
		Scoring:   config.DefaultScoring(),
		Scheduler: config.DefaultScheduler(),
		NATS:      config.NATS{SubjectPrefix: "fleet"},
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmdWith(func() (config.Config, error) { return testConfig(), nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRankCommand(t *testing.T) {
	out, err := run(t, "rank", "--limit", "2")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "veh-004") || !strings.Contains(lines[0], "Brake Pads critical 89%") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestInsightsCommand(t *testing.T) {
	out, err := run(t, "insights")
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	if got := len(strings.Split(strings.TrimSpace(out), "\n")); got != 5 {
		t.Fatalf("expected 5 insights, got %d:\n%s", got, out)
	}
}

func TestSweepCommand(t *testing.T) {
	out, err := run(t, "sweep")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, `"skipped_pending"`) {
		t.Fatalf("expected the pending vehicle to be skipped:\n%s", out)
	}
}

func TestExportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	if _, err := run(t, "export", "--format", "pdf", "--out", path); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("unexpected export file (%v)", err)
	}
	if _, err := run(t, "export", "--format", "csv", "--out", path); err == nil {
		t.Fatal("expected unknown format error")
	}
}

func TestSeedRequiresPostgres(t *testing.T) {
	if _, err := run(t, "seed"); err == nil || !strings.Contains(err.Error(), "postgres") {
		t.Fatalf("expected postgres requirement, got %v", err)
	}
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "token", "--role", "operator", "--subject", "ops-7")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.ParseJWT(strings.TrimSpace(out), []byte("cli-secret"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != "operator" || claims.Subject != "ops-7" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := run(t, "token", "--role", "root"); err == nil {
		t.Fatal("expected unknown role error")
	}
}
