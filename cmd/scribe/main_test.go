package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	configPath := filepath.Join(base, "scribe.toml")
	content := fmt.Sprintf(`[paths]
incoming_dir = %q
work_dir = %q
log_dir = %q
`,
		filepath.Join(base, "incoming"),
		filepath.Join(base, "work"),
		filepath.Join(base, "logs"),
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestQueueListEmpty(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCommand(t, "--config", configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "Queue is empty") {
		t.Errorf("output = %q", out)
	}
}

func TestQueueClearReportsCount(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCommand(t, "--config", configPath, "queue", "clear")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	if !strings.Contains(out, "Removed 0 item(s)") {
		t.Errorf("output = %q", out)
	}
}

func TestQueueRetryRejectsBadID(t *testing.T) {
	configPath := writeTestConfig(t)
	if _, err := runCommand(t, "--config", configPath, "queue", "retry", "not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestQueueHealthRendersSummary(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCommand(t, "--config", configPath, "queue", "health")
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	for _, column := range []string{"TOTAL", "PENDING", "PROCESSING", "FAILED", "COMPLETED"} {
		if !strings.Contains(strings.ToUpper(out), column) {
			t.Errorf("summary missing %q:\n%s", column, out)
		}
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[telegram]") {
		t.Error("sample config missing telegram section")
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Error("overwrite without --overwrite should fail")
	}
	if _, err := runCommand(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Errorf("overwrite with flag: %v", err)
	}
}

func TestStatusReportsDaemonState(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCommand(t, "--config", configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Daemon running: no") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "FFmpeg") {
		t.Errorf("dependency table missing:\n%s", out)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(
		[]string{"A", "B"},
		[][]string{{"1"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	if !strings.Contains(out, "1") {
		t.Errorf("table = %q", out)
	}
}
