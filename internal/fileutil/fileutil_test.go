package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q", data)
	}
}

func TestRemoveQuietIgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "gone.txt")
	_ = os.WriteFile(existing, []byte("x"), 0o644)

	RemoveQuiet(existing, filepath.Join(dir, "never-was"), "")

	if _, err := os.Stat(existing); !os.IsNotExist(err) {
		t.Error("existing file not removed")
	}
}

func TestSafeBaseName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"talk.mp4", "talk.mp4"},
		{"/tmp/evil/../talk.mp4", "talk.mp4"},
		{"my file: draft?.ogg", "my_file-_draft.ogg"},
		{"", "upload"},
		{"  ", "upload"},
	}
	for _, tc := range cases {
		if got := SafeBaseName(tc.in); got != tc.want {
			t.Errorf("SafeBaseName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
