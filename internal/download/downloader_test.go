package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchWritesFileAndReportsProgress(t *testing.T) {
	payload := make([]byte, 20*1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "incoming", "file.bin")
	var calls int
	var lastWritten int64
	err := New(time.Minute, nil).Fetch(context.Background(), server.URL, dest, func(written, total int64) {
		calls++
		lastWritten = written
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != len(payload) {
		t.Errorf("wrote %d bytes, want %d", len(data), len(payload))
	}
	if calls < 2 {
		t.Errorf("progress called %d times, want chunked updates", calls)
	}
	if lastWritten != int64(len(payload)) {
		t.Errorf("final progress %d, want %d", lastWritten, len(payload))
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind after success")
	}
}

func TestFetchSkipsExistingFile(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("fresh"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "file.bin")
	if err := os.WriteFile(dest, []byte("already here"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := New(time.Minute, nil).Fetch(context.Background(), server.URL, dest, nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := requests.Load(); got != 0 {
		t.Errorf("made %d requests, want 0 for existing file", got)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "already here" {
		t.Errorf("existing file overwritten: %q", data)
	}
}

func TestFetchCleansUpOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		_, _ = w.Write([]byte("truncated"))
		// Hijack and drop the connection mid-body.
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, _ := hj.Hijack()
			_ = conn.Close()
		}
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "file.bin")
	err := New(time.Minute, nil).Fetch(context.Background(), server.URL, dest, nil)
	if err == nil {
		t.Fatal("expected error for truncated transfer")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("destination should not exist after failure")
	}
	if _, statErr := os.Stat(dest + ".part"); !os.IsNotExist(statErr) {
		t.Error("partial file should be removed after failure")
	}
}

func TestFetchRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "file.bin")
	if err := New(time.Minute, nil).Fetch(context.Background(), server.URL, dest, nil); err == nil {
		t.Fatal("expected error for 404")
	}
}
