package icons

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

func TestGetOrDownloadIcon(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("fake png bytes"))
	}))
	defer srv.Close()

	cache := New(t.TempDir(), time.Second)
	path, err := cache.GetOrDownloadIcon(context.Background(), srv.URL+"/icon.png", 64, "game-1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "fake png bytes" {
		t.Errorf("Unexpected content: %q", body)
	}

	// Second call must hit the disk, not the network.
	again, err := cache.GetOrDownloadIcon(context.Background(), srv.URL+"/icon.png", 64, "game-1")
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if again != path {
		t.Errorf("Expected stable path, got %q vs %q", again, path)
	}
	if hits.Load() != 1 {
		t.Errorf("Expected 1 network hit, got %d", hits.Load())
	}
	if !cache.IsIconCached(srv.URL+"/icon.png", 64, "game-1") {
		t.Error("Expected IsIconCached to report true")
	}
}

func TestGetOrDownloadIconEmptyURL(t *testing.T) {
	cache := New(t.TempDir(), time.Second)
	if _, err := cache.GetOrDownloadIcon(context.Background(), "", 64, "g"); err == nil {
		t.Error("Expected error for empty url")
	}
}

func TestGetOrDownloadIconHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cache := New(dir, time.Second)
	if _, err := cache.GetOrDownloadIcon(context.Background(), srv.URL+"/missing.png", 64, "g"); err == nil {
		t.Fatal("Expected error for 404")
	}
	// No partial file may be left behind.
	entries, _ := os.ReadDir(filepath.Join(dir, "g"))
	if len(entries) != 0 {
		t.Errorf("Expected no files after failed download, got %d", len(entries))
	}
}

func TestGetOrCopyLocalIcon(t *testing.T) {
	src := filepath.Join(t.TempDir(), "local.png")
	if err := os.WriteFile(src, []byte("local bytes"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	cache := New(t.TempDir(), time.Second)
	path, err := cache.GetOrCopyLocalIcon(context.Background(), src, 32, "game-2")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	body, _ := os.ReadFile(path)
	if string(body) != "local bytes" {
		t.Errorf("Unexpected content: %q", body)
	}
}

func TestSizeKeysAreDistinct(t *testing.T) {
	cache := New(t.TempDir(), time.Second)
	small := cache.pathFor("http://x/icon.png", 32, "g")
	large := cache.pathFor("http://x/icon.png", 64, "g")
	if small == large {
		t.Error("Expected distinct paths per size")
	}
}

func TestRemoveScope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cache := New(dir, time.Second)
	if _, err := cache.GetOrDownloadIcon(context.Background(), srv.URL+"/a.png", 64, "gone"); err != nil {
		t.Fatalf("download: %v", err)
	}
	cache.RemoveScope("gone")
	if cache.IsIconCached(srv.URL+"/a.png", 64, "gone") {
		t.Error("Expected scope icons to be removed")
	}
}
