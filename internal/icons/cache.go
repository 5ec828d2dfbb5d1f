package icons

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"achievement-sync/internal/logging"
)

// Cache stores achievement icons on disk, keyed by source URL/path and size.
// Failures degrade gracefully: callers leave the icon path unresolved instead
// of failing the game's refresh.
type Cache struct {
	dir  string
	http *http.Client
}

func New(dir string, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Cache{
		dir:  dir,
		http: &http.Client{Timeout: timeout},
	}
}

// IsIconCached reports whether an icon for source at size is already on disk.
func (c *Cache) IsIconCached(source string, size int, scopeID string) bool {
	_, err := os.Stat(c.pathFor(source, size, scopeID))
	return err == nil
}

// GetOrDownloadIcon returns the local path of the icon at url, downloading it
// on first use.
func (c *Cache) GetOrDownloadIcon(ctx context.Context, url string, size int, scopeID string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("icons: empty url")
	}
	dest := c.pathFor(url, size, scopeID)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("icons: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("icons: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("icons: download %s: HTTP %d", url, resp.StatusCode)
	}

	return dest, c.writeAtomic(dest, resp.Body)
}

// GetOrCopyLocalIcon returns the cached path for a local file, copying it in
// on first use.
func (c *Cache) GetOrCopyLocalIcon(ctx context.Context, path string, size int, scopeID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dest := c.pathFor(path, size, scopeID)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("icons: open source: %w", err)
	}
	defer src.Close()

	return dest, c.writeAtomic(dest, src)
}

// RemoveScope deletes all cached icons for a scope (e.g. a removed game).
func (c *Cache) RemoveScope(scopeID string) {
	if scopeID == "" {
		return
	}
	if err := os.RemoveAll(filepath.Join(c.dir, scopeID)); err != nil {
		logging.Debug("icons: failed to remove scope", "scope", scopeID, "error", err)
	}
}

func (c *Cache) pathFor(source string, size int, scopeID string) string {
	sum := sha1.Sum([]byte(source))
	name := fmt.Sprintf("%s_%d.img", hex.EncodeToString(sum[:]), size)
	if scopeID == "" {
		return filepath.Join(c.dir, name)
	}
	return filepath.Join(c.dir, scopeID, name)
}

// writeAtomic stages to a temp file and renames, so a cancelled download
// never leaves a truncated icon behind.
func (c *Cache) writeAtomic(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("icons: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".icon-*")
	if err != nil {
		return fmt.Errorf("icons: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("icons: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
