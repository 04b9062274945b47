package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// FileOption adjusts a fixture written by WriteFile.
type FileOption func(*fileFixture)

type fileFixture struct {
	modTime time.Time
}

// ModifiedAgo backdates the fixture's modification time. Staging holds
// files younger than min_file_age_seconds.
func ModifiedAgo(d time.Duration) FileOption {
	return func(f *fileFixture) {
		f.modTime = time.Now().Add(-d)
	}
}

// WriteFile creates a library fixture of size bytes at path along with any
// missing parent directories, and returns path. A size <= 0 writes one byte.
func WriteFile(t testing.TB, path string, size int64, opts ...FileOption) string {
	t.Helper()

	var fixture fileFixture
	for _, opt := range opts {
		opt(&fixture)
	}
	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if !fixture.modTime.IsZero() {
		if err := os.Chtimes(path, fixture.modTime, fixture.modTime); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
	return path
}
