package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLockUnlock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "meta.json.lock")
	lock := NewFileLock(lockPath)

	if err := lock.Lock(context.Background()); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}
}

func TestLockTimesOutWhileHeld(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "meta.json.lock")

	holder := NewFileLock(lockPath)
	if err := holder.Lock(context.Background()); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer holder.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := NewFileLock(lockPath).Lock(ctx)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("Expected ErrLockTimeout, got %v", err)
	}
}

func TestTryLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "meta.json.lock")

	first := NewFileLock(lockPath)
	acquired, err := first.TryLock()
	if err != nil || !acquired {
		t.Fatalf("First TryLock should succeed, got acquired=%v err=%v", acquired, err)
	}

	acquired, err = NewFileLock(lockPath).TryLock()
	if err != nil {
		t.Fatalf("Second TryLock returned error: %v", err)
	}
	if acquired {
		t.Error("Second TryLock should not acquire a held lock")
	}

	first.Unlock()
}

func TestAtomicWrite(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		data    string
	}{
		{name: "new file", data: `{"session": {}}`},
		{name: "overwrite", initial: "old content that is longer", data: "new"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "meta.json")
			if tt.initial != "" {
				os.WriteFile(path, []byte(tt.initial), 0600)
			}

			if err := AtomicWrite(path, []byte(tt.data)); err != nil {
				t.Fatalf("AtomicWrite failed: %v", err)
			}

			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("Failed to read file: %v", err)
			}
			if string(got) != tt.data {
				t.Errorf("Expected %q, got %q", tt.data, string(got))
			}

			info, _ := os.Stat(path)
			if info.Mode().Perm() != 0644 {
				t.Errorf("Expected permissions 0644, got %o", info.Mode().Perm())
			}

			entries, _ := os.ReadDir(dir)
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), ".tmp-") {
					t.Errorf("Temp file left behind: %s", e.Name())
				}
			}
		})
	}
}

func TestAtomicWriteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".testmeta", "nested", "meta.json")

	if err := AtomicWrite(path, []byte("{}")); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected file to exist: %v", err)
	}
}

func TestAtomicWriteFailsOnDirectoryTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "meta.json")
	os.MkdirAll(filepath.Join(target, "child"), 0755)

	if err := AtomicWrite(target, []byte("{}")); err == nil {
		t.Fatal("Expected error when target is a non-empty directory")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("Temp file left behind after failure: %s", e.Name())
		}
	}
}

func TestLockAndWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "meta.json")

	if err := LockAndWrite(context.Background(), path, []byte(`{"tests": {}}`)); err != nil {
		t.Fatalf("LockAndWrite failed: %v", err)
	}

	data, err := ReadLocked(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadLocked failed: %v", err)
	}
	if string(data) != `{"tests": {}}` {
		t.Errorf("Unexpected content %q", string(data))
	}

	if _, err := os.Stat(LockPath(path)); err != nil {
		t.Errorf("Expected lock file next to target: %v", err)
	}
}

func TestConcurrentLockAndWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf(`{"writer": %d}`, n))
			if err := LockAndWrite(context.Background(), path, payload); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("LockAndWrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"writer": `) {
		t.Errorf("File holds a torn write: %q", string(data))
	}
}

func TestReadLockedMissingFile(t *testing.T) {
	_, err := ReadLocked(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}
