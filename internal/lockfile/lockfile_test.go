package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	content, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	if want := fmt.Sprintf("pid=%d\n", os.Getpid()); string(content) != want {
		t.Errorf("lock file content = %q, want %q", content, want)
	}
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Release()

	second, err := Acquire(dir)
	if err == nil {
		second.Release()
		t.Fatal("second Acquire should fail while the lock is held")
	}
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected *HeldError, got %T", err)
	}
	if !strings.Contains(held.Owner, fmt.Sprintf("pid %d running", os.Getpid())) {
		t.Errorf("owner = %q, want the running holder", held.Owner)
	}
	if !strings.Contains(err.Error(), dir) {
		t.Errorf("error should name the lock path: %v", err)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed, stat error = %v", err)
	}

	again, err := Acquire(dir)
	if err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}
	again.Release()
}

func TestOwnerPID(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"pid=1234\n", 1234},
		{"host=a\npid=42\n", 42},
		{"pid=abc\n", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ownerPID(tt.content); got != tt.want {
			t.Errorf("ownerPID(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}
