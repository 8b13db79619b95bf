package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireInstanceLock(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireInstanceLock(dir, LockOptions{})
	if err != nil {
		t.Fatalf("AcquireInstanceLock() error = %v", err)
	}
	defer lock.Release()

	// The same live process holds the lock, so even with takeover enabled a
	// second acquire must refuse.
	if _, err := AcquireInstanceLock(dir, LockOptions{TakeoverEnabled: true}); err == nil {
		t.Fatalf("second acquire succeeded while lock held")
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireInstanceLock(dir, LockOptions{})
	if err != nil {
		t.Fatalf("AcquireInstanceLock() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	second, err := AcquireInstanceLock(dir, LockOptions{})
	if err != nil {
		t.Fatalf("reacquire after release error = %v", err)
	}
	_ = second.Release()
}

func TestTakeoverDeadOwner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".instance.lock")
	// Max pid on Linux defaults to a value far below this, so the owner can
	// never be alive.
	payload := "pid=99999999\nstarted_at=" + time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	lock, err := AcquireInstanceLock(dir, LockOptions{TakeoverEnabled: true})
	if err != nil {
		t.Fatalf("takeover of dead owner failed: %v", err)
	}
	_ = lock.Release()
}

func TestNoTakeoverWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".instance.lock")
	if err := os.WriteFile(path, []byte("pid=99999999\n"), 0o644); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	if _, err := AcquireInstanceLock(dir, LockOptions{}); err == nil {
		t.Fatalf("acquire succeeded over existing lock without takeover")
	}
}

func TestTakeoverAgedPidlessLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".instance.lock")
	started := time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)
	if err := os.WriteFile(path, []byte("started_at="+started+"\n"), 0o644); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	lock, err := AcquireInstanceLock(dir, LockOptions{TakeoverEnabled: true, StaleAfter: time.Hour})
	if err != nil {
		t.Fatalf("takeover of aged pidless lock failed: %v", err)
	}
	_ = lock.Release()
}

func TestNoTakeoverFreshPidlessLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".instance.lock")
	started := time.Now().UTC().Format(time.RFC3339)
	if err := os.WriteFile(path, []byte("started_at="+started+"\n"), 0o644); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	if _, err := AcquireInstanceLock(dir, LockOptions{TakeoverEnabled: true, StaleAfter: time.Hour}); err == nil {
		t.Fatalf("acquire succeeded over fresh pidless lock")
	}
}

func TestParseLockMeta(t *testing.T) {
	meta, err := parseLockMeta([]byte("pid=123\nstarted_at=2026-01-02T03:04:05Z\njunk line\n"))
	if err != nil {
		t.Fatalf("parseLockMeta() error = %v", err)
	}
	if meta.pid != 123 {
		t.Fatalf("pid = %d, want 123", meta.pid)
	}
	if meta.startedAt.IsZero() {
		t.Fatalf("startedAt not parsed")
	}

	meta, err = parseLockMeta([]byte("pid=garbage\n"))
	if err != nil {
		t.Fatalf("parseLockMeta(garbage pid) error = %v", err)
	}
	if meta.pid != 0 {
		t.Fatalf("pid = %d, want 0 for unparseable pid", meta.pid)
	}
}

func TestNilLockRelease(t *testing.T) {
	var lock *InstanceLock
	if err := lock.Release(); err != nil {
		t.Fatalf("nil Release() error = %v", err)
	}
}
