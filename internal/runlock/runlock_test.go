package runlock_test

import (
	"errors"
	"path/filepath"
	"testing"

	"agentq/internal/runlock"
)

func TestTryAcquireAndRelease(t *testing.T) {
	lock := runlock.New(filepath.Join(t.TempDir(), "run.lock"))

	handle, err := lock.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if err := handle.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// Reacquire after release.
	handle, err = lock.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire after release failed: %v", err)
	}
	_ = handle.Release()
}

func TestSecondAcquireReturnsAlreadyHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	first := runlock.New(path)
	second := runlock.New(path)

	handle, err := first.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	defer handle.Release()

	if _, err := second.TryAcquire(); !errors.Is(err, runlock.ErrAlreadyHeld) {
		t.Fatalf("expected ErrAlreadyHeld, got %v", err)
	}
}

func TestIsHeld(t *testing.T) {
	lock := runlock.New(filepath.Join(t.TempDir(), "run.lock"))

	if lock.IsHeld() {
		t.Fatal("expected lock to be free before any acquire")
	}

	handle, err := lock.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if !lock.IsHeld() {
		t.Fatal("expected lock to report held while a handle exists")
	}

	if err := handle.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if lock.IsHeld() {
		t.Fatal("expected lock to be free after release")
	}
}
