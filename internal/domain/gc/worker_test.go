package gc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"mediastore/internal/domain/ingest"
	"mediastore/internal/domain/ledger"
	"mediastore/internal/domain/registry"
)

var testAllowed = map[string]bool{"text/plain": true}

func setupStore(t *testing.T) (*ingest.Service, registry.Repository, ledger.Repository, *Worker, string) {
	t.Helper()
	dsn := fmt.Sprintf("file:gc_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := db.AutoMigrate(&registry.HashRecord{}, &ledger.OwnershipRecord{}); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}

	root := t.TempDir()
	reg := registry.NewRepository(db)
	led := ledger.NewRepository(db)
	ing := ingest.NewService(reg, led, root, 1<<20, testAllowed)
	worker := NewWorker(reg, root, 1, time.Hour)
	return ing, reg, led, worker, root
}

func TestUnbindDefersPhysicalDelete(t *testing.T) {
	ing, reg, led, worker, root := setupStore(t)
	ctx := context.Background()

	own, err := ing.Ingest(ctx, 1, "note.txt", "", strings.NewReader("gc me"))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	storagePath := registry.StoragePath(own.Hash)

	hash, newCount, err := led.Unbind(ctx, own.ID, 1)
	if err != nil {
		t.Fatalf("Unbind returned error: %v", err)
	}
	if hash != own.Hash || newCount != 0 {
		t.Fatalf("expected hash %s count 0, got %s count %d", own.Hash, hash, newCount)
	}

	// Deletion is asynchronous: the row and file survive the unbind itself.
	if _, err := reg.Lookup(ctx, own.Hash); err != nil {
		t.Fatalf("registry row gone before GC ran: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, storagePath)); err != nil {
		t.Fatalf("file gone before GC ran: %v", err)
	}

	worker.Sweep(ctx)

	if _, err := reg.Lookup(ctx, own.Hash); err != registry.ErrHashNotFound {
		t.Fatalf("expected row reclaimed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, storagePath)); !os.IsNotExist(err) {
		t.Fatalf("expected file reclaimed, got %v", err)
	}
}

func TestSweepToleratesReingestRace(t *testing.T) {
	ing, reg, led, worker, root := setupStore(t)
	ctx := context.Background()

	own, err := ing.Ingest(ctx, 1, "note.txt", "", strings.NewReader("keep me"))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if _, _, err := led.Unbind(ctx, own.ID, 1); err != nil {
		t.Fatalf("Unbind returned error: %v", err)
	}

	// A new owner binds the same content before the worker runs.
	again, err := ing.Ingest(ctx, 2, "copy.txt", "", strings.NewReader("keep me"))
	if err != nil {
		t.Fatalf("re-Ingest returned error: %v", err)
	}
	if again.Hash != own.Hash {
		t.Fatalf("re-ingest changed the hash: %s vs %s", again.Hash, own.Hash)
	}

	worker.Sweep(ctx)

	rec, err := reg.Lookup(ctx, own.Hash)
	if err != nil {
		t.Fatalf("expected record to survive the sweep: %v", err)
	}
	if rec.ReferenceCount != 1 {
		t.Fatalf("expected refcount 1, got %d", rec.ReferenceCount)
	}
	if _, err := os.Stat(filepath.Join(root, rec.StoragePath)); err != nil {
		t.Fatalf("expected file to survive the sweep: %v", err)
	}
}

func TestUnbindRequiresOwnership(t *testing.T) {
	ing, _, led, _, _ := setupStore(t)
	ctx := context.Background()

	own, err := ing.Ingest(ctx, 1, "note.txt", "", strings.NewReader("mine"))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if _, _, err := led.Unbind(ctx, own.ID, 2); err != ledger.ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, _, err := led.Unbind(ctx, own.ID+100, 1); err != ledger.ErrOwnershipNotFound {
		t.Fatalf("expected ErrOwnershipNotFound, got %v", err)
	}
}

func TestEnqueueProcessesTask(t *testing.T) {
	ing, reg, led, worker, _ := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	own, err := ing.Ingest(ctx, 1, "note.txt", "", strings.NewReader("queue me"))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if _, _, err := led.Unbind(ctx, own.ID, 1); err != nil {
		t.Fatalf("Unbind returned error: %v", err)
	}

	worker.Start(ctx)
	worker.Enqueue(Task{Hash: own.Hash, StoragePath: registry.StoragePath(own.Hash)})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := reg.Lookup(ctx, own.Hash); err == registry.ErrHashNotFound {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("worker never reclaimed the enqueued hash")
}
