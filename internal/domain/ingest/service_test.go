package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"mediastore/internal/domain/ledger"
	"mediastore/internal/domain/registry"
)

var testAllowed = map[string]bool{
	"text/plain": true,
	"image/png":  true,
}

func setupTestService(t *testing.T, maxSize int64) (*Service, registry.Repository, ledger.Repository, string) {
	t.Helper()
	dsn := fmt.Sprintf("file:ingest_test_%s?mode=memory&cache=shared", t.Name())
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
	return NewService(reg, led, root, maxSize, testAllowed), reg, led, root
}

func TestIngestStoresNovelContent(t *testing.T) {
	svc, reg, _, root := setupTestService(t, 1<<20)
	ctx := context.Background()

	own, err := svc.Ingest(ctx, 1, "hello.txt", "text/plain", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	sum := sha256.Sum256([]byte("hello"))
	wantHash := hex.EncodeToString(sum[:])
	if own.Hash != wantHash {
		t.Fatalf("expected hash %s, got %s", wantHash, own.Hash)
	}

	rec, err := reg.Lookup(ctx, wantHash)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if rec.ReferenceCount != 1 {
		t.Fatalf("expected refcount 1, got %d", rec.ReferenceCount)
	}
	if rec.SizeBytes != 5 {
		t.Fatalf("expected size 5, got %d", rec.SizeBytes)
	}
	if rec.MimeType != "text/plain" {
		t.Fatalf("expected text/plain, got %s", rec.MimeType)
	}

	data, err := os.ReadFile(filepath.Join(root, rec.StoragePath))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("stored bytes mismatch: %q", data)
	}

	if err := svc.Verify(ctx, wantHash); err != nil {
		t.Fatalf("Verify reported integrity fault: %v", err)
	}
}

func TestIngestDeduplicatesAcrossUsers(t *testing.T) {
	svc, reg, led, root := setupTestService(t, 1<<20)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, 1, "a.txt", "", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("first Ingest returned error: %v", err)
	}
	second, err := svc.Ingest(ctx, 2, "b.txt", "", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("second Ingest returned error: %v", err)
	}

	if first.Hash != second.Hash {
		t.Fatalf("identical bytes produced different hashes: %s vs %s", first.Hash, second.Hash)
	}
	if first.ID == second.ID {
		t.Fatal("expected two distinct ownership records")
	}

	rec, err := reg.Lookup(ctx, first.Hash)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if rec.ReferenceCount != 2 {
		t.Fatalf("expected refcount 2, got %d", rec.ReferenceCount)
	}

	mine, err := led.ListByUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected 1 record for user 1, got %d", len(mine))
	}

	// One physical file, no duplicates.
	entries, err := os.ReadDir(filepath.Join(root, registry.HashedFilesDir, first.Hash[:2]))
	if err != nil {
		t.Fatalf("reading shard dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 stored file, got %d", len(entries))
	}
}

func TestIngestRejectsDisallowedType(t *testing.T) {
	svc, _, _, _ := setupTestService(t, 1<<20)

	// %PDF magic sniffs as application/pdf, which the test allow-list omits.
	pdf := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 64)...)
	if _, err := svc.Ingest(context.Background(), 1, "doc.pdf", "application/pdf", bytes.NewReader(pdf)); err != ErrUnsupportedMediaType {
		t.Fatalf("expected ErrUnsupportedMediaType, got %v", err)
	}
}

func TestIngestRejectsEmptyFile(t *testing.T) {
	svc, _, _, _ := setupTestService(t, 1<<20)

	if _, err := svc.Ingest(context.Background(), 1, "empty.txt", "", strings.NewReader("")); err != ErrEmptyFile {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
}

func TestIngestEnforcesSizeCeiling(t *testing.T) {
	svc, reg, _, _ := setupTestService(t, 16)

	_, err := svc.Ingest(context.Background(), 1, "big.txt", "", strings.NewReader("this payload is larger than sixteen bytes"))
	if err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}

	// No registry side effects from a rejected ingest.
	if recs, err := reg.ListUnreferenced(context.Background()); err != nil || len(recs) != 0 {
		t.Fatalf("expected clean registry, got %d rows (err %v)", len(recs), err)
	}
}
