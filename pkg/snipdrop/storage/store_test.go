package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mikepea/snipdrop/pkg/snipdrop/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:?_foreign_keys=on&_case_sensitive_like=on"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestStore(t *testing.T, db *gorm.DB, cfg Config) *Store {
	cfg.DataDir = t.TempDir()
	store, err := NewStore(NewItemRepository(db), cfg, testLogger())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func readAll(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Failed to read payload: %v", err)
	}
	return string(data)
}

func uploadedFiles(t *testing.T, store *Store) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(store.dataDir, uploadSubdir))
	if err != nil {
		t.Fatalf("Failed to read uploads dir: %v", err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestPutTextRoundTrip(t *testing.T) {
	store := newTestStore(t, setupTestDB(t), Config{})

	content := "hello"
	item, err := store.Put(PutRequest{Kind: models.KindText, Content: &content, DeclaredSize: -1})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	reader, size, err := store.ReadPayload(item.ID)
	if err != nil {
		t.Fatalf("ReadPayload failed: %v", err)
	}
	if got := readAll(t, reader); got != "hello" {
		t.Errorf("Expected payload 'hello', got %q", got)
	}
	if size != 5 {
		t.Errorf("Expected size 5, got %d", size)
	}
}

func TestPutRejectsEmptyInput(t *testing.T) {
	store := newTestStore(t, setupTestDB(t), Config{})

	if _, err := store.Put(PutRequest{Kind: models.KindText, DeclaredSize: -1}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestPutSmallFileStoredInline(t *testing.T) {
	store := newTestStore(t, setupTestDB(t), Config{MaxInlineBytes: 16})

	item, err := store.Put(PutRequest{
		Kind:         models.KindFile,
		File:         strings.NewReader("small payload"),
		FileName:     "note.bin",
		MimeType:     "application/octet-stream",
		DeclaredSize: -1,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if loc := item.Location(); loc.Kind != models.PayloadInline {
		t.Fatalf("Expected inline payload, got kind %d", loc.Kind)
	}
	if files := uploadedFiles(t, store); len(files) != 0 {
		t.Errorf("Expected no upload files, found %v", files)
	}
	if item.FileSize == nil || *item.FileSize != int64(len("small payload")) {
		t.Errorf("Unexpected file size: %v", item.FileSize)
	}

	reader, _, err := store.ReadPayload(item.ID)
	if err != nil {
		t.Fatalf("ReadPayload failed: %v", err)
	}
	if got := readAll(t, reader); got != "small payload" {
		t.Errorf("Payload mismatch: %q", got)
	}
}

func TestPutLargeFileStoredOnDisk(t *testing.T) {
	store := newTestStore(t, setupTestDB(t), Config{MaxInlineBytes: 8})

	data := strings.Repeat("x", 64)
	item, err := store.Put(PutRequest{
		Kind:         models.KindFile,
		File:         strings.NewReader(data),
		FileName:     "big.dat",
		DeclaredSize: -1,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	loc := item.Location()
	if loc.Kind != models.PayloadOnDisk {
		t.Fatalf("Expected on-disk payload, got kind %d", loc.Kind)
	}
	if want := filepath.Join(uploadSubdir, item.ID+".dat"); loc.Path != want {
		t.Errorf("Expected path %q, got %q", want, loc.Path)
	}
	if _, err := os.Stat(filepath.Join(store.dataDir, loc.Path)); err != nil {
		t.Errorf("Expected payload file on disk: %v", err)
	}

	reader, size, err := store.ReadPayload(item.ID)
	if err != nil {
		t.Fatalf("ReadPayload failed: %v", err)
	}
	if got := readAll(t, reader); got != data {
		t.Errorf("Payload mismatch, got %d bytes", len(got))
	}
	if size != 64 {
		t.Errorf("Expected size 64, got %d", size)
	}
}

func TestPutThresholdBoundary(t *testing.T) {
	store := newTestStore(t, setupTestDB(t), Config{MaxInlineBytes: 8})

	atLimit, err := store.Put(PutRequest{
		Kind:         models.KindFile,
		File:         bytes.NewReader(make([]byte, 8)),
		FileName:     "at.bin",
		DeclaredSize: -1,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if atLimit.Location().Kind != models.PayloadInline {
		t.Errorf("Payload at threshold should be inline")
	}

	overLimit, err := store.Put(PutRequest{
		Kind:         models.KindFile,
		File:         bytes.NewReader(make([]byte, 9)),
		FileName:     "over.bin",
		DeclaredSize: -1,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if overLimit.Location().Kind != models.PayloadOnDisk {
		t.Errorf("Payload over threshold should be on disk")
	}
}

func TestPutRejectsDeclaredOversize(t *testing.T) {
	store := newTestStore(t, setupTestDB(t), Config{MaxUploadBytes: 100})

	_, err := store.Put(PutRequest{
		Kind:         models.KindFile,
		File:         strings.NewReader("irrelevant"),
		FileName:     "too-big.bin",
		DeclaredSize: 101,
	})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestPutRejectsStreamedOversize(t *testing.T) {
	store := newTestStore(t, setupTestDB(t), Config{MaxInlineBytes: 8, MaxUploadBytes: 32})

	// Size unknown up front; the ceiling must trip mid-stream and leave no file behind
	_, err := store.Put(PutRequest{
		Kind:         models.KindFile,
		File:         bytes.NewReader(make([]byte, 64)),
		FileName:     "sneaky.bin",
		DeclaredSize: -1,
	})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}
	if files := uploadedFiles(t, store); len(files) != 0 {
		t.Errorf("Oversized upload left files behind: %v", files)
	}
}

func TestDeleteRemovesFileAndCascadesShares(t *testing.T) {
	db := setupTestDB(t)
	store := newTestStore(t, db, Config{MaxInlineBytes: 8})

	item, err := store.Put(PutRequest{
		Kind:         models.KindFile,
		File:         strings.NewReader(strings.Repeat("y", 32)),
		FileName:     "doc.txt",
		DeclaredSize: -1,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	links := NewShareLinkRepository(db)
	if err := links.Create(&models.ShareLink{Token: "tok-1", ItemID: item.ID}); err != nil {
		t.Fatalf("Failed to create share link: %v", err)
	}

	abs := filepath.Join(store.dataDir, item.Location().Path)
	if err := store.Delete(item.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := os.Stat(abs); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected payload file removed, stat err: %v", err)
	}
	if _, err := store.Get(item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if _, err := links.GetByToken("tok-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected share link cascade-deleted, got %v", err)
	}
}

func TestDeleteToleratesMissingFile(t *testing.T) {
	store := newTestStore(t, setupTestDB(t), Config{MaxInlineBytes: 8})

	item, err := store.Put(PutRequest{
		Kind:         models.KindFile,
		File:         strings.NewReader(strings.Repeat("z", 32)),
		FileName:     "gone.txt",
		DeclaredSize: -1,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := os.Remove(filepath.Join(store.dataDir, item.Location().Path)); err != nil {
		t.Fatalf("Failed to remove payload: %v", err)
	}
	if err := store.Delete(item.ID); err != nil {
		t.Errorf("Delete should tolerate an already-missing file, got %v", err)
	}
}

func TestReadPayloadMissingFile(t *testing.T) {
	store := newTestStore(t, setupTestDB(t), Config{MaxInlineBytes: 8})

	item, err := store.Put(PutRequest{
		Kind:         models.KindFile,
		File:         strings.NewReader(strings.Repeat("w", 32)),
		FileName:     "corrupt.txt",
		DeclaredSize: -1,
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := os.Remove(filepath.Join(store.dataDir, item.Location().Path)); err != nil {
		t.Fatalf("Failed to remove payload: %v", err)
	}
	if _, _, err := store.ReadPayload(item.ID); !errors.Is(err, ErrPayloadMissing) {
		t.Errorf("Expected ErrPayloadMissing, got %v", err)
	}
}

func TestReadPayloadUnknownItem(t *testing.T) {
	store := newTestStore(t, setupTestDB(t), Config{})

	if _, _, err := store.ReadPayload("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
