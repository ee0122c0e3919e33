package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/google/uuid"
	"github.com/mikepea/snipdrop/pkg/snipdrop/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxInlineBytes is the largest file payload stored in the record itself
	DefaultMaxInlineBytes = 256 * 1024
	// DefaultMaxUploadBytes is the hard ceiling on any single upload
	DefaultMaxUploadBytes = 200 * 1024 * 1024

	uploadSubdir = "uploads"
)

// Config tunes the storage tier
type Config struct {
	// DataDir is the managed data directory; large payloads live in its
	// uploads/ subdirectory.
	DataDir string
	// MaxInlineBytes overrides DefaultMaxInlineBytes when > 0
	MaxInlineBytes int64
	// MaxUploadBytes overrides DefaultMaxUploadBytes when > 0
	MaxUploadBytes int64
}

// Store decides inline-vs-disk placement for item payloads and performs
// atomic create/delete of the backing bytes plus the item record.
type Store struct {
	items     ItemRepository
	dataDir   string
	maxInline int64
	maxUpload int64
	log       *logrus.Logger
}

// NewStore creates the store and ensures the upload directory exists
func NewStore(items ItemRepository, cfg Config, log *logrus.Logger) (*Store, error) {
	s := &Store{
		items:     items,
		dataDir:   cfg.DataDir,
		maxInline: cfg.MaxInlineBytes,
		maxUpload: cfg.MaxUploadBytes,
		log:       log,
	}
	if s.maxInline <= 0 {
		s.maxInline = DefaultMaxInlineBytes
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	if err := os.MkdirAll(filepath.Join(s.dataDir, uploadSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return s, nil
}

// PutRequest describes a new item. File is consumed as a stream so large
// uploads never have to fit in memory.
type PutRequest struct {
	Kind     models.ItemKind
	Content  *string
	File     io.Reader
	FileName string
	MimeType string
	// DeclaredSize is the client-announced file size, or -1 when unknown.
	// Known-oversized uploads are rejected before any bytes are read.
	DeclaredSize int64
}

// Put stores a new item. Payloads at or under the inline threshold are kept
// in the record; larger ones are streamed to uploads/<id><ext> with an
// atomic rename, so readers never observe a half-written file. The record
// insert and the file write either both take effect or neither does.
func (s *Store) Put(req PutRequest) (*models.Item, error) {
	hasText := req.Content != nil && *req.Content != ""
	if !hasText && req.File == nil {
		return nil, ErrInvalidInput
	}
	if req.File != nil && req.DeclaredSize > s.maxUpload {
		return nil, ErrPayloadTooLarge
	}

	item := &models.Item{
		ID:   uuid.NewString(),
		Kind: req.Kind,
	}
	if item.Kind == "" {
		item.Kind = models.KindText
	}
	if hasText {
		item.Content = req.Content
	}

	var diskPath string // absolute path of a spilled payload, for cleanup
	if req.File != nil {
		size, loc, abs, err := s.placePayload(item.ID, req)
		if err != nil {
			return nil, err
		}
		diskPath = abs
		item.SetLocation(loc)
		item.FileSize = &size
		if req.FileName != "" {
			name := req.FileName
			item.FileName = &name
		}
		if req.MimeType != "" {
			mt := req.MimeType
			item.MimeType = &mt
		}
	}

	if err := s.items.Create(item); err != nil {
		if diskPath != "" {
			if rmErr := os.Remove(diskPath); rmErr != nil {
				s.log.WithError(rmErr).WithField("path", diskPath).
					Warn("failed to remove orphaned upload after insert failure")
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return item, nil
}

// placePayload reads the file stream and returns its size, its location, and
// the absolute path when it was spilled to disk.
func (s *Store) placePayload(id string, req PutRequest) (int64, models.PayloadLocation, string, error) {
	// Buffer one byte past the threshold to learn whether the payload fits inline.
	head := make([]byte, s.maxInline+1)
	n, err := io.ReadFull(req.File, head)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		data := make([]byte, n)
		copy(data, head[:n])
		return int64(n), models.InlinePayload(data), "", nil
	}
	if err != nil {
		return 0, models.PayloadLocation{}, "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	// Larger than the threshold: stream to disk, named by item id so the
	// file can be located without the metadata store.
	rel := filepath.Join(uploadSubdir, id+filepath.Ext(req.FileName))
	abs := filepath.Join(s.dataDir, rel)
	tmp, err := renameio.TempFile(filepath.Join(s.dataDir, uploadSubdir), abs)
	if err != nil {
		return 0, models.PayloadLocation{}, "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	defer tmp.Cleanup()

	if _, err := tmp.Write(head); err != nil {
		return 0, models.PayloadLocation{}, "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	// Enforce the ceiling mid-stream: reading one byte past the budget
	// means the upload is oversized, whatever the declared size said.
	budget := s.maxUpload - int64(len(head))
	copied, err := io.Copy(tmp, io.LimitReader(req.File, budget+1))
	if err != nil {
		return 0, models.PayloadLocation{}, "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if copied > budget {
		return 0, models.PayloadLocation{}, "", ErrPayloadTooLarge
	}
	if err := tmp.CloseAtomicallyReplace(); err != nil {
		return 0, models.PayloadLocation{}, "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return int64(len(head)) + copied, models.OnDiskPayload(rel), abs, nil
}

// Get returns an item's record by id
func (s *Store) Get(id string) (*models.Item, error) {
	return s.items.Get(id)
}

// ReadPayload opens the item's payload as a stream. For text-only items the
// stream carries the text content. The size is -1 when unknown.
func (s *Store) ReadPayload(id string) (io.ReadCloser, int64, error) {
	item, err := s.items.Get(id)
	if err != nil {
		return nil, 0, err
	}
	return s.OpenPayload(item)
}

// OpenPayload is ReadPayload for an already-loaded record
func (s *Store) OpenPayload(item *models.Item) (io.ReadCloser, int64, error) {
	switch loc := item.Location(); loc.Kind {
	case models.PayloadInline:
		return io.NopCloser(bytes.NewReader(loc.Inline)), int64(len(loc.Inline)), nil
	case models.PayloadOnDisk:
		abs := filepath.Join(s.dataDir, loc.Path)
		f, err := os.Open(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, 0, ErrPayloadMissing
			}
			return nil, 0, fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		size := int64(-1)
		if fi, err := f.Stat(); err == nil {
			size = fi.Size()
		}
		return f, size, nil
	default:
		if item.Content != nil {
			data := []byte(*item.Content)
			return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
		}
		return nil, 0, ErrPayloadMissing
	}
}

// Delete removes the item record, cascades deletion of its share links, and
// removes the on-disk payload. File removal is best-effort: a payload already
// gone from disk is logged and does not fail the delete.
func (s *Store) Delete(id string) error {
	item, err := s.items.Get(id)
	if err != nil {
		return err
	}
	if err := s.items.DeleteCascade(id); err != nil {
		return err
	}
	if loc := item.Location(); loc.Kind == models.PayloadOnDisk {
		abs := filepath.Join(s.dataDir, loc.Path)
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.WithError(err).WithField("path", abs).
				Warn("failed to remove payload file for deleted item")
		}
	}
	return nil
}
