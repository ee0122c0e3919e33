package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mikepea/snipdrop/pkg/snipdrop/models"
	"gorm.io/gorm"
)

// Position is a keyset pagination anchor: the full sort key of the last row
// the caller has already seen.
type Position struct {
	SortWeight int64
	CreatedAt  time.Time
	ID         string
}

// ListQuery selects a page of items strictly after a position in display order
type ListQuery struct {
	Search string
	After  *Position
	Limit  int
}

// WeightAssignment pairs an item id with its new sort weight
type WeightAssignment struct {
	ID     string
	Weight int64
}

// ShareListQuery selects a page of share links, newest first
type ShareListQuery struct {
	ItemID string
	Limit  int
	Offset int
}

// ItemRepository is the narrow persistence surface for items. Implementations
// own their transaction boundaries: every method is atomic.
type ItemRepository interface {
	Create(item *models.Item) error
	Get(id string) (*models.Item, error)
	// DeleteCascade removes the item and every share link referencing it in
	// one transaction. Returns ErrNotFound if the item does not exist.
	DeleteCascade(id string) error
	// Search returns listing metadata (payload columns excluded) ordered by
	// (sort_weight desc, created_at desc, id desc).
	Search(q ListQuery) ([]models.Item, error)
	MaxSortWeight() (int64, error)
	// SetSortWeights applies all assignments in one transaction. Unknown ids
	// are skipped, tolerating races with concurrent deletion.
	SetSortWeights(assignments []WeightAssignment) error
}

// ShareLinkRepository is the narrow persistence surface for share links
type ShareLinkRepository interface {
	Create(link *models.ShareLink) error
	GetByToken(token string) (*models.ShareLink, error)
	// LatestByItem returns the most recently created link for an item
	LatestByItem(itemID string) (*models.ShareLink, error)
	DeleteByToken(token string) error
	// Revoke flips the one-way revoked flag. Revoking an already-revoked
	// link is not an error; only a missing token is.
	Revoke(token string) error
	// IncrementDownloads bumps download_count server-side so concurrent
	// downloads never lose an increment.
	IncrementDownloads(token string) error
	// Replace deletes the old token and inserts its successor atomically
	Replace(oldToken string, replacement *models.ShareLink) error
	List(q ShareListQuery) ([]models.ShareLink, error)
}

// itemListColumns excludes inline_data so listings never haul payload blobs
const itemListColumns = "id, kind, content, file_name, file_size, mime_type, file_path, sort_weight, created_at, updated_at"

type gormItemRepository struct {
	db *gorm.DB
}

// NewItemRepository returns a GORM-backed ItemRepository
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &gormItemRepository{db: db}
}

func (r *gormItemRepository) Create(item *models.Item) error {
	return r.db.Create(item).Error
}

func (r *gormItemRepository) Get(id string) (*models.Item, error) {
	var item models.Item
	if err := r.db.First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return &item, nil
}

func (r *gormItemRepository) DeleteCascade(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", id).Delete(&models.ShareLink{}).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		res := tx.Delete(&models.Item{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailure, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// escapeLike neutralizes LIKE wildcards so a search for "100%" matches literally
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func (r *gormItemRepository) Search(q ListQuery) ([]models.Item, error) {
	query := r.db.Model(&models.Item{}).Select(itemListColumns)

	if q.Search != "" {
		pattern := "%" + escapeLike(q.Search) + "%"
		query = query.Where(`content LIKE ? ESCAPE '\' OR file_name LIKE ? ESCAPE '\'`, pattern, pattern)
	}

	if q.After != nil {
		// Half-open keyset predicate: rows strictly after the anchor in
		// (sort_weight desc, created_at desc, id desc) order.
		query = query.Where(
			"(sort_weight < ?) OR (sort_weight = ? AND created_at < ?) OR (sort_weight = ? AND created_at = ? AND id < ?)",
			q.After.SortWeight,
			q.After.SortWeight, q.After.CreatedAt,
			q.After.SortWeight, q.After.CreatedAt, q.After.ID,
		)
	}

	var items []models.Item
	err := query.
		Order("sort_weight DESC, created_at DESC, id DESC").
		Limit(q.Limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return items, nil
}

func (r *gormItemRepository) MaxSortWeight() (int64, error) {
	var max int64
	err := r.db.Model(&models.Item{}).
		Select("COALESCE(MAX(sort_weight), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return max, nil
}

func (r *gormItemRepository) SetSortWeights(assignments []WeightAssignment) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, a := range assignments {
			err := tx.Model(&models.Item{}).
				Where("id = ?", a.ID).
				Update("sort_weight", a.Weight).Error
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStorageFailure, err)
			}
		}
		return nil
	})
}

type gormShareLinkRepository struct {
	db *gorm.DB
}

// NewShareLinkRepository returns a GORM-backed ShareLinkRepository
func NewShareLinkRepository(db *gorm.DB) ShareLinkRepository {
	return &gormShareLinkRepository{db: db}
}

func (r *gormShareLinkRepository) Create(link *models.ShareLink) error {
	if err := r.db.Create(link).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return nil
}

func (r *gormShareLinkRepository) GetByToken(token string) (*models.ShareLink, error) {
	var link models.ShareLink
	if err := r.db.First(&link, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return &link, nil
}

func (r *gormShareLinkRepository) LatestByItem(itemID string) (*models.ShareLink, error) {
	var link models.ShareLink
	err := r.db.Where("item_id = ?", itemID).
		Order("created_at DESC").
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return &link, nil
}

func (r *gormShareLinkRepository) DeleteByToken(token string) error {
	res := r.db.Delete(&models.ShareLink{}, "token = ?", token)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormShareLinkRepository) Revoke(token string) error {
	res := r.db.Model(&models.ShareLink{}).
		Where("token = ?", token).
		Update("revoked", true)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormShareLinkRepository) IncrementDownloads(token string) error {
	err := r.db.Model(&models.ShareLink{}).
		Where("token = ?", token).
		Update("download_count", gorm.Expr("download_count + 1")).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return nil
}

func (r *gormShareLinkRepository) Replace(oldToken string, replacement *models.ShareLink) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.ShareLink{}, "token = ?", oldToken)
		if res.Error != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailure, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Create(replacement).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		return nil
	})
}

func (r *gormShareLinkRepository) List(q ShareListQuery) ([]models.ShareLink, error) {
	query := r.db.Model(&models.ShareLink{})
	if q.ItemID != "" {
		query = query.Where("item_id = ?", q.ItemID)
	}
	var links []models.ShareLink
	err := query.Order("created_at DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return links, nil
}
