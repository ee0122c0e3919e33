// Package ordering maintains the display order of clipboard items: manual
// drag ordering on top of recency, served as keyset-paginated listings.
package ordering

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/mikepea/snipdrop/pkg/snipdrop/models"
	"github.com/mikepea/snipdrop/pkg/snipdrop/storage"
)

const (
	// DefaultLimit is the page size used when the caller asks for none
	DefaultLimit = 48
	// MaxLimit bounds page cost regardless of what the caller asks for
	MaxLimit = 48
)

// ErrBadCursor means the cursor string did not decode to a valid position
var ErrBadCursor = errors.New("malformed cursor")

// Index serves ordered, searchable item listings and manual reordering
type Index struct {
	items storage.ItemRepository
}

// NewIndex creates an ordering index over the given repository
func NewIndex(items storage.ItemRepository) *Index {
	return &Index{items: items}
}

// Page is one listing page plus the cursor for the next one
type Page struct {
	Items      []models.Item
	NextCursor string
	HasMore    bool
}

// cursorPayload is the wire form of a pagination anchor
type cursorPayload struct {
	Weight    int64  `json:"w"`
	CreatedAt int64  `json:"c"` // unix nanoseconds
	ID        string `json:"id"`
}

func encodeCursor(item *models.Item) string {
	raw, _ := json.Marshal(cursorPayload{
		Weight:    item.SortWeight,
		CreatedAt: item.CreatedAt.UnixNano(),
		ID:        item.ID,
	})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(cursor string) (*storage.Position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrBadCursor
	}
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, ErrBadCursor
	}
	return &storage.Position{
		SortWeight: p.Weight,
		CreatedAt:  time.Unix(0, p.CreatedAt),
		ID:         p.ID,
	}, nil
}

// List returns a page of items ordered by (sortWeight desc, createdAt desc,
// id desc). search filters by case-sensitive substring over text content and
// file name before pagination. cursor is an opaque anchor from a previous
// page; the result holds items strictly after it, so concurrent inserts of
// earlier-sorting items never shift the page.
func (ix *Index) List(search, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	q := storage.ListQuery{Search: search, Limit: limit + 1}
	if cursor != "" {
		after, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		q.After = after
	}

	items, err := ix.items.Search(q)
	if err != nil {
		return nil, err
	}

	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.HasMore = true
	}
	if len(page.Items) > 0 {
		page.NextCursor = encodeCursor(&page.Items[len(page.Items)-1])
	}
	return page, nil
}

// Reorder makes the listed items render in exactly the given top-to-bottom
// order. The first id gets the highest weight and each subsequent id one
// less, all above the current maximum so the batch floats to the top. The
// whole batch applies in one transaction; ids that no longer exist are
// skipped to tolerate races with concurrent deletion.
func (ix *Index) Reorder(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	max, err := ix.items.MaxSortWeight()
	if err != nil {
		return err
	}
	base := max + int64(len(ids))
	assignments := make([]storage.WeightAssignment, 0, len(ids))
	for i, id := range ids {
		assignments = append(assignments, storage.WeightAssignment{
			ID:     id,
			Weight: base - int64(i),
		})
	}
	return ix.items.SetSortWeights(assignments)
}
