package ordering

import (
	"errors"
	"testing"
	"time"

	"github.com/mikepea/snipdrop/pkg/snipdrop/models"
	"github.com/mikepea/snipdrop/pkg/snipdrop/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestIndex(t *testing.T) (*Index, storage.ItemRepository) {
	db, err := gorm.Open(sqlite.Open(":memory:?_foreign_keys=on&_case_sensitive_like=on"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	repo := storage.NewItemRepository(db)
	return NewIndex(repo), repo
}

func createItem(t *testing.T, repo storage.ItemRepository, id, content string, createdAt time.Time) {
	t.Helper()
	item := &models.Item{
		ID:        id,
		Kind:      models.KindText,
		Content:   &content,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := repo.Create(item); err != nil {
		t.Fatalf("Failed to create item %s: %v", id, err)
	}
}

func ids(page *Page) []string {
	out := make([]string, len(page.Items))
	for i, item := range page.Items {
		out[i] = item.ID
	}
	return out
}

func TestListNewestFirstByDefault(t *testing.T) {
	index, repo := setupTestIndex(t)
	base := time.Now().Add(-time.Hour)
	createItem(t, repo, "a", "first", base)
	createItem(t, repo, "b", "second", base.Add(time.Minute))
	createItem(t, repo, "c", "third", base.Add(2*time.Minute))

	page, err := index.List("", "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := ids(page)
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
	if page.HasMore {
		t.Errorf("Expected no more pages")
	}
}

func TestReorderControlsListOrder(t *testing.T) {
	index, repo := setupTestIndex(t)
	base := time.Now().Add(-time.Hour)
	createItem(t, repo, "a", "alpha", base)
	createItem(t, repo, "b", "bravo", base.Add(time.Minute))
	createItem(t, repo, "c", "charlie", base.Add(2*time.Minute))

	if err := index.Reorder([]string{"c", "a", "b"}); err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}

	page, err := index.List("", "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := ids(page)
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}

func TestReorderedItemsFloatAboveNewerOnes(t *testing.T) {
	index, repo := setupTestIndex(t)
	base := time.Now().Add(-time.Hour)
	createItem(t, repo, "old", "old", base)
	createItem(t, repo, "new", "new", base.Add(time.Minute))

	if err := index.Reorder([]string{"old"}); err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}

	page, err := index.List("", "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got := ids(page); got[0] != "old" {
		t.Errorf("Expected reordered item on top, got %v", got)
	}
}

func TestReorderSkipsUnknownIDs(t *testing.T) {
	index, repo := setupTestIndex(t)
	createItem(t, repo, "a", "alpha", time.Now())

	// A concurrently-deleted id must not fail the batch
	if err := index.Reorder([]string{"ghost", "a"}); err != nil {
		t.Fatalf("Reorder with unknown id failed: %v", err)
	}
}

func TestListPagination(t *testing.T) {
	index, repo := setupTestIndex(t)
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"e", "d", "c", "b", "a"} {
		createItem(t, repo, id, "item", base.Add(time.Duration(i)*time.Minute))
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := index.List("", cursor, 2)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		for _, id := range ids(page) {
			if seen[id] {
				t.Fatalf("Item %s returned twice", id)
			}
			seen[id] = true
		}
		pages++
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if len(seen) != 5 {
		t.Errorf("Expected 5 distinct items across pages, got %d", len(seen))
	}
	if pages != 3 {
		t.Errorf("Expected 3 pages, got %d", pages)
	}
}

func TestPaginationStableUnderConcurrentInsert(t *testing.T) {
	index, repo := setupTestIndex(t)
	base := time.Now().Add(-time.Hour)
	createItem(t, repo, "a", "item", base)
	createItem(t, repo, "b", "item", base.Add(time.Minute))
	createItem(t, repo, "c", "item", base.Add(2*time.Minute))

	first, err := index.List("", "", 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	// An item inserted after page one sorts earlier than everything; it must
	// not shift the second page.
	createItem(t, repo, "z", "item", time.Now())

	second, err := index.List("", first.NextCursor, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := ids(second)
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("Expected second page [a], got %v", got)
	}
}

func TestListSearch(t *testing.T) {
	index, repo := setupTestIndex(t)
	now := time.Now()
	createItem(t, repo, "t1", "meeting notes", now)
	createItem(t, repo, "t2", "shopping list", now.Add(time.Second))

	name := "notes-archive.zip"
	item := &models.Item{ID: "f1", Kind: models.KindFile, FileName: &name, CreatedAt: now.Add(2 * time.Second)}
	if err := repo.Create(item); err != nil {
		t.Fatalf("Failed to create file item: %v", err)
	}

	page, err := index.List("notes", "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := ids(page)
	if len(got) != 2 {
		t.Fatalf("Expected 2 matches over content and file name, got %v", got)
	}

	// Substring match is case-sensitive
	page, err = index.List("Notes", "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("Expected case-sensitive search to match nothing, got %v", ids(page))
	}
}

func TestListSearchEscapesWildcards(t *testing.T) {
	index, repo := setupTestIndex(t)
	createItem(t, repo, "pct", "discount 100% off", time.Now())
	createItem(t, repo, "plain", "discount 100x off", time.Now().Add(time.Second))

	page, err := index.List("100%", "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := ids(page)
	if len(got) != 1 || got[0] != "pct" {
		t.Errorf("Expected literal %%-match only, got %v", got)
	}
}

func TestListBadCursor(t *testing.T) {
	index, _ := setupTestIndex(t)

	if _, err := index.List("", "not-a-cursor!!!", 0); !errors.Is(err, ErrBadCursor) {
		t.Errorf("Expected ErrBadCursor, got %v", err)
	}
}

func TestListClampsLimit(t *testing.T) {
	index, repo := setupTestIndex(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < MaxLimit+10; i++ {
		createItem(t, repo, string(rune('A'+i%26))+string(rune('a'+i/26)), "bulk", base.Add(time.Duration(i)*time.Second))
	}

	page, err := index.List("", "", 1000)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != MaxLimit {
		t.Errorf("Expected limit clamped to %d, got %d items", MaxLimit, len(page.Items))
	}
	if !page.HasMore {
		t.Errorf("Expected more pages past the clamped limit")
	}
}
