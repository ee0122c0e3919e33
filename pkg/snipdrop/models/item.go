package models

import (
	"time"
)

// ItemKind classifies a clipboard item
type ItemKind string

const (
	KindText  ItemKind = "TEXT"
	KindImage ItemKind = "IMAGE"
	KindFile  ItemKind = "FILE"
)

// Item represents a stored clipboard entry
type Item struct {
	ID         string    `gorm:"primarykey" json:"id"`
	Kind       ItemKind  `gorm:"column:kind;not null" json:"type"`
	Content    *string   `json:"content,omitempty"`
	FileName   *string   `json:"fileName,omitempty"`
	FileSize   *int64    `json:"fileSize,omitempty"`
	MimeType   *string   `json:"mimeType,omitempty"`
	InlineData []byte    `json:"-"`
	FilePath   *string   `json:"-"`
	SortWeight int64     `gorm:"default:0;index:idx_items_order,priority:1" json:"sortWeight"`
	CreatedAt  time.Time `gorm:"index:idx_items_order,priority:2" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PayloadKind discriminates where an item's file payload lives
type PayloadKind int

const (
	// PayloadNone means the item has no file payload (pure-text items)
	PayloadNone PayloadKind = iota
	// PayloadInline means the bytes are stored in the item record itself
	PayloadInline
	// PayloadOnDisk means the bytes live under the upload directory
	PayloadOnDisk
)

// PayloadLocation is a tagged union: exactly one of Inline or Path is
// meaningful, selected by Kind. It exists so callers never have to reason
// about which of the two optional columns is populated.
type PayloadLocation struct {
	Kind   PayloadKind
	Inline []byte
	Path   string
}

// InlinePayload builds an inline location
func InlinePayload(data []byte) PayloadLocation {
	return PayloadLocation{Kind: PayloadInline, Inline: data}
}

// OnDiskPayload builds an on-disk location from a path relative to the data dir
func OnDiskPayload(relPath string) PayloadLocation {
	return PayloadLocation{Kind: PayloadOnDisk, Path: relPath}
}

// Location returns the item's payload location as a tagged union
func (i *Item) Location() PayloadLocation {
	switch {
	case i.FilePath != nil && *i.FilePath != "":
		return OnDiskPayload(*i.FilePath)
	case i.InlineData != nil:
		return InlinePayload(i.InlineData)
	default:
		return PayloadLocation{Kind: PayloadNone}
	}
}

// SetLocation writes the payload columns from a tagged union. It is the only
// sanctioned writer of InlineData and FilePath, so the two can never be
// populated at once.
func (i *Item) SetLocation(loc PayloadLocation) {
	i.InlineData = nil
	i.FilePath = nil
	switch loc.Kind {
	case PayloadInline:
		i.InlineData = loc.Inline
	case PayloadOnDisk:
		p := loc.Path
		i.FilePath = &p
	}
}

// HasFile reports whether the item carries a file payload at all
func (i *Item) HasFile() bool {
	return i.Location().Kind != PayloadNone
}
