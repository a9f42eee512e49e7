// Package history defines clipboard history items and the storage contract
// the monitor, retention and paste-back components share.
package history

import (
	"context"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Kind is the classified type of a history item.
type Kind int

const (
	KindUnsupported Kind = iota
	KindText
	KindFilePath
)

// Raw tags as they are persisted. Changing these breaks existing databases.
const (
	TagText        = "text"
	TagFilePath    = "filePath"
	TagUnsupported = "unsupported"
)

// UnsupportedContent is stored for clipboard states that carry neither a file
// reference nor text.
const UnsupportedContent = "Unsupported content type."

// previewLength is the number of characters kept by Item.Preview for text.
const previewLength = 50

// ParseKind maps a stored tag to a Kind. Unknown tags map to KindUnsupported
// so rows written by other versions still load.
func ParseKind(tag string) Kind {
	switch tag {
	case TagText:
		return KindText
	case TagFilePath:
		return KindFilePath
	default:
		return KindUnsupported
	}
}

// Tag returns the persisted form of k.
func (k Kind) Tag() string {
	switch k {
	case KindText:
		return TagText
	case KindFilePath:
		return TagFilePath
	default:
		return TagUnsupported
	}
}

func (k Kind) String() string { return k.Tag() }

// Item is one recorded clipboard state. Items are never updated once stored.
type Item struct {
	ID        string
	CreatedAt time.Time
	// RawKind is the tag as stored; use Kind for the interpreted value.
	RawKind string
	Content string
}

// NewItem returns an item with a fresh id.
func NewItem(kind Kind, content string, at time.Time) Item {
	return Item{
		ID:        uuid.NewString(),
		CreatedAt: at,
		RawKind:   kind.Tag(),
		Content:   content,
	}
}

// Kind interprets the stored tag.
func (it Item) Kind() Kind { return ParseKind(it.RawKind) }

// Preview is the short label shown in compact listings: the base name for
// file paths, otherwise the first 50 characters of the content.
func (it Item) Preview() string {
	if it.Kind() == KindFilePath {
		return filepath.Base(it.Content)
	}
	if utf8.RuneCountInString(it.Content) <= previewLength {
		return it.Content
	}
	runes := []rune(it.Content)
	return string(runes[:previewLength]) + "..."
}

// Store persists history items. Every method is atomic with respect to the
// others; callers serialize writers themselves.
type Store interface {
	// Insert makes item durable before returning.
	Insert(ctx context.Context, item Item) error

	// Recent returns at most limit items, newest first. Items with equal
	// timestamps are ordered by reverse insertion.
	Recent(ctx context.Context, limit int) ([]Item, error)

	// All returns every item in the same order as Recent.
	All(ctx context.Context) ([]Item, error)

	// Get returns the item with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (Item, error)

	// DeleteBefore removes items created strictly before cutoff and reports
	// how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteAll empties the store.
	DeleteAll(ctx context.Context) error

	// Delete removes one item. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored items.
	Count(ctx context.Context) (int64, error)

	Close() error
}
