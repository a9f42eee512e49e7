package history

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		tag  string
		want Kind
	}{
		{"text", KindText},
		{"filePath", KindFilePath},
		{"unsupported", KindUnsupported},
		{"image", KindUnsupported},
		{"", KindUnsupported},
		{"TEXT", KindUnsupported},
	}
	for _, tt := range tests {
		if got := ParseKind(tt.tag); got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.tag, got, tt.want)
		}
	}
}

func TestKindTagRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindText, KindFilePath, KindUnsupported} {
		if got := ParseKind(k.Tag()); got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.Tag(), got, k)
		}
	}
}

func TestNewItem(t *testing.T) {
	now := time.Now()
	a := NewItem(KindText, "hello", now)
	b := NewItem(KindText, "hello", now)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids not unique: %q %q", a.ID, b.ID)
	}
	if a.Kind() != KindText || a.RawKind != TagText {
		t.Errorf("kind = %v raw = %q", a.Kind(), a.RawKind)
	}
	if !a.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", a.CreatedAt, now)
	}
}

func TestItemPreview(t *testing.T) {
	file := Item{RawKind: TagFilePath, Content: "/tmp/dir/report.pdf"}
	if got := file.Preview(); got != "report.pdf" {
		t.Errorf("file preview = %q", got)
	}

	short := Item{RawKind: TagText, Content: "hello"}
	if got := short.Preview(); got != "hello" {
		t.Errorf("short preview = %q", got)
	}

	long := Item{RawKind: TagText, Content: strings.Repeat("ab", 40)}
	got := long.Preview()
	if want := strings.Repeat("ab", 25) + "..."; got != want {
		t.Errorf("long preview = %q, want %q", got, want)
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("record: %w", NewStorageError("sqlite", "insert", cause))
	if !IsStorageError(err) {
		t.Fatal("IsStorageError = false")
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "operation=insert") {
		t.Errorf("message = %q", err.Error())
	}
	if IsStorageError(ErrNotFound) {
		t.Error("ErrNotFound reported as storage error")
	}
}
