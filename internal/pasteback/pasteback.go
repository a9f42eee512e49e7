// Package pasteback puts a stored history item back on the clipboard, or
// asks the OS to open the file it refers to.
package pasteback

import (
	"context"
	"fmt"
	"log/slog"

	"go.klb.dev/clipvault/internal/clip"
	"go.klb.dev/clipvault/internal/history"
	"go.klb.dev/clipvault/internal/logging"
	"go.klb.dev/clipvault/internal/metrics"
)

// Result says what Paste did.
type Result int

const (
	// Skipped: the item kind cannot be pasted back; nothing happened.
	Skipped Result = iota
	// Copied: the clipboard now holds the item.
	Copied
	// Opened: the OS accepted the request to open the file.
	Opened
)

func (r Result) String() string {
	return [...]string{"skipped", "copied", "opened"}[r]
}

// Hide reports whether the presentation layer should dismiss itself.
func (r Result) Hide() bool { return r != Skipped }

// OpenFailure is returned when the OS could not open a referenced file. The
// clipboard is left untouched.
type OpenFailure struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *OpenFailure) Error() string {
	return fmt.Sprintf("unable to open %s: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *OpenFailure) Unwrap() error { return e.Cause }

// Opener asks the OS to open a path with its default application.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// Service performs paste-back against a clipboard source.
type Service struct {
	source  clip.Source
	opener  Opener
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a Service. A nil opener uses SystemOpener.
func New(source clip.Source, opener Opener, m *metrics.Metrics) *Service {
	if opener == nil {
		opener = SystemOpener{}
	}
	return &Service{
		source:  source,
		opener:  opener,
		metrics: m,
		logger:  logging.Component("pasteback"),
	}
}

// Paste re-injects item. open only matters for file paths: true opens the
// file, false places a file reference on the clipboard.
func (s *Service) Paste(ctx context.Context, item history.Item, open bool) (Result, error) {
	kind := item.Kind()
	res, err := s.paste(ctx, item, kind, open)

	outcome := res.String()
	if err != nil {
		outcome = "error"
	}
	s.metrics.Paste(kind.Tag(), outcome)
	return res, err
}

func (s *Service) paste(ctx context.Context, item history.Item, kind history.Kind, open bool) (Result, error) {
	switch kind {
	case history.KindFilePath:
		if open {
			if err := s.opener.Open(ctx, item.Content); err != nil {
				s.logger.Warn("open failed", "path", item.Content, "err", err)
				return Skipped, &OpenFailure{Path: item.Content, Cause: err}
			}
			s.logger.Debug("file opened", "path", item.Content)
			return Opened, nil
		}
		if err := s.source.Clear(); err != nil {
			return Skipped, fmt.Errorf("clear clipboard: %w", err)
		}
		if err := s.source.WriteFileReference(item.Content); err != nil {
			return Skipped, fmt.Errorf("write file reference: %w", err)
		}
		s.logger.Debug("file reference pasted back", "id", item.ID)
		return Copied, nil

	case history.KindText:
		if err := s.source.Clear(); err != nil {
			return Skipped, fmt.Errorf("clear clipboard: %w", err)
		}
		if err := s.source.WriteText(item.Content); err != nil {
			return Skipped, fmt.Errorf("write text: %w", err)
		}
		s.logger.Debug("text pasted back", "id", item.ID)
		return Copied, nil

	default:
		// The sentinel must never reach the real clipboard.
		return Skipped, nil
	}
}
