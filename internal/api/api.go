// Package api holds the request and response types shared by the gRPC
// service, its client and the HTTP API, plus the Engine contract both
// servers are written against.
package api

import (
	"context"
	"time"

	"go.klb.dev/clipvault/internal/engine"
	"go.klb.dev/clipvault/internal/history"
	"go.klb.dev/clipvault/internal/hub"
	"go.klb.dev/clipvault/internal/pasteback"
	"go.klb.dev/clipvault/internal/settings"
)

// Engine is the subset of *engine.Engine the servers use.
type Engine interface {
	Recent() []history.Item
	History(ctx context.Context) ([]history.Item, error)
	Get(ctx context.Context, id string) (history.Item, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Prune(ctx context.Context) (int64, error)
	Paste(ctx context.Context, id string, open bool) (pasteback.Result, error)
	Retention() settings.Retention
	SetRetention(ctx context.Context, days int) error
	Status(ctx context.Context) (engine.Status, error)
	Subscribe(name string) *hub.Subscription
}

var _ Engine = (*engine.Engine)(nil)

// Item is the wire form of a history item.
type Item struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Preview   string    `json:"preview"`
}

// FromHistory converts stored items for the wire.
func FromHistory(items []history.Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = Item{
			ID:        it.ID,
			CreatedAt: it.CreatedAt,
			Kind:      it.Kind().Tag(),
			Content:   it.Content,
			Preview:   it.Preview(),
		}
	}
	return out
}

// ListRequest selects the recent view (default) or the full history.
// Limit, when positive, truncates the result.
type ListRequest struct {
	All   bool `json:"all,omitempty"`
	Limit int  `json:"limit,omitempty"`
}

// ListResponse carries items newest first.
type ListResponse struct {
	Items []Item `json:"items"`
}

// List runs a ListRequest against eng.
func List(ctx context.Context, eng Engine, req ListRequest) ([]Item, error) {
	var items []history.Item
	if req.All {
		var err error
		if items, err = eng.History(ctx); err != nil {
			return nil, err
		}
	} else {
		items = eng.Recent()
	}
	if req.Limit > 0 && len(items) > req.Limit {
		items = items[:req.Limit]
	}
	return FromHistory(items), nil
}

// IDRequest names one item.
type IDRequest struct {
	ID string `json:"id"`
}

// PasteRequest asks for an item to be pasted back, or opened when Open is
// set and the item is a file path.
type PasteRequest struct {
	ID   string `json:"id"`
	Open bool   `json:"open,omitempty"`
}

// PasteResponse reports what the paste did: skipped, copied or opened.
type PasteResponse struct {
	Result string `json:"result"`
}

// PruneResponse reports how many items a prune removed.
type PruneResponse struct {
	Deleted int64 `json:"deleted"`
}

// RetentionRequest sets the retention window. Zero keeps items forever.
type RetentionRequest struct {
	Days int `json:"days"`
}

// SettingsResponse reports the retention setting.
type SettingsResponse struct {
	RetentionDays int  `json:"retention_days"`
	Configured    bool `json:"configured"`
}

// FromRetention converts the resolved setting for the wire.
func FromRetention(r settings.Retention) *SettingsResponse {
	return &SettingsResponse{RetentionDays: r.Days, Configured: r.Configured}
}

// StatusResponse is the daemon status.
type StatusResponse struct {
	engine.Status
	Version string `json:"version"`
}

// WatchRequest opens an event stream.
type WatchRequest struct {
	// Subscriber names the watcher in daemon logs.
	Subscriber string `json:"subscriber,omitempty"`
}

// Empty is used for requests and responses without fields.
type Empty struct{}
