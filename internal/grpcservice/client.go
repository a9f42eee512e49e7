package grpcservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipvault/internal/api"
	"go.klb.dev/clipvault/internal/history"
	"go.klb.dev/clipvault/internal/hub"
	"go.klb.dev/clipvault/internal/settings"
)

// Client calls a clipvault daemon.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to target, e.g. "unix:///run/user/1000/clipvault.sock" or
// "localhost:8753". Extra options are appended to the defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// WithToken sends token as a bearer credential on every call.
func WithToken(token string) grpc.DialOption {
	return grpc.WithPerRPCCredentials(bearer(token))
}

type bearer string

func (b bearer) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(b)}, nil
}

func (bearer) RequireTransportSecurity() bool { return false }

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return fromStatus(c.conn.Invoke(ctx, method, in, out))
}

// List returns the recent view, or the whole history when all is set.
func (c *Client) List(ctx context.Context, all bool, limit int) ([]api.Item, error) {
	var out api.ListResponse
	if err := c.invoke(ctx, methodList, &api.ListRequest{All: all, Limit: limit}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Get returns one item.
func (c *Client) Get(ctx context.Context, id string) (api.Item, error) {
	var out api.Item
	err := c.invoke(ctx, methodGet, &api.IDRequest{ID: id}, &out)
	return out, err
}

// Delete removes one item.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.invoke(ctx, methodDelete, &api.IDRequest{ID: id}, &api.Empty{})
}

// Clear removes every item.
func (c *Client) Clear(ctx context.Context) error {
	return c.invoke(ctx, methodClear, &api.Empty{}, &api.Empty{})
}

// Prune applies the retention window now.
func (c *Client) Prune(ctx context.Context) (int64, error) {
	var out api.PruneResponse
	err := c.invoke(ctx, methodPrune, &api.Empty{}, &out)
	return out.Deleted, err
}

// Paste pastes an item back, or opens it when open is set.
func (c *Client) Paste(ctx context.Context, id string, open bool) (string, error) {
	var out api.PasteResponse
	err := c.invoke(ctx, methodPaste, &api.PasteRequest{ID: id, Open: open}, &out)
	return out.Result, err
}

// Settings returns the retention setting.
func (c *Client) Settings(ctx context.Context) (*api.SettingsResponse, error) {
	var out api.SettingsResponse
	if err := c.invoke(ctx, methodGetSettings, &api.Empty{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetRetention stores a new retention window.
func (c *Client) SetRetention(ctx context.Context, days int) (*api.SettingsResponse, error) {
	var out api.SettingsResponse
	if err := c.invoke(ctx, methodSetRetention, &api.RetentionRequest{Days: days}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.invoke(ctx, methodStatus, &api.Empty{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Watch streams events to fn until ctx ends, the stream fails or fn returns
// an error.
func (c *Client) Watch(ctx context.Context, subscriber string, fn func(hub.Event) error) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], methodWatch)
	if err != nil {
		return fromStatus(err)
	}
	if err := stream.SendMsg(&api.WatchRequest{Subscriber: subscriber}); err != nil {
		return fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return fromStatus(err)
	}
	for {
		var ev hub.Event
		if err := stream.RecvMsg(&ev); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return fromStatus(err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// fromStatus turns status codes the server derives from sentinel errors
// back into those sentinels.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), history.ErrNotFound)
	case codes.InvalidArgument:
		if strings.Contains(st.Message(), settings.ErrInvalidRetention.Error()) {
			return fmt.Errorf("%s: %w", st.Message(), settings.ErrInvalidRetention)
		}
	}
	return err
}
