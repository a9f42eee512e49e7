// Package grpcservice implements the clipvault.v1.History gRPC service. The
// messages are the plain structs in internal/api carried by a JSON codec, so
// no generated code is involved.
package grpcservice

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipvault/internal/api"
	"go.klb.dev/clipvault/internal/history"
	"go.klb.dev/clipvault/internal/logging"
	"go.klb.dev/clipvault/internal/pasteback"
	"go.klb.dev/clipvault/internal/settings"
)

// Service implements clipvault.v1.History on top of an engine.
type Service struct {
	eng     api.Engine
	token   string // empty = no auth
	version string
	logger  *slog.Logger
}

// New returns a Service backed by eng. token may be empty to disable auth;
// callers on the Unix socket are never asked for it.
func New(eng api.Engine, token, version string) *Service {
	return &Service{
		eng:     eng,
		token:   token,
		version: version,
		logger:  logging.Component("grpc"),
	}
}

// List implements History.List.
func (s *Service) List(ctx context.Context, req *api.ListRequest) (*api.ListResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	items, err := api.List(ctx, s.eng, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ListResponse{Items: items}, nil
}

// Get implements History.Get.
func (s *Service) Get(ctx context.Context, req *api.IDRequest) (*api.Item, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	it, err := s.eng.Get(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.FromHistory([]history.Item{it})[0], nil
}

// Delete implements History.Delete.
func (s *Service) Delete(ctx context.Context, req *api.IDRequest) (*api.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if err := s.eng.Delete(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// Clear implements History.Clear.
func (s *Service) Clear(ctx context.Context, _ *api.Empty) (*api.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	if err := s.eng.Clear(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// Prune implements History.Prune.
func (s *Service) Prune(ctx context.Context, _ *api.Empty) (*api.PruneResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	n, err := s.eng.Prune(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.PruneResponse{Deleted: n}, nil
}

// Paste implements History.Paste.
func (s *Service) Paste(ctx context.Context, req *api.PasteRequest) (*api.PasteResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	res, err := s.eng.Paste(ctx, req.ID, req.Open)
	if err != nil {
		return nil, toStatus(err)
	}
	s.logger.Debug("paste-back via rpc", "id", req.ID, "open", req.Open, "result", res, "caller", addrFromCtx(ctx))
	return &api.PasteResponse{Result: res.String()}, nil
}

// GetSettings implements History.GetSettings.
func (s *Service) GetSettings(ctx context.Context, _ *api.Empty) (*api.SettingsResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	return api.FromRetention(s.eng.Retention()), nil
}

// SetRetention implements History.SetRetention.
func (s *Service) SetRetention(ctx context.Context, req *api.RetentionRequest) (*api.SettingsResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	if err := s.eng.SetRetention(ctx, req.Days); err != nil {
		return nil, toStatus(err)
	}
	return api.FromRetention(s.eng.Retention()), nil
}

// Status implements History.Status.
func (s *Service) Status(ctx context.Context, _ *api.Empty) (*api.StatusResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	st, err := s.eng.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.StatusResponse{Status: st, Version: s.version}, nil
}

// Watch implements History.Watch. It streams engine notifications until the
// client goes away.
func (s *Service) Watch(req *api.WatchRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	if err := s.auth(ctx); err != nil {
		return err
	}

	name := req.Subscriber
	if name == "" {
		name = addrFromCtx(ctx)
	}
	sub := s.eng.Subscribe("grpc:" + name)
	defer sub.Close()

	s.logger.Info("watch started", "subscriber", name)
	defer s.logger.Info("watch ended", "subscriber", name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := stream.SendMsg(&ev); err != nil {
				return err
			}
		}
	}
}

// auth validates the bearer token in ctx metadata. Skipped when s.token is
// empty or the caller is on the local socket.
func (s *Service) auth(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil && p.Addr.Network() == "unix" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}
	if subtle.ConstantTimeCompare([]byte(vals[0]), []byte("Bearer "+s.token)) != 1 {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// toStatus maps engine errors to gRPC status codes.
func toStatus(err error) error {
	var of *pasteback.OpenFailure
	switch {
	case errors.Is(err, history.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &of):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, settings.ErrInvalidRetention):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
