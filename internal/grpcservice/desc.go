package grpcservice

import (
	"context"

	"google.golang.org/grpc"

	"go.klb.dev/clipvault/internal/api"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "clipvault.v1.History"

// Method names as they appear on the wire.
const (
	methodList         = "/" + ServiceName + "/List"
	methodGet          = "/" + ServiceName + "/Get"
	methodDelete       = "/" + ServiceName + "/Delete"
	methodClear        = "/" + ServiceName + "/Clear"
	methodPrune        = "/" + ServiceName + "/Prune"
	methodPaste        = "/" + ServiceName + "/Paste"
	methodGetSettings  = "/" + ServiceName + "/GetSettings"
	methodSetRetention = "/" + ServiceName + "/SetRetention"
	methodStatus       = "/" + ServiceName + "/Status"
	methodWatch        = "/" + ServiceName + "/Watch"
)

// historyServer is the handler type the descriptor dispatches to.
type historyServer interface {
	List(context.Context, *api.ListRequest) (*api.ListResponse, error)
	Get(context.Context, *api.IDRequest) (*api.Item, error)
	Delete(context.Context, *api.IDRequest) (*api.Empty, error)
	Clear(context.Context, *api.Empty) (*api.Empty, error)
	Prune(context.Context, *api.Empty) (*api.PruneResponse, error)
	Paste(context.Context, *api.PasteRequest) (*api.PasteResponse, error)
	GetSettings(context.Context, *api.Empty) (*api.SettingsResponse, error)
	SetRetention(context.Context, *api.RetentionRequest) (*api.SettingsResponse, error)
	Status(context.Context, *api.Empty) (*api.StatusResponse, error)
	Watch(*api.WatchRequest, grpc.ServerStream) error
}

var _ historyServer = (*Service)(nil)

// unary adapts a typed method into a grpc.MethodHandler.
func unary[Req, Resp any](name string, call func(historyServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(historyServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(historyServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(api.WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(historyServer).Watch(in, stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*historyServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("List", historyServer.List),
		unary("Get", historyServer.Get),
		unary("Delete", historyServer.Delete),
		unary("Clear", historyServer.Clear),
		unary("Prune", historyServer.Prune),
		unary("Paste", historyServer.Paste),
		unary("GetSettings", historyServer.GetSettings),
		unary("SetRetention", historyServer.SetRetention),
		unary("Status", historyServer.Status),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Watch",
		Handler:       watchHandler,
		ServerStreams: true,
	}},
}

// Register attaches svc to s.
func Register(s *grpc.Server, svc *Service) {
	s.RegisterService(&serviceDesc, svc)
}
