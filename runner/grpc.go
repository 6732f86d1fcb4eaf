package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"web/resalegeo/artifact"
	"web/resalegeo/join"
	"web/resalegeo/pipeline"
	"web/resalegeo/table"
)

const serviceName = "resalegeo.FeatureService"

// FeatureServiceServer is the gRPC surface. Messages are google.protobuf.Struct
// documents carrying the same JSON the HTTP API returns.
type FeatureServiceServer interface {
	Enrich(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Variations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Clusters(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterFeatureServiceServer(s grpc.ServiceRegistrar, srv FeatureServiceServer) {
	s.RegisterService(&featureServiceDesc, srv)
}

type unaryMethod func(FeatureServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(FeatureServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(FeatureServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var featureServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*FeatureServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("Enrich", FeatureServiceServer.Enrich),
		handler("Variations", FeatureServiceServer.Variations),
		handler("ListRuns", FeatureServiceServer.ListRuns),
		handler("LoadRun", FeatureServiceServer.LoadRun),
		handler("Status", FeatureServiceServer.Status),
		handler("Clusters", FeatureServiceServer.Clusters),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "resalegeo/feature_service",
}

// Server adapts a Service to gRPC.
type Server struct {
	svc *Service
}

func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) Enrich(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	out, err := s.svc.Enrich(ctx, table.Record(req.AsMap()))
	return reply(out, err)
}

func (s *Server) Variations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	out, err := s.svc.Variations(ctx, table.Record(req.AsMap()))
	return reply(out, err)
}

func (s *Server) ListRuns(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	runs, err := s.svc.ListRuns(ctx)
	return reply(RunsResponse{Runs: runs}, err)
}

func (s *Server) LoadRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	info, err := s.svc.LoadRun(ctx, id)
	return reply(info, err)
}

func (s *Server) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st, err := s.svc.Status(ctx)
	return reply(st, err)
}

func (s *Server) Clusters(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entity := req.GetFields()["entity"].GetStringValue()
	if entity == "" {
		return nil, status.Error(codes.InvalidArgument, "entity is required")
	}
	view, err := s.svc.Clusters(ctx, entity)
	return reply(view, err)
}

func reply(v interface{}, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, StatusError(err)
	}
	out, err := ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// RequestObserver records handled calls; metrics.Metrics implements it.
type RequestObserver interface {
	ObserveRequest(operation, status string, elapsed time.Duration)
}

// ObserveInterceptor reports every unary call by method name and status
// code.
func ObserveInterceptor(obs RequestObserver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		obs.ObserveRequest("grpc "+path.Base(info.FullMethod), status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

// RecoverInterceptor turns a panicking handler into an Internal error so one
// bad request cannot take the runner down.
func RecoverInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panicked", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				resp, err = nil, status.Errorf(codes.Internal, "%s: internal error", path.Base(info.FullMethod))
			}
		}()
		return next(ctx, req)
	}
}

// StatusError maps pipeline errors to gRPC codes.
func StatusError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var missing *join.MissingCoordinateError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, artifact.ErrNoSnapshot):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, artifact.ErrRunNotFound), errors.Is(err, ErrUnknownEntity):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, pipeline.ErrGeocode):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &missing):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ToStruct converts any JSON-encodable value into a Struct.
func ToStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes a Struct into v through its JSON form.
func FromStruct(s *structpb.Struct, v interface{}) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(data, v)
}
