package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-permits-portal/internal/platform/auth"
	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
	"github.com/pesio-ai/be-permits-portal/internal/service"
	"github.com/pesio-ai/be-permits-portal/internal/workflow"
)

// ApplicationServiceName is the fully qualified gRPC service name.
const ApplicationServiceName = "permits.v1.ApplicationService"

// ApplicationServiceServer is the gRPC surface for reviewers and back-office
// tools. Messages are google.protobuf.Struct values with the same field names
// as the HTTP API.
type ApplicationServiceServer interface {
	GetApplication(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionApplication(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTimeline(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterApplicationServiceServer registers srv with s.
func RegisterApplicationServiceServer(s grpc.ServiceRegistrar, srv ApplicationServiceServer) {
	s.RegisterService(&applicationServiceDesc, srv)
}

var applicationServiceDesc = grpc.ServiceDesc{
	ServiceName: ApplicationServiceName,
	HandlerType: (*ApplicationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetApplication", Handler: unaryHandler("GetApplication", ApplicationServiceServer.GetApplication)},
		{MethodName: "TransitionApplication", Handler: unaryHandler("TransitionApplication", ApplicationServiceServer.TransitionApplication)},
		{MethodName: "GetTimeline", Handler: unaryHandler("GetTimeline", ApplicationServiceServer.GetTimeline)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "permits/v1/application.proto",
}

type structMethod func(ApplicationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call structMethod) grpc.MethodHandler {
	fullMethod := "/" + ApplicationServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ApplicationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ApplicationServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var _ ApplicationServiceServer = (*GRPCHandler)(nil)

// GRPCHandler implements ApplicationServiceServer
type GRPCHandler struct {
	service *service.ApplicationService
	logger  zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(svc *service.ApplicationService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		service: svc,
		logger:  logger.With().Str("handler", "grpc").Logger(),
	}
}

// actor extracts the authenticated caller from context.
func actor(ctx context.Context) (service.Actor, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return service.Actor{}, status.Error(codes.Unauthenticated, err.Error())
	}
	return service.Actor{UserID: uc.UserID, Email: uc.Email, Role: uc.Role}, nil
}

// GetApplication returns one application with its history.
func (h *GRPCHandler) GetApplication(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	id := stringField(req, "id")
	h.logger.Debug().Str("application_id", id).Msg("gRPC GetApplication called")

	app, err := h.service.Get(ctx, a, id)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(newApplicationResponse(app))
}

// TransitionApplication changes the status of an application.
func (h *GRPCHandler) TransitionApplication(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	id := stringField(req, "id")
	target, err := workflow.ParseStatus(stringField(req, "status"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	h.logger.Info().
		Str("application_id", id).
		Str("status", string(target)).
		Str("actor_id", a.UserID).
		Msg("gRPC TransitionApplication called")

	app, err := h.service.Transition(ctx, a, id, target, stringField(req, "comment"), stringField(req, "revision_instructions"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(newApplicationResponse(app))
}

// GetTimeline returns the progress steps of an application.
func (h *GRPCHandler) GetTimeline(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	steps, err := h.service.Timeline(ctx, a, stringField(req, "id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]any{"steps": steps})
}

func stringField(s *structpb.Struct, name string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[name].GetStringValue()
}

// toStruct converts v through its JSON form so that gRPC and HTTP responses
// share field names.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// mapErrorToGRPC converts service errors to gRPC status errors
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	if errors.Is(err, workflow.ErrConcurrentModification) {
		return status.Error(codes.Aborted, errMsg)
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, errMsg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, errMsg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, errMsg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, errMsg)
	case errors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, errMsg)
	case errors.ErrCodeIO:
		return status.Error(codes.Unavailable, errMsg)
	default:
		return status.Error(codes.Internal, errMsg)
	}
}
