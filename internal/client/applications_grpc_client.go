package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const applicationService = "/permits.v1.ApplicationService/"

// ApplicationsGRPCClient calls the portal's ApplicationService. It is used by
// the operator CLI.
type ApplicationsGRPCClient struct {
	conn *grpc.ClientConn
}

// NewApplicationsGRPCClient dials addr. A non-empty token is sent as the
// bearer token on every call; otherwise incoming metadata is forwarded.
func NewApplicationsGRPCClient(addr, token string, opts ...grpc.DialOption) (*ApplicationsGRPCClient, error) {
	dial := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(forwardMetadata, bearerToken(token)),
	}
	conn, err := grpc.NewClient(addr, append(dial, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial applications service: %w", err)
	}
	return &ApplicationsGRPCClient{conn: conn}, nil
}

// Close releases the underlying gRPC connection.
func (c *ApplicationsGRPCClient) Close() error {
	return c.conn.Close()
}

// GetApplication returns the application as a JSON-shaped map.
func (c *ApplicationsGRPCClient) GetApplication(ctx context.Context, id string) (map[string]any, error) {
	return c.call(ctx, "GetApplication", map[string]any{"id": id})
}

// TransitionApplication moves an application to status.
func (c *ApplicationsGRPCClient) TransitionApplication(ctx context.Context, id, status, comment, revisionInstructions string) (map[string]any, error) {
	return c.call(ctx, "TransitionApplication", map[string]any{
		"id":                    id,
		"status":                status,
		"comment":               comment,
		"revision_instructions": revisionInstructions,
	})
}

// GetTimeline returns the progress steps of an application.
func (c *ApplicationsGRPCClient) GetTimeline(ctx context.Context, id string) (map[string]any, error) {
	return c.call(ctx, "GetTimeline", map[string]any{"id": id})
}

func (c *ApplicationsGRPCClient) call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, applicationService+method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
