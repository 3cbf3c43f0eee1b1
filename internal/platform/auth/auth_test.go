package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
)

type staticVerifier map[string]*UserContext

func (v staticVerifier) Verify(_ context.Context, token string) (*UserContext, error) {
	if uc, ok := v[token]; ok {
		return uc, nil
	}
	return nil, errors.New(errors.ErrCodeUnauthorized, "invalid token")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func TestGetUserContextMissing(t *testing.T) {
	_, err := GetUserContext(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
}

func TestMiddleware(t *testing.T) {
	v := staticVerifier{"good": {UserID: "u1", Role: "client"}}
	var seen *UserContext
	h := Middleware(v, func(w http.ResponseWriter, _ *http.Request, _ error) {
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer bad")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UserID)
}

func TestUnaryServerInterceptor(t *testing.T) {
	v := staticVerifier{"good": {UserID: "admin-1", Role: "admin"}}
	icpt := UnaryServerInterceptor(v, "/grpc.health.v1.Health/Check")
	handler := func(ctx context.Context, _ any) (any, error) {
		uc, err := GetUserContext(ctx)
		if err != nil {
			return "anonymous", nil
		}
		return uc.UserID, nil
	}

	out, err := icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", out)

	_, err = icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer good"))
	out, err = icpt(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", out)
}
