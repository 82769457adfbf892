package probe

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/drivewatch/drivewatch/internal/config"
)

// APIKeyInterceptor returns a UnaryServerInterceptor that enforces API key
// authentication on every call.
//
// If mode != "apikey" or key == "", all calls pass through. Otherwise the
// value of header in the incoming metadata must equal key; a missing or wrong
// key returns codes.Unauthenticated. header must be lowercase.
func APIKeyInterceptor(mode, header, key string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if err := checkKey(ctx, mode, header, key); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// APIKeyStreamInterceptor is the streaming counterpart of APIKeyInterceptor.
// It guards Health/Watch.
func APIKeyStreamInterceptor(mode, header, key string) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := checkKey(ss.Context(), mode, header, key); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// interceptors builds both interceptors from an auth config.
func interceptors(auth config.AuthConfig) []grpc.ServerOption {
	mode, header, key := auth.Mode, auth.EffectiveHeader(), auth.Key()
	return []grpc.ServerOption{
		grpc.UnaryInterceptor(APIKeyInterceptor(mode, header, key)),
		grpc.StreamInterceptor(APIKeyStreamInterceptor(mode, header, key)),
	}
}

func checkKey(ctx context.Context, mode, header, key string) error {
	if mode != "apikey" || key == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get(header)
	if len(vals) == 0 || subtle.ConstantTimeCompare([]byte(vals[0]), []byte(key)) != 1 {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return nil
}
