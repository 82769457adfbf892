package probe

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func passHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func callWithKey(t *testing.T, interceptor grpc.UnaryServerInterceptor, header, key string) (interface{}, error) {
	t.Helper()
	ctx := context.Background()
	if key != "" {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(header, key))
	}
	return interceptor(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
}

func TestAPIKeyInterceptor(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		key      string
		sent     string
		wantCode codes.Code
	}{
		{"mode none passes", "none", "secret", "", codes.OK},
		{"unset key passes", "apikey", "", "", codes.OK},
		{"correct key", "apikey", "secret", "secret", codes.OK},
		{"wrong key", "apikey", "secret", "nope", codes.Unauthenticated},
		{"missing metadata", "apikey", "secret", "", codes.Unauthenticated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			i := APIKeyInterceptor(tc.mode, "x-api-key", tc.key)
			res, err := callWithKey(t, i, "x-api-key", tc.sent)
			if code := status.Code(err); code != tc.wantCode {
				t.Fatalf("code: got %v, want %v", code, tc.wantCode)
			}
			if tc.wantCode == codes.OK && res != "ok" {
				t.Errorf("result: got %v, want ok", res)
			}
		})
	}
}

func TestAPIKeyInterceptor_MissingHeader(t *testing.T) {
	i := APIKeyInterceptor("apikey", "x-api-key", "secret")
	ctx := metadata.NewIncomingContext(context.Background(), metadata.MD{})
	_, err := i(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
	if code := status.Code(err); code != codes.Unauthenticated {
		t.Errorf("code: got %v, want Unauthenticated", code)
	}
}

func TestAPIKeyInterceptor_CustomHeader(t *testing.T) {
	i := APIKeyInterceptor("apikey", "x-drivewatch-key", "secret")
	if _, err := callWithKey(t, i, "x-drivewatch-key", "secret"); err != nil {
		t.Errorf("custom header: unexpected error %v", err)
	}
	if _, err := callWithKey(t, i, "x-api-key", "secret"); status.Code(err) != codes.Unauthenticated {
		t.Errorf("default header with custom configured: got %v, want Unauthenticated", err)
	}
}

type stubStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s stubStream) Context() context.Context { return s.ctx }

func TestAPIKeyStreamInterceptor(t *testing.T) {
	i := APIKeyStreamInterceptor("apikey", "x-api-key", "secret")
	called := false
	handler := func(srv interface{}, ss grpc.ServerStream) error {
		called = true
		return nil
	}

	err := i(nil, stubStream{ctx: context.Background()}, &grpc.StreamServerInfo{}, handler)
	if status.Code(err) != codes.Unauthenticated || called {
		t.Fatalf("no key: err %v called %v", err, called)
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "secret"))
	if err := i(nil, stubStream{ctx: ctx}, &grpc.StreamServerInfo{}, handler); err != nil {
		t.Fatalf("valid key: %v", err)
	}
	if !called {
		t.Error("handler not called with valid key")
	}
}
