package credentials

import (
	"context"
	"errors"

	"connectrpc.com/connect"
)

// AuthInterceptor adds the profile's session token to Connect RPC requests.
type AuthInterceptor struct {
	token string
}

// NewAuthInterceptor creates an interceptor for a signed-in profile.
func NewAuthInterceptor(profile *Profile) (*AuthInterceptor, error) {
	if !profile.SignedIn() {
		return nil, errors.Join(ErrNotSignedIn, errors.New("run: rubberband login --profile "+profile.Name))
	}
	return &AuthInterceptor{token: profile.AccessToken}, nil
}

// WrapUnary implements connect.Interceptor.
func (i *AuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		req.Header().Set("Authorization", "Bearer "+i.token)
		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *AuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		conn.RequestHeader().Set("Authorization", "Bearer "+i.token)
		return conn
	}
}

// WrapStreamingHandler is not used for client interceptors.
func (i *AuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
