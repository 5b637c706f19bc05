package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
)

type contextKey int

const (
	userSessionContextKey contextKey = iota
)

// WithUserSession returns a context carrying the authenticated session.
func WithUserSession(ctx context.Context, session UserSession) context.Context {
	return context.WithValue(ctx, userSessionContextKey, session)
}

// UserSessionFromContext extracts the authenticated session from the request context.
func UserSessionFromContext(ctx context.Context) (UserSession, bool) {
	session, ok := ctx.Value(userSessionContextKey).(UserSession)
	return session, ok && !session.IsZero()
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(header http.Header) (string, bool) {
	value := header.Get("Authorization")
	token, ok := strings.CutPrefix(value, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// SessionAuthMiddleware creates an HTTP middleware that authenticates requests
// with a bearer session token and adds the UserSession to the request context.
//
// If authentication fails, it calls onError (or writes 401 Unauthorized when nil).
func SessionAuthMiddleware(manager *SessionManager, onError func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, err error) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Header)
			if !ok {
				onError(w, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated))
				return
			}

			session, err := manager.Authenticate(r.Context(), token)
			if err != nil {
				log.Debug().Err(err).Msg("Session auth: authentication failed")
				onError(w, err)
				return
			}

			log.Debug().
				Str("identity_id", session.IdentityID().String()).
				Msg("Session auth: authenticated")

			next.ServeHTTP(w, r.WithContext(WithUserSession(r.Context(), session)))
		})
	}
}

// NewSessionInterceptor authenticates connect requests, skipping the listed public procedures.
func NewSessionInterceptor(manager *SessionManager, publicProcedures ...string) connect.UnaryInterceptorFunc {
	public := make(map[string]struct{}, len(publicProcedures))
	for _, p := range publicProcedures {
		public[p] = struct{}{}
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if _, ok := public[req.Spec().Procedure]; ok {
				return next(ctx, req)
			}

			token, ok := BearerToken(req.Header())
			if !ok {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("missing bearer token"))
			}

			session, err := manager.Authenticate(ctx, token)
			if err != nil {
				if errors.Is(err, ErrUnauthenticated) {
					log.Debug().Err(err).Str("procedure", req.Spec().Procedure).Msg("Session auth: rejected")
					return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or expired session"))
				}
				return nil, connect.NewError(connect.CodeInternal, err)
			}

			return next(WithUserSession(ctx, session), req)
		}
	}
}
