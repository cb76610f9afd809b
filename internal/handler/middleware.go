package handler

import (
	"CatalogAuth/internal/logging"
	"CatalogAuth/internal/security"
	"CatalogAuth/internal/verifier"
	"context"
	"github.com/go-chi/chi/v5/middleware"
	"net/http"
	"time"
)

type contextKey struct{}

var claimsKey = contextKey{}

type sessionVerifier interface {
	Verify(request *http.Request) verifier.Verdict
}

// RequireSession lets a request through only with a live session. Rotated
// pairs are written back as cookies on the same response.
func RequireSession(v sessionVerifier, cookies CookiePolicy, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			verdict := v.Verify(request)
			if verdict.Err != nil {
				log.Error(request.Context(), "проверка сессии не удалась", "error", verdict.Err)
				writeError(writer, http.StatusInternalServerError, "internal_error")
				return
			}
			if !verdict.Valid {
				writeJSON(writer, http.StatusUnauthorized, &AuthStatusResponse{})
				return
			}

			if verdict.Refreshed != nil {
				cookies.SetSession(writer, verdict.Refreshed)
			}

			ctx := context.WithValue(request.Context(), claimsKey, verdict.Claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

func ClaimsFrom(ctx context.Context) (*security.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*security.AccessClaims)
	return claims, ok && claims != nil
}

// RequestLogger writes one line per request through the structured logger.
func RequestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			ww := middleware.NewWrapResponseWriter(writer, request.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info(request.Context(), "request",
					"method", request.Method,
					"path", request.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(request.Context()),
				)
			}()
			next.ServeHTTP(ww, request)
		})
	}
}
