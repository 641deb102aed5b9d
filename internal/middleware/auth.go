package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/sirupsen/logrus"
)

type contextKey string

const userContextKey contextKey = "user"

// Authenticator resolves the user a bearer token belongs to
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the resolved user in the request context
func AuthMiddleware(auth Authenticator, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Access token required")
				return
			}

			user, err := auth.Authenticate(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				if errors.Is(err, models.ErrUnauthenticated) {
					writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Invalid or expired access token")
					return
				}
				log.WithError(err).Error("Failed to authenticate request")
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RoleMiddleware allows only users holding one of the given roles.
// It must run after AuthMiddleware.
func RoleMiddleware(allowed ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Unauthorized")
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "FORBIDDEN", "You don't have permission to access this resource")
		})
	}
}

// AdminOnly allows only ROLE_ADMIN
func AdminOnly() func(http.Handler) http.Handler {
	return RoleMiddleware(models.RoleAdmin)
}

// WithUser returns a copy of ctx carrying user
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user stored by AuthMiddleware
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok && user != nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
