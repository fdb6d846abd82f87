package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/markwoz/kart-league/handlers"
	"github.com/markwoz/kart-league/models"
	"github.com/markwoz/kart-league/services"
)

type Authenticator struct {
	authService services.AuthService
}

func NewAuthenticator(authService services.AuthService) *Authenticator {
	return &Authenticator{authService: authService}
}

// Authenticate resolves a bearer token into a models.Identity and stores it in
// the request context. Requests without a token pass through as anonymous
// spectators; a present but invalid token is rejected.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			http.Error(w, "malformed Authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := a.authService.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		playerID := claims.PlayerID
		identity := models.Identity{
			IsAdmin:  claims.Role == models.RoleAdmin,
			PlayerID: &playerID,
		}
		ctx := context.WithValue(r.Context(), handlers.IdentityContextKey(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := handlers.IdentityFromContext(r)
		if identity.PlayerID == nil && !identity.IsAdmin {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects everyone but admins.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !handlers.IdentityFromContext(r).IsAdmin {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
