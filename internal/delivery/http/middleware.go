package http

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitchside/tacticsroom/config"
	"github.com/pitchside/tacticsroom/internal/delivery"
	"github.com/pitchside/tacticsroom/internal/models"
)

// AuthMiddleware verifies the platform-issued JWT and puts the resulting
// user identity into the request context. The token may arrive as a Bearer
// header or, for WebSocket upgrades where headers are awkward for browser
// clients, as a "token" query parameter.
func AuthMiddleware(cfg config.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				tokenStr = r.URL.Query().Get("token")
			}
			if tokenStr == "" {
				unauthorized(w, "missing credentials")
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(cfg.Secret), nil
			})
			if err != nil || !token.Valid {
				unauthorized(w, "invalid token")
				return
			}

			user, ok := userFromClaims(claims)
			if !ok {
				unauthorized(w, "invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(delivery.UserToContext(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func userFromClaims(claims jwt.MapClaims) (models.User, bool) {
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return models.User{}, false
	}

	name, _ := claims["user_name"].(string)
	role := models.UserRoleUser
	if r, ok := claims["role"].(string); ok && models.UserRole(r) == models.UserRoleAdmin {
		role = models.UserRoleAdmin
	}

	return models.User{ID: id, Name: name, Role: role}, true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `","code":401}`))
}
