package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"
)

type contextKey string

const UserIDContextKey contextKey = "user_id"

// Auth is header-based auth suitable for internal VPN deployments. For
// production with external access, consider OAuth2/OIDC, JWT, or API keys.
func Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			userID = "default_user"
		}

		if !isValidUserID(userID) {
			log.Printf("HTTP 400: invalid user ID format: %q (path=%s)", userID, r.URL.Path)
			http.Error(w, "invalid user ID format", http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDContextKey).(string)
	return userID
}

func isValidUserID(userID string) bool {
	if userID == "" || len(userID) > 255 {
		return false
	}
	for _, ch := range userID {
		if !((ch >= 'a' && ch <= 'z') ||
			(ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '_' || ch == '.' || ch == '@') {
			return false
		}
	}
	return true
}
