package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vaultbid.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Reads are public; only state-changing endpoints require a token.
var publicPaths = []string{
	"/v1/auth/token",
	"/v1/auctions",
	"/v1/stream",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeErrorCode(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				writeErrorCode(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
			default:
				writeErrorCode(w, r, http.StatusInternalServerError, "internal", "authentication error")
			}
			return
		}

		ctx := auth.ContextWithAddress(r.Context(), claims.Address())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerAddress returns the authenticated address or writes a 401.
func (a *API) callerAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	address, ok := auth.AddressFromContext(r.Context())
	if !ok {
		writeErrorCode(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return "", false
	}
	return address, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
