package httpapi

import (
	"net/http"
	"strings"
	"time"

	"vaultbid.org/internal/audit"
	"vaultbid.org/internal/auth"
)

type tokenRequest struct {
	Address string `json:"address"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		writeErrorCode(w, r, http.StatusBadRequest, "bad_request", "address is required")
		return
	}
	if len(address) > 64 {
		writeErrorCode(w, r, http.StatusBadRequest, "bad_request", "address must be <=64 characters")
		return
	}

	token, err := auth.GenerateToken(address, tokenTTL)
	if err != nil {
		writeErrorCode(w, r, http.StatusInternalServerError, "internal", "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"address":    address,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
