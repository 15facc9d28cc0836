package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BidumanADT/BellwoodAuthServer/internal/audit"
	"github.com/BidumanADT/BellwoodAuthServer/internal/auth"
	"github.com/BidumanADT/BellwoodAuthServer/internal/obs"
)

const defaultScope = "api.rides offline_access"

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
}

// loginResponse carries both snake_case and camelCase keys for client
// interop.
type loginResponse struct {
	AccessToken       string    `json:"access_token"`
	AccessTokenCamel  string    `json:"accessToken"`
	RefreshToken      string    `json:"refresh_token"`
	RefreshTokenCamel string    `json:"refreshToken"`
	TokenType         string    `json:"token_type"`
	ExpiresAt         time.Time `json:"expires_at"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleConnectToken is the RFC 6749 form-encoded token endpoint for the
// password and refresh_token grants.
func (a *API) handleConnectToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid form body")
		return
	}

	grantType := strings.TrimSpace(r.PostFormValue("grant_type"))
	req := auth.GrantRequest{
		GrantType:    grantType,
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		RefreshToken: r.PostFormValue("refresh_token"),
	}
	scope := strings.TrimSpace(r.PostFormValue("scope"))
	if scope == "" {
		scope = defaultScope
	}

	pair, err := a.issuer.Grant(r.Context(), req)
	if err != nil {
		obs.ObserveTokenGrant(grantType, "failure")
		switch {
		case errors.Is(err, auth.ErrUnsupportedGrantType):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
		case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidRefreshToken):
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_grant"})
		case errors.Is(err, auth.ErrAccountDisabled):
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "account_disabled"})
		default:
			writeError(w, r, http.StatusInternalServerError, "token issuance failed")
		}
		return
	}

	obs.ObserveTokenGrant(grantType, "success")
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"grant_type": grantType,
		"expires_at": pair.ExpiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(a.issuer.AccessTTL().Seconds()),
		Scope:        scope,
		RefreshToken: pair.RefreshToken,
	})
}

// handleLogin is the JSON login endpoint used by the mobile clients.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	pair, err := a.issuer.PasswordGrant(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"username": req.Username})
			writeError(w, r, http.StatusUnauthorized, "invalid username or password")
		case errors.Is(err, auth.ErrAccountDisabled):
			writeError(w, r, http.StatusForbidden, "account is disabled")
		default:
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]any{"username": req.Username})
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:       pair.AccessToken,
		AccessTokenCamel:  pair.AccessToken,
		RefreshToken:      pair.RefreshToken,
		RefreshTokenCamel: pair.RefreshToken,
		TokenType:         "Bearer",
		ExpiresAt:         pair.ExpiresAt,
	})
}

// handleMe echoes the authenticated principal and its claims.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	claims := []auth.ClaimRecord{
		{Type: auth.ClaimSubject, Value: principal.Username},
		{Type: auth.ClaimUID, Value: principal.UID},
		{Type: auth.ClaimUserID, Value: principal.UserID},
	}
	for _, role := range principal.Roles {
		claims = append(claims, auth.ClaimRecord{Type: auth.ClaimRole, Value: role})
	}
	if principal.Email != "" {
		claims = append(claims, auth.ClaimRecord{Type: auth.ClaimEmail, Value: principal.Email})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":   principal.Username,
		"claims": claims,
	})
}
