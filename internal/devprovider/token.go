package devprovider

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/bkpk/pkg/httpx"
	"github.com/aussiebroadwan/bkpk/pkg/slogx"
)

// TokenError is an RFC 6749 error body.
type TokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// TokenResponse is the body of a successful code exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// TokenHandler serves POST /token, redeeming authorization codes issued by
// GET /authorize. Only the authorization_code grant is supported and no
// client secret is checked.
type TokenHandler struct {
	Provider *Provider
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		writeTokenError(w, http.StatusBadRequest, "invalid_request", "unsupported content type")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeTokenError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	if r.Form.Get("grant_type") != "authorization_code" {
		writeTokenError(w, http.StatusBadRequest, "unsupported_grant_type", "")
		return
	}

	code := strings.TrimSpace(r.Form.Get("code"))
	clientID := strings.TrimSpace(r.Form.Get("client_id"))
	if code == "" || clientID == "" {
		writeTokenError(w, http.StatusBadRequest, "invalid_request", "code and client_id are required")
		return
	}

	scopes, err := h.Provider.redeemCode(code, clientID, strings.TrimSpace(r.Form.Get("redirect_uri")))
	if err != nil {
		if !errors.Is(err, ErrInvalidGrant) {
			slogx.FromContext(r.Context()).Error("code redemption failed", "err", err)
		}
		writeTokenError(w, http.StatusBadRequest, "invalid_grant", "")
		return
	}

	token, _, err := h.Provider.mintToken(clientID, scopes)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to mint token", "err", err)
		writeTokenError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.Provider.cfg.TokenTTL / time.Second),
		Scope:       strings.Join(scopes, " "),
	})
}

func writeTokenError(w http.ResponseWriter, status int, code, desc string) {
	httpx.WriteJSON(w, status, TokenError{Error: code, ErrorDescription: desc})
}
