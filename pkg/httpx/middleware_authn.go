package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/bkpk/pkg/jwtx"
	"github.com/aussiebroadwan/bkpk/pkg/slogx"
)

// BearerAuth admits requests carrying an access token v accepts and puts its
// claims in the request context. Anything else gets 401 with an RFC 6750
// WWW-Authenticate challenge.
func BearerAuth(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			raw = strings.TrimSpace(raw)
			if !ok || scheme != "Bearer" || raw == "" {
				challenge(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				slogx.FromContext(r.Context()).Warn("rejected bearer token", "err", err)
				challenge(w, "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithAuth(r.Context(), claims)))
		})
	}
}

func challenge(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
