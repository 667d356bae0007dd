package devprovider

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aussiebroadwan/bkpk/pkg/bkpk"
	"github.com/aussiebroadwan/bkpk/pkg/bkpk/bus"
	"github.com/aussiebroadwan/bkpk/pkg/httpx"
	"github.com/aussiebroadwan/bkpk/pkg/slogx"
)

//go:embed templates/message.html
var messageHTML string

var messageTmpl = template.Must(template.New("message").Parse(messageHTML))

// AuthorizeHandler serves GET /authorize for both completion protocols.
// OAuth parameter names (client_id, ...) select the redirect protocol;
// clientId and friends select the message protocol page.
type AuthorizeHandler struct {
	Provider *Provider
}

func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("client_id") {
		h.redirect(w, r, q)
		return
	}
	h.message(w, r, q)
}

// redirect answers with a 302 to redirect_uri carrying the grant or an
// OAuth error. An unusable redirect_uri is reported as JSON instead.
func (h *AuthorizeHandler) redirect(w http.ResponseWriter, r *http.Request, q url.Values) {
	log := slogx.FromContext(r.Context())

	redirectURI, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || (redirectURI.Scheme != "http" && redirectURI.Scheme != "https") || redirectURI.Host == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "missing or invalid redirect_uri")
		return
	}

	clientID := q.Get("client_id")
	state := q.Get("state")
	params := url.Values{}

	switch scopes, ok := h.Provider.grantable(httpx.ParseSpaceDelimitedFields(q.Get("scope"))); {
	case !h.Provider.knownClient(clientID):
		params.Set("error", "unauthorized_client")
		params.Set("error_description", "unknown client_id")

	case !ok:
		params.Set("error", "invalid_scope")
		params.Set("error_description", "requested scope is not available")

	case q.Get("response_type") == string(bkpk.ResponseTypeToken):
		token, _, err := h.Provider.mintToken(clientID, scopes)
		if err != nil {
			log.Error("failed to mint token", "err", err)
			params.Set("error", "server_error")
			break
		}
		params.Set("token_type", "Bearer")
		params.Set("access_token", token)
		params.Set("expires_in", strconv.FormatInt(int64(h.Provider.cfg.TokenTTL/time.Second), 10))

	case q.Get("response_type") == string(bkpk.ResponseTypeCode):
		code, err := h.Provider.mintCode(clientID, scopes, q.Get("redirect_uri"))
		if err != nil {
			log.Error("failed to mint code", "err", err)
			params.Set("error", "server_error")
			break
		}
		params.Set("code", code)

	default:
		params.Set("error", "unsupported_response_type")
	}

	if state != "" {
		params.Set("state", state)
	}

	log.Debug("authorize redirect", "client_id", clientID, "error", params.Get("error"))

	target := *redirectURI
	merged := target.Query()
	for k, v := range params {
		merged[k] = v
	}
	target.RawQuery = merged.Encode()

	httpx.NoCache(w)
	http.Redirect(w, r, target.String(), http.StatusFound)
}

type messagePage struct {
	Events []json.RawMessage
	Relay  string
}

// message renders the page that posts bus events to the opener.
func (h *AuthorizeHandler) message(w http.ResponseWriter, r *http.Request, q url.Values) {
	page := messagePage{
		Events: h.messageEvents(r, q),
		Relay:  h.Provider.cfg.Relay,
	}

	httpx.NoCache(w)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = messageTmpl.Execute(w, page)
}

// messageEvents runs the authorization through a bus and returns the
// encoded events in the order the page posts them.
func (h *AuthorizeHandler) messageEvents(r *http.Request, q url.Values) []json.RawMessage {
	log := slogx.FromContext(r.Context())

	events := []json.RawMessage{}
	poster := bus.PosterFunc(func(data []byte) error {
		events = append(events, data)
		return nil
	})

	b, err := bus.FromQuery(q, poster)
	if err != nil {
		log.Debug("invalid message authorize request", "err", err)
		return events
	}

	if !h.Provider.knownClient(b.ClientID()) {
		_ = b.Error("unauthorized_client", map[string]string{"clientId": b.ClientID()})
		return events
	}

	scopes, ok := h.Provider.grantable(b.Scopes())
	if !ok {
		_ = b.Error("invalid_scope", nil)
		return events
	}

	switch b.ResponseType() {
	case bkpk.ResponseTypeToken:
		token, expiresAt, err := h.Provider.mintToken(b.ClientID(), scopes)
		if err != nil {
			log.Error("failed to mint token", "err", err)
			_ = b.Error("server_error", nil)
			break
		}
		_ = b.Debug("issued token", "scopes", scopes)
		_ = b.ResultToken(token, expiresAt)

	case bkpk.ResponseTypeCode:
		code, err := h.Provider.mintCode(b.ClientID(), scopes, "")
		if err != nil {
			log.Error("failed to mint code", "err", err)
			_ = b.Error("server_error", nil)
			break
		}
		_ = b.ResultCode(code)
	}

	return events
}
