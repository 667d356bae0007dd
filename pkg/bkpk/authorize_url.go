package bkpk

import (
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/bkpk/pkg/cryptox"
)

const (
	// DefaultBaseURL is the identity provider hosting the authorization page.
	DefaultBaseURL = "https://bkpk.io"

	// DefaultAPIURL is the Bkpk REST API.
	DefaultAPIURL = "https://api.bkpk.io"

	// AuthorizePath is appended to the base URL to reach the authorization page.
	AuthorizePath = "/authorize"

	// CallbackPath is appended to the host origin to build the default
	// redirect URI of the redirect protocol.
	CallbackPath = "/callback"

	// DefaultStateLength is the length of generated CSRF state values.
	DefaultStateLength = 10
)

// RequiredScopes are requested when the caller does not pass any.
var RequiredScopes = []string{"avatars:read"}

// AuthorizationRequest holds everything needed for one Authorize call.
type AuthorizationRequest struct {
	ClientID     string
	ResponseType ResponseType

	// Scopes defaults to RequiredScopes
	Scopes []string

	// State is only sent for the code flow; generated if empty
	State string

	Features Features

	// BaseURL defaults to DefaultBaseURL
	BaseURL string

	// RedirectURI is required by the redirect protocol. Authorize defaults
	// it to the host origin + CallbackPath.
	RedirectURI string

	// Protocol defaults to ProtocolRedirect
	Protocol Protocol

	// RetryOnGesture retries a blocked popup once on the next user gesture
	// instead of failing immediately.
	RetryOnGesture bool

	// Verbose logs debug events and remote error details
	Verbose bool
}

// validate checks the caller configuration. It never touches a window.
func (r *AuthorizationRequest) validate() error {
	if strings.TrimSpace(r.ClientID) == "" {
		return ErrMissingClientID
	}
	if !r.ResponseType.Valid() {
		return ErrInvalidResponseType
	}
	u, err := url.Parse(r.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidBaseURL
	}
	if r.Protocol == ProtocolRedirect && r.RedirectURI == "" {
		return ErrMissingRedirectURI
	}
	return nil
}

// providerOrigin is the only origin messages are accepted from.
func (r *AuthorizationRequest) providerOrigin() string {
	return parseOrigin(r.BaseURL)
}

// BuildAuthorizationURL constructs the authorization page URL for req.
// The redirect protocol uses OAuth parameter names (client_id,
// response_type, redirect_uri, scope, state); the message protocol uses
// clientId, responseType, scopes and state. State is only included for the
// code flow; an empty one is replaced by a fresh DefaultStateLength value,
// readable back from the URL's state parameter.
//
// Example:
//
//	u, _ := bkpk.BuildAuthorizationURL(bkpk.AuthorizationRequest{
//	    ClientID:     "abc",
//	    ResponseType: bkpk.ResponseTypeCode,
//	    Scopes:       []string{"avatars:read"},
//	    State:        "xyz",
//	    BaseURL:      "https://bkpk.io",
//	    Protocol:     bkpk.ProtocolMessage,
//	})
//	// https://bkpk.io/authorize?clientId=abc&responseType=code&scopes=avatars%3Aread&state=xyz
func BuildAuthorizationURL(req AuthorizationRequest) (string, error) {
	if req.BaseURL == "" {
		req.BaseURL = DefaultBaseURL
	}
	if req.Protocol == "" {
		req.Protocol = ProtocolRedirect
	}
	if err := req.validate(); err != nil {
		return "", err
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = RequiredScopes
	}

	state := ""
	if req.ResponseType == ResponseTypeCode {
		state = req.State
		if state == "" {
			state = cryptox.GenerateAlphanumeric(DefaultStateLength)
		}
	}

	authURL := strings.TrimSuffix(req.BaseURL, "/") + AuthorizePath

	if req.Protocol == ProtocolMessage {
		params := url.Values{}
		params.Set("clientId", req.ClientID)
		params.Set("responseType", string(req.ResponseType))
		params.Set("scopes", strings.Join(scopes, ","))
		if state != "" {
			params.Set("state", state)
		}
		return authURL + "?" + params.Encode(), nil
	}

	cfg := oauth2.Config{
		ClientID:    req.ClientID,
		Endpoint:    oauth2.Endpoint{AuthURL: authURL},
		RedirectURL: req.RedirectURI,
		Scopes:      scopes,
	}

	var opts []oauth2.AuthCodeOption
	if req.ResponseType == ResponseTypeToken {
		opts = append(opts, oauth2.SetAuthURLParam("response_type", string(ResponseTypeToken)))
	}

	return cfg.AuthCodeURL(state, opts...), nil
}
