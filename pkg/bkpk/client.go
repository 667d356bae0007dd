package bkpk

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Client is the entry point of the SDK. It opens authorization popups
// through its Host and calls the Bkpk API with the credential it holds.
// A Client is safe for concurrent use; concurrent Authorize calls open
// independent popups.
type Client struct {
	clientID string

	host           Host
	baseURL        string
	features       Features
	protocol       Protocol
	redirectURI    string
	scopes         []string
	retryOnGesture bool
	verbose        bool

	logger           *slog.Logger
	now              func() time.Time
	closeInterval    time.Duration
	redirectInterval time.Duration

	cred *credential
	api  *restClient
}

// Option configures a Client.
type Option func(*Client)

// WithHost sets the platform used to open popups. Without a Host,
// Authorize fails with ErrNoWindowEnvironment.
func WithHost(h Host) Option {
	return func(c *Client) { c.host = h }
}

// WithBaseURL sets the identity provider URL (default DefaultBaseURL).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithAPIURL sets the Bkpk API URL (default DefaultAPIURL).
func WithAPIURL(u string) Option {
	return func(c *Client) { c.api.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.api.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithVerbose logs debug events and provider error details.
func WithVerbose(v bool) Option {
	return func(c *Client) { c.verbose = v }
}

func WithFeatures(f Features) Option {
	return func(c *Client) { c.features = f }
}

// WithProtocol selects how popups report completion (default ProtocolRedirect).
func WithProtocol(p Protocol) Option {
	return func(c *Client) { c.protocol = p }
}

// WithRedirectURI overrides the redirect target of the redirect protocol.
// It defaults to the host origin + CallbackPath and must be on the host
// origin for the redirect to be detected.
func WithRedirectURI(u string) Option {
	return func(c *Client) { c.redirectURI = u }
}

// WithScopes sets the scopes requested by Authorize (default RequiredScopes).
func WithScopes(scopes ...string) Option {
	return func(c *Client) { c.scopes = scopes }
}

// WithRetryOnGesture controls whether a blocked popup is retried once on
// the next user gesture (default true).
func WithRetryOnGesture(retry bool) Option {
	return func(c *Client) { c.retryOnGesture = retry }
}

// WithRateLimit paces API calls client-side to r requests per second with
// the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.api.limiter = rate.NewLimiter(r, burst) }
}

// WithClock replaces time.Now, used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithPollIntervals sets how often popups are checked for closure and for a
// redirect back to the host.
func WithPollIntervals(closeEvery, redirectEvery time.Duration) Option {
	return func(c *Client) {
		if closeEvery > 0 {
			c.closeInterval = closeEvery
		}
		if redirectEvery > 0 {
			c.redirectInterval = redirectEvery
		}
	}
}

// NewClient creates a Client for the application registered as clientID.
func NewClient(clientID string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, ErrMissingClientID
	}

	c := &Client{
		clientID:         clientID,
		baseURL:          DefaultBaseURL,
		features:         DefaultFeatures,
		protocol:         ProtocolRedirect,
		retryOnGesture:   true,
		logger:           slog.Default(),
		now:              time.Now,
		closeInterval:    DefaultClosePollInterval,
		redirectInterval: DefaultRedirectPollInterval,
		api: &restClient{
			baseURL:    DefaultAPIURL,
			httpClient: &http.Client{Timeout: 10 * time.Second},
		},
	}
	c.cred = &credential{now: func() time.Time { return c.now() }}
	c.api.cred = c.cred

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ============================================================================
// Authorization
// ============================================================================

// AuthorizeOption adjusts a single Authorize call.
type AuthorizeOption func(*AuthorizationRequest)

// WithState sets the CSRF state of a code flow instead of generating one.
func WithState(state string) AuthorizeOption {
	return func(r *AuthorizationRequest) { r.State = state }
}

// WithRequestScopes overrides the client scopes for one call.
func WithRequestScopes(scopes ...string) AuthorizeOption {
	return func(r *AuthorizationRequest) { r.Scopes = scopes }
}

// WithRequestProtocol overrides the client protocol for one call.
func WithRequestProtocol(p Protocol) AuthorizeOption {
	return func(r *AuthorizationRequest) { r.Protocol = p }
}

// Authorize opens a popup asking the user to authorize the application and
// blocks until exactly one result or error: the provider answered, the user
// closed the popup, or ctx ended. An empty responseType means
// ResponseTypeToken. A successful token flow stores the credential for
// later API calls.
func (c *Client) Authorize(ctx context.Context, responseType ResponseType, opts ...AuthorizeOption) (*AuthorizationResponse, error) {
	if responseType == "" {
		responseType = ResponseTypeToken
	}
	if !responseType.Valid() {
		return nil, ErrInvalidResponseType
	}
	if c.host == nil {
		return nil, ErrNoWindowEnvironment
	}

	req := AuthorizationRequest{
		ClientID:       c.clientID,
		ResponseType:   responseType,
		Scopes:         c.scopes,
		Features:       c.features,
		BaseURL:        c.baseURL,
		RedirectURI:    c.redirectURI,
		Protocol:       c.protocol,
		RetryOnGesture: c.retryOnGesture,
		Verbose:        c.verbose,
	}
	for _, opt := range opts {
		opt(&req)
	}
	if req.Protocol == ProtocolRedirect && req.RedirectURI == "" {
		if origin := c.host.Origin(); origin != "" {
			req.RedirectURI = strings.TrimSuffix(origin, "/") + CallbackPath
		}
	}

	resp, err := runPopup(ctx, popupConfig{
		host:             c.host,
		logger:           c.logger,
		now:              c.now,
		closeInterval:    c.closeInterval,
		redirectInterval: c.redirectInterval,
	}, req)
	if err != nil {
		return nil, err
	}

	if resp.Token != nil {
		c.SetCredentials(resp.Token.Token, resp.Token.ExpiresAt)
	}
	return resp, nil
}

// SetCredentials stores an access token obtained elsewhere. A zero
// expiresAt means the token's own exp claim is used when it is a JWT, and
// no expiry otherwise.
func (c *Client) SetCredentials(token string, expiresAt time.Time) {
	c.cred.set(token, expiresAt)
}

// TokenSource exposes the stored credential to oauth2-aware code. It never
// refreshes.
func (c *Client) TokenSource() oauth2.TokenSource {
	return c.cred
}

// AuthorizedHTTPClient returns an HTTP client that adds the stored bearer
// token to every request.
func (c *Client) AuthorizedHTTPClient(ctx context.Context) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.api.httpClient)
	return oauth2.NewClient(ctx, c.cred)
}

// ============================================================================
// Avatars
// ============================================================================

// GetAvatars returns the backpack items of the authorized user.
func (c *Client) GetAvatars(ctx context.Context) ([]BackpackItem, error) {
	var owner BackpackOwnerResponse
	if err := c.api.get(ctx, "/backpack/owner", nil, true, &owner); err != nil {
		return nil, err
	}
	return owner.BackpackItems, nil
}

// GetDefaultAvatar returns the first backpack item, or ErrNoAvatarsAvailable.
func (c *Client) GetDefaultAvatar(ctx context.Context) (*BackpackItem, error) {
	avatars, err := c.GetAvatars(ctx)
	if err != nil {
		return nil, err
	}
	if len(avatars) == 0 {
		return nil, ErrNoAvatarsAvailable
	}
	return &avatars[0], nil
}
