// Package devprovider is a local stand-in for the Bkpk identity provider
// and API. It authorizes every known client without asking anyone, so it
// must only ever serve development machines and tests.
package devprovider

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/aussiebroadwan/bkpk/pkg/bkpk"
	"github.com/aussiebroadwan/bkpk/pkg/cryptox"
	"github.com/aussiebroadwan/bkpk/pkg/idx"
	"github.com/aussiebroadwan/bkpk/pkg/jwtx"
)

const (
	// DefaultIssuer is the iss claim of tokens minted when none is configured.
	DefaultIssuer = "https://dev.bkpk.local"

	// DefaultCodeTTL bounds how long an authorization code can be redeemed.
	DefaultCodeTTL = 10 * time.Minute
)

var (
	ErrNoClients = errors.New("devprovider: at least one client id is required")

	// ErrInvalidGrant is returned for unknown, expired, reused or
	// mismatched authorization codes.
	ErrInvalidGrant = errors.New("devprovider: invalid authorization code")
)

type Config struct {
	// ClientIDs are the applications allowed to request authorization
	ClientIDs []string

	// Scopes that may be granted; defaults to bkpk.RequiredScopes
	Scopes []string

	// Subject is the user every authorization is granted for
	Subject string

	Issuer   string
	TokenTTL time.Duration
	CodeTTL  time.Duration

	// Backpack is served by GET /backpack/owner
	Backpack bkpk.BackpackOwnerResponse

	// Relay, when set, is a URL the message page also POSTs its events to,
	// for openers that are not browser windows (see pkg/browser)
	Relay string

	Version string
	Logger  *slog.Logger
	Now     func() time.Time
}

// Provider mints EdDSA access tokens and verifies them on API calls. Its
// signing key lives in memory and is lost on restart.
type Provider struct {
	cfg      Config
	signer   *jwtx.EdDSASigner
	keys     *jwtx.KeySet
	verifier *jwtx.EdDSAVerifier
	log      *slog.Logger

	codesMu sync.Mutex
	codes   *gocache.Cache
}

// codeGrant is what an authorization code stands for until redeemed.
type codeGrant struct {
	clientID    string
	scopes      []string
	redirectURI string
}

func New(cfg Config) (*Provider, error) {
	if len(cfg.ClientIDs) == 0 {
		return nil, ErrNoClients
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = bkpk.RequiredScopes
	}
	if cfg.Subject == "" {
		cfg.Subject = "dev-user"
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = jwtx.DefaultAccessTokenTTL
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	pemKey, err := cryptox.GenerateEd25519Key()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	signer, err := jwtx.NewSignerEdDSA("dev-"+idx.New().String(), pemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}
	if err := signer.Validate(); err != nil {
		return nil, err
	}

	keys := jwtx.NewKeySet()
	if err := keys.AddSigner(signer); err != nil {
		return nil, err
	}

	p := &Provider{
		cfg:      cfg,
		signer:   signer,
		keys:     keys,
		verifier: jwtx.NewVerifierEdDSA(keys, cfg.Issuer).WithClock(cfg.Now),
		log:      cfg.Logger.With("component", "devprovider"),
		codes:    gocache.New(cfg.CodeTTL, time.Minute),
	}

	p.log.Info("development provider ready",
		"issuer", cfg.Issuer,
		"kid", signer.KID(),
		"clients", len(cfg.ClientIDs),
	)
	return p, nil
}

// Verifier checks tokens minted by this provider.
func (p *Provider) Verifier() jwtx.Verifier { return p.verifier }

func (p *Provider) knownClient(clientID string) bool {
	return slices.Contains(p.cfg.ClientIDs, clientID)
}

// grantable filters requested down to the configured scopes. An empty
// request grants bkpk.RequiredScopes. It reports false when a requested
// scope is unknown.
func (p *Provider) grantable(requested []string) ([]string, bool) {
	if len(requested) == 0 {
		requested = bkpk.RequiredScopes
	}
	for _, s := range requested {
		if !slices.Contains(p.cfg.Scopes, s) {
			return nil, false
		}
	}
	return requested, true
}

// mintToken signs an access token for clientID. It returns the token and
// its absolute expiry.
func (p *Provider) mintToken(clientID string, scopes []string) (string, time.Time, error) {
	now := p.cfg.Now().UTC()
	claims := jwtx.NewAccessClaims(p.cfg.Subject, clientID, scopes, p.cfg.TokenTTL, p.cfg.Issuer, now)

	token, err := p.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// mintCode returns a single-use authorization code for the grant.
// redirectURI is empty for codes handed out over the message protocol.
func (p *Provider) mintCode(clientID string, scopes []string, redirectURI string) (string, error) {
	code, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	p.codes.SetDefault(code, codeGrant{clientID: clientID, scopes: scopes, redirectURI: redirectURI})
	return code, nil
}

// redeemCode consumes code and returns the scopes it grants. The code is
// gone afterwards even when the client or redirect URI do not match.
func (p *Provider) redeemCode(code, clientID, redirectURI string) ([]string, error) {
	p.codesMu.Lock()
	v, ok := p.codes.Get(code)
	p.codes.Delete(code)
	p.codesMu.Unlock()

	if !ok {
		return nil, ErrInvalidGrant
	}
	grant := v.(codeGrant)
	if grant.clientID != clientID || grant.redirectURI != redirectURI {
		return nil, ErrInvalidGrant
	}
	return grant.scopes, nil
}
