package devprovider

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/bkpk/pkg/httpx"
	"github.com/aussiebroadwan/bkpk/pkg/slogx"
)

// Router holds the provider's routes.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	provider  *Provider
	startTime time.Time
}

func NewRouter(p *Provider) *Router {
	r := &Router{
		Mux:       http.NewServeMux(),
		provider:  p,
		startTime: time.Now(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(p.log),
	}

	r.registerAuthorize()
	r.registerToken()
	r.registerBackpack()
	r.registerSystem()
	return r
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuthorize() {
	h := &AuthorizeHandler{Provider: r.provider}

	// GET /authorize - strict rate limit, every hit mints a credential
	r.Mux.Handle("GET /authorize",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerToken() {
	h := &TokenHandler{Provider: r.provider}

	r.Mux.Handle("POST /token",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerBackpack() {
	h := &BackpackHandler{Backpack: r.provider.cfg.Backpack}

	secured := httpx.Chain(h,
		httpx.BearerAuth(r.provider.verifier),
		httpx.RequireAnyScope("avatars:read"),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /backpack/owner", secured)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.provider.cfg.Version),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
