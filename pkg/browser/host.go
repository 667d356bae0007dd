// Package browser implements bkpk.Host for programs running next to a
// desktop browser. Popups are browser tabs opened by the system launcher;
// completions come back to a loopback HTTP server owned by the host.
package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aussiebroadwan/bkpk/pkg/bkpk"
	"github.com/aussiebroadwan/bkpk/pkg/httpx"
	"github.com/aussiebroadwan/bkpk/pkg/idx"
	"github.com/aussiebroadwan/bkpk/pkg/slogx"
)

// MaxMessageBytes bounds the body of a POST /message.
const MaxMessageBytes = 64 << 10

// ErrNotStarted is returned by Open before Start.
var ErrNotStarted = errors.New("browser: host not started")

//go:embed templates/callback.html
var callbackHTML string

var callbackTmpl = template.Must(template.New("callback").Parse(callbackHTML))

type Config struct {
	// Port of the loopback listener; 0 picks a free port
	Port int

	// Launcher opens authorization pages; defaults to SystemLauncher
	Launcher Launcher

	// Gestures carries user gestures (the CLI sends one per Enter key)
	Gestures <-chan struct{}

	Logger *slog.Logger
}

// Host serves the loopback endpoints the authorization flow returns to:
//
//	GET  /callback  redirect protocol completion
//	POST /message   message protocol envelope, Origin header required
type Host struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	origin    string
	server    *http.Server
	windows   map[idx.ID]*window
	listeners map[int]func(bkpk.Message)
	gestures  map[int]func()
	nextID    int
}

var _ bkpk.Host = (*Host)(nil)

func NewHost(cfg Config) *Host {
	if cfg.Launcher == nil {
		cfg.Launcher = SystemLauncher
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Host{
		cfg:       cfg,
		log:       cfg.Logger.With("component", "browser_host"),
		windows:   make(map[idx.ID]*window),
		listeners: make(map[int]func(bkpk.Message)),
		gestures:  make(map[int]func()),
	}
}

// Start binds 127.0.0.1:<Port> and serves until ctx is cancelled or Stop
// is called.
func (h *Host) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", h.cfg.Port)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start browser host on %s: %w", addr, err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	server := &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	h.mu.Lock()
	h.origin = fmt.Sprintf("http://127.0.0.1:%d", port)
	h.server = server
	h.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("browser host stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		h.Stop()
	}()

	if h.cfg.Gestures != nil {
		go h.watchGestures(ctx)
	}

	h.log.Info("browser host listening", "origin", h.Origin())
	return nil
}

// Stop shuts the listener down.
func (h *Host) Stop() {
	h.mu.Lock()
	server := h.server
	h.mu.Unlock()

	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}

// Handler returns the host's HTTP handler.
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+bkpk.CallbackPath, h.handleCallback)
	mux.HandleFunc("POST /message", h.handleMessage)

	return slogx.HTTPMiddleware(h.log)(mux)
}

// Origin is empty until Start succeeds.
func (h *Host) Origin() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.origin
}

func (h *Host) Open(ctx context.Context, _ bkpk.Features) (bkpk.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.server == nil {
		return nil, ErrNotStarted
	}

	w := &window{id: idx.New(), host: h}
	h.windows[w.id] = w
	return w, nil
}

func (h *Host) AddMessageListener(fn func(bkpk.Message)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

func (h *Host) OnNextUserGesture(fn func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.gestures[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.gestures, id)
	}
}

func (h *Host) forget(id idx.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, id)
}

func (h *Host) watchGestures(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-h.cfg.Gestures:
			if !ok {
				return
			}
			h.fireGesture()
		}
	}
}

func (h *Host) fireGesture() {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.gestures))
	for id, fn := range h.gestures {
		fns = append(fns, fn)
		delete(h.gestures, id)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ============================================================================
// Handlers
// ============================================================================

type callbackPage struct {
	Error       string
	Description string
	Unmatched   bool
}

func (h *Host) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, _ := url.Parse(h.Origin() + r.URL.RequestURI())

	page := callbackPage{
		Error:       q.Get("error"),
		Description: q.Get("error_description"),
	}
	status := http.StatusOK

	if target := h.route(q.Get("state")); target == nil || !target.complete(loc) {
		slogx.FromContext(r.Context()).Warn("callback without a pending window")
		page = callbackPage{Unmatched: true}
		status = http.StatusNotFound
	} else {
		slogx.FromContext(r.Context()).Debug("callback delivered", "window_id", target.id.String())
	}

	httpx.NoCache(w)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = callbackTmpl.Execute(w, page)
}

// route picks the oldest pending window that sent exactly this state. A
// window navigated with a state never takes a callback without it, so a
// stray request to /callback cannot complete a code flow.
func (h *Host) route(state string) *window {
	h.mu.Lock()
	defer h.mu.Unlock()

	var oldest *window
	for _, w := range h.windows {
		if !w.pending() || !w.matches(state) {
			continue
		}
		if oldest == nil || idx.Compare(w.id, oldest.id) < 0 {
			oldest = w
		}
	}
	return oldest
}

func (h *Host) handleMessage(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "missing Origin header")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "invalid_request", "message too large")
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "failed to read message")
		return
	}

	h.mu.Lock()
	fns := make([]func(bkpk.Message), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	msg := bkpk.Message{Origin: origin, Data: data}
	for _, fn := range fns {
		fn(msg)
	}

	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.WriteHeader(http.StatusNoContent)
}
