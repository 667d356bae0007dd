package browser

import (
	"net/url"
	"sync"

	"github.com/aussiebroadwan/bkpk/pkg/bkpk"
	"github.com/aussiebroadwan/bkpk/pkg/idx"
)

// window is a browser tab the host pointed at an authorization page. Its
// location becomes readable once the provider redirects back to the host.
type window struct {
	id   idx.ID
	host *Host

	mu        sync.Mutex
	state     string
	navigated bool
	location  *url.URL
	closed    bool
}

var _ bkpk.Window = (*window)(nil)

func (w *window) Navigate(rawURL string) error {
	if err := checkURL(rawURL); err != nil {
		return err
	}
	u, _ := url.Parse(rawURL)

	w.mu.Lock()
	w.state = u.Query().Get("state")
	w.navigated = true
	w.mu.Unlock()

	w.host.log.Debug("launching browser", "window_id", w.id.String(), "host", u.Host)
	return w.host.cfg.Launcher(rawURL)
}

func (w *window) Location() (*url.URL, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.location == nil {
		return nil, bkpk.ErrCrossOrigin
	}
	loc := *w.location
	return &loc, nil
}

// Closed reports whether Close was called. A tab closed by the user in
// the system browser cannot be observed.
func (w *window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *window) Close() error {
	w.mu.Lock()
	already := w.closed
	w.closed = true
	w.mu.Unlock()

	if !already {
		w.host.forget(w.id)
	}
	return nil
}

// pending reports whether the window still waits for a callback.
func (w *window) pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.navigated && w.location == nil && !w.closed
}

// complete records the callback location. It reports false if the window
// was completed or closed in the meantime.
func (w *window) complete(loc *url.URL) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.location != nil || w.closed {
		return false
	}
	w.location = loc
	return true
}

// matches reports whether a callback carrying state belongs to w. Windows
// navigated without a state only take callbacks without one.
func (w *window) matches(state string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == state
}
