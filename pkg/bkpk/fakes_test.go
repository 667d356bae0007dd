package bkpk

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testHostOrigin     = "http://127.0.0.1:8080"
	testProviderOrigin = "https://bkpk.test"
)

// fakeWindow is a scripted popup. Location is unreadable until redirect is
// called, like a cross-origin page.
type fakeWindow struct {
	mu          sync.Mutex
	navigated   []string
	location    *url.URL
	closed      bool
	closeCalls  int
	navigateErr error
}

func (w *fakeWindow) Navigate(rawURL string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.navigateErr != nil {
		return w.navigateErr
	}
	w.navigated = append(w.navigated, rawURL)
	return nil
}

func (w *fakeWindow) Location() (*url.URL, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.location == nil {
		return nil, ErrCrossOrigin
	}
	return w.location, nil
}

func (w *fakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.closeCalls++
	return nil
}

// redirect simulates the provider sending the popup back to rawURL.
func (w *fakeWindow) redirect(t *testing.T, rawURL string) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.location = u
}

// userClose simulates the user closing the popup.
func (w *fakeWindow) userClose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// authURL waits for the session to navigate the popup and returns where
// it was sent. Listeners are registered by then.
func (w *fakeWindow) authURL(t *testing.T) *url.URL {
	t.Helper()
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.navigated) == 1
	}, 2*time.Second, time.Millisecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	u, err := url.Parse(w.navigated[0])
	require.NoError(t, err)
	return u
}

// fakeHost hands out fakeWindows and lets tests deliver messages and
// gestures.
type fakeHost struct {
	origin string

	mu          sync.Mutex
	refuse      int // number of Open calls to refuse
	navigateErr error
	openCalls   int
	listeners   map[int]func(Message)
	gestures    map[int]func()
	nextID      int

	opened chan *fakeWindow
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		origin:    testHostOrigin,
		listeners: make(map[int]func(Message)),
		gestures:  make(map[int]func()),
		opened:    make(chan *fakeWindow, 8),
	}
}

func (h *fakeHost) Open(ctx context.Context, features Features) (Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.openCalls++
	if h.refuse > 0 {
		h.refuse--
		return nil, errors.New("popup blocked")
	}

	w := &fakeWindow{navigateErr: h.navigateErr}
	h.opened <- w
	return w, nil
}

func (h *fakeHost) Origin() string { return h.origin }

func (h *fakeHost) AddMessageListener(fn func(Message)) func() {
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

func (h *fakeHost) OnNextUserGesture(fn func()) func() {
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

// deliver posts msg to every listener.
func (h *fakeHost) deliver(msg Message) {
	h.mu.Lock()
	fns := make([]func(Message), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// click fires and clears the pending gesture subscriptions.
func (h *fakeHost) click() {
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

func (h *fakeHost) counts() (opens, listeners, gestures int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.openCalls, len(h.listeners), len(h.gestures)
}

func (h *fakeHost) nextWindow(t *testing.T) *fakeWindow {
	t.Helper()
	select {
	case w := <-h.opened:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("no window opened")
		return nil
	}
}

// busMessage encodes an envelope the way the hosted page posts it.
func busMessage(t *testing.T, origin, sender string, event Event, params any) Message {
	t.Helper()

	env := map[string]any{"sender": sender, "event": event}
	if params != nil {
		env["params"] = params
	}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return Message{Origin: origin, Data: data}
}

type authResult struct {
	resp *AuthorizationResponse
	err  error
}

// authorizeAsync runs Authorize in the background.
func authorizeAsync(ctx context.Context, c *Client, rt ResponseType, opts ...AuthorizeOption) <-chan authResult {
	ch := make(chan authResult, 1)
	go func() {
		resp, err := c.Authorize(ctx, rt, opts...)
		ch <- authResult{resp: resp, err: err}
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan authResult) authResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("authorize did not finish")
		return authResult{}
	}
}

func requireNoResult(t *testing.T, ch <-chan authResult, wait time.Duration) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("unexpected terminal outcome: %+v", r)
	case <-time.After(wait):
	}
}

func newTestClient(t *testing.T, host Host, opts ...Option) *Client {
	t.Helper()

	base := []Option{
		WithHost(host),
		WithBaseURL(testProviderOrigin),
		WithPollIntervals(5*time.Millisecond, 5*time.Millisecond),
	}
	c, err := NewClient("abc", append(base, opts...)...)
	require.NoError(t, err)
	return c
}
