package bkpk

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrCrossOrigin is returned by Window.Location while the window shows a
// document from another origin. Pollers treat it as "not yet".
var ErrCrossOrigin = errors.New("bkpk: window location is cross-origin")

// Features describes the geometry of the popup window.
type Features struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// DefaultFeatures is the popup geometry used when none is configured.
var DefaultFeatures = Features{
	Left:   -500,
	Top:    150,
	Width:  375,
	Height: 350,
}

// String renders the features in window.open format.
func (f Features) String() string {
	return fmt.Sprintf(
		"scrollbars=no,resizable=no,status=no,location=no,toolbar=no,menubar=no,width=%d,height=%d,left=%d,top=%d",
		f.Width, f.Height, f.Left, f.Top,
	)
}

// Message is a cross-context message delivered to the host, the equivalent
// of a "message" event: the sender's origin plus the raw payload.
type Message struct {
	Origin string
	Data   []byte
}

// Window is a handle on a child browsing context. A Window belongs to a
// single authorization session and must be safe for concurrent use: pollers
// may read Location or Closed while the session closes it.
type Window interface {
	// Navigate points the window at rawURL.
	Navigate(rawURL string) error

	// Location returns the current location, or ErrCrossOrigin (or any other
	// error) while it cannot be read.
	Location() (*url.URL, error)

	// Closed reports whether the window has been closed by anyone.
	Closed() bool

	// Close closes the window. Closing twice is a no-op.
	Close() error
}

// Host is the opener side of the popup: it opens windows, knows its own
// origin, and delivers messages and user gestures.
type Host interface {
	// Open opens a blank window with the given features. A nil Window or an
	// error means the platform refused (for example a blocked popup).
	Open(ctx context.Context, features Features) (Window, error)

	// Origin is the host's own origin (scheme://host[:port]).
	Origin() string

	// AddMessageListener registers fn for every message delivered to the
	// host. The returned func removes the listener.
	AddMessageListener(fn func(Message)) (remove func())

	// OnNextUserGesture calls fn once on the next user gesture (a click
	// anywhere on the host). The returned func cancels the subscription.
	OnNextUserGesture(fn func()) (cancel func())
}

// originOf returns scheme://host[:port] for u, lowercased the way
// browsers serialize origins.
func originOf(u *url.URL) string {
	if u == nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

func parseOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return originOf(u)
}
