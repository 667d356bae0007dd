// Package bus is the page side of the message protocol: the code running on
// the authorization page uses it to report progress and the final result
// to the window that opened it.
package bus

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/bkpk/pkg/bkpk"
)

// Poster delivers one encoded envelope to the opener.
type Poster interface {
	Post(data []byte) error
}

// PosterFunc adapts a function to the Poster interface.
type PosterFunc func(data []byte) error

// Post calls f(data).
func (f PosterFunc) Post(data []byte) error { return f(data) }

// Bus sends events for a single authorization request.
type Bus struct {
	poster Poster

	clientID     string
	responseType bkpk.ResponseType
	scopes       []string
	state        string
}

// FromQuery reads the authorization parameters of the page URL and posts
// "onload". An invalid request posts an "error" event instead and returns
// the matching configuration error. A missing responseType means token.
func FromQuery(q url.Values, p Poster) (*Bus, error) {
	b := &Bus{
		poster:       p,
		clientID:     q.Get("clientId"),
		responseType: bkpk.ResponseType(q.Get("responseType")),
		state:        q.Get("state"),
	}
	if !q.Has("responseType") {
		b.responseType = bkpk.ResponseTypeToken
	}
	if raw := q.Get("scopes"); raw != "" {
		b.scopes = strings.Split(raw, ",")
	}

	if !b.responseType.Valid() {
		return nil, b.invalid("responseType", bkpk.ErrInvalidResponseType)
	}
	if b.clientID == "" {
		return nil, b.invalid("clientId", bkpk.ErrMissingClientID)
	}

	if err := b.send(bkpk.EventOnload, nil); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bus) invalid(param string, err error) error {
	if postErr := b.Error(fmt.Sprintf("Invalid or missing '%s'", param), nil); postErr != nil {
		return fmt.Errorf("%w (post failed: %v)", err, postErr)
	}
	return err
}

func (b *Bus) ClientID() string                { return b.clientID }
func (b *Bus) ResponseType() bkpk.ResponseType { return b.responseType }
func (b *Bus) State() string                   { return b.state }

// Scopes returns a copy of the requested scopes.
func (b *Bus) Scopes() []string {
	return append([]string(nil), b.scopes...)
}

// Debug forwards args to the opener, which logs them in verbose mode.
func (b *Bus) Debug(args ...any) error {
	if args == nil {
		args = []any{}
	}
	return b.send(bkpk.EventDebug, args)
}

// ResultToken reports a successful token flow.
func (b *Bus) ResultToken(token string, expires time.Time) error {
	return b.send(bkpk.EventResult, bkpk.ResultParams{
		Token:   token,
		Expires: expires.UTC().Format(time.RFC3339),
	})
}

// ResultCode reports a successful code flow.
func (b *Bus) ResultCode(code string) error {
	return b.send(bkpk.EventResult, bkpk.ResultParams{Code: code})
}

// Error reports a failure. details may be nil.
func (b *Bus) Error(message string, details any) error {
	params := bkpk.ErrorParams{Message: message}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to encode error details: %w", err)
		}
		params.Details = raw
	}
	return b.send(bkpk.EventError, params)
}

// Close tells the opener the user dismissed the page.
func (b *Bus) Close() error {
	return b.send(bkpk.EventClose, nil)
}

func (b *Bus) send(event bkpk.Event, params any) error {
	data, err := Encode(event, params)
	if err != nil {
		return err
	}
	return b.poster.Post(data)
}

// Encode returns the wire form of an event. nil params are omitted.
func Encode(event bkpk.Event, params any) ([]byte, error) {
	env := bkpk.Envelope{Sender: bkpk.SenderTag, Event: event}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s params: %w", event, err)
		}
		env.Params = raw
	}
	return json.Marshal(env)
}
