package bkpk

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"
)

// normalizeMessageResult shapes the params of a "result" event. The code
// flow reports the state minted by this session since the message protocol
// never echoes it.
func normalizeMessageResult(rt ResponseType, params json.RawMessage, state string) (*AuthorizationResponse, error) {
	var p ResultParams
	if len(params) == 0 || json.Unmarshal(params, &p) != nil {
		return nil, ErrInvalidResponseTypeReturned
	}

	switch rt {
	case ResponseTypeToken:
		if p.Token == "" {
			return nil, ErrInvalidResponseTypeReturned
		}
		var expiresAt time.Time
		if p.Expires != "" {
			t, err := time.Parse(time.RFC3339, p.Expires)
			if err != nil {
				return nil, fmt.Errorf("%w: bad expires %q", ErrInvalidResponseTypeReturned, p.Expires)
			}
			expiresAt = t
		}
		return &AuthorizationResponse{
			Type:  ResponseTypeToken,
			Token: &TokenResponse{Token: p.Token, ExpiresAt: expiresAt},
		}, nil

	case ResponseTypeCode:
		if p.Code == "" {
			return nil, ErrInvalidResponseTypeReturned
		}
		return &AuthorizationResponse{
			Type: ResponseTypeCode,
			Code: &CodeResponse{Code: p.Code, State: state},
		}, nil
	}

	return nil, ErrInvalidResponseTypeReturned
}

// maxExpiresIn is the largest expires_in, in seconds, a time.Duration holds.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

// normalizeRedirect shapes the query of a redirect back to the host. Keys
// are checked in order: error, then the token set, then code. The code flow
// reports the echoed state, which the popup has already matched.
func normalizeRedirect(rt ResponseType, q url.Values, now time.Time) (*AuthorizationResponse, error) {
	if q.Has("error") {
		return nil, &RemoteError{
			Message: q.Get("error"),
			Details: q.Get("error_description"),
		}
	}

	if q.Has("token_type") && q.Has("access_token") && q.Has("expires_in") {
		if rt != ResponseTypeToken {
			return nil, ErrInvalidResponseTypeReturned
		}
		token := q.Get("access_token")
		if token == "" {
			return nil, fmt.Errorf("%w: empty access_token", ErrInvalidResponseTypeReturned)
		}
		secs, err := strconv.ParseInt(q.Get("expires_in"), 10, 64)
		if err != nil || secs < 0 || secs > maxExpiresIn {
			return nil, fmt.Errorf("%w: bad expires_in %q", ErrInvalidResponseTypeReturned, q.Get("expires_in"))
		}
		return &AuthorizationResponse{
			Type: ResponseTypeToken,
			Token: &TokenResponse{
				Token:     token,
				ExpiresAt: now.Add(time.Duration(secs) * time.Second),
			},
		}, nil
	}

	if q.Has("code") {
		if rt != ResponseTypeCode {
			return nil, ErrInvalidResponseTypeReturned
		}
		if q.Get("code") == "" {
			return nil, fmt.Errorf("%w: empty code", ErrInvalidResponseTypeReturned)
		}
		return &AuthorizationResponse{
			Type: ResponseTypeCode,
			Code: &CodeResponse{Code: q.Get("code"), State: q.Get("state")},
		}, nil
	}

	return nil, ErrInvalidResponseTypeReturned
}
