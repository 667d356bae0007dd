package bkpk

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const callbackURL = testHostOrigin + CallbackPath

func TestAuthorize_RedirectTokenFlow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	host := newFakeHost()
	c := newTestClient(t, host, WithClock(func() time.Time { return now }))

	ch := authorizeAsync(context.Background(), c, ResponseTypeToken)

	w := host.nextWindow(t)
	u := w.authURL(t)
	require.Equal(t, "https://bkpk.test/authorize", u.Scheme+"://"+u.Host+u.Path)
	require.Equal(t, "token", u.Query().Get("response_type"))
	require.Equal(t, callbackURL, u.Query().Get("redirect_uri"))
	require.False(t, u.Query().Has("state"))

	// A page on another origin is not a completion.
	w.redirect(t, testProviderOrigin+"/consent?code=nope")
	requireNoResult(t, ch, 30*time.Millisecond)

	w.redirect(t, callbackURL+"?token_type=Bearer&access_token=tok&expires_in=3600")

	r := waitResult(t, ch)
	require.NoError(t, r.err)
	require.Equal(t, ResponseTypeToken, r.resp.Type)
	require.Equal(t, "tok", r.resp.Token.Token)
	require.Equal(t, now.Add(time.Hour), r.resp.Token.ExpiresAt)
	require.True(t, w.Closed())

	token, expiresAt, err := c.cred.accessToken()
	require.NoError(t, err)
	require.Equal(t, "tok", token)
	require.Equal(t, now.Add(time.Hour), expiresAt)
}

func TestAuthorize_RedirectCodeFlowState(t *testing.T) {
	t.Parallel()

	t.Run("given state is echoed", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		c := newTestClient(t, host)
		ch := authorizeAsync(context.Background(), c, ResponseTypeCode, WithState("mine"))

		w := host.nextWindow(t)
		require.Equal(t, "mine", w.authURL(t).Query().Get("state"))
		w.redirect(t, callbackURL+"?code=c0de&state=mine")

		r := waitResult(t, ch)
		require.NoError(t, r.err)
		require.Equal(t, &CodeResponse{Code: "c0de", State: "mine"}, r.resp.Code)
		require.Nil(t, r.resp.Token)
	})

	t.Run("minted state is returned", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		c := newTestClient(t, host)
		ch := authorizeAsync(context.Background(), c, ResponseTypeCode)

		w := host.nextWindow(t)
		minted := w.authURL(t).Query().Get("state")
		require.Len(t, minted, DefaultStateLength)
		w.redirect(t, callbackURL+"?code=c0de&state="+minted)

		r := waitResult(t, ch)
		require.NoError(t, r.err)
		require.Equal(t, minted, r.resp.Code.State)
	})

	rejected := []struct {
		name   string
		query  string
		minted bool
	}{
		{name: "forged state", query: "?code=attacker&state=forged"},
		{name: "missing state", query: "?code=attacker"},
		{name: "forged state against minted", query: "?code=attacker&state=forged", minted: true},
		{name: "missing state against minted", query: "?code=attacker", minted: true},
		{name: "error without state", query: "?error=access_denied"},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			host := newFakeHost()
			c := newTestClient(t, host)

			var opts []AuthorizeOption
			if !tt.minted {
				opts = append(opts, WithState("mine"))
			}
			ch := authorizeAsync(context.Background(), c, ResponseTypeCode, opts...)

			w := host.nextWindow(t)
			w.authURL(t)
			w.redirect(t, callbackURL+tt.query)

			r := waitResult(t, ch)
			require.ErrorIs(t, r.err, ErrStateMismatch)
			require.Nil(t, r.resp)
			require.True(t, w.Closed())
		})
	}
}

func TestAuthorize_RedirectError(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	c := newTestClient(t, host)

	ch := authorizeAsync(context.Background(), c, ResponseTypeToken)
	w := host.nextWindow(t)
	w.authURL(t)
	w.redirect(t, callbackURL+"?error=access_denied&error_description=denied+by+user")

	r := waitResult(t, ch)
	require.ErrorIs(t, r.err, ErrUnhandledBkpkError)

	var remote *RemoteError
	require.ErrorAs(t, r.err, &remote)
	require.Equal(t, "access_denied", remote.Message)
	require.Equal(t, "denied by user", remote.Details)
	require.True(t, w.Closed())

	_, _, err := c.cred.accessToken()
	require.ErrorIs(t, err, ErrNoAccessToken)
}

func TestAuthorize_MessageCodeFlowUsesMintedState(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	c := newTestClient(t, host, WithProtocol(ProtocolMessage))

	ch := authorizeAsync(context.Background(), c, ResponseTypeCode)

	w := host.nextWindow(t)
	u := w.authURL(t)
	state := u.Query().Get("state")
	require.Len(t, state, DefaultStateLength)
	require.Equal(t, "abc", u.Query().Get("clientId"))
	require.Equal(t, "code", u.Query().Get("responseType"))

	host.deliver(busMessage(t, testProviderOrigin, SenderTag, EventResult, map[string]string{"code": "c0de"}))

	r := waitResult(t, ch)
	require.NoError(t, r.err)
	require.Equal(t, &CodeResponse{Code: "c0de", State: state}, r.resp.Code)

	_, listeners, _ := host.counts()
	require.Zero(t, listeners)
	require.True(t, w.Closed())
}

func TestAuthorize_MessageTokenFlowStoresCredential(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	host := newFakeHost()
	c := newTestClient(t, host,
		WithProtocol(ProtocolMessage),
		WithClock(func() time.Time { return now }),
	)

	ch := authorizeAsync(context.Background(), c, "")
	w := host.nextWindow(t)
	require.Equal(t, "token", w.authURL(t).Query().Get("responseType"))

	host.deliver(busMessage(t, testProviderOrigin, SenderTag, EventResult, map[string]string{
		"token":   "tok",
		"expires": "2026-05-01T13:00:00Z",
	}))

	r := waitResult(t, ch)
	require.NoError(t, r.err)
	require.Equal(t, "tok", r.resp.Token.Token)

	token, err := c.TokenSource().Token()
	require.NoError(t, err)
	require.Equal(t, "tok", token.AccessToken)
	require.True(t, token.Expiry.Equal(now.Add(time.Hour)))
}

func TestAuthorize_MessageShapeMismatch(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	c := newTestClient(t, host, WithProtocol(ProtocolMessage))

	ch := authorizeAsync(context.Background(), c, ResponseTypeToken)
	host.nextWindow(t).authURL(t)

	host.deliver(busMessage(t, testProviderOrigin, SenderTag, EventResult, map[string]string{"code": "c0de"}))

	r := waitResult(t, ch)
	require.ErrorIs(t, r.err, ErrInvalidResponseTypeReturned)
	require.Nil(t, r.resp)
}

func TestAuthorize_MessageFiltering(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	c := newTestClient(t, host, WithProtocol(ProtocolMessage))

	ch := authorizeAsync(context.Background(), c, ResponseTypeToken)
	w := host.nextWindow(t)
	w.authURL(t)

	result := map[string]string{"token": "tok"}
	host.deliver(busMessage(t, "https://evil.test", SenderTag, EventResult, result))
	host.deliver(busMessage(t, testProviderOrigin, "@other/bus", EventResult, result))
	host.deliver(Message{Origin: testProviderOrigin, Data: []byte("not json")})
	host.deliver(busMessage(t, testProviderOrigin, SenderTag, EventDebug, []any{"hello", 1}))
	host.deliver(busMessage(t, testProviderOrigin, SenderTag, EventOnload, nil))
	host.deliver(busMessage(t, testProviderOrigin, SenderTag, Event("unknown"), nil))

	requireNoResult(t, ch, 30*time.Millisecond)
	require.False(t, w.Closed())

	host.deliver(busMessage(t, testProviderOrigin, SenderTag, EventClose, nil))

	r := waitResult(t, ch)
	require.ErrorIs(t, r.err, ErrWindowClosed)
	require.True(t, w.Closed())
}

func TestAuthorize_MessageErrorEvent(t *testing.T) {
	t.Parallel()

	logs := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))

	host := newFakeHost()
	c := newTestClient(t, host,
		WithProtocol(ProtocolMessage),
		WithVerbose(true),
		WithLogger(logger),
	)

	ch := authorizeAsync(context.Background(), c, ResponseTypeToken)
	host.nextWindow(t).authURL(t)

	host.deliver(busMessage(t, testProviderOrigin, SenderTag, EventError, map[string]any{
		"message": "boom",
		"details": map[string]int{"attempt": 2},
	}))

	r := waitResult(t, ch)
	require.ErrorIs(t, r.err, ErrUnhandledBkpkError)

	var remote *RemoteError
	require.ErrorAs(t, r.err, &remote)
	require.Equal(t, "boom", remote.Message)
	require.Contains(t, r.err.Error(), "boom")
	require.Contains(t, logs.String(), "bkpk reported an error")
}

func TestAuthorize_UserClosesWindow(t *testing.T) {
	t.Parallel()

	for _, p := range []Protocol{ProtocolRedirect, ProtocolMessage} {
		t.Run(string(p), func(t *testing.T) {
			t.Parallel()

			host := newFakeHost()
			c := newTestClient(t, host, WithProtocol(p))

			ch := authorizeAsync(context.Background(), c, ResponseTypeToken)
			w := host.nextWindow(t)
			w.authURL(t)
			w.userClose()

			r := waitResult(t, ch)
			require.ErrorIs(t, r.err, ErrWindowClosed)

			_, listeners, _ := host.counts()
			require.Zero(t, listeners)
		})
	}
}

func TestAuthorize_BlockedPopup(t *testing.T) {
	t.Parallel()

	t.Run("retry disabled fails immediately", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		host.refuse = 1
		c := newTestClient(t, host, WithRetryOnGesture(false))

		_, err := c.Authorize(context.Background(), ResponseTypeToken)
		require.ErrorIs(t, err, ErrUserActionRequired)

		opens, _, gestures := host.counts()
		require.Equal(t, 1, opens)
		require.Zero(t, gestures)
	})

	t.Run("retry on gesture succeeds", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		host.refuse = 1
		c := newTestClient(t, host)

		ch := authorizeAsync(context.Background(), c, ResponseTypeToken)
		require.Eventually(t, func() bool {
			_, _, gestures := host.counts()
			return gestures == 1
		}, 2*time.Second, time.Millisecond)
		requireNoResult(t, ch, 20*time.Millisecond)

		host.click()

		w := host.nextWindow(t)
		w.authURL(t)
		w.redirect(t, callbackURL+"?token_type=Bearer&access_token=tok&expires_in=60")

		r := waitResult(t, ch)
		require.NoError(t, r.err)
		require.Equal(t, "tok", r.resp.Token.Token)

		opens, _, gestures := host.counts()
		require.Equal(t, 2, opens)
		require.Zero(t, gestures)
	})

	t.Run("second refusal yields a single error", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		host.refuse = 2
		c := newTestClient(t, host)

		ch := authorizeAsync(context.Background(), c, ResponseTypeToken)
		require.Eventually(t, func() bool {
			_, _, gestures := host.counts()
			return gestures == 1
		}, 2*time.Second, time.Millisecond)

		host.click()

		r := waitResult(t, ch)
		require.ErrorIs(t, r.err, ErrUserActionRequired)

		// No further attempts after the single retry.
		host.click()
		opens, _, gestures := host.counts()
		require.Equal(t, 2, opens)
		require.Zero(t, gestures)
	})

	t.Run("navigation refused", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		host.navigateErr = errors.New("launcher failed")
		c := newTestClient(t, host, WithRetryOnGesture(false), WithProtocol(ProtocolMessage))

		_, err := c.Authorize(context.Background(), ResponseTypeToken)
		require.ErrorIs(t, err, ErrUserActionRequired)

		w := host.nextWindow(t)
		require.True(t, w.Closed())

		_, listeners, _ := host.counts()
		require.Zero(t, listeners)
	})
}

func TestAuthorize_ContextCancel(t *testing.T) {
	t.Parallel()

	t.Run("while awaiting completion", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		c := newTestClient(t, host, WithProtocol(ProtocolMessage))

		ctx, cancel := context.WithCancel(context.Background())
		ch := authorizeAsync(ctx, c, ResponseTypeToken)
		w := host.nextWindow(t)
		w.authURL(t)

		cancel()

		r := waitResult(t, ch)
		require.ErrorIs(t, r.err, context.Canceled)
		require.True(t, w.Closed())

		_, listeners, _ := host.counts()
		require.Zero(t, listeners)
	})

	t.Run("while waiting for a gesture", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		host.refuse = 1
		c := newTestClient(t, host)

		ctx, cancel := context.WithCancel(context.Background())
		ch := authorizeAsync(ctx, c, ResponseTypeToken)
		require.Eventually(t, func() bool {
			_, _, gestures := host.counts()
			return gestures == 1
		}, 2*time.Second, time.Millisecond)

		cancel()

		r := waitResult(t, ch)
		require.ErrorIs(t, r.err, context.Canceled)

		_, _, gestures := host.counts()
		require.Zero(t, gestures)
	})
}

func TestAuthorize_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing client id", func(t *testing.T) {
		t.Parallel()

		c, err := NewClient("  ")
		require.ErrorIs(t, err, ErrMissingClientID)
		require.Nil(t, c)
	})

	t.Run("no host", func(t *testing.T) {
		t.Parallel()

		c, err := NewClient("abc")
		require.NoError(t, err)

		_, err = c.Authorize(context.Background(), ResponseTypeToken)
		require.ErrorIs(t, err, ErrNoWindowEnvironment)
	})

	t.Run("unknown response type", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		c := newTestClient(t, host)

		_, err := c.Authorize(context.Background(), ResponseType("id_token"))
		require.ErrorIs(t, err, ErrInvalidResponseType)

		opens, _, _ := host.counts()
		require.Zero(t, opens)
	})

	t.Run("redirect without host origin", func(t *testing.T) {
		t.Parallel()

		host := newFakeHost()
		host.origin = ""
		c := newTestClient(t, host)

		_, err := c.Authorize(context.Background(), ResponseTypeToken)
		require.ErrorIs(t, err, ErrMissingRedirectURI)

		opens, _, _ := host.counts()
		require.Zero(t, opens)
	})
}

func TestAuthorize_ConcurrentCallsAreIndependent(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	c := newTestClient(t, host)

	first := authorizeAsync(context.Background(), c, ResponseTypeCode, WithState("one"))
	w1 := host.nextWindow(t)
	w1.authURL(t)

	second := authorizeAsync(context.Background(), c, ResponseTypeCode, WithState("two"))
	w2 := host.nextWindow(t)
	w2.authURL(t)

	w2.userClose()
	r2 := waitResult(t, second)
	require.ErrorIs(t, r2.err, ErrWindowClosed)

	requireNoResult(t, first, 20*time.Millisecond)
	require.False(t, w1.Closed())

	w1.redirect(t, callbackURL+"?code=c1&state=one")
	r1 := waitResult(t, first)
	require.NoError(t, r1.err)
	require.Equal(t, "c1", r1.resp.Code.Code)
}

func TestPopupSession_FinishOnce(t *testing.T) {
	t.Parallel()

	var released atomic.Int32
	w := &fakeWindow{}
	s := &popupSession{
		log:         slog.New(slog.DiscardHandler),
		window:      w,
		stopPollers: func() { released.Add(1) },
		done:        make(chan outcome, 1),
	}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				s.finish(outcome{err: ErrWindowClosed})
			} else {
				s.finish(outcome{resp: &AuthorizationResponse{Type: ResponseTypeToken}})
			}
		}()
	}
	wg.Wait()

	require.Len(t, s.done, 1)
	require.EqualValues(t, 1, released.Load())
	require.Equal(t, 1, w.closeCalls)

	// Anything acquired after termination is released on the spot.
	var late atomic.Bool
	var slot func()
	require.False(t, s.hold(&slot, func() { late.Store(true) }))
	require.True(t, late.Load())
	require.Nil(t, slot)
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
