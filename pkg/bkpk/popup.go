package bkpk

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/aussiebroadwan/bkpk/pkg/cryptox"
	"github.com/aussiebroadwan/bkpk/pkg/idx"
)

const (
	// DefaultClosePollInterval is how often the popup is checked for closure.
	DefaultClosePollInterval = 50 * time.Millisecond

	// DefaultRedirectPollInterval is how often the popup location is read
	// while waiting for a redirect back to the host.
	DefaultRedirectPollInterval = 100 * time.Millisecond
)

// popupConfig carries the client-wide collaborators of a session.
type popupConfig struct {
	host             Host
	logger           *slog.Logger
	now              func() time.Time
	closeInterval    time.Duration
	redirectInterval time.Duration
}

type outcome struct {
	resp *AuthorizationResponse
	err  error
}

// popupSession is one authorization attempt through one popup window.
//
// Detectors (message listener, closure poller, redirect poller, context
// cancellation) race to call finish. The first caller flips terminated,
// releases every resource the session holds and delivers its outcome;
// later callers see terminated and return.
type popupSession struct {
	id      idx.ID
	req     AuthorizationRequest
	authURL string
	state   string
	cfg     popupConfig
	log     *slog.Logger

	hostOrigin     string
	providerOrigin string

	mu             sync.Mutex
	terminated     bool
	window         Window
	stopPollers    func()
	removeListener func()
	cancelGesture  func()

	done chan outcome
}

// runPopup drives one session from Idle to Terminated and returns its single
// outcome. Configuration errors are returned before any window is opened.
func runPopup(ctx context.Context, cfg popupConfig, req AuthorizationRequest) (*AuthorizationResponse, error) {
	if req.ResponseType == ResponseTypeCode && req.State == "" {
		req.State = cryptox.GenerateAlphanumeric(DefaultStateLength)
	}

	authURL, err := BuildAuthorizationURL(req)
	if err != nil {
		return nil, err
	}

	s := &popupSession{
		id:             idx.New(),
		req:            req,
		authURL:        authURL,
		state:          req.State,
		cfg:            cfg,
		hostOrigin:     parseOrigin(cfg.host.Origin()),
		providerOrigin: req.providerOrigin(),
		done:           make(chan outcome, 1),
	}
	s.log = cfg.logger.With(
		"session_id", s.id.String(),
		"response_type", string(req.ResponseType),
		"protocol", string(req.Protocol),
	)

	s.log.Debug("opening authorization popup")

	if !s.open(ctx) {
		if !req.RetryOnGesture {
			s.finish(outcome{err: ErrUserActionRequired})
		} else {
			s.log.Info("popup blocked, waiting for user gesture to retry")
			cancel := cfg.host.OnNextUserGesture(func() { s.retry(ctx) })
			s.hold(&s.cancelGesture, cancel)
		}
	}

	select {
	case o := <-s.done:
		return o.resp, o.err
	case <-ctx.Done():
		s.finish(outcome{err: ctx.Err()})
		o := <-s.done
		return o.resp, o.err
	}
}

// open tries to move the session to AwaitingCompletion. It reports false
// when the platform refused the window; any partial handle is closed.
func (s *popupSession) open(ctx context.Context) bool {
	w, err := s.cfg.host.Open(ctx, s.req.Features)
	if err != nil || w == nil || w.Closed() {
		if w != nil {
			_ = w.Close()
		}
		s.log.Debug("popup open refused", "err", err)
		return false
	}

	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		_ = w.Close()
		return true
	}
	s.window = w
	s.mu.Unlock()

	if s.req.Protocol == ProtocolMessage {
		s.hold(&s.removeListener, s.cfg.host.AddMessageListener(s.onMessage))
	}

	if err := w.Navigate(s.authURL); err != nil {
		s.log.Debug("popup navigation refused", "err", err)
		s.detach(w)
		return false
	}

	pollCtx, stop := context.WithCancel(context.Background())
	if !s.hold(&s.stopPollers, stop) {
		return true
	}

	go s.pollClosed(pollCtx, w)
	if s.req.Protocol == ProtocolRedirect {
		go s.pollRedirect(pollCtx, w)
	}

	s.log.Debug("awaiting authorization")
	return true
}

// retry is the single second attempt after a blocked popup.
func (s *popupSession) retry(ctx context.Context) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.cancelGesture = nil
	s.mu.Unlock()

	s.log.Debug("retrying popup after user gesture")
	if !s.open(ctx) {
		s.finish(outcome{err: ErrUserActionRequired})
	}
}

// hold stores release in slot so finish runs it, or runs it right away if
// the session already terminated. It reports whether release was stored.
func (s *popupSession) hold(slot *func(), release func()) bool {
	if release == nil {
		return true
	}

	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		release()
		return false
	}
	*slot = release
	s.mu.Unlock()
	return true
}

// detach undoes a half-opened window after a failed navigation.
func (s *popupSession) detach(w Window) {
	s.mu.Lock()
	if s.window == w {
		s.window = nil
	}
	remove := s.removeListener
	s.removeListener = nil
	s.mu.Unlock()

	if remove != nil {
		remove()
	}
	_ = w.Close()
}

// finish is the single terminal transition.
func (s *popupSession) finish(o outcome) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	w := s.window
	releases := []func(){s.stopPollers, s.removeListener, s.cancelGesture}
	s.window, s.stopPollers, s.removeListener, s.cancelGesture = nil, nil, nil, nil
	s.mu.Unlock()

	for _, release := range releases {
		if release != nil {
			release()
		}
	}
	if w != nil {
		_ = w.Close()
	}

	if o.err != nil {
		s.log.Debug("authorization failed", "err", o.err)
	} else {
		s.log.Debug("authorization complete")
	}

	s.done <- o
}

func (s *popupSession) isTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// ============================================================================
// Detectors
// ============================================================================

func (s *popupSession) pollClosed(ctx context.Context, w Window) {
	ticker := time.NewTicker(s.cfg.closeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.isTerminated() {
				return
			}
			if w.Closed() {
				s.finish(outcome{err: ErrWindowClosed})
				return
			}
		}
	}
}

func (s *popupSession) pollRedirect(ctx context.Context, w Window) {
	ticker := time.NewTicker(s.cfg.redirectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.isTerminated() {
				return
			}

			// Reading fails while the provider page is showing.
			loc, err := w.Location()
			if err != nil || loc == nil || originOf(loc) != s.hostOrigin {
				continue
			}

			s.finish(s.redirectOutcome(loc.Query()))
			return
		}
	}
}

// redirectOutcome shapes a redirect back to the host. In the code flow the
// callback must echo the session state, errors included.
func (s *popupSession) redirectOutcome(q url.Values) outcome {
	if s.req.ResponseType == ResponseTypeCode && q.Get("state") != s.state {
		s.log.Warn("authorization callback state mismatch, discarding", "echoed", q.Has("state"))
		return outcome{err: ErrStateMismatch}
	}

	resp, err := normalizeRedirect(s.req.ResponseType, q, s.cfg.now())
	if err != nil {
		s.logRemote(err)
		return outcome{err: err}
	}
	return outcome{resp: resp}
}

func (s *popupSession) onMessage(msg Message) {
	if s.isTerminated() {
		return
	}

	env, ok := decodeEnvelope(msg, s.providerOrigin)
	if !ok {
		return
	}

	switch env.Event {
	case EventDebug:
		if s.req.Verbose {
			var args []any
			_ = json.Unmarshal(env.Params, &args)
			s.log.Info("bkpk debug", "args", args)
		}

	case EventOnload:
		s.log.Debug("authorization page loaded")

	case EventError:
		var p ErrorParams
		_ = json.Unmarshal(env.Params, &p)
		err := &RemoteError{Message: p.Message}
		if len(p.Details) > 0 {
			err.Details = p.Details
		}
		s.logRemote(err)
		s.finish(outcome{err: err})

	case EventClose:
		s.finish(outcome{err: ErrWindowClosed})

	case EventResult:
		resp, err := normalizeMessageResult(s.req.ResponseType, env.Params, s.state)
		s.finish(outcome{resp: resp, err: err})
	}
}

// logRemote surfaces provider supplied details in verbose mode.
func (s *popupSession) logRemote(err error) {
	var re *RemoteError
	if !s.req.Verbose || !errors.As(err, &re) {
		return
	}
	s.log.Warn("bkpk reported an error", "message", re.Message, "details", re.Details)
}
