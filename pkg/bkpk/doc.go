/*
Package bkpk is a client SDK for the Bkpk identity provider and avatar API.

# Overview

A Client asks the user to authorize an application through a popup window,
then calls the Bkpk API with the resulting access token:

	client, err := bkpk.NewClient("my-client-id", bkpk.WithHost(host))

	resp, err := client.Authorize(ctx, bkpk.ResponseTypeToken)
	if errors.Is(err, bkpk.ErrWindowClosed) {
		// the user gave up
	}

	avatar, err := client.GetDefaultAvatar(ctx)

Hosts that already hold a token skip Authorize:

	client.SetCredentials(token, expiresAt)

# Hosts and windows

The popup lives behind the Host and Window interfaces. package browser
provides a Host for Go programs that opens the system browser and receives
redirects and messages on a loopback listener; tests use in-memory fakes.

# Completion protocols

Authorize races several detectors and delivers exactly one outcome:

  - ProtocolRedirect: the provider redirects the popup back to the host
    origin with OAuth parameters (error, token_type/access_token/expires_in,
    or code/state). The popup location is polled until it becomes readable.
  - ProtocolMessage: the hosted authorization page posts an envelope tagged
    with SenderTag to the opener. Messages from other origins or senders are
    ignored.
  - The user closing the popup ends the call with ErrWindowClosed.
  - Cancelling ctx ends the call with ctx.Err().

Blocked popups are retried once on the next user gesture unless
WithRetryOnGesture(false) is set, in which case ErrUserActionRequired is
returned at once.

# Errors

SDK errors are *SDKError values matched by code with errors.Is, for example
errors.Is(err, bkpk.ErrRateLimitReached). Provider reported failures are
*RemoteError values that match ErrUnhandledBkpkError. API validation
failures (HTTP 400) are *APIError values and are passed through untouched.
*/
package bkpk
