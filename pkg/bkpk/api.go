package bkpk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// restClient is the JSON client for the Bkpk API.
type restClient struct {
	baseURL    string
	httpClient *http.Client
	cred       *credential

	// limiter paces outgoing requests; nil means unlimited
	limiter *rate.Limiter
}

// get performs a GET of path with query and decodes the JSON body into out.
func (c *restClient) get(ctx context.Context, path string, query url.Values, authenticated bool, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, authenticated, out)
}

// post sends body as JSON to path and decodes the JSON body into out. No
// Client method needs it yet; the backpack API is read-only.
func (c *restClient) post(ctx context.Context, path string, body any, authenticated bool, out any) error {
	return c.do(ctx, http.MethodPost, path, body, authenticated, out)
}

func (c *restClient) do(ctx context.Context, method, path string, body any, authenticated bool, out any) error {
	// Session errors come before any I/O.
	var token string
	if authenticated {
		t, _, err := c.cred.accessToken()
		if err != nil {
			return err
		}
		token = t
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.baseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &networkError{cause: err}
	}

	return decodeJSON(resp, out)
}

// decodeJSON maps the response status to an SDK error or decodes the body
// into target.
func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &networkError{cause: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseErrorResponse(resp, bodyBytes)
	}

	if target == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return &networkError{cause: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// parseErrorResponse turns a non-2xx response into an error.
//
// 400 bodies carry {"code", "message"} which are returned as *APIError;
// well-known statuses map to SDK errors. Anything else is an *APIError
// built from whatever the body holds.
func parseErrorResponse(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrNotAuthorized
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimitReached
	case resp.StatusCode >= http.StatusInternalServerError:
		return ErrUnhandledServerError
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "-"))
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
