package authorize_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/bkpk/internal/devprovider"
	"github.com/aussiebroadwan/bkpk/pkg/bkpk"
	"github.com/aussiebroadwan/bkpk/pkg/bkpk/bus"
	"github.com/aussiebroadwan/bkpk/pkg/browser"
)

/*
 * Helpers for authorization end-to-end tests. Every test runs a development
 * provider and a loopback browser host in process; launchers stand in for
 * the user's browser.
 */

const clientID = "e2e-client"

// env is one provider plus one host, both torn down with the test.
type env struct {
	provider *devprovider.Provider
	server   *httptest.Server
	host     *browser.Host
}

func setup(t *testing.T, launcher func(e *env) browser.Launcher) *env {
	t.Helper()

	provider, err := devprovider.New(devprovider.Config{
		ClientIDs: []string{clientID},
		Subject:   "e2e-user",
		Backpack: bkpk.BackpackOwnerResponse{
			ID: "bp_e2e",
			BackpackItems: []bkpk.BackpackItem{
				{ID: "avatar_1", Category: "avatar", Metadata: bkpk.Avatar{Source: "https://cdn.bkpk.test/1.glb", Type: "humanoid", FileFormat: "glb"}},
				{ID: "avatar_2", Category: "avatar", Metadata: bkpk.Avatar{Source: "https://cdn.bkpk.test/2.vrm", Type: "humanoid", FileFormat: "vrm"}},
			},
		},
		Version: "e2e",
		Logger:  slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	e := &env{provider: provider}
	e.server = httptest.NewServer(devprovider.NewRouter(provider))
	t.Cleanup(e.server.Close)

	e.host = browser.NewHost(browser.Config{
		Launcher: launcher(e),
		Logger:   slog.New(slog.DiscardHandler),
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, e.host.Start(ctx))
	return e
}

func (e *env) client(t *testing.T, opts ...bkpk.Option) *bkpk.Client {
	t.Helper()

	opts = append([]bkpk.Option{
		bkpk.WithHost(e.host),
		bkpk.WithBaseURL(e.server.URL),
		bkpk.WithAPIURL(e.server.URL),
		bkpk.WithPollIntervals(20*time.Millisecond, 20*time.Millisecond),
		bkpk.WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)

	c, err := bkpk.NewClient(clientID, opts...)
	require.NoError(t, err)
	return c
}

// redirectingBrowser loads the authorization page and follows the provider's
// redirect back to the host callback.
func redirectingBrowser(*env) browser.Launcher {
	noRedirect := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	return func(rawURL string) error {
		go func() {
			resp, err := noRedirect.Get(rawURL)
			if err != nil {
				return
			}
			resp.Body.Close()

			loc := resp.Header.Get("Location")
			if loc == "" {
				return
			}
			if cb, err := http.Get(loc); err == nil {
				cb.Body.Close()
			}
		}()
		return nil
	}
}

// messagingBrowser stands in for a hosted authorization page that reports
// through the bus, relaying every event to the host's message endpoint with
// the provider's origin.
func messagingBrowser(page func(b *bus.Bus)) func(e *env) browser.Launcher {
	return func(e *env) browser.Launcher {
		return func(rawURL string) error {
			u, err := url.Parse(rawURL)
			if err != nil {
				return err
			}

			relay := bus.PosterFunc(func(data []byte) error {
				req, err := http.NewRequest(http.MethodPost, e.host.Origin()+"/message", bytes.NewReader(data))
				if err != nil {
					return err
				}
				req.Header.Set("Origin", e.server.URL)
				resp, err := http.DefaultClient.Do(req)
				if err != nil {
					return err
				}
				return resp.Body.Close()
			})

			go func() {
				b, err := bus.FromQuery(u.Query(), relay)
				if err != nil {
					return
				}
				page(b)
			}()
			return nil
		}
	}
}
