package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/bkpk/internal/devprovider"
	"github.com/aussiebroadwan/bkpk/pkg/bkpk"
	"github.com/aussiebroadwan/bkpk/pkg/browser"
)

// cliClientID identifies API-only invocations that never authorize.
const cliClientID = "bkpk-cli"

func (a *App) authorizeCommand() *cobra.Command {
	var (
		responseType string
		protocol     string
		clientID     string
		baseURL      string
		port         int
		scopes       []string
	)

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Open the Bkpk authorization page and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("client-id") {
				clientID = a.cfg.ClientID
			}
			if !flags.Changed("base-url") {
				baseURL = a.cfg.BaseURL
			}
			if !flags.Changed("protocol") {
				protocol = a.cfg.Protocol
			}
			if !flags.Changed("port") {
				port = a.cfg.CallbackPort
			}
			if !flags.Changed("scope") {
				scopes = a.cfg.Scopes
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeout)
			defer cancel()

			host := browser.NewHost(browser.Config{
				Port:     port,
				Launcher: a.Launcher,
				Gestures: gestures(ctx, a.In),
				Logger:   a.logger,
			})
			if err := host.Start(ctx); err != nil {
				return err
			}
			defer host.Stop()

			client, err := bkpk.NewClient(clientID,
				bkpk.WithHost(host),
				bkpk.WithBaseURL(baseURL),
				bkpk.WithAPIURL(a.cfg.APIURL),
				bkpk.WithProtocol(bkpk.Protocol(protocol)),
				bkpk.WithScopes(scopes...),
				bkpk.WithLogger(a.logger),
				bkpk.WithVerbose(a.cfg.Verbose),
			)
			if err != nil {
				return err
			}

			a.infof("Waiting for authorization in your browser. If nothing opened, press Enter to retry.")

			resp, err := client.Authorize(ctx, bkpk.ResponseType(responseType))
			if err != nil {
				return fmt.Errorf("authorize: %w", err)
			}
			return a.printJSON(resp)
		},
	}

	f := cmd.Flags()
	f.StringVar(&responseType, "response-type", string(bkpk.ResponseTypeToken), "token or code")
	f.StringVar(&protocol, "protocol", "", "redirect or message (env BKPK_PROTOCOL)")
	f.StringVar(&clientID, "client-id", "", "application client id (env BKPK_CLIENT_ID)")
	f.StringVar(&baseURL, "base-url", "", "identity provider URL (env BKPK_BASE_URL)")
	f.IntVar(&port, "port", 0, "loopback callback port, 0 for any (env BKPK_CALLBACK_PORT)")
	f.StringSliceVar(&scopes, "scope", nil, "scopes to request (env BKPK_SCOPES)")

	return cmd
}

func (a *App) avatarsCommand() *cobra.Command {
	var (
		token       string
		defaultOnly bool
	)

	cmd := &cobra.Command{
		Use:   "avatars",
		Short: "List the avatars in the authorized user's backpack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("token") {
				token = a.cfg.Token
			}
			if token == "" {
				return bkpk.ErrNoAccessToken
			}

			clientID := a.cfg.ClientID
			if clientID == "" {
				clientID = cliClientID
			}
			client, err := bkpk.NewClient(clientID,
				bkpk.WithAPIURL(a.cfg.APIURL),
				bkpk.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			client.SetCredentials(token, time.Time{})

			if defaultOnly {
				item, err := client.GetDefaultAvatar(cmd.Context())
				if err != nil {
					return err
				}
				return a.printJSON(item)
			}

			items, err := client.GetAvatars(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(items)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "access token (env BKPK_TOKEN)")
	cmd.Flags().BoolVar(&defaultOnly, "default", false, "print only the default avatar")

	return cmd
}

func (a *App) devProviderCommand() *cobra.Command {
	var (
		addr      string
		clientIDs []string
		relay     string
	)

	cmd := &cobra.Command{
		Use:   "dev-provider",
		Short: "Run a local identity provider and API for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dev := a.cfg.Dev
			if cmd.Flags().Changed("addr") {
				dev.Addr = addr
			}
			if cmd.Flags().Changed("client-id") {
				dev.ClientIDs = clientIDs
			}
			if cmd.Flags().Changed("relay") {
				dev.Relay = relay
			}
			return a.runDevProvider(cmd.Context(), dev)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "listen address (env BKPK_DEV_ADDR, default :9000)")
	f.StringSliceVar(&clientIDs, "client-id", nil, "accepted client ids (env BKPK_DEV_CLIENT_IDS)")
	f.StringVar(&relay, "relay", "", "URL the message page also posts events to (env BKPK_DEV_RELAY)")

	return cmd
}

func (a *App) runDevProvider(ctx context.Context, dev DevConfig) error {
	provider, err := devprovider.New(devprovider.Config{
		ClientIDs: dev.ClientIDs,
		Subject:   dev.Subject,
		Issuer:    dev.Issuer,
		TokenTTL:  dev.TokenTTL,
		CodeTTL:   dev.CodeTTL,
		Relay:     dev.Relay,
		Version:   BuildVersion,
		Logger:    a.logger,
		Backpack: bkpk.BackpackOwnerResponse{
			ID: "dev-backpack",
			BackpackItems: []bkpk.BackpackItem{{
				ID:       "dev-avatar",
				Content:  "Development avatar",
				Source:   "devprovider",
				Category: "avatar",
				Metadata: bkpk.Avatar{
					Source:        dev.AvatarSource,
					Type:          "humanoid",
					FileFormat:    "glb",
					BodyType:      "full-body",
					BoneStructure: &bkpk.BoneStructure{Head: "Head"},
				},
			}},
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		},
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", dev.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", dev.Addr, err)
	}

	server := &http.Server{
		Handler:           devprovider.NewRouter(provider),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("dev provider starting", "addr", listener.Addr().String(), "version", BuildVersion)
	a.infof("Development provider on http://%s (never expose it)", listener.Addr())

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Serve(listener)
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("shutting down dev provider")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), dev.ShutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("graceful server shutdown failed", "error", err)
		return server.Close()
	}
	return nil
}
