// Package app wires the bkpk command line tool.
package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/bkpk/pkg/browser"
	"github.com/aussiebroadwan/bkpk/pkg/slogx"
)

const BuildVersion = "v0.1.0"

// App holds the streams and collaborators shared by every command.
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Launcher opens authorization pages; nil means the system browser
	Launcher browser.Launcher

	envFile string
	cfg     Config
	logger  *slog.Logger
}

// New returns an App bound to the process streams.
func New() *App {
	return &App{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Command builds the root command.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "bkpk",
		Short:         "Authorize with Bkpk and read avatars from the command line",
		Version:       BuildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.envFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = slogx.New(slogx.Config{
				Service: "bkpk",
				Version: BuildVersion,
				Env:     cfg.Env,
				Level:   cfg.LogLevel,
				Format:  cfg.LogFormat,
				Output:  a.Err,
			})
			return nil
		},
	}

	root.SetIn(a.In)
	root.SetOut(a.Out)
	root.SetErr(a.Err)
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file to load (default .env when present)")

	root.AddCommand(
		a.authorizeCommand(),
		a.avatarsCommand(),
		a.devProviderCommand(),
	)
	return root
}

// printJSON writes v to the command output, indented.
func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// gestures turns every line read from in into a user gesture. The channel
// closes when in is exhausted.
func gestures(ctx context.Context, in io.Reader) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case ch <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (a *App) infof(format string, args ...any) {
	_, _ = fmt.Fprintf(a.Err, format+"\n", args...)
}
