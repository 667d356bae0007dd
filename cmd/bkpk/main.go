package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/bkpk/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New().Command().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bkpk: %v\n", err)
		stop()
		os.Exit(1)
	}
}
