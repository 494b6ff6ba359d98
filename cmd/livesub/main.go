// Command livesub runs the live subtitle daemon and its control CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/livesub/internal/app"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run keeps deferred cleanup ahead of os.Exit. SIGINT and SIGTERM cancel the
// context, which lets `livesub run` drain sessions before exiting.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	return app.Execute(ctx, args, os.Stdout, os.Stderr)
}
