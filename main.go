// The main package for the clew executable.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/clew-freshness/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.Execute(ctx)
}
