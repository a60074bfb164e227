package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"frameworks/herald/internal/cli"
	"frameworks/herald/pkg/version"
)

func main() {
	version.ComponentName = "heraldctl"

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
