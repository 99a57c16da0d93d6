// mealscribe turns a sentence into a recipe.
//
// Usage:
//
//	mealscribe [run] [--voice] [--metrics-addr :9090]
//	mealscribe generate <description...>
//	mealscribe list | show | retry | attach | delete | pin | unpin | checklist | repair
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hammamikhairi/mealscribe/internal/cli"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
