// Package cli implements the mealscribe command line: one-shot commands
// for scripting and an interactive shell.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/mealscribe/internal/display"
	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
	LogFile    string

	getenv    func(string) string
	generator domain.Generator // overrides the configured model when set
}

// NewRootCommand creates the root command for the mealscribe CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{getenv: os.Getenv})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mealscribe",
		Short: "mealscribe - recipes from a sentence",
		Long: `Describe a dish in a few words and mealscribe asks a language model to
write the recipe. Recipes are kept locally, can be given a photo, and can
be pinned to a shopping and cooking checklist.

Run without a subcommand to open the interactive shell.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Verbose && opts.Quiet {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file (default mealscribe.yaml if present)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose/debug logging")
	cmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "disable all logging")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", `file to write logs to (use "stderr" to log to console)`)

	run := newRunCommand(opts)
	cmd.RunE = run.RunE
	cmd.Flags().AddFlagSet(run.Flags())

	cmd.AddCommand(run)
	cmd.AddCommand(newGenerateCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newRetryCommand(opts))
	cmd.AddCommand(newAttachCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newPinCommand(opts, true))
	cmd.AddCommand(newPinCommand(opts, false))
	cmd.AddCommand(newChecklistCommand(opts))
	cmd.AddCommand(newRepairCommand(opts))

	return cmd
}

// withApp opens the app for one command and closes it afterwards.
// One-shot commands run in the foreground, so completions are never
// pushed as notifications.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *App) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts, func(*App) []engine.Option {
		return []engine.Option{engine.WithAppState(display.Fixed(false))}
	})
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	closeErr := a.Close(context.WithoutCancel(ctx))
	return errors.Join(runErr, closeErr)
}

// waitIdle blocks until the engine has no background work, or ctx ends.
func waitIdle(ctx context.Context, e *engine.Engine) error {
	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseCategory accepts a category name; empty means ingredients.
func parseCategory(s string) (domain.Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return domain.CategoryIngredients, nil
	}
	if c := domain.Category(s); c.Valid() {
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown checklist category %q (want ingredients, steps, or sauce)", domain.ErrValidation, s)
}
