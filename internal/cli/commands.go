package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/mealscribe/internal/display"
	"github.com/hammamikhairi/mealscribe/internal/domain"
)

// ── generate ─────────────────────────────────────────────────────

func newGenerateCommand(opts *RootOptions) *cobra.Command {
	var detach bool

	cmd := &cobra.Command{
		Use:   "generate <description...>",
		Short: "Generate a recipe from a description",
		Long: `Generate a recipe from a free-text description and print it.

With --detach the placeholder is saved and the command exits at once; the
interrupted generation is picked up the next time the shell starts.`,
		Args:    cobra.MinimumNArgs(1),
		Aliases: []string{"gen"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				out := cmd.OutOrStdout()
				id, err := a.Engine.GenerateAndSave(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "cooking up %s...\n", display.ShortID(id))
				if detach {
					return nil
				}
				return printOutcome(ctx, cmd, a, id)
			})
		},
	}

	cmd.Flags().BoolVar(&detach, "detach", false, "save the request and exit without waiting")
	return cmd
}

// printOutcome waits for background work and prints the recipe, or an
// error naming the retry command.
func printOutcome(ctx context.Context, cmd *cobra.Command, a *App, id string) error {
	if err := waitIdle(ctx, a.Engine); err != nil {
		return err
	}
	r, err := a.Repo.Get(id)
	if err != nil {
		return err
	}
	if r.State == domain.StateFailed {
		return fmt.Errorf("generation failed; try again with: mealscribe retry %s", display.ShortID(id))
	}
	fmt.Fprint(cmd.OutOrStdout(), display.RenderRecipe(r))
	return nil
}

// ── list / show ──────────────────────────────────────────────────

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List recipes, newest first",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				fmt.Fprint(cmd.OutOrStdout(), display.RenderList(a.Repo.Snapshot(), time.Now()))
				return nil
			})
		},
	}
}

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				r, err := a.Resolve(args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), display.RenderRecipe(r))
				return nil
			})
		},
	}
}

// ── retry / attach / delete ──────────────────────────────────────

func newRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry a failed generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				r, err := a.Resolve(args[0])
				if err != nil {
					return err
				}
				if err := a.Engine.Retry(ctx, r.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "retrying %s...\n", display.ShortID(r.ID))
				return printOutcome(ctx, cmd, a, r.ID)
			})
		},
	}
}

func newAttachCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <id> <image>",
		Short: "Attach a photo to a finished recipe",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				r, err := a.Resolve(args[0])
				if err != nil {
					return err
				}
				updated, err := attachFile(ctx, a, r.ID, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "photo saved for %s: %s\n", updated.Name, updated.ImagePath)
				return nil
			})
		},
	}
}

func attachFile(ctx context.Context, a *App, id, path string) (domain.Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Recipe{}, err
	}
	defer f.Close()
	return a.Engine.AttachImage(ctx, id, f, filepath.Ext(path))
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Short:   "Delete a recipe with its checklist and photo",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				r, err := a.Resolve(args[0])
				if err != nil {
					return err
				}
				if err := a.Engine.Delete(ctx, r.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", display.ShortID(r.ID))
				return nil
			})
		},
	}
}

// ── checklist ────────────────────────────────────────────────────

func newPinCommand(opts *RootOptions, on bool) *cobra.Command {
	use, short := "pin <id>", "Add a recipe to the checklist"
	if !on {
		use, short = "unpin <id>", "Remove a recipe and its progress from the checklist"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				r, err := a.Resolve(args[0])
				if err != nil {
					return err
				}
				r, err = a.Engine.SetInChecklist(ctx, r.ID, on)
				if err != nil {
					return err
				}
				verb := "pinned"
				if !on {
					verb = "unpinned"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, r.Name)
				return nil
			})
		},
	}
}

func newChecklistCommand(opts *RootOptions) *cobra.Command {
	var (
		category string
		toggle   int
	)

	cmd := &cobra.Command{
		Use:   "checklist <id>",
		Short: "Show or tick a recipe's checklist",
		Long: `Show one checklist tab of a pinned recipe. Open entries come first in
recipe order, then finished ones in the order they were ticked.

--toggle N flips the N-th entry as currently displayed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := parseCategory(category)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				r, err := a.Resolve(args[0])
				if err != nil {
					return err
				}
				var (
					g     domain.ChecklistGroup
					items []domain.ChecklistEntry
				)
				if toggle > 0 {
					g, items, err = a.ToggleNth(ctx, r, cat, toggle)
				} else {
					g, items, err = a.ChecklistView(ctx, r, cat)
				}
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), display.RenderChecklist(g, items))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", string(domain.CategoryIngredients), "tab to show: ingredients, steps, or sauce")
	cmd.Flags().IntVar(&toggle, "toggle", 0, "flip the N-th displayed entry")
	return cmd
}

// ── repair ───────────────────────────────────────────────────────

func newRepairCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Resolve interrupted generations and clean up checklists",
		Long: `Fail generations interrupted too long ago, relaunch recent ones, remove
checklist progress whose recipe is gone, and report recipes whose photo
is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				rep, err := a.Repair(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "stale generations failed: %d\n", rep.Recovery.Failed)
				fmt.Fprintf(out, "generations relaunched:   %d\n", rep.Recovery.Relaunched)
				fmt.Fprintf(out, "orphaned checklists:      %d\n", rep.Orphans)
				for _, id := range rep.MissingPhotos {
					fmt.Fprintf(out, "missing photo:            %s\n", id)
				}
				return waitIdle(ctx, a.Engine)
			})
		},
	}
}
