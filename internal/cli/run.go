package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hammamikhairi/mealscribe/internal/conversation"
	"github.com/hammamikhairi/mealscribe/internal/display"
	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/engine"
	"github.com/hammamikhairi/mealscribe/internal/speech"
)

type runOptions struct {
	metricsAddr string
	voice       bool
	noChime     bool
}

func newRunCommand(opts *RootOptions) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the interactive shell",
		Long: `Open the interactive shell. Generations keep running while you type.
When the terminal loses focus, finished generations ring the bell instead
of playing a chime.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, opts, ro)
		},
	}

	cmd.Flags().StringVar(&ro.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&ro.voice, "voice", false, "enable spoken descriptions via local Whisper STT")
	cmd.Flags().BoolVar(&ro.noChime, "no-chime", false, "do not play a chime when a recipe finishes")
	return cmd
}

func runShell(cmd *cobra.Command, opts *RootOptions, ro *runOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ui := display.NewUI()

	a, err := openApp(ctx, opts, func(a *App) []engine.Option {
		return []engine.Option{
			engine.WithAppState(ui),
			engine.WithNotifier(conversation.NewCLINotifier(a.Log.Named("notify"), ui.Printf)),
			engine.WithFeedback(newFeedback(a, ro.noChime)),
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			a.Log.Error("shutdown: %v", err)
		}
	}()
	log := a.Log

	var voice dictator
	if ro.voice {
		v := a.Config.Voice
		d, err := speech.NewDictation(v.WhisperBin, v.WhisperModel, log.Named("voice"),
			speech.WithRecordDuration(time.Duration(v.RecordSecs)*time.Second),
			speech.WithTempDir(v.TempDir),
		)
		if err != nil {
			return fmt.Errorf("voice input: %w", err)
		}
		voice = d
		log.Info("voice input enabled (bin=%s, model=%s)", v.WhisperBin, v.WhisperModel)
	}

	rep, err := a.Engine.HandleStaleLoadingTasks(ctx)
	if err != nil {
		log.Error("recovering interrupted generations: %v", err)
	}

	a.Supervisor.Start(ctx)

	if ro.metricsAddr != "" {
		srv := serveMetrics(a, ro.metricsAddr)
		defer func() {
			shutCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	updates, unsubscribe := a.Repo.Subscribe()
	defer unsubscribe()
	ui.Follow(updates)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, display.RenderBanner("recipes from a sentence"))
	if n := rep.Failed + rep.Relaunched; n > 0 {
		fmt.Fprintln(out, display.BannerStyle.Render(
			fmt.Sprintf("  Found %d interrupted generations: %d resumed, %d marked failed.", n, rep.Relaunched, rep.Failed)))
	}
	if voice != nil {
		fmt.Fprintln(out, display.BannerStyle.Render("  Voice mode ON. Type 'voice' to dictate a dish."))
	}
	fmt.Fprintln(out, display.BannerStyle.Render("  Type 'help' for commands, 'quit' to exit."))
	fmt.Fprintln(out)

	sh := newShell(a, ui, conversation.NewKeywordParser(log.Named("parser")), voice)
	go func() {
		ui.WaitReady()
		sh.run(ctx, ui.InputChan())
		ui.Quit()
	}()

	// Bubble Tea owns the terminal until quit.
	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
		return err
	}
	return nil
}

func newFeedback(a *App, disabled bool) domain.Feedback {
	if disabled {
		return speech.NewNoOp(a.Log.Named("feedback"))
	}
	chime, err := speech.NewChime(a.Log.Named("feedback"))
	if err != nil {
		a.Log.Warn("audio unavailable, chimes disabled: %v", err)
		return speech.NewNoOp(a.Log.Named("feedback"))
	}
	return chime
}

func serveMetrics(a *App, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Error("metrics server: %v", err)
		}
	}()
	a.Log.Info("metrics on %s/metrics", addr)
	return srv
}
