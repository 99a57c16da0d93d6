package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hammamikhairi/mealscribe/internal/checklist"
	"github.com/hammamikhairi/mealscribe/internal/config"
	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/engine"
	"github.com/hammamikhairi/mealscribe/internal/gpt"
	"github.com/hammamikhairi/mealscribe/internal/logger"
	"github.com/hammamikhairi/mealscribe/internal/maintenance"
	"github.com/hammamikhairi/mealscribe/internal/photo"
	"github.com/hammamikhairi/mealscribe/internal/recipe"
	"github.com/hammamikhairi/mealscribe/internal/storage"
)

// store is what the app needs from a storage backend.
type store interface {
	domain.RecordStore
	domain.ChecklistStore
}

// App is one wired instance of every service. Commands open it, use it,
// and close it.
type App struct {
	Config     config.Config
	Log        *logger.Logger
	Repo       *recipe.Repository
	Checklists *checklist.Manager
	Engine     *engine.Engine
	Photos     domain.PhotoStore
	Supervisor *maintenance.Supervisor
	Registry   *prometheus.Registry

	closers []func() error
}

// openApp loads configuration and wires the services. wire, when set,
// supplies the command's engine options (app state, notifier, feedback);
// it runs once the logger and repository exist.
func openApp(ctx context.Context, opts *RootOptions, wire func(*App) []engine.Option) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.getenv)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.closeAll()
		}
	}()

	if err := a.openLogger(opts); err != nil {
		return nil, err
	}

	st, err := a.openStore()
	if err != nil {
		return nil, err
	}

	a.Repo = recipe.New(st, a.Log.Named("repo"))
	if err := a.Repo.Load(ctx); err != nil {
		return nil, err
	}
	a.Checklists = checklist.NewManager(st, a.Log.Named("checklist"))
	if err := a.Checklists.Load(ctx); err != nil {
		return nil, err
	}

	a.Photos, err = photo.Open(ctx, cfg.Photos, a.Log.Named("photo"))
	if err != nil {
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	engOpts := []engine.Option{
		engine.WithChecklists(a.Checklists),
		engine.WithPhotoStore(a.Photos),
		engine.WithMetrics(engine.NewMetrics(a.Registry)),
		engine.WithStaleAfter(cfg.Generation.StaleAfter),
		engine.WithRecoveryDelay(cfg.Generation.RecoveryDelay),
	}
	if wire != nil {
		engOpts = append(engOpts, wire(a)...)
	}
	a.Engine = engine.New(a.Repo, a.generator(opts), a.Log.Named("engine"), engOpts...)

	a.Supervisor = maintenance.New(a.Repo, a.Checklists, a.Log.Named("maintenance"),
		maintenance.WithSweepInterval(cfg.Generation.SweepInterval),
		maintenance.WithWatcher(
			maintenance.WithWatchInterval(cfg.Generation.WatchInterval),
			maintenance.WithHangThreshold(cfg.Generation.StaleAfter),
		),
	)

	ok = true
	return a, nil
}

// openLogger directs logs to a file by default so the terminal stays
// clean. "stderr" logs to the console.
func (a *App) openLogger(opts *RootOptions) error {
	level, err := logger.ParseLevel(a.Config.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if opts.Verbose {
		level = logger.LevelVerbose
	}
	if opts.Quiet {
		level = logger.LevelOff
	}

	path := a.Config.LogFile
	if opts.LogFile != "" {
		path = opts.LogFile
	}

	var out io.Writer = os.Stderr
	if level != logger.LevelOff && path != "stderr" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", path, err)
		} else {
			out = f
			a.closers = append(a.closers, f.Close)
		}
	}

	// Third-party libraries (the whisper transcriber) log through the
	// standard logger; keep them off the terminal too.
	if level == logger.LevelOff {
		stdlog.SetOutput(io.Discard)
	} else {
		stdlog.SetOutput(out)
	}
	stdlog.SetFlags(stdlog.Ltime)

	a.Log = logger.New(level, out)
	return nil
}

func (a *App) openStore() (store, error) {
	switch a.Config.Store.Driver {
	case config.StoreMemory:
		return storage.NewMemoryStore(a.Log.Named("store")), nil
	default:
		s, err := storage.OpenSQLite(a.Config.Store.Path, a.Log.Named("store"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
}

func (a *App) generator(opts *RootOptions) domain.Generator {
	if opts.generator != nil {
		return opts.generator
	}
	if !a.Config.GPTEnabled() {
		a.Log.Info("model disabled: set %s and %s to enable generation", config.EnvGPTKey, config.EnvGPTEndpoint)
		return offline{}
	}

	g := a.Config.GPT
	clientOpts := []gpt.ClientOption{gpt.WithJSONMode()}
	if g.Model != "" {
		clientOpts = append(clientOpts, gpt.WithModel(g.Model))
	}
	if g.Timeout > 0 {
		clientOpts = append(clientOpts, gpt.WithHTTPTimeout(g.Timeout))
	}
	if g.MaxTokens > 0 {
		clientOpts = append(clientOpts, gpt.WithMaxTokens(g.MaxTokens))
	}
	client := gpt.NewClient(g.Endpoint, g.Key, a.Log.Named("gpt"), clientOpts...)
	return gpt.NewGenerator(client, a.Log.Named("gpt"))
}

// Close shuts the engine down, then releases the store and log file.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Supervisor != nil {
		a.Supervisor.Stop()
	}
	if a.Engine != nil {
		if err := a.Engine.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ── Lookups ──────────────────────────────────────────────────────

// ErrAmbiguous is returned when an id prefix matches several recipes.
var ErrAmbiguous = errors.New("ambiguous recipe id")

// Resolve finds a recipe by full id or unique id prefix.
func (a *App) Resolve(ref string) (domain.Recipe, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Recipe{}, fmt.Errorf("%w: recipe id required", domain.ErrValidation)
	}
	if r, err := a.Repo.Get(ref); err == nil {
		return r, nil
	}

	var found []domain.Recipe
	for _, r := range a.Repo.Snapshot() {
		if strings.HasPrefix(r.ID, ref) {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return domain.Recipe{}, fmt.Errorf("recipe %q: %w", ref, domain.ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return domain.Recipe{}, fmt.Errorf("%w: %q matches %d recipes", ErrAmbiguous, ref, len(found))
	}
}

// ChecklistView returns a recipe's checklist tab with entries in display
// order. The recipe must be finished and pinned to the checklist.
func (a *App) ChecklistView(ctx context.Context, r domain.Recipe, category domain.Category) (domain.ChecklistGroup, []domain.ChecklistEntry, error) {
	if r.State != domain.StateAwaitingImage && r.State != domain.StateComplete {
		return domain.ChecklistGroup{}, nil, fmt.Errorf("%w: recipe %s is %s", domain.ErrInvalidTransition, r.ID, r.State)
	}
	if !r.InChecklist {
		return domain.ChecklistGroup{}, nil, fmt.Errorf("%w: recipe %s is not in the checklist", domain.ErrValidation, r.ID)
	}
	g, err := a.Checklists.Group(ctx, r, category)
	if err != nil {
		return domain.ChecklistGroup{}, nil, err
	}
	return g, checklist.SortedItems(g), nil
}

// ToggleNth flips the n-th entry (1-based, display order) of a tab.
func (a *App) ToggleNth(ctx context.Context, r domain.Recipe, category domain.Category, n int) (domain.ChecklistGroup, []domain.ChecklistEntry, error) {
	_, items, err := a.ChecklistView(ctx, r, category)
	if err != nil {
		return domain.ChecklistGroup{}, nil, err
	}
	if n < 1 || n > len(items) {
		return domain.ChecklistGroup{}, nil, fmt.Errorf("%w: entry %d out of range 1-%d", domain.ErrValidation, n, len(items))
	}
	g, _, err := a.Checklists.Toggle(ctx, r.ID, category, items[n-1].ID)
	if err != nil {
		return domain.ChecklistGroup{}, nil, err
	}
	return g, checklist.SortedItems(g), nil
}

// Repair runs stale recovery, the orphan sweep, and a photo existence
// check. Missing photos are reported, never rewritten.
func (a *App) Repair(ctx context.Context) (RepairReport, error) {
	var rep RepairReport
	rec, err := a.Engine.HandleStaleLoadingTasks(ctx)
	if err != nil {
		return rep, err
	}
	rep.Recovery = rec
	rep.Orphans = a.Supervisor.Sweep(ctx)

	checker, ok := a.Photos.(photo.Checker)
	if !ok {
		return rep, nil
	}
	for _, r := range a.Repo.Snapshot() {
		if r.ImagePath == "" {
			continue
		}
		exists, err := checker.Exists(ctx, r.ImagePath)
		if err != nil {
			a.Log.Warn("repair: checking photo for %s: %v", r.ID, err)
			continue
		}
		if !exists {
			rep.MissingPhotos = append(rep.MissingPhotos, r.ID)
		}
	}
	return rep, nil
}

// RepairReport summarizes one Repair pass.
type RepairReport struct {
	Recovery      engine.RecoveryReport
	Orphans       int
	MissingPhotos []string
}

// offline stands in for the model when no endpoint is configured. Every
// generation fails and can be retried once one is.
type offline struct{}

func (offline) Generate(context.Context, string) (*domain.Recipe, error) {
	return nil, fmt.Errorf("%w: no model endpoint configured (set %s and %s)", domain.ErrRemote, config.EnvGPTKey, config.EnvGPTEndpoint)
}
