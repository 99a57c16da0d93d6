// Package engine runs the recipe generation lifecycle: placeholder,
// remote generation, reconciliation, retry and startup recovery.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

// DefaultStaleAfter is how old a Generating record may be at startup
// before it is given up on.
const DefaultStaleAfter = 5 * time.Minute

// Records is the part of the repository the engine writes through.
type Records interface {
	Snapshot() []domain.Recipe
	Get(id string) (domain.Recipe, error)
	Save(ctx context.Context, r domain.Recipe) error
	Update(ctx context.Context, r domain.Recipe) error
	Delete(ctx context.Context, id string) error
}

// Checklists is the part of the checklist manager the engine cascades to.
type Checklists interface {
	RemoveGroupsFor(ctx context.Context, recipeID string) (int, error)
	Refresh(ctx context.Context, r domain.Recipe) (int, error)
}

// Option configures the engine.
type Option func(*Engine)

// WithChecklists enables checklist cascades on delete and unpin, and
// refreshes a pinned recipe's checklists when it is regenerated.
func WithChecklists(c Checklists) Option {
	return func(e *Engine) { e.checklists = c }
}

// WithPhotoStore enables AttachImage and photo cleanup on delete.
func WithPhotoStore(p domain.PhotoStore) Option {
	return func(e *Engine) { e.photos = p }
}

// WithAppState sets the foreground/background oracle.
func WithAppState(a domain.AppState) Option {
	return func(e *Engine) { e.app = a }
}

// WithNotifier sets where completion messages go while backgrounded.
func WithNotifier(n domain.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithFeedback sets the local feedback used while foregrounded.
func WithFeedback(f domain.Feedback) Option {
	return func(e *Engine) { e.feedback = f }
}

// WithMetrics replaces the unregistered default collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDFunc overrides recipe ID generation.
func WithIDFunc(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithStaleAfter sets the startup staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) { e.staleAfter = d }
}

// WithRecoveryDelay delays relaunched generations after startup.
func WithRecoveryDelay(d time.Duration) Option {
	return func(e *Engine) { e.recoveryDelay = d }
}

// task is one in-flight generation.
type task struct {
	attempt uint64
	cancel  context.CancelFunc
}

// Engine coordinates recipe generation. Background work runs on the
// engine's own context, never on a caller's.
type Engine struct {
	repo       Records
	gen        domain.Generator
	checklists Checklists
	photos     domain.PhotoStore
	app        domain.AppState
	notifier   domain.Notifier
	feedback   domain.Feedback
	log        *logger.Logger
	metrics    *Metrics

	now           func() time.Time
	newID         func() string
	staleAfter    time.Duration
	recoveryDelay time.Duration

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// mu guards the bookkeeping below and serializes every
	// read-modify-write of a record the engine performs.
	mu       sync.Mutex
	closed   bool
	inflight map[string]*task
	attempts map[string]uint64
}

// New creates an engine. Call Shutdown to stop background work.
func New(repo Records, gen domain.Generator, log *logger.Logger, opts ...Option) *Engine {
	base, stop := context.WithCancel(context.Background())
	e := &Engine{
		repo:       repo,
		gen:        gen,
		app:        foreground{},
		notifier:   discardNotifier{},
		feedback:   silentFeedback{},
		log:        log,
		now:        time.Now,
		newID:      generateID,
		staleAfter: DefaultStaleAfter,
		base:       base,
		stop:       stop,
		inflight:   make(map[string]*task),
		attempts:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

// ── Generation ───────────────────────────────────────────────────

// GenerateAndSave persists a placeholder for prompt and starts generation
// in the background. It returns the new record's ID once the placeholder
// is durable.
func (e *Engine) GenerateAndSave(ctx context.Context, prompt string) (string, error) {
	prompt = normalizePrompt(prompt)
	if prompt == "" {
		e.log.Warn("generate: empty prompt ignored")
		return "", domain.ErrEmptyPrompt
	}

	rec := domain.Recipe{
		ID:        e.newID(),
		Name:      domain.PlaceholderName,
		CreatedAt: e.now(),
		Prompt:    prompt,
		State:     domain.StateGenerating,
	}
	if err := e.repo.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("saving placeholder: %w", err)
	}
	e.log.Info("generation %s started: %q", rec.ID, truncate(prompt, 60))

	e.mu.Lock()
	e.launchLocked(rec, 0)
	e.mu.Unlock()
	return rec.ID, nil
}

// Retry restarts generation for a failed record, or for a Generating
// record whose task is gone. The ID and creation time are kept.
func (e *Engine) Retry(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.repo.Get(id)
	if err != nil {
		return fmt.Errorf("retry %s: %w", id, err)
	}
	if cur.Prompt == "" {
		e.log.Warn("retry %s: record has no prompt", id)
		return fmt.Errorf("retry %s: %w", id, domain.ErrMissingPrompt)
	}

	_, running := e.inflight[id]
	switch {
	case cur.State == domain.StateFailed:
	case cur.State == domain.StateGenerating && !running:
		e.log.Debug("retry %s: reviving orphaned generation", id)
	default:
		return fmt.Errorf("retry %s from %s: %w", id, cur.State, domain.ErrInvalidTransition)
	}

	cur.State = domain.StateGenerating
	cur.Name = domain.PlaceholderName
	if err := e.repo.Update(ctx, cur); err != nil {
		return fmt.Errorf("retry %s: %w", id, err)
	}
	e.log.Info("generation %s retried", id)
	e.launchLocked(cur, 0)
	return nil
}

// RecoveryReport summarizes HandleStaleLoadingTasks.
type RecoveryReport struct {
	Failed     int
	Relaunched int
}

// HandleStaleLoadingTasks resolves Generating records left over from a
// previous run. Records older than the stale threshold, or without a
// prompt, become Failed without a completion signal. Younger ones are
// relaunched after the recovery delay.
func (e *Engine) HandleStaleLoadingTasks(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.repo.Snapshot() {
		if r.State != domain.StateGenerating {
			continue
		}
		if _, running := e.inflight[r.ID]; running {
			continue
		}

		age := now.Sub(r.CreatedAt)
		if r.Prompt == "" || age > e.staleAfter {
			r.State = domain.StateFailed
			if err := e.repo.Update(ctx, r); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return report, fmt.Errorf("failing stale generation %s: %w", r.ID, err)
			}
			e.metrics.Stale.WithLabelValues(staleFailed).Inc()
			report.Failed++
			e.log.Info("generation %s marked failed (age %s)", r.ID, age.Round(time.Second))
			continue
		}

		e.metrics.Stale.WithLabelValues(staleRelaunched).Inc()
		report.Relaunched++
		e.log.Info("generation %s relaunched (age %s)", r.ID, age.Round(time.Second))
		e.launchLocked(r, e.recoveryDelay)
	}
	return report, nil
}

// Cancel stops the in-flight generation for id. The record stays
// Generating. Reports whether a task was running.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.inflight[id]
	if ok {
		t.cancel()
		e.log.Info("generation %s cancelled", id)
	}
	return ok
}

// InFlight reports how many generations are running.
func (e *Engine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

// Wait blocks until every launched generation has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown cancels all in-flight generations and waits for them to
// return, or for ctx to expire. Records being generated stay Generating.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launchLocked starts a generation for rec. Any earlier task for the same
// ID is superseded. Caller holds e.mu.
func (e *Engine) launchLocked(rec domain.Recipe, delay time.Duration) {
	if e.closed {
		e.log.Warn("generation %s not started: engine shut down", rec.ID)
		return
	}
	if prev, ok := e.inflight[rec.ID]; ok {
		prev.cancel()
	}

	e.attempts[rec.ID]++
	attempt := e.attempts[rec.ID]
	ctx, cancel := context.WithCancel(e.base)
	e.inflight[rec.ID] = &task{attempt: attempt, cancel: cancel}

	e.metrics.Started.Inc()
	e.metrics.InFlight.Inc()
	e.wg.Add(1)
	go e.run(ctx, rec, attempt, delay)
}

func (e *Engine) run(ctx context.Context, rec domain.Recipe, attempt uint64, delay time.Duration) {
	defer e.wg.Done()
	defer e.metrics.InFlight.Dec()
	defer e.release(rec.ID, attempt)

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			e.metrics.Completed.WithLabelValues(outcomeCancelled).Inc()
			return
		}
	}

	out, genErr := e.gen.Generate(ctx, rec.Prompt)
	if ctx.Err() != nil || errors.Is(genErr, context.Canceled) {
		e.log.Debug("generation %s attempt %d cancelled; record left generating", rec.ID, attempt)
		e.metrics.Completed.WithLabelValues(outcomeCancelled).Inc()
		return
	}

	final, ok := e.reconcile(rec.ID, attempt, out, genErr)
	if !ok {
		e.metrics.Completed.WithLabelValues(outcomeDiscarded).Inc()
		return
	}

	success := final.State == domain.StateAwaitingImage
	if success {
		e.metrics.Completed.WithLabelValues(outcomeSuccess).Inc()
		e.refreshChecklists(final)
	} else {
		e.metrics.Completed.WithLabelValues(outcomeFailure).Inc()
	}
	e.signal(final, success)
}

// reconcile merges a generation result into the stored record. It returns
// false when the result was dropped.
func (e *Engine) reconcile(id string, attempt uint64, out *domain.Recipe, genErr error) (domain.Recipe, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.attempts[id] != attempt {
		e.log.Debug("generation %s attempt %d superseded; result dropped", id, attempt)
		return domain.Recipe{}, false
	}

	cur, err := e.repo.Get(id)
	if err != nil {
		e.log.Info("generation %s finished after the record was deleted; result dropped", id)
		return domain.Recipe{}, false
	}

	var next domain.Recipe
	if genErr != nil || out == nil {
		e.log.Warn("generation %s failed: %v", id, genErr)
		next = cur
		next.State = domain.StateFailed
	} else {
		next = out.Clone()
		next.ID = cur.ID
		next.CreatedAt = cur.CreatedAt
		next.Prompt = cur.Prompt
		next.InChecklist = cur.InChecklist
		next.ImagePath = ""
		next.State = domain.StateAwaitingImage
	}

	if !cur.State.CanTransition(next.State) {
		e.log.Warn("generation %s: record is %s, cannot become %s; result dropped", id, cur.State, next.State)
		return domain.Recipe{}, false
	}

	// The remote call may have been cancelled since it returned; the
	// write itself is not.
	if err := e.repo.Update(context.WithoutCancel(e.base), next); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.log.Info("generation %s: record deleted mid-flight; result dropped", id)
		} else {
			e.log.Error("generation %s: persisting result: %v", id, err)
		}
		return domain.Recipe{}, false
	}

	if next.State == domain.StateAwaitingImage {
		e.log.Info("generation %s complete: %q", id, next.Name)
	}
	return next, true
}

func (e *Engine) refreshChecklists(r domain.Recipe) {
	if !r.InChecklist || e.checklists == nil {
		return
	}
	n, err := e.checklists.Refresh(context.WithoutCancel(e.base), r)
	if err != nil {
		e.log.Warn("generation %s: refreshing checklists: %v", r.ID, err)
		return
	}
	if n > 0 {
		e.log.Debug("generation %s: refreshed %d checklists", r.ID, n)
	}
}

func (e *Engine) release(id string, attempt uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.inflight[id]; ok && t.attempt == attempt {
		t.cancel()
		delete(e.inflight, id)
	}
}

// signal picks the completion channel at completion time, not at launch.
func (e *Engine) signal(r domain.Recipe, success bool) {
	if !e.app.Backgrounded() {
		if success {
			e.feedback.Success()
		} else {
			e.feedback.Failure()
		}
		return
	}

	ctx := context.WithoutCancel(e.base)
	var err error
	if success {
		err = e.notifier.Notify(ctx, fmt.Sprintf("Recipe ready: %s (%s)", r.Name, r.ID))
	} else {
		err = e.notifier.NotifyUrgent(ctx, fmt.Sprintf("Recipe generation failed (%s). Retry to try again.", r.ID))
	}
	if err != nil {
		e.log.Warn("notify %s: %v", r.ID, err)
	}
}

// ── Record edits ─────────────────────────────────────────────────

// AttachImage stores a photo for id and marks the record Complete. A
// Complete record gets its photo replaced. Records still generating or
// failed are rejected.
func (e *Engine) AttachImage(ctx context.Context, id string, img io.Reader, ext string) (domain.Recipe, error) {
	if e.photos == nil {
		return domain.Recipe{}, fmt.Errorf("attach %s: %w: no photo store configured", id, domain.ErrNotImplemented)
	}

	if _, err := e.attachable(id); err != nil {
		return domain.Recipe{}, err
	}

	// The upload can be slow; it runs without e.mu and the record is
	// checked again before the write.
	ext = normalizeExt(ext)
	path, err := e.photos.Put(ctx, photoKey(id, ext), img, mime.TypeByExtension(ext))
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("attach %s: storing photo: %w", id, err)
	}

	e.mu.Lock()
	cur, err := e.attachable(id)
	old := cur.ImagePath
	if err == nil {
		cur.ImagePath = path
		cur.State = domain.StateComplete
		if err = e.repo.Update(ctx, cur); err != nil {
			err = fmt.Errorf("attach %s: %w", id, err)
		}
	}
	e.mu.Unlock()
	if err != nil {
		if delErr := e.photos.Delete(ctx, path); delErr != nil {
			e.log.Warn("attach %s: removing orphaned photo %s: %v", id, path, delErr)
		}
		return domain.Recipe{}, err
	}

	if old != "" && old != path {
		if err := e.photos.Delete(ctx, old); err != nil {
			e.log.Warn("attach %s: removing replaced photo %s: %v", id, old, err)
		}
	}
	e.log.Info("recipe %s complete with photo %s", id, path)
	return cur, nil
}

// attachable returns the record if a photo may be attached to it now.
func (e *Engine) attachable(id string) (domain.Recipe, error) {
	cur, err := e.repo.Get(id)
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("attach %s: %w", id, err)
	}
	if cur.State != domain.StateAwaitingImage && cur.State != domain.StateComplete {
		return domain.Recipe{}, fmt.Errorf("attach %s while %s: %w", id, cur.State, domain.ErrInvalidTransition)
	}
	return cur, nil
}

// SetInChecklist pins or unpins a recipe on the checklist screen.
// Unpinning drops its checklist groups.
func (e *Engine) SetInChecklist(ctx context.Context, id string, on bool) (domain.Recipe, error) {
	e.mu.Lock()
	cur, err := e.repo.Get(id)
	if err != nil {
		e.mu.Unlock()
		return domain.Recipe{}, fmt.Errorf("checklist %s: %w", id, err)
	}
	changed := cur.InChecklist != on
	cur.InChecklist = on
	if changed {
		err = e.repo.Update(ctx, cur)
	}
	e.mu.Unlock()
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("checklist %s: %w", id, err)
	}

	if !on && e.checklists != nil {
		if _, err := e.checklists.RemoveGroupsFor(ctx, id); err != nil {
			return cur, fmt.Errorf("checklist %s: %w", id, err)
		}
	}
	return cur, nil
}

// Delete removes a recipe together with its checklist groups and photo.
// An in-flight generation is cancelled and its result dropped. Deleting
// an unknown ID is a no-op.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	if t, ok := e.inflight[id]; ok {
		t.cancel()
	}
	delete(e.attempts, id)
	cur, getErr := e.repo.Get(id)
	err := e.repo.Delete(ctx, id)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	if e.checklists != nil {
		if _, err := e.checklists.RemoveGroupsFor(ctx, id); err != nil {
			e.log.Warn("delete %s: removing checklists: %v", id, err)
		}
	}
	if getErr == nil && cur.ImagePath != "" && e.photos != nil {
		if err := e.photos.Delete(ctx, cur.ImagePath); err != nil {
			e.log.Warn("delete %s: removing photo: %v", id, err)
		}
	}
	e.log.Info("recipe %s deleted", id)
	return nil
}

// ── Helpers ──────────────────────────────────────────────────────

func normalizePrompt(p string) string {
	return norm.NFC.String(strings.TrimSpace(p))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func photoKey(id, ext string) string {
	return "recipes/" + id + "/" + uuid.NewString() + ext
}

// truncate caps s at n runes, never splitting one.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

type foreground struct{}

func (foreground) Backgrounded() bool { return false }

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, string) error       { return nil }
func (discardNotifier) NotifyUrgent(context.Context, string) error { return nil }

type silentFeedback struct{}

func (silentFeedback) Success() {}
func (silentFeedback) Failure() {}
