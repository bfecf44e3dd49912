package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"adflow/internal/types"
)

var (
	// ErrRunInProgress rejects a second concurrent run of one project.
	ErrRunInProgress = errors.New("a run is already in progress for this project")
	// ErrRunnerClosed rejects runs after Shutdown.
	ErrRunnerClosed = errors.New("runner is shut down")
)

// Run is the handle of one background pipeline run.
type Run struct {
	ProjectID string

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the run returns.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err is the run's result. It is nil until Done is closed.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Cancel stops the run. The project ends up failed.
func (r *Run) Cancel() { r.cancel() }

// Wait blocks until the run returns or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runner owns the background runs, at most one per project.
type Runner struct {
	pipeline *Pipeline
	base     context.Context
	stop     context.CancelFunc
	log      *zap.Logger

	mu     sync.Mutex
	active map[string]*Run
	wg     sync.WaitGroup

	// beforeLaunch, when set, runs at the top of launch. Tests use it.
	beforeLaunch func()
}

func NewRunner(p *Pipeline) *Runner {
	base, stop := context.WithCancel(context.Background())
	return &Runner{
		pipeline: p,
		base:     base,
		stop:     stop,
		log:      p.log.Named("runner"),
		active:   make(map[string]*Run),
	}
}

func (r *Runner) Pipeline() *Pipeline { return r.pipeline }

// Start launches Run for a new or failed project.
func (r *Runner) Start(ctx context.Context, projectID string) (*Run, error) {
	proj, err := r.pipeline.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if proj.Status != types.StatusCreated && proj.Status != types.StatusFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotStartable, projectID, proj.Status)
	}
	return r.launch(projectID, r.pipeline.Run)
}

// Submit accepts answers synchronously, so a rejected submit is reported to
// the caller, then resumes the pipeline in the background. If the resume
// cannot be launched after the answers were accepted, the project is marked
// failed so Start can pick it up again.
func (r *Runner) Submit(ctx context.Context, projectID string, answers map[string]any) (*Run, error) {
	r.mu.Lock()
	_, busy := r.active[projectID]
	closed := r.base.Err() != nil
	r.mu.Unlock()
	if closed {
		return nil, ErrRunnerClosed
	}
	if busy {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, projectID)
	}
	if _, err := r.pipeline.AcceptAnswers(ctx, projectID, answers); err != nil {
		return nil, err
	}
	run, err := r.launch(projectID, r.pipeline.Resume)
	if err != nil {
		_ = r.pipeline.fail(context.WithoutCancel(ctx), projectID, fmt.Errorf("resume not launched: %w", err))
		return nil, err
	}
	return run, nil
}

// Active returns the in-flight run of a project.
func (r *Runner) Active(projectID string) (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.active[projectID]
	return run, ok
}

func (r *Runner) launch(projectID string, fn func(context.Context, string) error) (*Run, error) {
	if r.beforeLaunch != nil {
		r.beforeLaunch()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.base.Err() != nil {
		return nil, ErrRunnerClosed
	}
	if _, busy := r.active[projectID]; busy {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, projectID)
	}
	ctx, cancel := context.WithCancel(r.base)
	run := &Run{ProjectID: projectID, cancel: cancel, done: make(chan struct{})}
	r.active[projectID] = run

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		err := fn(ctx, projectID)
		if err != nil {
			r.log.Warn("run ended with error", zap.String("project_id", projectID), zap.Error(err))
		}
		r.mu.Lock()
		delete(r.active, projectID)
		r.mu.Unlock()
		run.err = err
		close(run.done)
	}()
	return run, nil
}

// Shutdown cancels every run and waits for them to return.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stop()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
