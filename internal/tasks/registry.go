package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultReplaceWait = time.Second

var ErrUnknownTask = errors.New("no task for token")

// Job is one unit of background work. It must return once ctx is done.
type Job func(ctx context.Context) error

// Handle observes one scheduled job.
type Handle struct {
	token  string
	group  string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err is the job's result once Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Registry supervises at most one job per idempotency token. Jobs run on
// the registry's own context, not the caller's.
type Registry struct {
	base        context.Context
	stop        context.CancelFunc
	replaceWait time.Duration
	log         *zap.Logger

	mu    sync.Mutex
	tasks map[string]*Handle
	wg    sync.WaitGroup
}

func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	base, stop := context.WithCancel(context.Background())
	return &Registry{
		base:        base,
		stop:        stop,
		replaceWait: DefaultReplaceWait,
		log:         log,
		tasks:       make(map[string]*Handle),
	}
}

// Schedule starts job under token. An existing job for the token is
// cancelled and awaited for up to a second before the new one starts.
// group tags the job for CancelGroup.
func (r *Registry) Schedule(token, group string, job Job) *Handle {
	ctx, cancel := context.WithCancel(r.base)
	t := &Handle{token: token, group: group, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	for {
		prev := r.tasks[token]
		if prev == nil {
			break
		}
		r.mu.Unlock()
		r.stopAndWait(prev)
		r.mu.Lock()
		// a job that outlived the replace wait is overwritten; a newer one
		// scheduled meanwhile is cancelled on the next pass
		if r.tasks[token] == prev {
			break
		}
	}
	r.tasks[token] = t
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer close(t.done)
		defer cancel()
		t.err = job(ctx)
		if t.err != nil && !errors.Is(t.err, context.Canceled) {
			r.log.Warn("task failed", zap.String("token", token), zap.Error(t.err))
		}
		r.mu.Lock()
		if r.tasks[token] == t {
			delete(r.tasks, token)
		}
		r.mu.Unlock()
	}()
	return t
}

func (r *Registry) stopAndWait(prev *Handle) {
	prev.cancel()
	select {
	case <-prev.done:
	case <-time.After(r.replaceWait):
		r.log.Warn("replaced task still running", zap.String("token", prev.token))
	}
}

// Await blocks until the token's current job finishes and returns its
// error. Tokens without a running job return ErrUnknownTask.
func (r *Registry) Await(ctx context.Context, token string) error {
	r.mu.Lock()
	t := r.tasks[token]
	r.mu.Unlock()
	if t == nil {
		return ErrUnknownTask
	}
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel signals the token's job and reports whether one was running.
func (r *Registry) Cancel(token string) bool {
	r.mu.Lock()
	t := r.tasks[token]
	r.mu.Unlock()
	if t == nil {
		return false
	}
	t.cancel()
	return true
}

// CancelGroup cancels every job tagged with group and returns their tokens.
func (r *Registry) CancelGroup(group string) []string {
	r.mu.Lock()
	var hit []*Handle
	for _, t := range r.tasks {
		if t.group == group {
			hit = append(hit, t)
		}
	}
	r.mu.Unlock()
	tokens := make([]string, 0, len(hit))
	for _, t := range hit {
		t.cancel()
		tokens = append(tokens, t.token)
	}
	sort.Strings(tokens)
	return tokens
}

// Active lists tokens with a running job.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tasks))
	for token := range r.tasks {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// Close cancels all jobs and waits for them until ctx ends.
func (r *Registry) Close(ctx context.Context) error {
	r.stop()
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
