package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestScheduleAndAwait(t *testing.T) {
	r := New(zap.NewNop())
	want := errors.New("done")
	release := make(chan struct{})
	h := r.Schedule("tok", "Lapras", func(ctx context.Context) error {
		<-release
		return want
	})
	if got := r.Active(); len(got) != 1 || got[0] != "tok" {
		t.Fatalf("expected active tok, got %v", got)
	}
	awaited := make(chan error, 1)
	ctx := waitCtx(t)
	go func() { awaited <- r.Await(ctx, "tok") }()
	close(release)
	<-h.Done()
	if !errors.Is(h.Err(), want) {
		t.Fatalf("expected job error, got %v", h.Err())
	}
	if err := <-awaited; err != nil && !errors.Is(err, want) && !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("unexpected await result %v", err)
	}
}

func TestScheduleReplacesPreviousJob(t *testing.T) {
	r := New(zap.NewNop())
	var firstCancelled atomic.Bool
	started := make(chan struct{})
	r.Schedule("tok", "Lapras", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		firstCancelled.Store(true)
		return ctx.Err()
	})
	<-started
	second := make(chan struct{})
	r.Schedule("tok", "Lapras", func(ctx context.Context) error {
		close(second)
		<-ctx.Done()
		return nil
	})
	if !firstCancelled.Load() {
		t.Fatalf("expected first job cancelled before replacement started")
	}
	select {
	case <-second:
	case <-waitCtx(t).Done():
		t.Fatalf("timed out waiting for replacement job")
	}
	if len(r.Active()) != 1 {
		t.Fatalf("expected one active job, got %v", r.Active())
	}
	if err := r.Close(waitCtx(t)); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestCancelGroup(t *testing.T) {
	r := New(zap.NewNop())
	var first *Handle
	for _, tok := range []string{"a", "b"} {
		h := r.Schedule(tok, "Dragonite", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		if first == nil {
			first = h
		}
	}
	r.Schedule("c", "Lapras", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	got := r.CancelGroup("Dragonite")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected a and b cancelled, got %v", got)
	}
	select {
	case <-first.Done():
	case <-waitCtx(t).Done():
		t.Fatalf("timed out waiting for cancelled job")
	}
	if !errors.Is(first.Err(), context.Canceled) {
		t.Fatalf("expected cancelled job, got %v", first.Err())
	}
	if r.Cancel("missing") {
		t.Fatalf("expected no job for missing token")
	}
	if !r.Cancel("c") {
		t.Fatalf("expected job c cancelled")
	}
}

func TestAwaitUnknownToken(t *testing.T) {
	r := New(zap.NewNop())
	if err := r.Await(context.Background(), "nope"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected unknown task error, got %v", err)
	}
}

func TestConcurrentScheduleKeepsOneJob(t *testing.T) {
	r := New(zap.NewNop())
	const n = 8
	handles := make(chan *Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles <- r.Schedule("tok", "Gengar", func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			})
		}()
	}
	wg.Wait()
	close(handles)

	running := 0
	for h := range handles {
		select {
		case <-h.Done():
		default:
			running++
		}
	}
	if running != 1 {
		t.Fatalf("expected exactly one job left running, got %d", running)
	}
	if got := r.Active(); len(got) != 1 || got[0] != "tok" {
		t.Fatalf("expected active tok, got %v", got)
	}
	if err := r.Close(waitCtx(t)); err != nil {
		t.Fatalf("close: %v", err)
	}
}
