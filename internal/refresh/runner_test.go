package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Interval: time.Second}); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := New(Config{Name: "render"}); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestRunner_RunsImmediately(t *testing.T) {
	r, err := New(Config{Name: "render", Interval: time.Hour})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ids := make(chan string, 4)
	if err := r.Start(context.Background(), func(ctx context.Context, runID string) error {
		ids <- runID
		return nil
	}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer r.Close()

	var id string
	select {
	case id = <-ids:
	case <-time.After(2 * time.Second):
		t.Fatalf("first pass did not run")
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", id, err)
	}

	waitFor(t, "success recorded", func() bool { return r.Snapshot(time.Now()).LastSuccessUTC != "" })
	snap := r.Snapshot(time.Now().UTC())
	if snap.Runs != 1 || snap.Errors != 0 {
		t.Fatalf("runs=%d errors=%d", snap.Runs, snap.Errors)
	}
	if snap.LastRunID != id || snap.State != "idle" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.NextRunIn == "" {
		t.Fatalf("expected next_run_in while idle")
	}
}

func TestRunner_CountsErrors(t *testing.T) {
	r, err := New(Config{Name: "render", Interval: time.Hour})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := r.Start(context.Background(), func(ctx context.Context, runID string) error {
		return errors.New("api down")
	}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer r.Close()

	waitFor(t, "error recorded", func() bool { return r.Snapshot(time.Now()).Errors == 1 })
	snap := r.Snapshot(time.Now())
	if snap.LastError != "api down" || snap.LastSuccessUTC != "" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestRunner_Trigger(t *testing.T) {
	r, err := New(Config{Name: "render", Interval: time.Hour})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	runs := make(chan struct{}, 4)
	if err := r.Start(context.Background(), func(ctx context.Context, runID string) error {
		runs <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer r.Close()

	<-runs
	if !r.Trigger() {
		t.Fatalf("Trigger() = false")
	}
	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatalf("triggered pass did not run")
	}
}

func TestRunner_CloseStops(t *testing.T) {
	r, err := New(Config{Name: "render", Interval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	pass := func(ctx context.Context, runID string) error { return nil }
	if err := r.Start(context.Background(), pass); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := r.Start(context.Background(), pass); err == nil {
		t.Fatalf("expected error on second Start")
	}

	r.Close()
	if got := r.Snapshot(time.Now()).State; got != "stopped" {
		t.Fatalf("state=%q want stopped", got)
	}
	runs := r.Snapshot(time.Now()).Runs
	time.Sleep(50 * time.Millisecond)
	if got := r.Snapshot(time.Now()).Runs; got != runs {
		t.Fatalf("runs advanced after Close: %d -> %d", runs, got)
	}
	if r.Trigger() {
		t.Fatalf("Trigger() after Close = true")
	}
}

func TestRunner_CloseWithoutStart(t *testing.T) {
	r, err := New(Config{Name: "render", Interval: time.Second})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	r.Close()
	if err := r.Start(context.Background(), func(context.Context, string) error { return nil }); err == nil {
		t.Fatalf("expected error starting a closed runner")
	}
}

func TestRunner_ConcurrentStartClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		r, err := New(Config{Name: "render", Interval: time.Hour})
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		started := make(chan error, 1)
		go func() {
			started <- r.Start(context.Background(), func(ctx context.Context, runID string) error {
				<-ctx.Done()
				return ctx.Err()
			})
		}()

		closed := make(chan struct{})
		go func() {
			r.Close()
			close(closed)
		}()

		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: Close did not return", i)
		}
		// Start either lost the race or ran and was cancelled by Close.
		<-started
		if r.Trigger() {
			t.Fatalf("iteration %d: Trigger accepted after Close", i)
		}
	}
}
