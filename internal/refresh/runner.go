// Package refresh runs render passes on a fixed interval and keeps counters
// for the status API.
package refresh

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Name     string
	Interval time.Duration
}

// PassFunc does one unit of work. runID identifies the pass in logs.
type PassFunc func(ctx context.Context, runID string) error

type Runner struct {
	cfg Config

	started atomic.Bool
	closed  atomic.Bool

	mu          sync.RWMutex
	state       string
	lastErr     string
	lastRunID   string
	lastStart   time.Time
	lastSuccess time.Time
	lastElapsed time.Duration

	runs   uint64
	errors uint64

	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

type Snapshot struct {
	Name           string `json:"name"`
	Interval       string `json:"interval"`
	State          string `json:"state"`
	LastError      string `json:"last_error,omitempty"`
	LastRunID      string `json:"last_run_id,omitempty"`
	LastStartUTC   string `json:"last_start_utc,omitempty"`
	LastSuccessUTC string `json:"last_success_utc,omitempty"`
	LastDuration   string `json:"last_duration,omitempty"`
	NextRunIn      string `json:"next_run_in,omitempty"`

	Runs   uint64 `json:"runs"`
	Errors uint64 `json:"errors"`
}

func New(cfg Config) (*Runner, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		return nil, fmt.Errorf("refresh runner name is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be > 0")
	}
	return &Runner{
		cfg:     cfg,
		state:   "stopped",
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

// Start runs pass immediately and then every interval until ctx is cancelled
// or Close is called. Passes never overlap.
func (r *Runner) Start(ctx context.Context, pass PassFunc) error {
	if r == nil {
		return fmt.Errorf("refresh runner is nil")
	}
	if pass == nil {
		return fmt.Errorf("refresh pass is nil")
	}

	// cancel, started and closed change together under mu so a concurrent
	// Close either prevents the start or sees the cancel func.
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return fmt.Errorf("refresh runner is closed")
	}
	if r.started.Swap(true) {
		r.mu.Unlock()
		return fmt.Errorf("refresh runner already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.state = "idle"
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		r.runLoop(runCtx, pass)
	}()
	return nil
}

// Trigger asks for an extra pass as soon as the current one (if any) ends.
// Requests made while one is already pending are merged.
func (r *Runner) Trigger() bool {
	if r == nil || r.closed.Load() {
		return false
	}
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *Runner) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed.Swap(true) {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	started := r.started.Load()
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-r.done
	}
}

func (r *Runner) Snapshot(nowUTC time.Time) Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.RLock()
	out := Snapshot{
		Name:      r.cfg.Name,
		Interval:  r.cfg.Interval.String(),
		State:     r.state,
		LastError: r.lastErr,
		LastRunID: r.lastRunID,
	}
	lastStart := r.lastStart
	lastSuccess := r.lastSuccess
	elapsed := r.lastElapsed
	r.mu.RUnlock()

	out.Runs = atomic.LoadUint64(&r.runs)
	out.Errors = atomic.LoadUint64(&r.errors)
	if !lastStart.IsZero() {
		out.LastStartUTC = lastStart.UTC().Format(time.RFC3339)
		if out.State == "idle" {
			next := lastStart.Add(r.cfg.Interval).Sub(nowUTC)
			if next < 0 {
				next = 0
			}
			out.NextRunIn = next.Round(time.Second).String()
		}
	}
	if !lastSuccess.IsZero() {
		out.LastSuccessUTC = lastSuccess.UTC().Format(time.RFC3339)
	}
	if elapsed > 0 {
		out.LastDuration = elapsed.Round(time.Millisecond).String()
	}
	return out
}

func (r *Runner) runLoop(ctx context.Context, pass PassFunc) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.tick(ctx, pass)

	for {
		select {
		case <-ctx.Done():
			r.setState("stopped", "")
			return
		case <-ticker.C:
			r.tick(ctx, pass)
		case <-r.trigger:
			r.tick(ctx, pass)
			ticker.Reset(r.cfg.Interval)
		}
	}
}

func (r *Runner) tick(ctx context.Context, pass PassFunc) {
	if ctx.Err() != nil {
		return
	}
	runID := uuid.NewString()
	start := time.Now().UTC()

	r.mu.Lock()
	r.state = "running"
	r.lastRunID = runID
	r.lastStart = start
	r.mu.Unlock()

	atomic.AddUint64(&r.runs, 1)
	err := pass(ctx, runID)
	elapsed := time.Since(start)

	r.mu.Lock()
	r.state = "idle"
	r.lastElapsed = elapsed
	if err != nil {
		r.lastErr = err.Error()
	} else {
		r.lastErr = ""
		r.lastSuccess = time.Now().UTC()
	}
	r.mu.Unlock()

	if err != nil {
		atomic.AddUint64(&r.errors, 1)
		log.Printf("%s run=%s failed after %s: %v", r.cfg.Name, runID, elapsed.Round(time.Millisecond), err)
		return
	}
	log.Printf("%s run=%s ok in %s", r.cfg.Name, runID, elapsed.Round(time.Millisecond))
}

func (r *Runner) setState(state string, lastErr string) {
	r.mu.Lock()
	r.state = state
	if lastErr != "" {
		r.lastErr = lastErr
	}
	r.mu.Unlock()
}
