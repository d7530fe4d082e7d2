// Package queue is the top-level task state machine: it persists one task
// per processing request, dispatches under a global concurrency ceiling,
// detects stuck tasks, and bounds retries.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"podcast-scribe-go/internal/logger"
	"podcast-scribe-go/internal/types"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrNotRunning   = errors.New("task is not active")
)

// Runner executes one task's unit of work. It must honor ctx cancellation
// at its blocking points; the queue cancels ctx on timeout or cancel.
type Runner func(ctx context.Context, task types.Task) (*types.TaskResult, map[string]types.StageMetric, error)

// Config tunes the dispatcher.
type Config struct {
	PollInterval    time.Duration
	MaxConcurrent   int
	MaxRetries      int
	MaxTaskDuration time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 2
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxTaskDuration <= 0 {
		c.MaxTaskDuration = 30 * time.Minute
	}
}

// lease records when a RUNNING task started and when the sweep may kill it.
type lease struct {
	start    time.Time
	deadline time.Time
	cancel   context.CancelFunc
}

// Queue owns the task table and the lease table. Tasks are never deleted,
// only superseded by status.
type Queue struct {
	mu     sync.Mutex
	tasks  map[string]*types.Task
	order  []string // creation order
	leases map[string]*lease

	cfg    Config
	runner Runner
	log    *logger.Logger

	stop chan struct{}
	done chan struct{}
}

func New(cfg Config, runner Runner) *Queue {
	cfg.applyDefaults()
	return &Queue{
		tasks:  make(map[string]*types.Task),
		leases: make(map[string]*lease),
		cfg:    cfg,
		runner: runner,
		log:    logger.New(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Submit creates a PENDING task for the payload and returns a snapshot.
func (q *Queue) Submit(taskType string, payload types.TaskPayload) types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	t := &types.Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Status:    types.StatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.tasks[t.ID] = t
	q.order = append(q.order, t.ID)
	q.log.WithTask(t.ID).WithField("page_url", payload.PageURL).Info("task submitted")
	return *t
}

// Get returns a snapshot of the task. Snapshots of READY tasks never change
// between calls.
func (q *Queue) Get(taskID string) (types.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return types.Task{}, ErrTaskNotFound
	}
	return *t, nil
}

// List returns snapshots of every task in creation order.
func (q *Queue) List() []types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]types.Task, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.tasks[id])
	}
	return out
}

// Cancel moves a PENDING or RUNNING task straight to FAILED. An in-flight
// unit of work is signalled through its context; its eventual result is
// discarded.
func (q *Queue) Cancel(taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status != types.StatusPending && t.Status != types.StatusRunning {
		return ErrNotRunning
	}
	q.failLocked(t, "cancelled by caller")
	q.log.WithTask(taskID).Info("task cancelled")
	return nil
}

// Start launches the dispatch loop until Stop is called.
func (q *Queue) Start() {
	go func() {
		defer close(q.done)
		ticker := time.NewTicker(q.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-q.stop:
				return
			case <-ticker.C:
				q.sweepTimeouts()
				q.dispatch()
			}
		}
	}()
}

// Stop halts the dispatch loop. Units of work already running are left to
// finish or time out on their own contexts.
func (q *Queue) Stop() {
	close(q.stop)
	<-q.done
}

// dispatch claims up to (ceiling - running) PENDING tasks in creation order
// and promotes them to RUNNING. Execution happens on its own goroutine so a
// slow task never blocks the loop.
func (q *Queue) dispatch() {
	q.mu.Lock()
	free := q.cfg.MaxConcurrent - len(q.leases)
	claimed := make([]types.Task, 0, free)
	for _, id := range q.order {
		if free <= 0 {
			break
		}
		t := q.tasks[id]
		if t.Status != types.StatusPending {
			continue
		}
		now := time.Now()
		t.Status = types.StatusRunning
		t.StartedAt = &now
		t.UpdatedAt = now

		ctx, cancel := context.WithCancel(context.Background())
		q.leases[id] = &lease{start: now, deadline: now.Add(q.cfg.MaxTaskDuration), cancel: cancel}
		claimed = append(claimed, *t)
		free--

		go q.run(ctx, *t)
	}
	q.mu.Unlock()

	for _, t := range claimed {
		q.log.WithTask(t.ID).WithField("retries", t.Retries).Info("task dispatched")
	}
}

// run executes one unit of work and feeds the outcome back into the state
// machine.
func (q *Queue) run(ctx context.Context, snapshot types.Task) {
	result, metrics, err := q.runner(ctx, snapshot)
	q.complete(snapshot.ID, result, metrics, err)
}

func (q *Queue) complete(taskID string, result *types.TaskResult, metrics map[string]types.StageMetric, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return
	}
	// The sweep or a cancel may have finalized the task while the unit of
	// work was still in flight; its late result is discarded.
	if t.Status != types.StatusRunning {
		q.log.WithTask(taskID).WithField("status", string(t.Status)).Debug("discarding result for finalized task")
		return
	}
	q.releaseLocked(taskID)

	if metrics != nil {
		t.Metrics = metrics
	}
	now := time.Now()
	t.UpdatedAt = now

	if err != nil {
		if t.Retries < q.cfg.MaxRetries {
			t.Retries++
			t.Status = types.StatusPending
			t.StartedAt = nil
			q.log.WithTask(taskID).WithField("retries", t.Retries).WithField("error", err.Error()).Warn("task failed, requeued")
			return
		}
		q.failLocked(t, err.Error())
		q.log.WithTask(taskID).WithField("error", err.Error()).Error("task failed permanently")
		return
	}

	t.Status = types.StatusReady
	t.Result = result
	t.Error = ""
	t.CompletedAt = &now
	q.log.WithTask(taskID).Info("task ready")
}

// sweepTimeouts forces FAILED on every RUNNING task whose lease deadline
// passed, so one stuck external call cannot starve the queue. The slot is
// released immediately.
func (q *Queue) sweepTimeouts() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var expired []string
	for id, l := range q.leases {
		if now.After(l.deadline) {
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)
	for _, id := range expired {
		t := q.tasks[id]
		elapsed := now.Sub(q.leases[id].start).Round(time.Second)
		q.failLocked(t, fmt.Sprintf("timed out after %s", elapsed))
		q.log.WithTask(id).WithField("elapsed", elapsed.String()).Error("task timed out")
	}
}

// failLocked finalizes a task as FAILED and releases its slot. Callers hold
// q.mu.
func (q *Queue) failLocked(t *types.Task, reason string) {
	q.releaseLocked(t.ID)
	now := time.Now()
	t.Status = types.StatusFailed
	t.Error = reason
	t.UpdatedAt = now
	t.CompletedAt = &now
}

func (q *Queue) releaseLocked(taskID string) {
	if l, ok := q.leases[taskID]; ok {
		l.cancel()
		delete(q.leases, taskID)
	}
}

// Running reports how many leases are currently held.
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.leases)
}
