// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package queue is a durable at-least-once runner for serialized
// computation graphs. Tasks survive process restarts; a task is deleted
// only after its evaluation pass succeeds or its retry budget is spent.
//
// The queue persists the encoded graph itself, never a wrapper around the
// runner, so re-serializing a task for retry cannot recurse.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/veilgate/services/gateway/graph"
)

const taskPrefix = "task:"

// DefaultMaxAttempts bounds retries per task, initial try included.
const DefaultMaxAttempts = 5

// ErrQueueClosed is returned by Enqueue after Stop.
var ErrQueueClosed = errors.New("task queue closed")

// Failure reports a task abandoned after its last attempt. Failures are
// delivered on the queue's failure channel and nowhere else; an abandoned
// task never affects the request that scheduled it.
type Failure struct {
	TaskID string
	Err    error
}

// task is the stored shape.
type task struct {
	ID        string          `json:"id"`
	Graph     json.RawMessage `json:"graph"`
	CreatedAt time.Time       `json:"created_at"`
}

// EnvFactory builds a fresh pass environment for one task execution. Each
// attempt gets its own environment so deferred graphs always see live
// collaborators, not the ones captured at enqueue time.
type EnvFactory func() *graph.Env

// Queue is the durable task runner.
type Queue struct {
	db          *badger.DB
	newEnv      EnvFactory
	logger      *slog.Logger
	maxAttempts uint64

	failures chan Failure
	wake     chan struct{}

	mu      sync.Mutex
	closed  bool
	stop    chan struct{}
	stopped chan struct{}
}

// New creates a queue over an open badger handle. maxAttempts <= 0 means
// DefaultMaxAttempts. A nil logger means slog.Default().
func New(db *badger.DB, newEnv EnvFactory, logger *slog.Logger, maxAttempts int) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Queue{
		db:          db,
		newEnv:      newEnv,
		logger:      logger,
		maxAttempts: uint64(maxAttempts),
		failures:    make(chan Failure, 64),
		wake:        make(chan struct{}, 1),
	}
}

// Failures is the channel on which abandoned tasks are reported.
func (q *Queue) Failures() <-chan Failure { return q.failures }

// Enqueue serializes the graph and persists it as a pending task. The
// returned id identifies the task in logs and failure reports.
func (q *Queue) Enqueue(root *graph.Node) (string, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return "", ErrQueueClosed
	}

	encoded, err := graph.Encode(root)
	if err != nil {
		return "", fmt.Errorf("encode task graph: %w", err)
	}
	t := task{ID: uuid.NewString(), Graph: encoded, CreatedAt: time.Now().UTC()}
	value, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(taskPrefix+t.ID), value)
	})
	if err != nil {
		return "", fmt.Errorf("persist task: %w", err)
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return t.ID, nil
}

// Start launches the worker loop. It first replays tasks left over from a
// previous process, then services new enqueues until Stop or ctx
// cancellation.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	q.stop = make(chan struct{})
	q.stopped = make(chan struct{})
	stop, stopped := q.stop, q.stopped
	q.mu.Unlock()

	go func() {
		defer close(stopped)
		for {
			q.runPending(ctx)
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-q.wake:
			}
		}
	}()
}

// Stop shuts the worker down and rejects further enqueues. Pending tasks
// stay persisted for the next process.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	stop, stopped := q.stop, q.stopped
	q.mu.Unlock()

	if stop != nil {
		close(stop)
		<-stopped
	}
}

// RunNow executes every pending task synchronously on the caller's
// goroutine. Intended for tests and for single-shot maintenance commands.
func (q *Queue) RunNow(ctx context.Context) {
	q.runPending(ctx)
}

// Drain blocks until no pending tasks remain or ctx expires.
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		pending, err := q.pendingCount()
		if err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) pendingCount() (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(taskPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// runPending lists and executes all currently pending tasks.
func (q *Queue) runPending(ctx context.Context) {
	tasks, err := q.listTasks()
	if err != nil {
		q.logger.Error("list pending tasks", slog.Any("error", err))
		return
	}
	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		q.runTask(ctx, t)
	}
}

func (q *Queue) listTasks() ([]task, error) {
	var tasks []task
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(taskPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var t task
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			})
			if err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		return nil
	})
	return tasks, err
}

// runTask evaluates one task with exponential backoff between attempts.
// Success or exhaustion both delete the task; exhaustion additionally
// reports on the failure channel.
func (q *Queue) runTask(ctx context.Context, t task) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(), q.maxAttempts-1), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		root, err := graph.Decode(t.Graph)
		if err != nil {
			// Undecodable graphs can never succeed; stop retrying.
			return backoff.Permanent(err)
		}
		_, err = graph.Evaluate(ctx, root, q.newEnv())
		if err != nil {
			q.logger.Warn("task attempt failed",
				slog.String("task_id", t.ID),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		}
		return err
	}, policy)

	if deleteErr := q.deleteTask(t.ID); deleteErr != nil {
		q.logger.Error("delete task", slog.String("task_id", t.ID), slog.Any("error", deleteErr))
	}
	if err == nil {
		q.logger.Debug("task completed", slog.String("task_id", t.ID), slog.Int("attempts", attempt))
		return
	}

	q.logger.Error("task abandoned",
		slog.String("task_id", t.ID),
		slog.Int("attempts", attempt),
		slog.Any("error", err),
	)
	select {
	case q.failures <- Failure{TaskID: t.ID, Err: err}:
	default:
		// A full channel must not wedge the worker.
	}
}

func (q *Queue) deleteTask(id string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(taskPrefix + id))
	})
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}
