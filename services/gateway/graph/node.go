// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides a lazy, memoized, concurrently evaluated
// computation graph.
//
// # Description
//
// An Op is an immutable, named, serializable description of one async
// transformation; a Node binds an op to ordered argument nodes, forming a
// DAG. Evaluate runs every node reachable from a root exactly once per pass,
// with independent branches running concurrently inside one structured
// scope, then resets all transient state so the same graph object can be
// evaluated again.
//
// Ops carry only data fields (no closures), so any graph can be converted to
// an interchange form, persisted on a durable task queue, and re-evaluated
// later against a freshly opened environment.
//
// # Thread Safety
//
// A Node must belong to at most one evaluation pass at a time. Distinct
// graphs can be evaluated concurrently.
package graph

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("veilgate.graph")

// Op is one serializable transformation. Implementations are structs whose
// exported fields fully describe the op; behavior lives in Call only.
//
// Call receives the already-evaluated argument values in the order the node
// declares them. Network and persistence calls inside Call must honor ctx.
type Op interface {
	// Name is the stable registry name used by the interchange form.
	Name() string

	// Call executes the op against the pass environment.
	Call(ctx context.Context, env *Env, args []any) (any, error)
}

// Node is an op bound to argument nodes. A node referenced by more than one
// parent is evaluated once per pass and its value reused by every parent.
type Node struct {
	op   Op
	args []*Node

	mu      sync.Mutex
	started bool
	done    chan struct{}
	result  any
	err     error
}

// New creates a node applying op to the given argument nodes.
func New(op Op, args ...*Node) *Node {
	return &Node{op: op, args: args}
}

// NewConst is shorthand for a constant leaf node.
func NewConst(value any) *Node {
	return New(&Const{Value: value})
}

// Op returns the node's op.
func (n *Node) Op() Op {
	return n.op
}

// Args returns the node's argument nodes.
func (n *Node) Args() []*Node {
	return n.args
}

// Evaluate runs one pass over the graph under root.
//
// # Description
//
// Every node reachable from root is scheduled exactly once; a node's value
// becomes visible to all parents that reference it. All work runs inside one
// errgroup scope which is joined before Evaluate returns; the first error
// cancels the sibling branches and is returned. Already-written side effects
// of completed sibling nodes are not rolled back.
//
// After the value is produced (or the pass fails) a post-order clear pass
// discards all cached state, so a later Evaluate on the same graph object
// recomputes every node.
//
// # Inputs
//
//   - ctx: Cancellation context. Must not be nil.
//   - root: The node whose value is wanted. Must not be nil.
//   - env: Per-pass collaborators. A nil env gets a fresh empty one.
//
// # Outputs
//
//   - any: The root value.
//   - error: Non-nil if any node of the pass failed.
func Evaluate(ctx context.Context, root *Node, env *Env) (any, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if root == nil {
		return nil, ErrNilNode
	}
	if env == nil {
		env = NewEnv(nil)
	}

	ctx, span := tracer.Start(ctx, "graph.Evaluate",
		trace.WithAttributes(attribute.String("graph.root_op", root.op.Name())),
	)
	defer span.End()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	root.schedule(gctx, g, env)
	err := g.Wait()

	value := root.result
	root.clear()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		env.Logger().Error("evaluation pass failed",
			slog.String("root_op", root.op.Name()),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	env.Logger().Debug("evaluation pass completed",
		slog.String("root_op", root.op.Name()),
		slog.Duration("duration", time.Since(start)),
	)
	return value, nil
}

// schedule spawns this node's task unless a parent already did. Argument
// tasks are spawned first so the wait in the task body can never block on an
// unscheduled node.
func (n *Node) schedule(ctx context.Context, g *errgroup.Group, env *Env) {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return
	}
	n.started = true
	n.done = make(chan struct{})
	n.mu.Unlock()

	for _, arg := range n.args {
		arg.schedule(ctx, g, env)
	}

	g.Go(func() error {
		defer close(n.done)

		values := make([]any, len(n.args))
		for i, arg := range n.args {
			select {
			case <-arg.done:
			case <-ctx.Done():
				n.err = ctx.Err()
				return n.err
			}
			if arg.err != nil {
				// The failing node already reported to the group; just mark
				// this branch poisoned so ancestors skip their op.
				n.err = arg.err
				return nil
			}
			values[i] = arg.result
		}

		ctx, span := tracer.Start(ctx, "graph."+n.op.Name())
		defer span.End()

		value, err := n.op.Call(ctx, env, values)
		if err != nil {
			n.err = &OpError{Op: n.op.Name(), Err: err}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return n.err
		}
		n.result = value
		span.SetStatus(codes.Ok, "")
		return nil
	})
}

// clear resets transient state post-order. The invariant mirrors evaluation:
// if a node was started, so was everything below it, so an unstarted node
// terminates the walk.
func (n *Node) clear() {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return
	}
	n.started = false
	n.done = nil
	n.result = nil
	n.err = nil
	n.mu.Unlock()

	for _, arg := range n.args {
		arg.clear()
	}
}
