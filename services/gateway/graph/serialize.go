// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"encoding/json"
	"fmt"
	"sync"
)

// =============================================================================
// Op Registry
// =============================================================================

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Op)
)

// Register makes an op constructible by name during Decode. Call from the
// op package's init(); registering the same name twice panics because it
// means two packages disagree about the wire format.
func Register(name string, factory func() Op) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("graph: op %q registered twice", name))
	}
	registry[name] = factory
}

func newOp(name string) (Op, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// =============================================================================
// Interchange Form
// =============================================================================

// The interchange form is a flat, topologically ordered node list with
// argument indices. Indices always point backwards, which makes a decoded
// graph acyclic by construction, and two parents referencing the same index
// share one node, so an op shared by several parents still evaluates once
// after a round-trip.

type encodedOp struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

type encodedNode struct {
	Op   encodedOp `json:"op"`
	Args []int     `json:"args,omitempty"`
}

type encodedGraph struct {
	Nodes []encodedNode `json:"nodes"`
	Root  int           `json:"root"`
}

// Encode converts the graph under root to its interchange form.
func Encode(root *Node) ([]byte, error) {
	if root == nil {
		return nil, ErrNilNode
	}

	var (
		nodes []encodedNode
		index = make(map[*Node]int)
	)

	var walk func(n *Node) (int, error)
	walk = func(n *Node) (int, error) {
		if i, seen := index[n]; seen {
			return i, nil
		}
		args := make([]int, len(n.args))
		for i, arg := range n.args {
			ai, err := walk(arg)
			if err != nil {
				return 0, err
			}
			args[i] = ai
		}
		data, err := json.Marshal(n.op)
		if err != nil {
			return 0, fmt.Errorf("encode op %s: %w", n.op.Name(), err)
		}
		nodes = append(nodes, encodedNode{
			Op:   encodedOp{Name: n.op.Name(), Data: data},
			Args: args,
		})
		i := len(nodes) - 1
		index[n] = i
		return i, nil
	}

	rootIdx, err := walk(root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(encodedGraph{Nodes: nodes, Root: rootIdx})
}

// Decode rebuilds a graph from its interchange form. Every op name must
// have been registered.
func Decode(data []byte) (*Node, error) {
	var enc encodedGraph
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	if enc.Root < 0 || enc.Root >= len(enc.Nodes) {
		return nil, fmt.Errorf("%w: root index %d out of range", ErrBadEncoding, enc.Root)
	}

	nodes := make([]*Node, len(enc.Nodes))
	for i, en := range enc.Nodes {
		op, ok := newOp(en.Op.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOp, en.Op.Name)
		}
		if len(en.Op.Data) > 0 {
			if err := json.Unmarshal(en.Op.Data, op); err != nil {
				return nil, fmt.Errorf("%w: op %s data: %v", ErrBadEncoding, en.Op.Name, err)
			}
		}
		args := make([]*Node, len(en.Args))
		for j, ai := range en.Args {
			if ai < 0 || ai >= i {
				return nil, fmt.Errorf("%w: node %d references %d", ErrBadEncoding, i, ai)
			}
			args[j] = nodes[ai]
		}
		nodes[i] = New(op, args...)
	}
	return nodes[enc.Root], nil
}
