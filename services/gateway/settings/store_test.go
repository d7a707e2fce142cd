// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
	"github.com/AleutianAI/veilgate/services/gateway/graph"
)

// =============================================================================
// Test Setup
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

// =============================================================================
// Store Tests
// =============================================================================

func TestGetLatest_UnsetAndReplaced(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.GetLatest("owner-1", KeyOpenAI)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put("owner-1", KeyOpenAI, "sk-old"))
	require.NoError(t, store.Put("owner-1", KeyOpenAI, "sk-new"))

	value, ok, err := store.GetLatest("owner-1", KeyOpenAI)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-new", value)
}

func TestGetLatest_ScopedByOwner(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("owner-1", KeyMistral, "sk-mistral"))

	_, ok, err := store.GetLatest("owner-2", KeyMistral)
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// KeysGraph Tests
// =============================================================================

func TestKeysGraph_BundlesStoredKeys(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put("owner-1", KeyOpenAI, "sk-oa"))
	require.NoError(t, store.Put("owner-1", KeyAnthropic, "sk-an"))

	env := EnvWith(graph.NewEnv(nil), store)
	value, err := graph.Evaluate(context.Background(), KeysGraph("owner-1"), env)
	require.NoError(t, err)

	keys, err := graph.As[datatypes.APIKeys](value)
	require.NoError(t, err)
	assert.Equal(t, "sk-oa", keys.OpenAI)
	assert.Empty(t, keys.Mistral)
	assert.Equal(t, "sk-an", keys.Anthropic)
}

// =============================================================================
// ConfigOp Tests
// =============================================================================

func TestConfigOp_StoredSettings(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put("owner-1", KeyPIIRemoval, string(datatypes.PIIMasking)))
	require.NoError(t, store.Put("owner-1", KeyJudge, "true"))
	require.NoError(t, store.Put("owner-1", KeyJudgeWithPII, "false"))

	env := EnvWith(graph.NewEnv(nil), store)
	value, err := graph.Evaluate(context.Background(),
		graph.New(&ConfigOp{Owner: "owner-1"}), env)
	require.NoError(t, err)

	cfg, err := graph.As[datatypes.LMConfig](value)
	require.NoError(t, err)
	assert.Equal(t, datatypes.PIIMasking, cfg.PIIRemoval)
	assert.True(t, cfg.JudgeEnabled())
	assert.False(t, cfg.JudgeSeesPII())
}

// TestConfigOp_OverridePrecedence verifies that a per-call override wins
// field by field while untouched fields keep their stored value.
func TestConfigOp_OverridePrecedence(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put("owner-1", KeyPIIRemoval, string(datatypes.PIIReplace)))
	require.NoError(t, store.Put("owner-1", KeyJudge, "false"))

	judgeOn := true
	env := EnvWith(graph.NewEnv(nil), store)
	value, err := graph.Evaluate(context.Background(),
		graph.New(&ConfigOp{
			Owner:    "owner-1",
			Override: &datatypes.LMConfig{JudgeEvaluation: &judgeOn},
		}), env)
	require.NoError(t, err)

	cfg, err := graph.As[datatypes.LMConfig](value)
	require.NoError(t, err)
	assert.Equal(t, datatypes.PIIReplace, cfg.PIIRemoval)
	assert.True(t, cfg.JudgeEnabled())
}

func TestConfigOp_Defaults(t *testing.T) {
	store := newTestStore(t)

	env := EnvWith(graph.NewEnv(nil), store)
	value, err := graph.Evaluate(context.Background(),
		graph.New(&ConfigOp{Owner: "owner-1"}), env)
	require.NoError(t, err)

	cfg, err := graph.As[datatypes.LMConfig](value)
	require.NoError(t, err)
	assert.Empty(t, cfg.PIIRemoval)
	assert.False(t, cfg.JudgeEnabled())
	assert.False(t, cfg.JudgeSeesPII())
}
