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
	"errors"
	"fmt"

	"github.com/AleutianAI/veilgate/services/gateway/datatypes"
	"github.com/AleutianAI/veilgate/services/gateway/graph"
)

func init() {
	graph.Register("settings.get", func() graph.Op { return &SettingOp{} })
	graph.Register("settings.api_keys", func() graph.Op { return &APIKeysOp{} })
	graph.Register("settings.config", func() graph.Op { return &ConfigOp{} })
}

type envKey struct{}

// EnvWith attaches the settings store to a pass environment.
func EnvWith(env *graph.Env, store *Store) *graph.Env {
	return env.With(envKey{}, store)
}

func storeFrom(env *graph.Env) (*Store, error) {
	store, _ := env.Value(envKey{}).(*Store)
	if store == nil {
		return nil, errors.New("settings store missing from environment")
	}
	return store, nil
}

// SettingOp reads one setting at evaluation time. A deferred computation
// carrying this op re-reads the store in the worker, so rotated API keys are
// picked up automatically. Yields "" when unset.
type SettingOp struct {
	Owner string `json:"owner"`
	Key   string `json:"key"`
}

// Name implements graph.Op.
func (o *SettingOp) Name() string { return "settings.get" }

// Call implements graph.Op.
func (o *SettingOp) Call(_ context.Context, env *graph.Env, _ []any) (any, error) {
	store, err := storeFrom(env)
	if err != nil {
		return nil, err
	}
	value, _, err := store.GetLatest(o.Owner, o.Key)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// APIKeysOp bundles the three provider keys.
//
// Args: [openai key, mistral key, anthropic key], normally three SettingOp
// nodes.
type APIKeysOp struct{}

// Name implements graph.Op.
func (o *APIKeysOp) Name() string { return "settings.api_keys" }

// Call implements graph.Op.
func (o *APIKeysOp) Call(_ context.Context, _ *graph.Env, args []any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("settings.api_keys expects 3 args, got %d", len(args))
	}
	keys := datatypes.APIKeys{}
	var err error
	if keys.OpenAI, err = graph.As[string](args[0]); err != nil {
		return nil, err
	}
	if keys.Mistral, err = graph.As[string](args[1]); err != nil {
		return nil, err
	}
	if keys.Anthropic, err = graph.As[string](args[2]); err != nil {
		return nil, err
	}
	return keys, nil
}

// KeysGraph builds the standard three-setting api-keys subgraph for an
// owner.
func KeysGraph(owner string) *graph.Node {
	return graph.New(&APIKeysOp{},
		graph.New(&SettingOp{Owner: owner, Key: KeyOpenAI}),
		graph.New(&SettingOp{Owner: owner, Key: KeyMistral}),
		graph.New(&SettingOp{Owner: owner, Key: KeyAnthropic}),
	)
}

// ConfigOp resolves the owner's LMConfig from stored settings, with the
// per-call override taking precedence field by field.
type ConfigOp struct {
	Owner    string              `json:"owner"`
	Override *datatypes.LMConfig `json:"override,omitempty"`
}

// Name implements graph.Op.
func (o *ConfigOp) Name() string { return "settings.config" }

// Call implements graph.Op.
func (o *ConfigOp) Call(_ context.Context, env *graph.Env, _ []any) (any, error) {
	store, err := storeFrom(env)
	if err != nil {
		return nil, err
	}

	cfg := datatypes.LMConfig{}
	if mode, ok, err := store.GetLatest(o.Owner, KeyPIIRemoval); err != nil {
		return nil, err
	} else if ok {
		cfg.PIIRemoval = datatypes.PIIMode(mode)
	}
	if v, ok, err := store.GetLatest(o.Owner, KeyJudge); err != nil {
		return nil, err
	} else if ok {
		enabled := v == "true"
		cfg.JudgeEvaluation = &enabled
	}
	if v, ok, err := store.GetLatest(o.Owner, KeyJudgeWithPII); err != nil {
		return nil, err
	} else if ok {
		withPII := v == "true"
		cfg.JudgeWithPII = &withPII
	}
	return cfg.Merge(o.Override), nil
}
