// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package settings provides the per-owner settings store: provider API
// keys, the PII-handling mode and the judge flags. Only the latest value of
// a setting is kept.
package settings

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Well-known setting names.
const (
	KeyOpenAI       = "OPENAI_API_KEY"
	KeyMistral      = "MISTRAL_API_KEY"
	KeyAnthropic    = "ANTHROPIC_API_KEY"
	KeyPIIRemoval   = "PII_REMOVAL"
	KeyJudge        = "JUDGE_EVALUATION"
	KeyJudgeWithPII = "JUDGE_WITH_PII"
)

// ErrPersistence wraps any storage failure.
var ErrPersistence = errors.New("settings persistence failed")

// Store persists owner settings in BadgerDB under set:<owner>:<name>.
type Store struct {
	db *badger.DB
}

// NewStore creates a settings store on an open database.
func NewStore(db *badger.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	return &Store{db: db}, nil
}

func settingKey(owner, name string) []byte {
	return []byte("set:" + owner + ":" + name)
}

// GetLatest returns the current value of a setting, with ok=false when the
// owner never set it.
func (s *Store) GetLatest(owner, name string) (string, bool, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(settingKey(owner, name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return value, true, nil
}

// Put stores a setting, replacing any previous value.
func (s *Store) Put(owner, name, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(settingKey(owner, name), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
