// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides the append-only, tree-shaped audit trail.
//
// Every step of a gateway request is persisted as an immutable Event.
// Events form a forest per owner: a root event has no parent, children
// reference a parent by id (never a live back-pointer). Deleting an owner or
// a parent cascades to all descendants and their external identifiers.
//
// Storage is BadgerDB with index keys per owner and per parent:
//
//	evt:<id>              -> event JSON
//	own:<owner>:<id>      -> nil
//	par:<parent>:<id>     -> nil
//	idf:<identifier>      -> event id
//	idr:<id>              -> identifier (reverse, for cascade)
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	// ErrPersistence wraps any storage failure. Fatal to the request that
	// hit it.
	ErrPersistence = errors.New("event persistence failed")

	// ErrNotFound is returned when an event or identifier does not exist.
	ErrNotFound = errors.New("event not found")

	// ErrIdentifierTaken is returned when an external identifier is already
	// mapped to another event; the mapping is strictly 1:1.
	ErrIdentifierTaken = errors.New("identifier already registered")
)

// Event names written by the gateway pipeline.
const (
	NameRequest         = "request"
	NameModifiedRequest = "modified_request"
	NameResponse        = "response"
	NameLMConfig        = "lm_config"
	NameJudgeEvaluation = "lm_judge_evaluation"
	NameUserEvaluation  = "user_evaluation"
)

// Event is one immutable audit record. Created once, never mutated, deleted
// only via cascade or explicit administrative deletion.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	OwnerID   string    `json:"owner_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Content   string    `json:"content"`
}

// Store persists events in BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewStore creates an event store on an open database. A nil logger means
// slog.Default().
func NewStore(db *badger.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

func eventKey(id string) []byte        { return []byte("evt:" + id) }
func ownerKey(owner, id string) []byte { return []byte("own:" + owner + ":" + id) }
func parentKey(pid, id string) []byte  { return []byte("par:" + pid + ":" + id) }
func identKey(identifier string) []byte {
	return []byte("idf:" + identifier)
}
func identReverseKey(id string) []byte { return []byte("idr:" + id) }

// Insert persists a new event and returns it with id and timestamp set.
//
// The returned value is a copy detached from anything the caller holds, so
// later in-place mutation of a payload cannot retroactively change what was
// logged.
func (s *Store) Insert(name, owner, parentID, content string) (*Event, error) {
	ev := &Event{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: time.Now().UTC(),
		OwnerID:   owner,
		ParentID:  parentID,
		Content:   content,
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %v", ErrPersistence, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(eventKey(ev.ID), raw); err != nil {
			return err
		}
		if err := txn.Set(ownerKey(owner, ev.ID), nil); err != nil {
			return err
		}
		if parentID != "" {
			if err := txn.Set(parentKey(parentID, ev.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.logger.Debug("event logged",
		slog.String("event_id", ev.ID),
		slog.String("name", name),
		slog.String("owner", owner),
		slog.String("parent_id", parentID),
	)
	return ev, nil
}

// Get fetches one event by id.
func (s *Store) Get(id string) (*Event, error) {
	var ev Event
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ev)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &ev, nil
}

// ListByOwner returns the owner's events, optionally filtered by name.
// Results are ordered by timestamp.
func (s *Store) ListByOwner(owner, name string) ([]*Event, error) {
	ids, err := s.scanIDs("own:" + owner + ":")
	if err != nil {
		return nil, err
	}
	out := make([]*Event, 0, len(ids))
	for _, id := range ids {
		ev, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		if name != "" && ev.Name != name {
			continue
		}
		out = append(out, ev)
	}
	sortByTimestamp(out)
	return out, nil
}

// ListChildren returns the direct children of an event, ordered by
// timestamp.
func (s *Store) ListChildren(parentID string) ([]*Event, error) {
	ids, err := s.scanIDs("par:" + parentID + ":")
	if err != nil {
		return nil, err
	}
	out := make([]*Event, 0, len(ids))
	for _, id := range ids {
		ev, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	sortByTimestamp(out)
	return out, nil
}

// Delete removes an event, all of its descendants, and any external
// identifiers attached to them.
func (s *Store) Delete(id string) error {
	ev, err := s.Get(id)
	if err != nil {
		return err
	}
	children, err := s.ListChildren(id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.Delete(child.ID); err != nil {
			return err
		}
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		// Drop the identifier mapping first, if one exists.
		if item, err := txn.Get(identReverseKey(id)); err == nil {
			var identifier string
			if err := item.Value(func(val []byte) error {
				identifier = string(val)
				return nil
			}); err != nil {
				return err
			}
			if err := txn.Delete(identKey(identifier)); err != nil {
				return err
			}
			if err := txn.Delete(identReverseKey(id)); err != nil {
				return err
			}
		}
		if err := txn.Delete(ownerKey(ev.OwnerID, id)); err != nil {
			return err
		}
		if ev.ParentID != "" {
			if err := txn.Delete(parentKey(ev.ParentID, id)); err != nil {
				return err
			}
		}
		return txn.Delete(eventKey(id))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// DeleteByOwner removes every event of an owner, cascading as Delete does.
func (s *Store) DeleteByOwner(owner string) error {
	evs, err := s.ListByOwner(owner, "")
	if err != nil {
		return err
	}
	for _, ev := range evs {
		// Children may already be gone via a parent's cascade.
		if err := s.Delete(ev.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// RegisterIdentifier persists a 1:1 mapping from a caller-supplied external
// identifier to an event id, so an out-of-band call can later find the
// event that originated a provider response.
func (s *Store) RegisterIdentifier(identifier, eventID string) error {
	if _, err := s.Get(eventID); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if item, err := txn.Get(identKey(identifier)); err == nil {
			var existing string
			_ = item.Value(func(val []byte) error {
				existing = string(val)
				return nil
			})
			if existing != eventID {
				return ErrIdentifierTaken
			}
			return nil
		}
		if err := txn.Set(identKey(identifier), []byte(eventID)); err != nil {
			return err
		}
		return txn.Set(identReverseKey(eventID), []byte(identifier))
	})
	if errors.Is(err, ErrIdentifierTaken) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// ResolveIdentifier returns the event behind an external identifier.
func (s *Store) ResolveIdentifier(identifier string) (*Event, error) {
	var eventID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identKey(identifier))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			eventID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: identifier %s", ErrNotFound, identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return s.Get(eventID)
}

// scanIDs collects the id suffix of every key under prefix.
func (s *Store) scanIDs(prefix string) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return ids, nil
}

func sortByTimestamp(evs []*Event) {
	sort.Slice(evs, func(i, j int) bool {
		return evs[i].Timestamp.Before(evs[j].Timestamp)
	})
}
