// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	gocache "github.com/patrickmn/go-cache"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// Compile-time interface implementation check.
var _ FactStore = (*BadgerFactStore)(nil)

// =============================================================================
// Badger configuration
// =============================================================================

// StoreConfig holds configuration for the embedded fact store.
type StoreConfig struct {
	// Path is the directory for the BadgerDB files. Required unless
	// InMemory is true.
	Path string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// CacheTTL is how long hot fact lookups stay cached. Facts are
	// immutable and globally shared, so a process-wide cache is safe;
	// zero disables caching.
	CacheTTL time.Duration
}

// DefaultStoreConfig returns production defaults: on-disk store with a
// five-minute lookup cache.
func DefaultStoreConfig(path string) StoreConfig {
	return StoreConfig{
		Path:     path,
		CacheTTL: 5 * time.Minute,
	}
}

// InMemoryStoreConfig returns a configuration for tests: in-memory Badger,
// no cache expiry concerns.
func InMemoryStoreConfig() StoreConfig {
	return StoreConfig{
		InMemory: true,
		CacheTTL: time.Minute,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// BadgerFactStore
// =============================================================================

// BadgerFactStore is a FactStore over an embedded BadgerDB. Facts are stored
// as JSON under `fact/<ENTITY>/<metric>/<period>/<source>` keys, so a group
// lookup is a single prefix scan. The store is read-only from this module's
// perspective; ingestion owns writes.
//
// A small TTL cache (patrickmn/go-cache) fronts prefix scans: facts are
// immutable, so cache staleness is bounded by re-ingestion latency only.
//
// Thread Safety: Safe for concurrent use.
type BadgerFactStore struct {
	db    *badger.DB
	cache *gocache.Cache
}

// OpenBadgerFactStore opens the fact store at the configured path, creating
// the directory if needed.
func OpenBadgerFactStore(cfg StoreConfig) (*BadgerFactStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent fact store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(filepath.Clean(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create fact store directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open fact store: %w", err)
	}

	var cache *gocache.Cache
	if cfg.CacheTTL > 0 {
		cache = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return &BadgerFactStore{db: db, cache: cache}, nil
}

// NewBadgerFactStore wraps an already-open BadgerDB. The caller keeps
// ownership of the database lifecycle.
func NewBadgerFactStore(db *badger.DB, cacheTTL time.Duration) *BadgerFactStore {
	if db == nil {
		panic("NewBadgerFactStore: db must not be nil")
	}
	var cache *gocache.Cache
	if cacheTTL > 0 {
		cache = gocache.New(cacheTTL, 2*cacheTTL)
	}
	return &BadgerFactStore{db: db, cache: cache}
}

// Close releases the underlying database.
func (s *BadgerFactStore) Close() error {
	return s.db.Close()
}

// Put writes a fact. Exposed for ingestion tooling and tests; the retrieval
// pipeline never calls it. Writing an existing key replaces the fact, which
// gives re-ingestion its replace-never-duplicate semantics for free.
func (s *BadgerFactStore) Put(fact datatypes.Fact) error {
	payload, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("failed to marshal fact: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fact.Key()), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to store fact %s: %w", fact.Key(), err)
	}
	if s.cache != nil {
		s.cache.Flush()
	}
	return nil
}

// Lookup implements FactStore.
//
// Returns every source's fact for the (entity, metric, period) triple. A
// zero period widens the scan to every period for that entity and metric.
// Missing data yields an empty slice; only database failure is an error.
func (s *BadgerFactStore) Lookup(ctx context.Context, entityID, metricID string, period datatypes.Period) ([]datatypes.Fact, error) {
	var prefix string
	if period.IsZero() {
		prefix = fmt.Sprintf("fact/%s/%s/", strings.ToUpper(entityID), strings.ToLower(metricID))
	} else {
		prefix = datatypes.FactGroupPrefix(entityID, metricID, period)
	}
	return s.scan(ctx, prefix)
}

// EntityFacts implements FactStore.
func (s *BadgerFactStore) EntityFacts(ctx context.Context, entityID string) ([]datatypes.Fact, error) {
	prefix := fmt.Sprintf("fact/%s/", strings.ToUpper(entityID))
	return s.scan(ctx, prefix)
}

// scan iterates all facts under a key prefix, consulting the cache first.
func (s *BadgerFactStore) scan(ctx context.Context, prefix string) ([]datatypes.Fact, error) {
	if s.cache != nil {
		if cached, found := s.cache.Get(prefix); found {
			return cached.([]datatypes.Fact), nil
		}
	}

	facts := []datatypes.Fact{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			err := it.Item().Value(func(val []byte) error {
				var fact datatypes.Fact
				if err := json.Unmarshal(val, &fact); err != nil {
					// A corrupt record is skipped, not fatal: one bad
					// ingestion row must not blank out the whole group.
					slog.Warn("skipping unreadable fact record",
						"key", string(it.Item().Key()), "error", err)
					return nil
				}
				facts = append(facts, fact)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, &SourceUnavailableError{Source: "fact_store", Err: err}
	}

	if s.cache != nil {
		s.cache.SetDefault(prefix, facts)
	}
	return facts, nil
}
