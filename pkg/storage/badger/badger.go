// Package badger provides a Badger-based implementation of the storage interface.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/goclaw/manifest/pkg/scoring"
	"github.com/goclaw/manifest/pkg/storage"
)

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
}

// BadgerStorage implements the Store interface using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage creates a new Badger storage instance.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path)
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

// Key generation functions
func apiKeyKey(hash string) []byte {
	return []byte(fmt.Sprintf("apikey:%s", hash))
}

func tierKey(agentID string, tier scoring.Tier) []byte {
	return []byte(fmt.Sprintf("tier:%s:%s", agentID, tier))
}

func pricingKey(model string) []byte {
	return []byte(fmt.Sprintf("pricing:%s", model))
}

func providerKeyKey(tenantID, provider string) []byte {
	return []byte(fmt.Sprintf("provkey:%s:%s", tenantID, provider))
}

func limitPrefix(tenantID string) []byte {
	return []byte(fmt.Sprintf("limit:%s:", tenantID))
}

func limitKey(tenantID, id string) []byte {
	return append(limitPrefix(tenantID), id...)
}

type providerKeyRecord struct {
	Key string `json:"key"`
}

// Serialization helpers
func serialize(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{
			Operation: "marshal",
			Cause:     err,
		}
	}
	return data, nil
}

func deserialize(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{
			Operation: "unmarshal",
			Cause:     err,
		}
	}
	return nil
}

// get loads key into v. It reports false when the key is absent.
func (b *BadgerStorage) get(key []byte, v interface{}) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return deserialize(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		var serr *storage.SerializationError
		if errors.As(err, &serr) {
			return false, err
		}
		return false, &storage.StorageUnavailableError{Cause: err}
	}
	return true, nil
}

func (b *BadgerStorage) put(key []byte, v interface{}) error {
	data, err := serialize(v)
	if err != nil {
		return err
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// LookupAPIKey returns the key stored under hash.
func (b *BadgerStorage) LookupAPIKey(ctx context.Context, hash string) (*storage.APIKey, error) {
	var k storage.APIKey
	found, err := b.get(apiKeyKey(hash), &k)
	if err != nil || !found {
		return nil, err
	}
	return &k, nil
}

// TouchAPIKey records the last use of a key inside one transaction.
func (b *BadgerStorage) TouchAPIKey(ctx context.Context, hash string, at time.Time) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(apiKeyKey(hash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &storage.NotFoundError{EntityType: "api_key", ID: hash}
			}
			return err
		}

		var k storage.APIKey
		if err := item.Value(func(val []byte) error {
			return deserialize(val, &k)
		}); err != nil {
			return err
		}

		used := at.UTC()
		k.LastUsedAt = &used
		data, err := serialize(&k)
		if err != nil {
			return err
		}
		return txn.Set(apiKeyKey(hash), data)
	})

	var notFound *storage.NotFoundError
	var serr *storage.SerializationError
	switch {
	case err == nil, errors.As(err, &notFound), errors.As(err, &serr):
		return err
	default:
		return &storage.StorageUnavailableError{Cause: err}
	}
}

// PutAPIKey stores a key under its hash.
func (b *BadgerStorage) PutAPIKey(ctx context.Context, key *storage.APIKey) error {
	return b.put(apiKeyKey(key.Hash), key)
}

// DeleteAPIKey removes a key.
func (b *BadgerStorage) DeleteAPIKey(ctx context.Context, hash string) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(apiKeyKey(hash))
	}); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// GetTierAssignment returns the model assigned to an agent tier.
func (b *BadgerStorage) GetTierAssignment(ctx context.Context, agentID string, tier scoring.Tier) (*storage.TierAssignment, error) {
	var a storage.TierAssignment
	found, err := b.get(tierKey(agentID, tier), &a)
	if err != nil || !found {
		return nil, err
	}
	return &a, nil
}

// PutTierAssignment stores an agent tier assignment.
func (b *BadgerStorage) PutTierAssignment(ctx context.Context, a *storage.TierAssignment) error {
	return b.put(tierKey(a.AgentID, a.Tier), a)
}

// GetModelPricing returns the pricing record of a model.
func (b *BadgerStorage) GetModelPricing(ctx context.Context, model string) (*storage.ModelPricing, error) {
	var p storage.ModelPricing
	found, err := b.get(pricingKey(model), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// PutModelPricing stores a pricing record.
func (b *BadgerStorage) PutModelPricing(ctx context.Context, p *storage.ModelPricing) error {
	return b.put(pricingKey(p.Model), p)
}

// GetProviderKey returns a tenant's credential for provider, or nil.
func (b *BadgerStorage) GetProviderKey(ctx context.Context, tenantID, provider string) (*string, error) {
	var rec providerKeyRecord
	found, err := b.get(providerKeyKey(tenantID, provider), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec.Key, nil
}

// PutProviderKey stores a tenant's credential. Empty keys are kept.
func (b *BadgerStorage) PutProviderKey(ctx context.Context, tenantID, provider, key string) error {
	return b.put(providerKeyKey(tenantID, provider), providerKeyRecord{Key: key})
}

// ListLimitRules returns the rules covering an agent, ordered by ID.
func (b *BadgerStorage) ListLimitRules(ctx context.Context, tenantID, agentID string) ([]storage.LimitRule, error) {
	var rules []storage.LimitRule

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = limitPrefix(tenantID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r storage.LimitRule
			err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &r)
			})
			if err != nil {
				continue
			}
			if r.Applies(tenantID, agentID) {
				rules = append(rules, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// PutLimitRule stores a rule under its tenant and ID.
func (b *BadgerStorage) PutLimitRule(ctx context.Context, rule *storage.LimitRule) error {
	return b.put(limitKey(rule.TenantID, rule.ID), rule)
}

// Ping reports whether the database is open.
func (b *BadgerStorage) Ping(ctx context.Context) error {
	if b.db.IsClosed() {
		return &storage.StorageUnavailableError{Cause: badger.ErrDBClosed}
	}
	return nil
}

// Close closes the Badger database.
func (b *BadgerStorage) Close() error {
	// Value log GC is best effort on close.
	_ = b.db.RunValueLogGC(0.5)

	return b.db.Close()
}
