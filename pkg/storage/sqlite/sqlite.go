// Package sqlite provides a SQLite implementation of the storage interface
// using the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/goclaw/manifest/pkg/scoring"
	"github.com/goclaw/manifest/pkg/storage"
)

// Config holds configuration for SQLiteStorage.
type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory database.
	Path string
}

// SQLiteStorage implements the Store interface on a SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the database and creates the schema.
func NewSQLiteStorage(config *Config) (*SQLiteStorage, error) {
	if config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, &storage.StorageUnavailableError{Cause: fmt.Errorf("create db dir: %w", err)}
		}
	}

	db, err := sql.Open("sqlite", dsn(config.Path))
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: fmt.Errorf("open sqlite: %w", err)}
	}
	if config.Path == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStorage{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	return s, nil
}

// dsn carries the pragmas in the connection string so every pooled
// connection gets them, not only the first one.
func dsn(path string) string {
	v := url.Values{}
	v.Add("_pragma", "busy_timeout(5000)")
	if path != ":memory:" {
		v.Add("_pragma", "journal_mode(WAL)")
		v.Set("_txlock", "immediate")
	}
	return path + "?" + v.Encode()
}

func (s *SQLiteStorage) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			hash TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			agent_name TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			expires_at INTEGER,
			last_used_at INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tier_assignments (
			agent_id TEXT NOT NULL,
			tier TEXT NOT NULL,
			model TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (agent_id, tier)
		)`,
		`CREATE TABLE IF NOT EXISTS model_pricing (
			model TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			input_per_million REAL NOT NULL DEFAULT 0,
			output_per_million REAL NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS provider_keys (
			tenant_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			api_key TEXT NOT NULL,
			PRIMARY KEY (tenant_id, provider)
		)`,
		`CREATE TABLE IF NOT EXISTS limit_rules (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			metric TEXT NOT NULL,
			period TEXT NOT NULL,
			threshold REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_limit_rules_tenant ON limit_rules(tenant_id, agent_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &storage.StorageUnavailableError{Cause: err}
}

func toUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixMilli(), Valid: true}
}

func fromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// LookupAPIKey returns the key stored under hash.
func (s *SQLiteStorage) LookupAPIKey(ctx context.Context, hash string) (*storage.APIKey, error) {
	var (
		k                 storage.APIKey
		expires, lastUsed sql.NullInt64
		created           int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT hash, tenant_id, agent_id, agent_name, user_id, expires_at, last_used_at, created_at
		FROM api_keys WHERE hash = ?`, hash).
		Scan(&k.Hash, &k.TenantID, &k.AgentID, &k.AgentName, &k.UserID, &expires, &lastUsed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	k.ExpiresAt = fromUnix(expires)
	k.LastUsedAt = fromUnix(lastUsed)
	k.CreatedAt = time.UnixMilli(created).UTC()
	return &k, nil
}

// TouchAPIKey records the last use of a key.
func (s *SQLiteStorage) TouchAPIKey(ctx context.Context, hash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE hash = ?`, at.UTC().UnixMilli(), hash)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return &storage.NotFoundError{EntityType: "api_key", ID: hash}
	}
	return nil
}

// PutAPIKey stores a key under its hash.
func (s *SQLiteStorage) PutAPIKey(ctx context.Context, key *storage.APIKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (hash, tenant_id, agent_id, agent_name, user_id, expires_at, last_used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			agent_id = excluded.agent_id,
			agent_name = excluded.agent_name,
			user_id = excluded.user_id,
			expires_at = excluded.expires_at,
			last_used_at = excluded.last_used_at`,
		key.Hash, key.TenantID, key.AgentID, key.AgentName, key.UserID,
		toUnix(key.ExpiresAt), toUnix(key.LastUsedAt), key.CreatedAt.UTC().UnixMilli())
	return unavailable(err)
}

// DeleteAPIKey removes a key.
func (s *SQLiteStorage) DeleteAPIKey(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE hash = ?`, hash)
	return unavailable(err)
}

// GetTierAssignment returns the model assigned to an agent tier.
func (s *SQLiteStorage) GetTierAssignment(ctx context.Context, agentID string, tier scoring.Tier) (*storage.TierAssignment, error) {
	var (
		a       storage.TierAssignment
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, tier, model, provider, updated_at
		FROM tier_assignments WHERE agent_id = ? AND tier = ?`, agentID, string(tier)).
		Scan(&a.AgentID, &a.Tier, &a.Model, &a.Provider, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	a.UpdatedAt = time.UnixMilli(updated).UTC()
	return &a, nil
}

// PutTierAssignment stores an agent tier assignment.
func (s *SQLiteStorage) PutTierAssignment(ctx context.Context, a *storage.TierAssignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tier_assignments (agent_id, tier, model, provider, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, tier) DO UPDATE SET
			model = excluded.model,
			provider = excluded.provider,
			updated_at = excluded.updated_at`,
		a.AgentID, string(a.Tier), a.Model, a.Provider, a.UpdatedAt.UTC().UnixMilli())
	return unavailable(err)
}

// GetModelPricing returns the pricing record of a model.
func (s *SQLiteStorage) GetModelPricing(ctx context.Context, model string) (*storage.ModelPricing, error) {
	var p storage.ModelPricing
	err := s.db.QueryRowContext(ctx, `
		SELECT model, provider, input_per_million, output_per_million
		FROM model_pricing WHERE model = ?`, model).
		Scan(&p.Model, &p.Provider, &p.InputPerMillion, &p.OutputPerMillion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &p, nil
}

// PutModelPricing stores a pricing record.
func (s *SQLiteStorage) PutModelPricing(ctx context.Context, p *storage.ModelPricing) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_pricing (model, provider, input_per_million, output_per_million)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(model) DO UPDATE SET
			provider = excluded.provider,
			input_per_million = excluded.input_per_million,
			output_per_million = excluded.output_per_million`,
		p.Model, p.Provider, p.InputPerMillion, p.OutputPerMillion)
	return unavailable(err)
}

// GetProviderKey returns a tenant's credential for provider, or nil.
func (s *SQLiteStorage) GetProviderKey(ctx context.Context, tenantID, provider string) (*string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `
		SELECT api_key FROM provider_keys WHERE tenant_id = ? AND provider = ?`, tenantID, provider).
		Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &key, nil
}

// PutProviderKey stores a tenant's credential. Empty keys are kept.
func (s *SQLiteStorage) PutProviderKey(ctx context.Context, tenantID, provider, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_keys (tenant_id, provider, api_key) VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, provider) DO UPDATE SET api_key = excluded.api_key`,
		tenantID, provider, key)
	return unavailable(err)
}

// ListLimitRules returns the rules covering an agent, ordered by ID.
func (s *SQLiteStorage) ListLimitRules(ctx context.Context, tenantID, agentID string) ([]storage.LimitRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, agent_id, metric, period, threshold
		FROM limit_rules
		WHERE tenant_id = ? AND (agent_id = '' OR agent_id = ?)
		ORDER BY id`, tenantID, agentID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var rules []storage.LimitRule
	for rows.Next() {
		var r storage.LimitRule
		if err := rows.Scan(&r.ID, &r.TenantID, &r.AgentID, &r.Metric, &r.Period, &r.Threshold); err != nil {
			return nil, unavailable(err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return rules, nil
}

// PutLimitRule stores a rule under its ID.
func (s *SQLiteStorage) PutLimitRule(ctx context.Context, rule *storage.LimitRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO limit_rules (id, tenant_id, agent_id, metric, period, threshold)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			agent_id = excluded.agent_id,
			metric = excluded.metric,
			period = excluded.period,
			threshold = excluded.threshold`,
		rule.ID, rule.TenantID, rule.AgentID, rule.Metric, rule.Period, rule.Threshold)
	return unavailable(err)
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return unavailable(s.db.PingContext(ctx))
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
