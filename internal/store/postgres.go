package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leads-cli/internal/model"
)

// Pool abstracts the pgx pool surface the store uses, so tests can swap in
// pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_lead":         selectLeadSQL + ` WHERE id = $1`,
	"find_fingerprint": `SELECT id FROM leads WHERE tenant_id = $1 AND fingerprint = $2 AND status IN ('enriched', 'verified', 'pending_review') LIMIT 1`,
	"get_cache_entry":  `SELECT id, tenant_id, cache_type, key_hash, data, providers, cost_usd, completeness, hit_count, created_at, expires_at FROM enrichment_cache WHERE tenant_id = $1 AND key_hash = $2 AND expires_at > now() ORDER BY created_at DESC LIMIT 1`,
	"touch_cache":      `UPDATE enrichment_cache SET hit_count = hit_count + 1 WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id            TEXT NOT NULL,
	email                TEXT NOT NULL,
	first_name           TEXT NOT NULL DEFAULT '',
	last_name            TEXT NOT NULL DEFAULT '',
	phone                TEXT NOT NULL DEFAULT '',
	job_title            TEXT NOT NULL DEFAULT '',
	company_name         TEXT NOT NULL DEFAULT '',
	company_domain       TEXT NOT NULL DEFAULT '',
	company_website      TEXT NOT NULL DEFAULT '',
	company_industry     TEXT NOT NULL DEFAULT '',
	linkedin_url         TEXT NOT NULL DEFAULT '',
	fingerprint          TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'new',
	fit_score            DOUBLE PRECISION,
	email_verified       BOOLEAN NOT NULL DEFAULT false,
	deliverability_score DOUBLE PRECISION,
	enrichment_data      JSONB,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	archived_at          TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_leads_tenant_status ON leads(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_leads_status_updated ON leads(status, updated_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_active_fingerprint
	ON leads(tenant_id, fingerprint) WHERE status IN ('enriched', 'verified', 'pending_review') AND fingerprint <> '';

CREATE TABLE IF NOT EXISTS enrichment_cache (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id    TEXT NOT NULL,
	cache_type   TEXT NOT NULL,
	key_hash     TEXT NOT NULL,
	data         JSONB NOT NULL,
	providers    JSONB NOT NULL,
	cost_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
	completeness DOUBLE PRECISION NOT NULL DEFAULT 0,
	hit_count    INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_cache_lookup ON enrichment_cache(tenant_id, key_hash, expires_at DESC);
CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires_at ON enrichment_cache(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const selectLeadSQL = `SELECT id, tenant_id, email, first_name, last_name, phone, job_title,
	company_name, company_domain, company_website, company_industry, linkedin_url,
	status, fit_score, email_verified, deliverability_score, enrichment_data,
	created_at, updated_at, archived_at FROM leads`

func (s *PostgresStore) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Status == "" {
		lead.Status = model.StatusNew
	}
	now := time.Now().UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now

	dataJSON, err := marshalFieldBag(lead.EnrichmentData)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal enrichment data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (id, tenant_id, email, first_name, last_name, phone, job_title,
			company_name, company_domain, company_website, company_industry, linkedin_url,
			fingerprint, status, enrichment_data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		lead.ID, lead.TenantID, lead.Email, lead.FirstName, lead.LastName, lead.Phone, lead.JobTitle,
		lead.CompanyName, lead.CompanyDomain, lead.CompanyWebsite, lead.CompanyIndustry, lead.LinkedInURL,
		lead.Fingerprint(), string(lead.Status), dataJSON, lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert lead")
	}
	return lead, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, selectLeadSQL+` WHERE id = $1`, id)
	lead, err := scanLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return lead, nil
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, id string, from, to model.LeadStatus, fields map[string]any) error {
	if err := validateTransition(from, to); err != nil {
		return err
	}
	if err := validateFieldColumns(fields); err != nil {
		return err
	}

	set := []string{"status = $1", "updated_at = $2"}
	args := []any{string(to), time.Now().UTC()}

	// Deterministic column order keeps the SQL stable for prepared-statement
	// caching and test expectations.
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		args = append(args, fields[col])
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	args = append(args, id)
	idPos := len(args)
	args = append(args, string(from))

	query := fmt.Sprintf(`UPDATE leads SET %s WHERE id = $%d AND status = $%d`,
		strings.Join(set, ", "), idPos, idPos+1)

	res, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead status %s", id)
	}
	if res.RowsAffected() == 0 {
		return eris.Wrapf(ErrIllegalTransition, "lead %s not in status %s", id, from)
	}
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := selectLeadSQL + ` WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		query += fmt.Sprintf(` AND tenant_id = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if !filter.CreatedAfter.IsZero() {
		args = append(args, filter.CreatedAfter)
		query += fmt.Sprintf(` AND created_at > $%d`, len(args))
	}
	query += ` ORDER BY created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) FindActiveLeadByFingerprint(ctx context.Context, tenantID, fingerprint string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM leads WHERE tenant_id = $1 AND fingerprint = $2 AND status IN ('enriched', 'verified', 'pending_review') LIMIT 1`,
		tenantID, fingerprint,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: find lead by fingerprint")
	}
	return id, nil
}

func (s *PostgresStore) SaveCacheEntry(ctx context.Context, entry *model.CacheEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	dataJSON, err := marshalFieldBag(entry.Data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cache data")
	}
	providersJSON, err := json.Marshal(entry.Providers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cache providers")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_cache (id, tenant_id, cache_type, key_hash, data, providers,
			cost_usd, completeness, hit_count, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.TenantID, entry.CacheType, entry.KeyHash, dataJSON, string(providersJSON),
		entry.CostUSD, entry.Completeness, entry.HitCount, entry.CreatedAt, entry.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: insert cache entry")
}

func (s *PostgresStore) GetCacheEntry(ctx context.Context, tenantID, keyHash string) (*model.CacheEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, cache_type, key_hash, data, providers, cost_usd, completeness,
			hit_count, created_at, expires_at
		 FROM enrichment_cache
		 WHERE tenant_id = $1 AND key_hash = $2 AND expires_at > now()
		 ORDER BY created_at DESC LIMIT 1`,
		tenantID, keyHash,
	)
	entry, err := scanCacheEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cache entry")
	}
	return entry, nil
}

func (s *PostgresStore) TouchCacheEntry(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enrichment_cache SET hit_count = hit_count + 1 WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: touch cache entry %s", id)
}

func (s *PostgresStore) DeleteExpiredCacheEntries(ctx context.Context) (int, error) {
	res, err := s.pool.Exec(ctx, `DELETE FROM enrichment_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired cache entries")
	}
	return int(res.RowsAffected()), nil
}

func (s *PostgresStore) CacheStats(ctx context.Context, tenantID string) (*CacheStats, error) {
	var stats CacheStats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), coalesce(sum(hit_count), 0), coalesce(sum(cost_usd), 0)
		 FROM enrichment_cache WHERE tenant_id = $1 AND expires_at > now()`,
		tenantID,
	).Scan(&stats.Entries, &stats.TotalHits, &stats.TotalCostUSD)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cache stats")
	}
	return &stats, nil
}

func (s *PostgresStore) ArchiveStaleErrorLeads(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = 'archived', archived_at = now(), updated_at = now()
		 WHERE status = 'error' AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: archive stale error leads")
	}
	return int(res.RowsAffected()), nil
}

// scanning helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var status string
	var dataJSON *string

	err := row.Scan(&l.ID, &l.TenantID, &l.Email, &l.FirstName, &l.LastName, &l.Phone, &l.JobTitle,
		&l.CompanyName, &l.CompanyDomain, &l.CompanyWebsite, &l.CompanyIndustry, &l.LinkedInURL,
		&status, &l.FitScore, &l.EmailVerified, &l.DeliverabilityScore, &dataJSON,
		&l.CreatedAt, &l.UpdatedAt, &l.ArchivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	l.Status = model.LeadStatus(status)
	if dataJSON != nil && *dataJSON != "" {
		if err := json.Unmarshal([]byte(*dataJSON), &l.EnrichmentData); err != nil {
			return nil, eris.Wrap(err, "unmarshal enrichment data")
		}
	}
	return &l, nil
}

func scanCacheEntry(row scannable) (*model.CacheEntry, error) {
	var e model.CacheEntry
	var dataJSON, providersJSON string

	err := row.Scan(&e.ID, &e.TenantID, &e.CacheType, &e.KeyHash, &dataJSON, &providersJSON,
		&e.CostUSD, &e.Completeness, &e.HitCount, &e.CreatedAt, &e.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
		return nil, eris.Wrap(err, "unmarshal cache data")
	}
	if err := json.Unmarshal([]byte(providersJSON), &e.Providers); err != nil {
		return nil, eris.Wrap(err, "unmarshal cache providers")
	}
	return &e, nil
}

func marshalFieldBag(bag model.FieldBag) (*string, error) {
	if bag == nil {
		return nil, nil
	}
	b, err := json.Marshal(bag)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
