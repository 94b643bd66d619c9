package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leads-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local and
// single-node deployments; Postgres is the production driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite supports one writer; a single pooled connection also keeps
	// :memory: databases from fragmenting across connections.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                   TEXT PRIMARY KEY,
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
	fit_score            REAL,
	email_verified       INTEGER NOT NULL DEFAULT 0,
	deliverability_score REAL,
	enrichment_data      TEXT,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	archived_at          DATETIME
);

CREATE INDEX IF NOT EXISTS idx_leads_tenant_status ON leads(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_leads_status_updated ON leads(status, updated_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_active_fingerprint
	ON leads(tenant_id, fingerprint) WHERE status IN ('enriched', 'verified', 'pending_review') AND fingerprint <> '';

CREATE TABLE IF NOT EXISTS enrichment_cache (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	cache_type   TEXT NOT NULL,
	key_hash     TEXT NOT NULL,
	data         TEXT NOT NULL,
	providers    TEXT NOT NULL,
	cost_usd     REAL NOT NULL DEFAULT 0,
	completeness REAL NOT NULL DEFAULT 0,
	hit_count    INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_cache_lookup ON enrichment_cache(tenant_id, key_hash, expires_at DESC);
CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires_at ON enrichment_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal enrichment data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, tenant_id, email, first_name, last_name, phone, job_title,
			company_name, company_domain, company_website, company_industry, linkedin_url,
			fingerprint, status, enrichment_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.TenantID, lead.Email, lead.FirstName, lead.LastName, lead.Phone, lead.JobTitle,
		lead.CompanyName, lead.CompanyDomain, lead.CompanyWebsite, lead.CompanyIndustry, lead.LinkedInURL,
		lead.Fingerprint(), string(lead.Status), dataJSON, lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert lead")
	}
	return lead, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, selectLeadSQL+` WHERE id = ?`, id)
	lead, err := scanLeadSQLite(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return lead, nil
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, id string, from, to model.LeadStatus, fields map[string]any) error {
	if err := validateTransition(from, to); err != nil {
		return err
	}
	if err := validateFieldColumns(fields); err != nil {
		return err
	}

	set := []string{"status = ?", "updated_at = ?"}
	args := []any{string(to), time.Now().UTC()}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		set = append(set, fmt.Sprintf("%s = ?", col))
		args = append(args, fields[col])
	}

	args = append(args, id, string(from))
	query := fmt.Sprintf(`UPDATE leads SET %s WHERE id = ? AND status = ?`, strings.Join(set, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrIllegalTransition, "lead %s not in status %s", id, from)
	}
	return nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := selectLeadSQL + ` WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter)
	}
	query += ` ORDER BY created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanLeadSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) FindActiveLeadByFingerprint(ctx context.Context, tenantID, fingerprint string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM leads WHERE tenant_id = ? AND fingerprint = ? AND status IN ('enriched', 'verified', 'pending_review') LIMIT 1`,
		tenantID, fingerprint,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: find lead by fingerprint")
	}
	return id, nil
}

func (s *SQLiteStore) SaveCacheEntry(ctx context.Context, entry *model.CacheEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	dataJSON, err := marshalFieldBag(entry.Data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cache data")
	}
	providersJSON, err := json.Marshal(entry.Providers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cache providers")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (id, tenant_id, cache_type, key_hash, data, providers,
			cost_usd, completeness, hit_count, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TenantID, entry.CacheType, entry.KeyHash, dataJSON, string(providersJSON),
		entry.CostUSD, entry.Completeness, entry.HitCount, entry.CreatedAt, entry.ExpiresAt,
	)
	return eris.Wrap(err, "sqlite: insert cache entry")
}

func (s *SQLiteStore) GetCacheEntry(ctx context.Context, tenantID, keyHash string) (*model.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, cache_type, key_hash, data, providers, cost_usd, completeness,
			hit_count, created_at, expires_at
		 FROM enrichment_cache
		 WHERE tenant_id = ? AND key_hash = ? AND expires_at > datetime('now')
		 ORDER BY created_at DESC LIMIT 1`,
		tenantID, keyHash,
	)
	entry, err := scanCacheEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cache entry")
	}
	return entry, nil
}

func (s *SQLiteStore) TouchCacheEntry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_cache SET hit_count = hit_count + 1 WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: touch cache entry %s", id)
}

func (s *SQLiteStore) DeleteExpiredCacheEntries(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM enrichment_cache WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache entries")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CacheStats(ctx context.Context, tenantID string) (*CacheStats, error) {
	var stats CacheStats
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*), coalesce(sum(hit_count), 0), coalesce(sum(cost_usd), 0)
		 FROM enrichment_cache WHERE tenant_id = ? AND expires_at > datetime('now')`,
		tenantID,
	).Scan(&stats.Entries, &stats.TotalHits, &stats.TotalCostUSD)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cache stats")
	}
	return &stats, nil
}

func (s *SQLiteStore) ArchiveStaleErrorLeads(ctx context.Context, cutoff time.Time) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = 'archived', archived_at = ?, updated_at = ?
		 WHERE status = 'error' AND updated_at < ?`,
		now, now, cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: archive stale error leads")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// scanLeadSQLite adapts scanning for database/sql rows, which report
// missing rows as sql.ErrNoRows rather than pgx.ErrNoRows.
func scanLeadSQLite(row scannable) (*model.Lead, error) {
	var l model.Lead
	var status string
	var dataJSON sql.NullString

	err := row.Scan(&l.ID, &l.TenantID, &l.Email, &l.FirstName, &l.LastName, &l.Phone, &l.JobTitle,
		&l.CompanyName, &l.CompanyDomain, &l.CompanyWebsite, &l.CompanyIndustry, &l.LinkedInURL,
		&status, &l.FitScore, &l.EmailVerified, &l.DeliverabilityScore, &dataJSON,
		&l.CreatedAt, &l.UpdatedAt, &l.ArchivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	l.Status = model.LeadStatus(status)
	if dataJSON.Valid && dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &l.EnrichmentData); err != nil {
			return nil, eris.Wrap(err, "unmarshal enrichment data")
		}
	}
	return &l, nil
}
