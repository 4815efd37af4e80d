package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/d28khalil/Bidnology-sub001/internal/db"
	"github.com/d28khalil/Bidnology-sub001/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries prepared on each new connection. These
// are the per-listing hot paths hit once per observed preview.
var preparedStatements = map[string]string{
	"get_listing": `SELECT ` + listingColumns + ` FROM listings
	 WHERE source_id = $1 AND normalized_address = $2`,
	"touch_listing": `UPDATE listings SET last_seen_at = $1, version = version + 1
	 WHERE source_id = $2 AND normalized_address = $3 AND is_removed = false`,
	"record_emission": `INSERT INTO enrichment_emissions (source_id, normalized_address, detail_hash, outcome, emitted_at)
	 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id         BIGSERIAL PRIMARY KEY,
	platform   TEXT NOT NULL,
	name       TEXT NOT NULL,
	portal_url TEXT NOT NULL DEFAULT '',
	enabled    BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (platform, name)
);

CREATE TABLE IF NOT EXISTS listings (
	source_id          BIGINT NOT NULL REFERENCES sources(id),
	normalized_address TEXT NOT NULL,
	preview_hash       TEXT NOT NULL,
	detail_hash        TEXT,
	status_history     JSONB NOT NULL DEFAULT '[]',
	first_seen_at      TIMESTAMPTZ NOT NULL,
	last_seen_at       TIMESTAMPTZ NOT NULL,
	is_removed         BOOLEAN NOT NULL DEFAULT false,
	version            BIGINT NOT NULL DEFAULT 1,
	address            TEXT NOT NULL DEFAULT '',
	sale_date          TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT '',
	case_number        TEXT NOT NULL DEFAULT '',
	court              TEXT NOT NULL DEFAULT '',
	plaintiff          TEXT NOT NULL DEFAULT '',
	defendant          TEXT NOT NULL DEFAULT '',
	opening_bid        TEXT NOT NULL DEFAULT '',
	judgment           TEXT NOT NULL DEFAULT '',
	parcel_id          TEXT NOT NULL DEFAULT '',
	extra              JSONB,
	PRIMARY KEY (source_id, normalized_address)
);

CREATE INDEX IF NOT EXISTS idx_listings_active
	ON listings(source_id) WHERE NOT is_removed;

CREATE TABLE IF NOT EXISTS enrichment_emissions (
	source_id          BIGINT NOT NULL,
	normalized_address TEXT NOT NULL,
	detail_hash        TEXT NOT NULL,
	outcome            TEXT NOT NULL,
	emitted_at         TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source_id, normalized_address, detail_hash)
);

CREATE INDEX IF NOT EXISTS idx_emissions_identity
	ON enrichment_emissions(source_id, normalized_address, emitted_at DESC);

CREATE TABLE IF NOT EXISTS run_summaries (
	id              TEXT PRIMARY KEY,
	source_id       BIGINT NOT NULL,
	status          TEXT NOT NULL,
	new_count       INTEGER NOT NULL DEFAULT 0,
	changed_count   INTEGER NOT NULL DEFAULT 0,
	unchanged_count INTEGER NOT NULL DEFAULT 0,
	removed_count   INTEGER NOT NULL DEFAULT 0,
	error_count     INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_run_summaries_source
	ON run_summaries(source_id, started_at DESC);
`

const listingColumns = `source_id, normalized_address, preview_hash, detail_hash, status_history,
	first_seen_at, last_seen_at, is_removed, version,
	address, sale_date, status, case_number, court, plaintiff, defendant,
	opening_bid, judgment, parcel_id, extra`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Sources

func (s *PostgresStore) CreateSource(ctx context.Context, src model.Source) (*model.Source, error) {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sources (platform, name, portal_url, enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		src.Platform, src.Name, src.PortalURL, src.Enabled, now,
	).Scan(&src.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create source %s", src.TriggerName())
	}
	src.CreatedAt = now
	return &src, nil
}

func (s *PostgresStore) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	return s.scanSource(s.pool.QueryRow(ctx,
		`SELECT id, platform, name, portal_url, enabled, created_at FROM sources WHERE id = $1`, id))
}

func (s *PostgresStore) GetSourceByName(ctx context.Context, platform, name string) (*model.Source, error) {
	return s.scanSource(s.pool.QueryRow(ctx,
		`SELECT id, platform, name, portal_url, enabled, created_at FROM sources
		 WHERE platform = $1 AND name = $2`, platform, name))
}

func (s *PostgresStore) scanSource(row pgx.Row) (*model.Source, error) {
	var src model.Source
	err := row.Scan(&src.ID, &src.Platform, &src.Name, &src.PortalURL, &src.Enabled, &src.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: scan source")
	}
	return &src, nil
}

func (s *PostgresStore) ListSources(ctx context.Context, enabledOnly bool) ([]model.Source, error) {
	query := `SELECT id, platform, name, portal_url, enabled, created_at FROM sources`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY platform, name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.Platform, &src.Name, &src.PortalURL, &src.Enabled, &src.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source row")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

// Listings

func (s *PostgresStore) GetListing(ctx context.Context, id model.ListingIdentity) (*model.ListingRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE source_id = $1 AND normalized_address = $2`,
		id.SourceID, id.NormalizedAddress,
	)
	rec, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get listing %s", id.NormalizedAddress)
	}
	return rec, nil
}

func scanListing(row pgx.Row) (*model.ListingRecord, error) {
	var rec model.ListingRecord
	var detailHash *string
	var historyJSON []byte
	var extraJSON []byte

	err := row.Scan(
		&rec.Identity.SourceID, &rec.Identity.NormalizedAddress,
		&rec.PreviewHash, &detailHash, &historyJSON,
		&rec.FirstSeenAt, &rec.LastSeenAt, &rec.IsRemoved, &rec.Version,
		&rec.Address, &rec.SaleDate, &rec.Status, &rec.CaseNumber,
		&rec.Court, &rec.Plaintiff, &rec.Defendant,
		&rec.OpeningBid, &rec.Judgment, &rec.ParcelID, &extraJSON,
	)
	if err != nil {
		return nil, err
	}
	if detailHash != nil {
		rec.DetailHash = *detailHash
	}
	if err := json.Unmarshal(historyJSON, &rec.StatusHistory); err != nil {
		return nil, eris.Wrap(err, "unmarshal status history")
	}
	if extraJSON != nil {
		if err := json.Unmarshal(extraJSON, &rec.Extra); err != nil {
			return nil, eris.Wrap(err, "unmarshal extra")
		}
	}
	return &rec, nil
}

func listingArgs(rec *model.ListingRecord) ([]any, error) {
	historyJSON, err := json.Marshal(rec.StatusHistory)
	if err != nil {
		return nil, eris.Wrap(err, "marshal status history")
	}
	var extraJSON []byte
	if rec.Extra != nil {
		extraJSON, err = json.Marshal(rec.Extra)
		if err != nil {
			return nil, eris.Wrap(err, "marshal extra")
		}
	}
	var detailHash *string
	if rec.DetailHash != "" {
		detailHash = &rec.DetailHash
	}
	return []any{
		rec.Identity.SourceID, rec.Identity.NormalizedAddress,
		rec.PreviewHash, detailHash, historyJSON,
		rec.FirstSeenAt, rec.LastSeenAt, rec.IsRemoved,
		rec.Address, rec.SaleDate, rec.Status, rec.CaseNumber,
		rec.Court, rec.Plaintiff, rec.Defendant,
		rec.OpeningBid, rec.Judgment, rec.ParcelID, extraJSON,
	}, nil
}

func (s *PostgresStore) InsertListing(ctx context.Context, rec *model.ListingRecord) error {
	args, err := listingArgs(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: insert listing")
	}
	rec.Version = 1
	args = append(args, rec.Version)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO listings (source_id, normalized_address, preview_hash, detail_hash, status_history,
		   first_seen_at, last_seen_at, is_removed,
		   address, sale_date, status, case_number, court, plaintiff, defendant,
		   opening_bid, judgment, parcel_id, extra, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		args...,
	)
	return eris.Wrapf(err, "postgres: insert listing %s", rec.Identity.NormalizedAddress)
}

func (s *PostgresStore) UpdateListing(ctx context.Context, rec *model.ListingRecord) error {
	args, err := listingArgs(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: update listing")
	}
	args = append(args, rec.Version)

	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET
		   preview_hash = $3, detail_hash = $4, status_history = $5,
		   first_seen_at = $6, last_seen_at = $7, is_removed = $8,
		   address = $9, sale_date = $10, status = $11, case_number = $12,
		   court = $13, plaintiff = $14, defendant = $15,
		   opening_bid = $16, judgment = $17, parcel_id = $18, extra = $19,
		   version = version + 1
		 WHERE source_id = $1 AND normalized_address = $2 AND version = $20`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update listing %s", rec.Identity.NormalizedAddress)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	rec.Version++
	return nil
}

func (s *PostgresStore) TouchListing(ctx context.Context, id model.ListingIdentity, seenAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET last_seen_at = $1, version = version + 1
		 WHERE source_id = $2 AND normalized_address = $3 AND is_removed = false`,
		seenAt, id.SourceID, id.NormalizedAddress,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch listing %s", id.NormalizedAddress)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ActiveIdentities(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT normalized_address FROM listings
		 WHERE source_id = $1 AND is_removed = false`,
		sourceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: active identities for source %d", sourceID)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, eris.Wrap(err, "postgres: scan identity")
		}
		addrs = append(addrs, addr)
	}
	return addrs, eris.Wrap(rows.Err(), "postgres: active identities iterate")
}

// Enrichment emissions

func (s *PostgresStore) LastEmittedHash(ctx context.Context, id model.ListingIdentity) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT detail_hash FROM enrichment_emissions
		 WHERE source_id = $1 AND normalized_address = $2
		 ORDER BY emitted_at DESC LIMIT 1`,
		id.SourceID, id.NormalizedAddress,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", eris.Wrapf(err, "postgres: last emitted hash %s", id.NormalizedAddress)
	}
	return hash, nil
}

func (s *PostgresStore) RecordEmission(ctx context.Context, req model.EnrichmentRequest) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment_emissions (source_id, normalized_address, detail_hash, outcome, emitted_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
		req.Identity.SourceID, req.Identity.NormalizedAddress,
		req.DetailHash, string(req.Outcome), req.EmittedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: record emission %s", req.DedupKey())
	}
	return tag.RowsAffected() > 0, nil
}

// Run summaries

func (s *PostgresStore) CreateRunSummary(ctx context.Context, sum *model.RunSummary) error {
	if sum.ID == "" {
		sum.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_summaries (id, source_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		sum.ID, sum.SourceID, string(sum.Status), sum.StartedAt,
	)
	return eris.Wrapf(err, "postgres: create run summary %s", sum.ID)
}

func (s *PostgresStore) FinalizeRunSummary(ctx context.Context, sum *model.RunSummary) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE run_summaries SET status = $1, new_count = $2, changed_count = $3,
		   unchanged_count = $4, removed_count = $5, error_count = $6, error = $7, completed_at = $8
		 WHERE id = $9 AND completed_at IS NULL`,
		string(sum.Status), sum.New, sum.Changed, sum.Unchanged, sum.Removed,
		sum.Errors, sum.Error, sum.CompletedAt, sum.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize run summary %s", sum.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run summary not found or already finalized: %s", sum.ID)
	}
	return nil
}

func (s *PostgresStore) ListRunSummaries(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT id, source_id, status, new_count, changed_count, unchanged_count,
	            removed_count, error_count, error, started_at, completed_at
	          FROM run_summaries WHERE true`
	args := []any{}
	argIdx := 1

	if filter.SourceID != 0 {
		query += fmt.Sprintf(` AND source_id = $%d`, argIdx)
		args = append(args, filter.SourceID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list run summaries")
	}
	defer rows.Close()

	var sums []model.RunSummary
	for rows.Next() {
		var sum model.RunSummary
		var status string
		if err := rows.Scan(&sum.ID, &sum.SourceID, &status,
			&sum.New, &sum.Changed, &sum.Unchanged, &sum.Removed,
			&sum.Errors, &sum.Error, &sum.StartedAt, &sum.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run summary")
		}
		sum.Status = model.RunStatus(status)
		sums = append(sums, sum)
	}
	return sums, eris.Wrap(rows.Err(), "postgres: list run summaries iterate")
}
