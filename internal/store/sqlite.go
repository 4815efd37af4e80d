package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and the store test suite; production deployments use postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	platform   TEXT NOT NULL,
	name       TEXT NOT NULL,
	portal_url TEXT NOT NULL DEFAULT '',
	enabled    INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	UNIQUE (platform, name)
);

CREATE TABLE IF NOT EXISTS listings (
	source_id          INTEGER NOT NULL REFERENCES sources(id),
	normalized_address TEXT NOT NULL,
	preview_hash       TEXT NOT NULL,
	detail_hash        TEXT,
	status_history     TEXT NOT NULL DEFAULT '[]',
	first_seen_at      DATETIME NOT NULL,
	last_seen_at       DATETIME NOT NULL,
	is_removed         INTEGER NOT NULL DEFAULT 0,
	version            INTEGER NOT NULL DEFAULT 1,
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
	extra              TEXT,
	PRIMARY KEY (source_id, normalized_address)
);

CREATE INDEX IF NOT EXISTS idx_listings_active ON listings(source_id, is_removed);

CREATE TABLE IF NOT EXISTS enrichment_emissions (
	source_id          INTEGER NOT NULL,
	normalized_address TEXT NOT NULL,
	detail_hash        TEXT NOT NULL,
	outcome            TEXT NOT NULL,
	emitted_at         DATETIME NOT NULL,
	PRIMARY KEY (source_id, normalized_address, detail_hash)
);

CREATE TABLE IF NOT EXISTS run_summaries (
	id              TEXT PRIMARY KEY,
	source_id       INTEGER NOT NULL,
	status          TEXT NOT NULL,
	new_count       INTEGER NOT NULL DEFAULT 0,
	changed_count   INTEGER NOT NULL DEFAULT 0,
	unchanged_count INTEGER NOT NULL DEFAULT 0,
	removed_count   INTEGER NOT NULL DEFAULT 0,
	error_count     INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      DATETIME NOT NULL,
	completed_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_run_summaries_source ON run_summaries(source_id, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Sources

func (s *SQLiteStore) CreateSource(ctx context.Context, src model.Source) (*model.Source, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (platform, name, portal_url, enabled, created_at) VALUES (?, ?, ?, ?, ?)`,
		src.Platform, src.Name, src.PortalURL, src.Enabled, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create source %s", src.TriggerName())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: source id")
	}
	src.ID = id
	src.CreatedAt = now
	return &src, nil
}

func (s *SQLiteStore) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	return scanSQLiteSource(s.db.QueryRowContext(ctx,
		`SELECT id, platform, name, portal_url, enabled, created_at FROM sources WHERE id = ?`, id))
}

func (s *SQLiteStore) GetSourceByName(ctx context.Context, platform, name string) (*model.Source, error) {
	return scanSQLiteSource(s.db.QueryRowContext(ctx,
		`SELECT id, platform, name, portal_url, enabled, created_at FROM sources
		 WHERE platform = ? AND name = ?`, platform, name))
}

func scanSQLiteSource(row *sql.Row) (*model.Source, error) {
	var src model.Source
	err := row.Scan(&src.ID, &src.Platform, &src.Name, &src.PortalURL, &src.Enabled, &src.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: scan source")
	}
	return &src, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context, enabledOnly bool) ([]model.Source, error) {
	query := `SELECT id, platform, name, portal_url, enabled, created_at FROM sources`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY platform, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.Platform, &src.Name, &src.PortalURL, &src.Enabled, &src.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source row")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

// Listings

const sqliteListingColumns = `source_id, normalized_address, preview_hash, detail_hash, status_history,
	first_seen_at, last_seen_at, is_removed, version,
	address, sale_date, status, case_number, court, plaintiff, defendant,
	opening_bid, judgment, parcel_id, extra`

func (s *SQLiteStore) GetListing(ctx context.Context, id model.ListingIdentity) (*model.ListingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteListingColumns+` FROM listings WHERE source_id = ? AND normalized_address = ?`,
		id.SourceID, id.NormalizedAddress,
	)

	var rec model.ListingRecord
	var detailHash sql.NullString
	var historyJSON string
	var extraJSON sql.NullString

	err := row.Scan(
		&rec.Identity.SourceID, &rec.Identity.NormalizedAddress,
		&rec.PreviewHash, &detailHash, &historyJSON,
		&rec.FirstSeenAt, &rec.LastSeenAt, &rec.IsRemoved, &rec.Version,
		&rec.Address, &rec.SaleDate, &rec.Status, &rec.CaseNumber,
		&rec.Court, &rec.Plaintiff, &rec.Defendant,
		&rec.OpeningBid, &rec.Judgment, &rec.ParcelID, &extraJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get listing %s", id.NormalizedAddress)
	}
	if detailHash.Valid {
		rec.DetailHash = detailHash.String
	}
	if err := json.Unmarshal([]byte(historyJSON), &rec.StatusHistory); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal status history")
	}
	if extraJSON.Valid && extraJSON.String != "" {
		if err := json.Unmarshal([]byte(extraJSON.String), &rec.Extra); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal extra")
		}
	}
	return &rec, nil
}

func sqliteListingArgs(rec *model.ListingRecord) ([]any, error) {
	historyJSON, err := json.Marshal(rec.StatusHistory)
	if err != nil {
		return nil, eris.Wrap(err, "marshal status history")
	}
	var extraJSON any
	if rec.Extra != nil {
		b, err := json.Marshal(rec.Extra)
		if err != nil {
			return nil, eris.Wrap(err, "marshal extra")
		}
		extraJSON = string(b)
	}
	var detailHash any
	if rec.DetailHash != "" {
		detailHash = rec.DetailHash
	}
	return []any{
		rec.PreviewHash, detailHash, string(historyJSON),
		rec.FirstSeenAt, rec.LastSeenAt, rec.IsRemoved,
		rec.Address, rec.SaleDate, rec.Status, rec.CaseNumber,
		rec.Court, rec.Plaintiff, rec.Defendant,
		rec.OpeningBid, rec.Judgment, rec.ParcelID, extraJSON,
	}, nil
}

func (s *SQLiteStore) InsertListing(ctx context.Context, rec *model.ListingRecord) error {
	args, err := sqliteListingArgs(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert listing")
	}
	rec.Version = 1
	args = append([]any{rec.Identity.SourceID, rec.Identity.NormalizedAddress}, args...)
	args = append(args, rec.Version)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO listings (source_id, normalized_address, preview_hash, detail_hash, status_history,
		   first_seen_at, last_seen_at, is_removed,
		   address, sale_date, status, case_number, court, plaintiff, defendant,
		   opening_bid, judgment, parcel_id, extra, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	return eris.Wrapf(err, "sqlite: insert listing %s", rec.Identity.NormalizedAddress)
}

func (s *SQLiteStore) UpdateListing(ctx context.Context, rec *model.ListingRecord) error {
	args, err := sqliteListingArgs(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: update listing")
	}
	args = append(args, rec.Identity.SourceID, rec.Identity.NormalizedAddress, rec.Version)

	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET
		   preview_hash = ?, detail_hash = ?, status_history = ?,
		   first_seen_at = ?, last_seen_at = ?, is_removed = ?,
		   address = ?, sale_date = ?, status = ?, case_number = ?,
		   court = ?, plaintiff = ?, defendant = ?,
		   opening_bid = ?, judgment = ?, parcel_id = ?, extra = ?,
		   version = version + 1
		 WHERE source_id = ? AND normalized_address = ? AND version = ?`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update listing %s", rec.Identity.NormalizedAddress)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: update listing rows affected")
	}
	if n == 0 {
		return ErrConflict
	}
	rec.Version++
	return nil
}

func (s *SQLiteStore) TouchListing(ctx context.Context, id model.ListingIdentity, seenAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET last_seen_at = ?, version = version + 1
		 WHERE source_id = ? AND normalized_address = ? AND is_removed = 0`,
		seenAt, id.SourceID, id.NormalizedAddress,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch listing %s", id.NormalizedAddress)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: touch listing rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ActiveIdentities(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT normalized_address FROM listings WHERE source_id = ? AND is_removed = 0`,
		sourceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: active identities for source %d", sourceID)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan identity")
		}
		addrs = append(addrs, addr)
	}
	return addrs, eris.Wrap(rows.Err(), "sqlite: active identities iterate")
}

// Enrichment emissions

func (s *SQLiteStore) LastEmittedHash(ctx context.Context, id model.ListingIdentity) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT detail_hash FROM enrichment_emissions
		 WHERE source_id = ? AND normalized_address = ?
		 ORDER BY emitted_at DESC LIMIT 1`,
		id.SourceID, id.NormalizedAddress,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", eris.Wrapf(err, "sqlite: last emitted hash %s", id.NormalizedAddress)
	}
	return hash, nil
}

func (s *SQLiteStore) RecordEmission(ctx context.Context, req model.EnrichmentRequest) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO enrichment_emissions (source_id, normalized_address, detail_hash, outcome, emitted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		req.Identity.SourceID, req.Identity.NormalizedAddress,
		req.DetailHash, string(req.Outcome), req.EmittedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: record emission %s", req.DedupKey())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: record emission rows affected")
	}
	return n > 0, nil
}

// Run summaries

func (s *SQLiteStore) CreateRunSummary(ctx context.Context, sum *model.RunSummary) error {
	if sum.ID == "" {
		sum.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_summaries (id, source_id, status, started_at) VALUES (?, ?, ?, ?)`,
		sum.ID, sum.SourceID, string(sum.Status), sum.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: create run summary %s", sum.ID)
}

func (s *SQLiteStore) FinalizeRunSummary(ctx context.Context, sum *model.RunSummary) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_summaries SET status = ?, new_count = ?, changed_count = ?,
		   unchanged_count = ?, removed_count = ?, error_count = ?, error = ?, completed_at = ?
		 WHERE id = ? AND completed_at IS NULL`,
		string(sum.Status), sum.New, sum.Changed, sum.Unchanged, sum.Removed,
		sum.Errors, sum.Error, sum.CompletedAt, sum.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize run summary %s", sum.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: finalize rows affected")
	}
	if n == 0 {
		return eris.Errorf("run summary not found or already finalized: %s", sum.ID)
	}
	return nil
}

func (s *SQLiteStore) ListRunSummaries(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT id, source_id, status, new_count, changed_count, unchanged_count,
	            removed_count, error_count, error, started_at, completed_at
	          FROM run_summaries WHERE 1=1`
	args := []any{}

	if filter.SourceID != 0 {
		query += ` AND source_id = ?`
		args = append(args, filter.SourceID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list run summaries")
	}
	defer rows.Close()

	var sums []model.RunSummary
	for rows.Next() {
		var sum model.RunSummary
		var status string
		if err := rows.Scan(&sum.ID, &sum.SourceID, &status,
			&sum.New, &sum.Changed, &sum.Unchanged, &sum.Removed,
			&sum.Errors, &sum.Error, &sum.StartedAt, &sum.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run summary")
		}
		sum.Status = model.RunStatus(status)
		sums = append(sums, sum)
	}
	return sums, eris.Wrap(rows.Err(), "sqlite: list run summaries iterate")
}
