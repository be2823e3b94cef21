package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"gazette-ingest/pkg/domain"
)

// DefaultRecordsTable is the table validated records are written to.
const DefaultRecordsTable = "gazette_records"

const createRecordsTable = `CREATE TABLE IF NOT EXISTS %s (
    source_url      TEXT PRIMARY KEY,
    unique_id       TEXT NOT NULL,
    entry_title     TEXT,
    jurisdiction    TEXT,
    document_type   TEXT,
    notice_number   TEXT,
    notice_date     TEXT,
    all_correct     BOOLEAN NOT NULL,
    corrected       BOOLEAN NOT NULL,
    extraction      TEXT,
    extraction_score DOUBLE PRECISION,
    record          JSONB NOT NULL,
    validation      JSONB NOT NULL,
    validated_at    TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DBProvider hands out the sql.DB a repository runs against.
type DBProvider interface {
	DB() *sql.DB
}

// RecordRepository persists validated records into a Postgres table through
// any DBProvider (PostgresClient or SupabaseClient with a direct connection).
type RecordRepository struct {
	provider DBProvider
	table    string
}

// NewRecordRepository creates a repository writing to table (DefaultRecordsTable if empty).
func NewRecordRepository(provider DBProvider, table string) *RecordRepository {
	if table == "" {
		table = DefaultRecordsTable
	}
	return &RecordRepository{provider: provider, table: table}
}

func (r *RecordRepository) db() (*sql.DB, error) {
	if r.provider == nil || r.provider.DB() == nil {
		return nil, errors.New("sql database not connected")
	}
	return r.provider.DB(), nil
}

// EnsureSchema creates the records table when it does not exist.
func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	db, err := r.db()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(createRecordsTable, r.table)); err != nil {
		return fmt.Errorf("create %s: %w", r.table, err)
	}
	return nil
}

// SaveRecord upserts record keyed by source URL.
func (r *RecordRepository) SaveRecord(ctx context.Context, record *domain.ValidatedRecord) error {
	db, err := r.db()
	if err != nil {
		return err
	}

	query, args, err := r.upsertQuery(record)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert record %s: %w", record.SourceURL, err)
	}
	return nil
}

// IsProcessed reports whether a record for url is stored.
func (r *RecordRepository) IsProcessed(ctx context.Context, url string) (bool, error) {
	db, err := r.db()
	if err != nil {
		return false, err
	}

	query, args, err := psql.Select("1").From(r.table).Where(sq.Eq{"source_url": url}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}

	var one int
	err = db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query processed: %w", err)
	}
	return true, nil
}

func (r *RecordRepository) upsertQuery(record *domain.ValidatedRecord) (string, []any, error) {
	recordJSON, err := json.Marshal(record.Record)
	if err != nil {
		return "", nil, fmt.Errorf("marshal record: %w", err)
	}
	validationJSON, err := json.Marshal(record.Validation)
	if err != nil {
		return "", nil, fmt.Errorf("marshal validation: %w", err)
	}

	query, args, err := psql.Insert(r.table).
		Columns(
			"source_url", "unique_id", "entry_title", "jurisdiction", "document_type",
			"notice_number", "notice_date", "all_correct", "corrected",
			"extraction", "extraction_score", "record", "validation", "validated_at",
		).
		Values(
			record.SourceURL, record.Record.UniqueID, record.EntryTitle, record.Record.Jurisdiction, record.Record.DocumentType,
			record.Record.NoticeNumber, record.Record.NoticeDate, record.Validation.AllCorrect, record.Corrected,
			string(record.Extraction.Method), record.Extraction.Score, string(recordJSON), string(validationJSON), record.ValidatedAt,
		).
		Suffix(`ON CONFLICT (source_url) DO UPDATE SET
            unique_id = EXCLUDED.unique_id,
            entry_title = EXCLUDED.entry_title,
            jurisdiction = EXCLUDED.jurisdiction,
            document_type = EXCLUDED.document_type,
            notice_number = EXCLUDED.notice_number,
            notice_date = EXCLUDED.notice_date,
            all_correct = EXCLUDED.all_correct,
            corrected = EXCLUDED.corrected,
            extraction = EXCLUDED.extraction,
            extraction_score = EXCLUDED.extraction_score,
            record = EXCLUDED.record,
            validation = EXCLUDED.validation,
            validated_at = EXCLUDED.validated_at,
            updated_at = NOW()`).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build upsert: %w", err)
	}
	return query, args, nil
}
