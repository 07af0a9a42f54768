package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orinctl/strapd/internal/models"
)

// Journal errors.
var (
	ErrInvalidRecord = errors.New("invalid telemetry record")
)

// Journal persists telemetry records append-only.
type Journal struct {
	db *DB
}

// NewJournal creates a journal over the given database.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db}
}

// Query filters journal reads.
type Query struct {
	Kind  *models.EventKind // Filter by event kind
	RunID *string           // Filter by run
	Since *time.Time        // Records at or after this time (inclusive)
	Limit int               // Max results; 0 means no limit
}

// Append writes one record. A missing ID or timestamp is filled in.
func (j *Journal) Append(ctx context.Context, record models.Record) error {
	if record.Kind == "" {
		return ErrInvalidRecord
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	var detail *string
	if len(record.Detail) > 0 {
		s := string(record.Detail)
		detail = &s
	}

	_, err := j.db.conn.ExecContext(ctx, `
		INSERT INTO telemetry_events (
			id, kind, timestamp, run_id, sequence, line, reason, retry_count, queue_depth, detail_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		string(record.Kind),
		record.Timestamp.UTC().Format(time.RFC3339Nano),
		nullable(record.RunID),
		nullable(string(record.Sequence)),
		nullable(string(record.Line)),
		nullable(string(record.Reason)),
		record.RetryCount,
		record.QueueDepth,
		detail,
	)
	if err != nil {
		return fmt.Errorf("append telemetry record: %w", err)
	}
	return nil
}

// List returns records matching the query in chronological order.
func (j *Journal) List(ctx context.Context, query Query) ([]models.Record, error) {
	sqlQuery := `
		SELECT id, kind, timestamp, run_id, sequence, line, reason, retry_count, queue_depth, detail_json
		FROM telemetry_events WHERE 1=1`
	args := []any{}

	if query.Kind != nil {
		sqlQuery += " AND kind = ?"
		args = append(args, string(*query.Kind))
	}
	if query.RunID != nil {
		sqlQuery += " AND run_id = ?"
		args = append(args, *query.RunID)
	}
	if query.Since != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, query.Since.UTC().Format(time.RFC3339Nano))
	}
	sqlQuery += " ORDER BY timestamp ASC, id ASC"
	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := j.db.conn.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query telemetry records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountKind returns the number of records with the given kind.
func (j *Journal) CountKind(ctx context.Context, kind models.EventKind) (int, error) {
	var count int
	err := j.db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM telemetry_events WHERE kind = ?", string(kind),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count telemetry records: %w", err)
	}
	return count, nil
}

func scanRecord(rows *sql.Rows) (models.Record, error) {
	var (
		record    models.Record
		timestamp string
		runID     sql.NullString
		sequence  sql.NullString
		line      sql.NullString
		reason    sql.NullString
		detail    sql.NullString
	)
	err := rows.Scan(
		&record.ID, (*string)(&record.Kind), &timestamp,
		&runID, &sequence, &line, &reason,
		&record.RetryCount, &record.QueueDepth, &detail,
	)
	if err != nil {
		return models.Record{}, fmt.Errorf("scan telemetry record: %w", err)
	}

	record.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return models.Record{}, fmt.Errorf("parse record timestamp: %w", err)
	}
	record.RunID = runID.String
	record.Sequence = models.SequenceKind(sequence.String)
	record.Line = models.LineID(line.String)
	record.Reason = models.ReasonCode(reason.String)
	if detail.Valid {
		record.Detail = []byte(detail.String)
	}
	return record, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
