package sqlite

import (
	"context"
	"strings"
	"time"

	vibevoice "github.com/vibevoice/vibevoice/internal"
)

// InsertUsage batch-inserts usage records.
func (s *Store) InsertUsage(ctx context.Context, records []vibevoice.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	// cols must match the number of columns in the INSERT below.
	// Single multi-row INSERT avoids N round-trips for large batches.
	const cols = 10
	placeholders := make([]string, len(records))
	args := make([]any, 0, len(records)*cols)

	for i, r := range records {
		placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			r.ID, r.ClientID, r.Voice, r.Language,
			r.TextChars, boolToInt(r.Cached), r.LatencyMs, r.StatusCode,
			r.RequestID, r.CreatedAt.UTC().Format(time.RFC3339),
		)
	}

	query := `INSERT INTO usage_records
		(id, client_id, voice, language, text_chars, cached, latency_ms, status_code, request_id, created_at)
		VALUES ` + strings.Join(placeholders, ", ")

	_, err := s.write.ExecContext(ctx, query, args...)
	return err
}

// QueryUsage returns usage records matching the filter, newest first.
func (s *Store) QueryUsage(ctx context.Context, f vibevoice.UsageFilter) ([]vibevoice.UsageRecord, error) {
	where, args := usageWhere(f)
	query := `SELECT id, client_id, voice, language, text_chars, cached, latency_ms, status_code, request_id, created_at
		FROM usage_records` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vibevoice.UsageRecord
	for rows.Next() {
		var r vibevoice.UsageRecord
		var cached int
		var createdAt string
		err := rows.Scan(
			&r.ID, &r.ClientID, &r.Voice, &r.Language,
			&r.TextChars, &cached, &r.LatencyMs, &r.StatusCode,
			&r.RequestID, &createdAt,
		)
		if err != nil {
			return nil, err
		}
		r.Cached = cached != 0
		if t, e := time.Parse(time.RFC3339, createdAt); e == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountUsage returns the count of usage records matching the filter.
func (s *Store) CountUsage(ctx context.Context, f vibevoice.UsageFilter) (int, error) {
	where, args := usageWhere(f)
	var n int
	err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_records`+where, args...,
	).Scan(&n)
	return n, err
}

// PruneUsage deletes records older than the RFC3339 cutoff and reports how
// many were removed.
func (s *Store) PruneUsage(ctx context.Context, before string) (int64, error) {
	res, err := s.write.ExecContext(ctx,
		`DELETE FROM usage_records WHERE created_at < ?`, before,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func usageWhere(f vibevoice.UsageFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.Voice != "" {
		clauses = append(clauses, "voice = ?")
		args = append(args, f.Voice)
	}
	if f.Language != "" {
		clauses = append(clauses, "language = ?")
		args = append(args, f.Language)
	}
	if f.Since != "" {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.Since)
	}
	if f.Until != "" {
		clauses = append(clauses, "created_at < ?")
		args = append(args, f.Until)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
