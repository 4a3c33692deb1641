package postgres

import (
	"context"
	"fmt"
	"strings"

	"example.com/crashview/internal/domain"
)

type Writer struct {
	db *DB
}

func NewWriter(db *DB) *Writer { return &Writer{db: db} }

var upsertCols = []string{"id", "ts_epoch", "message", "signature", "has_snapshot"}

// UpsertBatch writes records keyed by id; a re-indexed crash replaces its row.
func (w *Writer) UpsertBatch(ctx context.Context, items []domain.IndexRecord) (int64, error) {
	sql, args := buildUpsert(items)
	if sql == "" {
		return 0, nil
	}
	ct, err := w.db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert crash_index: %w", err)
	}
	return ct.RowsAffected(), nil
}

// buildUpsert renders one multi-row INSERT. Duplicate ids keep the last
// record, since Postgres rejects a batch that updates the same row twice.
func buildUpsert(items []domain.IndexRecord) (string, []any) {
	if len(items) == 0 {
		return "", nil
	}
	last := make(map[string]int, len(items))
	for i, rec := range items {
		last[rec.ID] = i
	}

	placeholders := make([]string, 0, len(last))
	args := make([]any, 0, len(last)*len(upsertCols))
	argi := 1
	for i, rec := range items {
		if last[rec.ID] != i {
			continue
		}
		ph := make([]string, 0, len(upsertCols))

		args = append(args, rec.ID)
		ph = append(ph, fmt.Sprintf("$%d", argi))
		argi++

		// optionals (NULL when absent)
		if rec.Timestamp == nil {
			args = append(args, nil)
		} else {
			args = append(args, *rec.Timestamp)
		}
		ph = append(ph, fmt.Sprintf("$%d::double precision", argi))
		argi++

		if rec.Message == nil {
			args = append(args, nil)
		} else {
			args = append(args, *rec.Message)
		}
		ph = append(ph, fmt.Sprintf("$%d::text", argi))
		argi++

		args = append(args, rec.Signature)
		ph = append(ph, fmt.Sprintf("$%d", argi))
		argi++

		args = append(args, rec.HasSnapshot)
		ph = append(ph, fmt.Sprintf("$%d", argi))
		argi++

		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sql := "INSERT INTO crash_index (" + strings.Join(upsertCols, ",") + ") VALUES " +
		strings.Join(placeholders, ",") +
		" ON CONFLICT (id) DO UPDATE SET ts_epoch = EXCLUDED.ts_epoch, message = EXCLUDED.message," +
		" signature = EXCLUDED.signature, has_snapshot = EXCLUDED.has_snapshot, indexed_at = now()"
	return sql, args
}
