package postgres

import (
	"context"
	"fmt"
)

type StatsTotals struct {
	Count        int64 `json:"count"`
	Signatures   int64 `json:"unique_signatures"`
	WithSnapshot int64 `json:"with_snapshot"`
}

type StatsBucket struct {
	BucketStart int64 `json:"bucket_start"`
	Count       int64 `json:"count"`
	Signatures  int64 `json:"unique_signatures"`
}

// statsFilter renders the WHERE clause shared by the stats queries.
// signature is optional (nil or empty string means "no filter").
func statsFilter(signature *string, from, to int64) (string, []any) {
	cond := "WHERE ts_epoch >= $1 AND ts_epoch <= $2"
	args := []any{from, to}
	if signature != nil && *signature != "" {
		cond += " AND signature=$3"
		args = append(args, *signature)
	}
	return cond, args
}

func (db *DB) QueryTotals(ctx context.Context, signature *string, from, to int64) (StatsTotals, error) {
	var res StatsTotals
	cond, args := statsFilter(signature, from, to)

	sql := "SELECT COUNT(*)::bigint, COUNT(DISTINCT signature)::bigint, COUNT(*) FILTER (WHERE has_snapshot)::bigint FROM crash_index " + cond
	row := db.Pool.QueryRow(ctx, sql, args...)
	if err := row.Scan(&res.Count, &res.Signatures, &res.WithSnapshot); err != nil {
		return res, fmt.Errorf("scan totals: %w", err)
	}
	return res, nil
}

func (db *DB) QueryBucketsDaily(ctx context.Context, signature *string, from, to int64) ([]StatsBucket, error) {
	cond, args := statsFilter(signature, from, to)

	sql := fmt.Sprintf(`
SELECT
  EXTRACT(EPOCH FROM date_trunc('day', to_timestamp(ts_epoch)))::bigint AS bucket_start,
  COUNT(*)::bigint AS cnt,
  COUNT(DISTINCT signature)::bigint AS uniq
FROM crash_index
%s
GROUP BY 1
ORDER BY 1 ASC`, cond)

	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query buckets: %w", err)
	}
	defer rows.Close()

	var out []StatsBucket
	for rows.Next() {
		var b StatsBucket
		if err := rows.Scan(&b.BucketStart, &b.Count, &b.Signatures); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
