package distribution

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/contentieux/contentieux/internal/platform/db"
)

// Repository reads the case snapshot for a period from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repo.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const listCaseRecordsSQL = `SELECT c.reference,
       COALESCE(o.display_name, ''),
       c.amount_owed::text,
       SUM(col.amount)::text
FROM collections col
JOIN cases c ON c.id = col.case_id
LEFT JOIN offenders o ON o.id = c.offender_id
WHERE col.period_label = $1
GROUP BY c.id, c.reference, o.display_name, c.amount_owed
ORDER BY MIN(col.collected_at), c.reference`

const listPeriodsSQL = `SELECT period_label
FROM collections
GROUP BY period_label
ORDER BY MAX(collected_at) DESC
LIMIT $1`

// ListCaseRecords returns one row per case with collections in period.
// Amounts travel as text so no floating point value is ever involved; rows
// whose amounts cannot be read come back with Invalid set.
func (r *Repository) ListCaseRecords(ctx context.Context, period string) ([]CaseRecord, error) {
	var records []CaseRecord
	err := db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, listCaseRecordsSQL, period)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				rec                   CaseRecord
				owedRaw, collectedRaw string
			)
			if err := rows.Scan(&rec.CaseID, &rec.OffenderLabel, &owedRaw, &collectedRaw); err != nil {
				return err
			}
			var owedErr, collectedErr error
			rec.TotalOwed, owedErr = parseNumeric("amount_owed", owedRaw)
			rec.AmountCollected, collectedErr = parseNumeric("collected", collectedRaw)
			if owedErr != nil {
				rec.Invalid = owedErr
			} else if collectedErr != nil {
				rec.Invalid = collectedErr
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("distribution: list case records: %w", err)
	}
	return records, nil
}

// ListPeriods returns the most recent period labels having collections.
func (r *Repository) ListPeriods(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 12
	}
	rows, err := r.pool.Query(ctx, listPeriodsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("distribution: list periods: %w", err)
	}
	periods, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("distribution: list periods: %w", err)
	}
	return periods, nil
}

// parseNumeric never fails the load: a non-finite or unreadable value is
// returned as an ErrInvalidAmount the engine reports against the case.
func parseNumeric(column, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if lower == "nan" || strings.Contains(lower, "infinity") {
		return decimal.Zero, fmt.Errorf("%w: %s is non-finite (%s)", ErrInvalidAmount, column, raw)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q", ErrInvalidAmount, column, raw)
	}
	return d, nil
}
