package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"rxvc/internal/credential/models"
	"rxvc/internal/fraud"
	"rxvc/pkg/platform/sentinel"
	txcontext "rxvc/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists credential records in the credentials table. The
// single-dispensing rule is enforced by a partial unique index.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, type, issuer, subject, reference_id, status, fraud_score, document, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, record models.Record) error {
	document, err := json.Marshal(record.Credential)
	if err != nil {
		return fmt.Errorf("marshal credential document: %w", err)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO credentials (
			id, type, issuer, subject, reference_id, status, suite,
			fraud_score, document, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		record.ID,
		string(record.Type),
		record.Issuer,
		record.Subject,
		nullString(record.Reference),
		string(record.Status),
		string(record.Suite()),
		nullInt(record.FraudScore),
		document,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("save credential %s: %w", record.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (models.Record, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM credentials WHERE id = $1`, id)
	return scanRecord(row, "find credential by id")
}

func (s *PostgresStore) FindDispensing(ctx context.Context, prescriptionID string) (models.Record, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM credentials
		 WHERE type = $1 AND reference_id = $2 AND status <> $3`,
		string(models.TypeDispensing), prescriptionID, string(models.StatusRevoked))
	return scanRecord(row, "find dispensing credential")
}

func (s *PostgresStore) FindConfirmation(ctx context.Context, dispensingID string) (models.Record, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM credentials WHERE type = $1 AND reference_id = $2`,
		string(models.TypeConfirmation), dispensingID)
	return scanRecord(row, "find confirmation credential")
}

// UpdateStatus applies the transition in a single conditional update so
// concurrent writers cannot skip the state machine.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, next models.Status) (models.Record, error) {
	from := make([]string, 0, len(models.Statuses))
	for _, st := range models.Predecessors(next) {
		from = append(from, string(st))
	}

	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		UPDATE credentials SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+recordColumns,
		id, string(next), time.Now().UTC(), pq.Array(from))
	record, err := scanRecord(row, "update credential status")
	if !errors.Is(err, sentinel.ErrNotFound) {
		return record, err
	}

	if _, findErr := s.FindByID(ctx, id); findErr != nil {
		return models.Record{}, findErr
	}
	return models.Record{}, fmt.Errorf("credential %s cannot move to %s: %w", id, next, sentinel.ErrInvalidState)
}

func (s *PostgresStore) Statistics(ctx context.Context) (models.Statistics, error) {
	stats := models.NewStatistics()

	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT type, status, count(*) FROM credentials GROUP BY type, status`)
	if err != nil {
		return stats, fmt.Errorf("count credentials: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var credType, status string
		var n int
		if err := rows.Scan(&credType, &status, &n); err != nil {
			return stats, fmt.Errorf("scan credential counts: %w", err)
		}
		stats.CredentialsByType[models.CredentialType(credType)] += n
		if models.CredentialType(credType) == models.TypePrescription {
			stats.PrescriptionsByState[models.Status(status)] += n
		}
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate credential counts: %w", err)
	}

	scoreRows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT fraud_score FROM credentials WHERE type = ANY($1) AND fraud_score IS NOT NULL`,
		pq.Array([]string{string(models.TypeDispensing)}))
	if err != nil {
		return stats, fmt.Errorf("load dispensing scores: %w", err)
	}
	defer scoreRows.Close()
	for scoreRows.Next() {
		var score int
		if err := scoreRows.Scan(&score); err != nil {
			return stats, fmt.Errorf("scan dispensing score: %w", err)
		}
		stats.DispensingRiskBands[fraud.BandFor(score).String()]++
	}
	if err := scoreRows.Err(); err != nil {
		return stats, fmt.Errorf("iterate dispensing scores: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, op string) (models.Record, error) {
	var (
		record     models.Record
		credType   string
		status     string
		reference  sql.NullString
		fraudScore sql.NullInt64
		document   []byte
	)
	err := row.Scan(
		&record.ID,
		&credType,
		&record.Issuer,
		&record.Subject,
		&reference,
		&status,
		&fraudScore,
		&document,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Record{}, sentinel.ErrNotFound
		}
		return models.Record{}, fmt.Errorf("%s: %w", op, err)
	}

	record.Type = models.CredentialType(credType)
	record.Status, err = models.ParseStatus(status)
	if err != nil {
		return models.Record{}, fmt.Errorf("%s: %w", op, err)
	}
	record.Reference = reference.String
	if fraudScore.Valid {
		score := int(fraudScore.Int64)
		record.FraudScore = &score
	}
	if err := json.Unmarshal(document, &record.Credential); err != nil {
		return models.Record{}, fmt.Errorf("%s: unmarshal credential document: %w", op, err)
	}
	return record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
