package consent

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/carebridge/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const consentCols = `id, patient_id, consent_type, consent_given, method, origin,
	recorded_by, expires_at, revoked_at, created_at`

func (r *repoPG) Create(ctx context.Context, rec *ConsentRecord) error {
	rec.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consent_record (
			id, patient_id, consent_type, consent_given, method, origin, recorded_by, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.PatientID, rec.ConsentType, rec.ConsentGiven, rec.Method,
		rec.Origin, rec.RecordedBy, rec.ExpiresAt,
	)
	return err
}

func (r *repoPG) Latest(ctx context.Context, patientID uuid.UUID, consentType string) (*ConsentRecord, error) {
	rec, err := scanConsent(r.conn(ctx).QueryRow(ctx, `
		SELECT `+consentCols+` FROM consent_record
		WHERE patient_id = $1 AND consent_type = $2
		ORDER BY created_at DESC LIMIT 1`, patientID, consentType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *repoPG) Revoke(ctx context.Context, patientID uuid.UUID, consentType string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consent_record SET revoked_at = NOW()
		WHERE id = (
			SELECT id FROM consent_record
			WHERE patient_id = $1 AND consent_type = $2 AND revoked_at IS NULL
			ORDER BY created_at DESC LIMIT 1
		)`, patientID, consentType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*ConsentRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+consentCols+` FROM consent_record
		WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*ConsentRecord
	for rows.Next() {
		rec, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func scanConsent(row pgx.Row) (*ConsentRecord, error) {
	var rec ConsentRecord
	err := row.Scan(
		&rec.ID, &rec.PatientID, &rec.ConsentType, &rec.ConsentGiven, &rec.Method,
		&rec.Origin, &rec.RecordedBy, &rec.ExpiresAt, &rec.RevokedAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
