package waitingroom

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

const entryCols = `id, session_id, provider_id, patient_id, queue_position, estimated_wait_minutes,
	camera_ok, microphone_ok, speaker_ok, bandwidth_ok, browser_ok,
	device_check_completed, status, called_at, created_at, updated_at`

func (r *repoPG) InsertWithNextPosition(ctx context.Context, e *WaitingQueueEntry) error {
	e.ID = uuid.New()
	e.Status = StatusWaiting

	// Position assignment happens inside the INSERT so two concurrent
	// enqueues for the same provider cannot read the same MAX.
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO waiting_queue_entry (
			id, session_id, provider_id, patient_id, queue_position, estimated_wait_minutes, status
		)
		SELECT $1, $2, $3, $4,
			COALESCE(MAX(queue_position), 0) + 1,
			(COALESCE(MAX(queue_position), 0) + 1) * $5,
			'waiting'
		FROM waiting_queue_entry
		WHERE provider_id = $3 AND status IN ('waiting','ready','called')
		RETURNING queue_position, estimated_wait_minutes, created_at, updated_at`,
		e.ID, e.SessionID, e.ProviderID, e.PatientID, EstimatedMinutesPerPatient,
	).Scan(&e.QueuePosition, &e.EstimatedWaitMinutes, &e.CreatedAt, &e.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*WaitingQueueEntry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM waiting_queue_entry WHERE id = $1`, id))
}

func (r *repoPG) UpdateDeviceCheck(ctx context.Context, e *WaitingQueueEntry) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE waiting_queue_entry SET
			camera_ok=$2, microphone_ok=$3, speaker_ok=$4, bandwidth_ok=$5, browser_ok=$6,
			device_check_completed=$7, status=$8, updated_at=NOW()
		WHERE id = $1`,
		e.ID, e.CameraOK, e.MicrophoneOK, e.SpeakerOK, e.BandwidthOK, e.BrowserOK,
		e.DeviceCheckCompleted, e.Status,
	)
	return err
}

func (r *repoPG) CallNext(ctx context.Context, providerID uuid.UUID) (*WaitingQueueEntry, error) {
	// FOR UPDATE SKIP LOCKED makes concurrent claims take distinct entries
	// in position order instead of blocking or double-claiming.
	entry, err := scanEntry(r.conn(ctx).QueryRow(ctx, `
		UPDATE waiting_queue_entry
		SET status = 'called', called_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM waiting_queue_entry
			WHERE provider_id = $1 AND status IN ('waiting','ready')
			ORDER BY queue_position
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+entryCols, providerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func (r *repoPG) ListActiveByProvider(ctx context.Context, providerID uuid.UUID) ([]*WaitingQueueEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM waiting_queue_entry
		WHERE provider_id = $1 AND status IN ('waiting','ready','called')
		ORDER BY queue_position`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*WaitingQueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *repoPG) MarkJoinedBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE waiting_queue_entry SET status = 'joined', updated_at = NOW()
		WHERE session_id = $1 AND status IN ('waiting','ready','called')`, sessionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) SetTerminalStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE waiting_queue_entry SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('waiting','ready','called')`, id, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) ActivePositionAhead(ctx context.Context, providerID uuid.UUID, position int) (int, error) {
	var rank int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM waiting_queue_entry
		WHERE provider_id = $1 AND status IN ('waiting','ready','called') AND queue_position <= $2`,
		providerID, position).Scan(&rank)
	return rank, err
}

func scanEntry(row pgx.Row) (*WaitingQueueEntry, error) {
	var e WaitingQueueEntry
	err := row.Scan(
		&e.ID, &e.SessionID, &e.ProviderID, &e.PatientID, &e.QueuePosition, &e.EstimatedWaitMinutes,
		&e.CameraOK, &e.MicrophoneOK, &e.SpeakerOK, &e.BandwidthOK, &e.BrowserOK,
		&e.DeviceCheckCompleted, &e.Status, &e.CalledAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
