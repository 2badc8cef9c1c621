package settings

import (
	"context"

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

const settingsCols = `provider_id, waiting_room_enabled, auto_record, max_duration_minutes,
	auto_end_warning_minutes, screen_share_enabled, photo_capture_enabled,
	multi_participant_enabled, max_participants, created_at, updated_at`

func (r *repoPG) GetOrCreate(ctx context.Context, providerID uuid.UUID) (*ProviderSettings, error) {
	def := DefaultSettings(providerID)

	// ON CONFLICT DO NOTHING keeps concurrent first reads from racing; the
	// re-read below always returns the one persisted row.
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO provider_settings (
			provider_id, waiting_room_enabled, auto_record, max_duration_minutes,
			auto_end_warning_minutes, screen_share_enabled, photo_capture_enabled,
			multi_participant_enabled, max_participants
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (provider_id) DO NOTHING`,
		def.ProviderID, def.WaitingRoomEnabled, def.AutoRecord, def.MaxDurationMinutes,
		def.AutoEndWarningMinutes, def.ScreenShareEnabled, def.PhotoCaptureEnabled,
		def.MultiParticipant, def.MaxParticipants,
	)
	if err != nil {
		return nil, err
	}

	var s ProviderSettings
	err = r.conn(ctx).QueryRow(ctx,
		`SELECT `+settingsCols+` FROM provider_settings WHERE provider_id = $1`, providerID).Scan(
		&s.ProviderID, &s.WaitingRoomEnabled, &s.AutoRecord, &s.MaxDurationMinutes,
		&s.AutoEndWarningMinutes, &s.ScreenShareEnabled, &s.PhotoCaptureEnabled,
		&s.MultiParticipant, &s.MaxParticipants, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Update(ctx context.Context, s *ProviderSettings) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE provider_settings SET
			waiting_room_enabled=$2, auto_record=$3, max_duration_minutes=$4,
			auto_end_warning_minutes=$5, screen_share_enabled=$6, photo_capture_enabled=$7,
			multi_participant_enabled=$8, max_participants=$9, updated_at=NOW()
		WHERE provider_id = $1`,
		s.ProviderID, s.WaitingRoomEnabled, s.AutoRecord, s.MaxDurationMinutes,
		s.AutoEndWarningMinutes, s.ScreenShareEnabled, s.PhotoCaptureEnabled,
		s.MultiParticipant, s.MaxParticipants,
	)
	return err
}
