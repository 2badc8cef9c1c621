package telehealth

import (
	"context"
	"time"

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

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func (r *repoPG) beginner(ctx context.Context) beginner {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const sessionCols = `id, tenant_id, appointment_id, patient_id, provider_id, scheduled_start,
	actual_start, actual_end, status, room_id, room_url, host_token,
	recording_enabled, recording_url, waiting_room_enabled, duration_minutes,
	technical_issues_count, created_at, updated_at`

const participantCols = `id, session_id, participant_type, participant_id, name, email,
	join_token, joined_at, left_at, created_at`

func (r *repoPG) CreateSessionGraph(ctx context.Context, sess *Session, participants []*Participant, notes *VisitNotes) error {
	sess.ID = uuid.New()
	notes.SessionID = sess.ID

	return pgx.BeginFunc(ctx, r.beginner(ctx), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO telehealth_session (
				id, tenant_id, appointment_id, patient_id, provider_id, scheduled_start,
				status, room_id, room_url, host_token, recording_enabled, waiting_room_enabled
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			sess.ID, sess.TenantID, sess.AppointmentID, sess.PatientID, sess.ProviderID,
			sess.ScheduledStart, sess.Status, sess.RoomID, sess.RoomURL, sess.HostToken,
			sess.RecordingEnabled, sess.WaitingRoomEnabled,
		)
		if err != nil {
			return err
		}

		for _, p := range participants {
			p.ID = uuid.New()
			p.SessionID = sess.ID
			if err := insertParticipant(ctx, tx, p); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO visit_notes (session_id, family_member_names, tech_issues)
			VALUES ($1, '{}', '{}')`, sess.ID)
		return err
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM telehealth_session WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, sess *Session) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE telehealth_session SET
			actual_start=$2, actual_end=$3, status=$4, recording_url=$5,
			duration_minutes=$6, updated_at=NOW()
		WHERE id = $1`,
		sess.ID, sess.ActualStart, sess.ActualEnd, sess.Status, sess.RecordingURL,
		sess.DurationMinutes,
	)
	return err
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE telehealth_session SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	return err
}

func (r *repoPG) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Session, int, error) {
	return r.list(ctx, `provider_id`, providerID, limit, offset)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Session, int, error) {
	return r.list(ctx, `patient_id`, patientID, limit, offset)
}

func (r *repoPG) list(ctx context.Context, col string, id uuid.UUID, limit, offset int) ([]*Session, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM telehealth_session WHERE `+col+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+sessionCols+` FROM telehealth_session WHERE `+col+` = $1
		 ORDER BY scheduled_start DESC LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, s)
	}
	return sessions, total, nil
}

func (r *repoPG) IncrementTechnicalIssues(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE telehealth_session
		SET technical_issues_count = technical_issues_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING technical_issues_count`, id).Scan(&count)
	return count, err
}

func (r *repoPG) InsertParticipant(ctx context.Context, p *Participant) error {
	p.ID = uuid.New()
	return insertParticipant(ctx, r.conn(ctx), p)
}

func insertParticipant(ctx context.Context, q querier, p *Participant) error {
	_, err := q.Exec(ctx, `
		INSERT INTO session_participant (
			id, session_id, participant_type, participant_id, name, email, join_token, joined_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.SessionID, p.ParticipantType, p.ParticipantID, p.Name, p.Email,
		p.JoinToken, p.JoinedAt,
	)
	return err
}

func (r *repoPG) FindParticipant(ctx context.Context, sessionID, participantID uuid.UUID, participantType string) (*Participant, error) {
	p, err := scanParticipant(r.conn(ctx).QueryRow(ctx, `
		SELECT `+participantCols+` FROM session_participant
		WHERE session_id = $1 AND participant_id = $2 AND participant_type = $3`,
		sessionID, participantID, participantType))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *repoPG) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+participantCols+` FROM session_participant
		WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []*Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func (r *repoPG) CountActiveParticipants(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM session_participant WHERE session_id = $1 AND left_at IS NULL`,
		sessionID).Scan(&count)
	return count, err
}

func (r *repoPG) StampJoined(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE session_participant SET joined_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *repoPG) MarkParticipantLeft(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE session_participant SET left_at = COALESCE(left_at, $2) WHERE id = $1`, id, at)
	return err
}

func (r *repoPG) MarkAllParticipantsLeft(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE session_participant SET left_at = $2 WHERE session_id = $1 AND left_at IS NULL`,
		sessionID, at)
	return err
}

func (r *repoPG) GetNotes(ctx context.Context, sessionID uuid.UUID) (*VisitNotes, error) {
	var n VisitNotes
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT session_id, consent_verified, interpreter_used, interpreter_language,
			family_member_present, family_member_names, tech_issues,
			follow_up_required, follow_up_notes, updated_at
		FROM visit_notes WHERE session_id = $1`, sessionID).Scan(
		&n.SessionID, &n.ConsentVerified, &n.InterpreterUsed, &n.InterpreterLanguage,
		&n.FamilyMemberPresent, &n.FamilyMemberNames, &n.TechIssues,
		&n.FollowUpRequired, &n.FollowUpNotes, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repoPG) UpdateNotes(ctx context.Context, notes *VisitNotes) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit_notes SET
			consent_verified=$2, interpreter_used=$3, interpreter_language=$4,
			family_member_present=$5, follow_up_required=$6, follow_up_notes=$7,
			updated_at=NOW()
		WHERE session_id = $1`,
		notes.SessionID, notes.ConsentVerified, notes.InterpreterUsed, notes.InterpreterLanguage,
		notes.FamilyMemberPresent, notes.FollowUpRequired, notes.FollowUpNotes,
	)
	return err
}

func (r *repoPG) SetInterpreter(ctx context.Context, sessionID uuid.UUID, language string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit_notes SET interpreter_used = TRUE, interpreter_language = $2, updated_at = NOW()
		WHERE session_id = $1`, sessionID, language)
	return err
}

func (r *repoPG) AddFamilyMember(ctx context.Context, sessionID uuid.UUID, name string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit_notes SET
			family_member_present = TRUE,
			family_member_names = array_append(family_member_names, $2),
			updated_at = NOW()
		WHERE session_id = $1`, sessionID, name)
	return err
}

func (r *repoPG) AppendTechIssue(ctx context.Context, sessionID uuid.UUID, description string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit_notes SET tech_issues = array_append(tech_issues, $2), updated_at = NOW()
		WHERE session_id = $1`, sessionID, description)
	return err
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.TenantID, &s.AppointmentID, &s.PatientID, &s.ProviderID, &s.ScheduledStart,
		&s.ActualStart, &s.ActualEnd, &s.Status, &s.RoomID, &s.RoomURL, &s.HostToken,
		&s.RecordingEnabled, &s.RecordingURL, &s.WaitingRoomEnabled, &s.DurationMinutes,
		&s.TechnicalIssuesCount, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanParticipant(row pgx.Row) (*Participant, error) {
	var p Participant
	err := row.Scan(
		&p.ID, &p.SessionID, &p.ParticipantType, &p.ParticipantID, &p.Name, &p.Email,
		&p.JoinToken, &p.JoinedAt, &p.LeftAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
