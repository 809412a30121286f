package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/mockexam-backend/internal/model"
)

const sessionColumns = `s.id, s.student_id, s.template_id, s.start_available_at, s.end_available_at,
	s.status, s.started_at, s.completed_at, s.created_at, s.updated_at`

// ExamSessionRepository handles scheduled exam session data access.
type ExamSessionRepository struct {
	db DBTX
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(db DBTX) *ExamSessionRepository {
	return &ExamSessionRepository{db: db}
}

func sessionDest(s *model.ScheduledExamSession, extra ...any) []any {
	return append([]any{
		&s.ID, &s.StudentID, &s.TemplateID, &s.StartAvailableAt, &s.EndAvailableAt,
		&s.Status, &s.StartedAt, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
	}, extra...)
}

// GetSession retrieves a session by ID.
func (r *ExamSessionRepository) GetSession(ctx context.Context, id uuid.UUID) (*model.ScheduledExamSession, error) {
	s := &model.ScheduledExamSession{}
	err := r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM scheduled_exam_sessions s
		 WHERE s.id = $1`, id,
	).Scan(sessionDest(s)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LockSession retrieves a session with SELECT ... FOR UPDATE.
func (r *ExamSessionRepository) LockSession(ctx context.Context, id uuid.UUID) (*model.ScheduledExamSession, error) {
	s := &model.ScheduledExamSession{}
	err := r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM scheduled_exam_sessions s
		 WHERE s.id = $1
		 FOR UPDATE`, id,
	).Scan(sessionDest(s)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetSessionSummary retrieves a session together with its template title.
func (r *ExamSessionRepository) GetSessionSummary(ctx context.Context, id uuid.UUID) (*model.SessionSummary, error) {
	s := &model.SessionSummary{}
	err := r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+`, t.title
		 FROM scheduled_exam_sessions s
		 JOIN exam_templates t ON t.id = s.template_id
		 WHERE s.id = $1`, id,
	).Scan(sessionDest(&s.ScheduledExamSession, &s.TemplateTitle)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateSession inserts a new SCHEDULED session.
func (r *ExamSessionRepository) CreateSession(ctx context.Context, s *model.ScheduledExamSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.db.QueryRow(ctx,
		`INSERT INTO scheduled_exam_sessions (id, student_id, template_id, start_available_at, end_available_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING status, created_at, updated_at`,
		s.ID, s.StudentID, s.TemplateID, s.StartAvailableAt, s.EndAvailableAt, model.SessionStatusScheduled,
	).Scan(&s.Status, &s.CreatedAt, &s.UpdatedAt)
}

// ListSessionsByStudent returns the student's sessions, soonest window first.
func (r *ExamSessionRepository) ListSessionsByStudent(ctx context.Context, studentID string) ([]model.SessionSummary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+`, t.title
		 FROM scheduled_exam_sessions s
		 JOIN exam_templates t ON t.id = s.template_id
		 WHERE s.student_id = $1
		 ORDER BY s.start_available_at ASC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []model.SessionSummary{}
	for rows.Next() {
		var s model.SessionSummary
		if err := rows.Scan(sessionDest(&s.ScheduledExamSession, &s.TemplateTitle)...); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListSubmissions returns one page of sessions matching the filter, newest
// first, plus the total number of matches.
func (r *ExamSessionRepository) ListSubmissions(ctx context.Context, f model.SubmissionFilter) ([]model.SessionSummary, int, error) {
	baseQuery := `
		FROM scheduled_exam_sessions s
		JOIN exam_templates t ON t.id = s.template_id
		WHERE 1 = 1
	`
	var args []any

	if f.Status != "" {
		args = append(args, f.Status)
		baseQuery += fmt.Sprintf(" AND s.status = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		baseQuery += fmt.Sprintf(" AND (s.student_id ILIKE $%d OR t.title ILIKE $%d)", len(args), len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + sessionColumns + `, t.title ` + baseQuery +
		fmt.Sprintf(" ORDER BY s.created_at DESC, s.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []model.SessionSummary{}
	for rows.Next() {
		var s model.SessionSummary
		if err := rows.Scan(sessionDest(&s.ScheduledExamSession, &s.TemplateTitle)...); err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// CountByStatus counts sessions currently in status.
func (r *ExamSessionRepository) CountByStatus(ctx context.Context, status model.SessionStatus) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM scheduled_exam_sessions WHERE status = $1`, status,
	).Scan(&n)
	return n, err
}

// TransitionStatus performs the conditional status update.
func (r *ExamSessionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.SessionStatus, at time.Time) (bool, error) {
	startedAt, completedAt, err := transitionStamps(from, to, at)
	if err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_exam_sessions
		 SET status = $3,
		     started_at = COALESCE($4, started_at),
		     completed_at = COALESCE($5, completed_at),
		     updated_at = $6
		 WHERE id = $1 AND status = $2`,
		id, from, to, startedAt, completedAt, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListInProgress returns every IN_PROGRESS session with its template's
// section durations. A missing durations document yields nil Durations; an
// unreadable one is reported on DurationsErr rather than failing the scan.
func (r *ExamSessionRepository) ListInProgress(ctx context.Context) ([]model.InProgressSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+`, t.section_durations
		 FROM scheduled_exam_sessions s
		 JOIN exam_templates t ON t.id = s.template_id
		 WHERE s.status = $1
		 ORDER BY s.started_at ASC NULLS FIRST`, model.SessionStatusInProgress,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.InProgressSession
	for rows.Next() {
		var (
			s   model.InProgressSession
			raw []byte
		)
		if err := rows.Scan(sessionDest(&s.Session, &raw)...); err != nil {
			return nil, err
		}
		s.Durations, s.DurationsErr = decodeDurations(raw)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func decodeDurations(raw []byte) (*model.SectionDurations, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var d model.SectionDurations
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode section durations: %w", err)
	}
	return &d, nil
}
