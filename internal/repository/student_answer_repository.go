package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/mockexam-backend/internal/model"
)

// StudentAnswerRepository handles student answer data access.
type StudentAnswerRepository struct {
	db DBTX
}

// NewStudentAnswerRepository creates a new StudentAnswerRepository.
func NewStudentAnswerRepository(db DBTX) *StudentAnswerRepository {
	return &StudentAnswerRepository{db: db}
}

// ReplaceAnswers deletes the session's answers and inserts the new set in one
// batch. Run it inside WithTx so the delete and insert commit together.
func (r *StudentAnswerRepository) ReplaceAnswers(ctx context.Context, sessionID uuid.UUID, answers []model.SubmittedAnswer) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM student_answers WHERE session_id = $1`, sessionID,
	); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}

	answers = dedupeAnswers(answers)
	if len(answers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range answers {
		batch.Queue(
			`INSERT INTO student_answers (id, session_id, question_id, answer)
			 VALUES ($1, $2, $3, $4)`,
			uuid.New(), sessionID, a.QuestionID, a.Answer,
		)
	}
	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for range answers {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
	}
	return nil
}

// ListAnswers returns the session's answers joined with their question's
// section, type, content and answer key, in template order. Answers to
// questions outside the session's template are never returned.
func (r *StudentAnswerRepository) ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.MarkableAnswer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT sa.id, sa.session_id, sa.question_id, sa.answer, sa.is_correct, sa.score, sa.feedback,
		        q.section, q.question_type, q.content, q.answer
		 FROM student_answers sa
		 JOIN scheduled_exam_sessions s ON s.id = sa.session_id
		 JOIN questions q ON q.id = sa.question_id
		 JOIN template_questions tq ON tq.template_id = s.template_id AND tq.question_id = sa.question_id
		 WHERE sa.session_id = $1
		 ORDER BY tq."order" ASC, sa.question_id ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := []model.MarkableAnswer{}
	for rows.Next() {
		var a model.MarkableAnswer
		if err := rows.Scan(
			&a.ID, &a.SessionID, &a.QuestionID, &a.Answer, &a.IsCorrect, &a.Score, &a.Feedback,
			&a.Section, &a.QuestionType, &a.Content, &a.AnswerKey,
		); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// ApplyMarks writes correctness, score and feedback for many answers with a
// single UNNEST update.
func (r *StudentAnswerRepository) ApplyMarks(ctx context.Context, marks []model.AnswerMark) error {
	if len(marks) == 0 {
		return nil
	}

	n := len(marks)
	ids := make([]uuid.UUID, 0, n)
	correct := make([]*bool, 0, n)
	scores := make([]*float64, 0, n)
	feedback := make([]*string, 0, n)
	for _, m := range marks {
		ids = append(ids, m.AnswerID)
		correct = append(correct, m.IsCorrect)
		scores = append(scores, m.Score)
		feedback = append(feedback, m.Feedback)
	}

	_, err := r.db.Exec(ctx, `
		UPDATE student_answers AS sa
		SET is_correct = t.is_correct,
		    score = t.score,
		    feedback = t.feedback,
		    updated_at = NOW()
		FROM UNNEST(
			$1::uuid[],
			$2::bool[],
			$3::float8[],
			$4::text[]
		) AS t (id, is_correct, score, feedback)
		WHERE sa.id = t.id`,
		ids, correct, scores, feedback,
	)
	return err
}
