package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/mockexam-backend/internal/model"
)

// TemplateRepository reads exam templates and their ordered questions.
type TemplateRepository struct {
	db DBTX
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db DBTX) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetTemplate loads a template with its questions in template order.
func (r *TemplateRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*model.ExamTemplate, error) {
	t := &model.ExamTemplate{}
	var durations []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, title, description, audio_files, section_durations
		 FROM exam_templates
		 WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.Description, &t.AudioFiles, &durations)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.SectionDurations, err = decodeDurations(durations); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT q.id, tq."order", q.section, q.question_type, q.content, q.answer
		 FROM template_questions tq
		 JOIN questions q ON q.id = tq.question_id
		 WHERE tq.template_id = $1
		 ORDER BY tq."order" ASC, q.id ASC`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t.Questions = []model.TemplateQuestion{}
	for rows.Next() {
		var q model.TemplateQuestion
		if err := rows.Scan(&q.QuestionID, &q.Order, &q.Section, &q.QuestionType, &q.Content, &q.AnswerKey); err != nil {
			return nil, err
		}
		t.Questions = append(t.Questions, q)
	}
	return t, rows.Err()
}

// GetSectionDurations returns the template's durations, or nil when the
// template has none recorded.
func (r *TemplateRepository) GetSectionDurations(ctx context.Context, templateID uuid.UUID) (*model.SectionDurations, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT section_durations FROM exam_templates WHERE id = $1`, templateID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDurations(raw)
}

// InsertTemplate writes a template with its questions. Question IDs and the
// template ID are generated when nil. It is used by the seeding tool; the
// exam flow never writes templates.
func (r *TemplateRepository) InsertTemplate(ctx context.Context, t *model.ExamTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	var durations []byte
	if t.SectionDurations != nil {
		var err error
		if durations, err = json.Marshal(t.SectionDurations); err != nil {
			return err
		}
	}
	audio := t.AudioFiles
	if len(audio) == 0 {
		audio = json.RawMessage(`{}`)
	}
	if _, err := r.db.Exec(ctx,
		`INSERT INTO exam_templates (id, title, description, audio_files, section_durations)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Title, t.Description, audio, durations,
	); err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range t.Questions {
		q := &t.Questions[i]
		if q.QuestionID == uuid.Nil {
			q.QuestionID = uuid.New()
		}
		content := q.Content
		if len(content) == 0 {
			content = json.RawMessage(`{}`)
		}
		batch.Queue(
			`INSERT INTO questions (id, section, question_type, content, answer)
			 VALUES ($1, $2, $3, $4, $5)`,
			q.QuestionID, q.Section, q.QuestionType, content, q.AnswerKey,
		)
		batch.Queue(
			`INSERT INTO template_questions (template_id, question_id, "order")
			 VALUES ($1, $2, $3)`,
			t.ID, q.QuestionID, q.Order,
		)
	}
	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return nil
}
