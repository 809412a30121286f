package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgQueries struct {
	*ExamSessionRepository
	*TemplateRepository
	*StudentAnswerRepository
}

func newPGQueries(db DBTX) *pgQueries {
	return &pgQueries{
		ExamSessionRepository:   NewExamSessionRepository(db),
		TemplateRepository:      NewTemplateRepository(db),
		StudentAnswerRepository: NewStudentAnswerRepository(db),
	}
}

// PostgresStore is the Store backed by a pgx connection pool.
type PostgresStore struct {
	*pgQueries
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgQueries: newPGQueries(pool), pool: pool}
}

// WithTx runs fn in a READ COMMITTED transaction. The conditional status
// update takes a row lock, so a concurrent writer on the same session blocks
// until this transaction ends and then sees the committed status.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(newPGQueries(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
