package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/feedbackbot/internal/model"
)

// PostgresFeedbackRepo はPostgreSQLを使用したフィードバックリポジトリ。
type PostgresFeedbackRepo struct {
	db *sql.DB
}

// NewPostgresFeedbackRepo はPostgresFeedbackRepoを生成する。
func NewPostgresFeedbackRepo(db *sql.DB) *PostgresFeedbackRepo {
	return &PostgresFeedbackRepo{db: db}
}

// Insert は新しい行を挿入し、採番されたIDを含む行を返す。
func (r *PostgresFeedbackRepo) Insert(ctx context.Context, f *model.Feedback) (*model.Feedback, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO feedback (category, reference, content, username, nickname,
		                       applied, source, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+feedbackColumns,
		f.Category, f.Reference, f.Content, f.Username, f.Nickname,
		f.Applied, f.Source, f.CreatedAt, f.UpdatedAt,
	)

	inserted, err := scanPostgresFeedback(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return inserted, nil
}

// FindByID は指定IDのフィードバックを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedbackRepo) FindByID(ctx context.Context, id int64) (*model.Feedback, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE id = $1`,
		id,
	)

	f, err := scanPostgresFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find feedback %d: %w", id, err)
	}
	return f, nil
}

// List は全件をID昇順で返す。
func (r *PostgresFeedbackRepo) List(ctx context.Context) ([]*model.Feedback, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feedbackColumns+` FROM feedback ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	feedback := make([]*model.Feedback, 0)
	for rows.Next() {
		f, err := scanPostgresFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read feedback row: %w", err)
		}
		feedback = append(feedback, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback rows: %w", err)
	}

	return feedback, nil
}

// Update は可変項目とupdated_atを上書きする。対象行が存在しない場合はnilを返す。
func (r *PostgresFeedbackRepo) Update(ctx context.Context, f *model.Feedback) (*model.Feedback, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE feedback SET
		    category = $2, reference = $3, content = $4,
		    username = $5, nickname = $6, applied = $7,
		    source = $8, updated_at = $9
		 WHERE id = $1
		 RETURNING `+feedbackColumns,
		f.ID, f.Category, f.Reference, f.Content,
		f.Username, f.Nickname, f.Applied,
		f.Source, f.UpdatedAt,
	)

	updated, err := scanPostgresFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update feedback %d: %w", f.ID, err)
	}
	return updated, nil
}

// MarkApplied はappliedをtrueにする。対象行が存在しない場合はnilを返す。
func (r *PostgresFeedbackRepo) MarkApplied(ctx context.Context, id int64, updatedAt time.Time) (*model.Feedback, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE feedback SET applied = true, updated_at = $2
		 WHERE id = $1
		 RETURNING `+feedbackColumns,
		id, updatedAt,
	)

	updated, err := scanPostgresFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark feedback %d as applied: %w", id, err)
	}
	return updated, nil
}

// Delete は指定IDの行を削除する。
func (r *PostgresFeedbackRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM feedback WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete feedback %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// scanPostgresFeedback は1行をmodel.Feedbackに読み込む。
func scanPostgresFeedback(s rowScanner) (*model.Feedback, error) {
	f := &model.Feedback{}
	if err := s.Scan(
		&f.ID, &f.Category, &f.Reference, &f.Content,
		&f.Username, &f.Nickname, &f.Applied, &f.Source,
		&f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}

	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return f, nil
}

// compile-time interface check
var _ FeedbackRepository = (*PostgresFeedbackRepo)(nil)
