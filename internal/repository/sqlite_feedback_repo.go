package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/feedbackbot/internal/model"
)

// sqliteTimeLayout はSQLiteのTEXT列に保存するタイムスタンプの書式。
const sqliteTimeLayout = time.RFC3339Nano

// SQLiteFeedbackRepo はSQLiteを使用したフィードバックリポジトリ。
// 単一ノード運用と、永続化の振る舞いをテストで実行するために使う。
type SQLiteFeedbackRepo struct {
	db *sql.DB
}

// NewSQLiteFeedbackRepo はSQLiteFeedbackRepoを生成する。
// スキーマの作成はdatabase.EnsureSQLiteSchemaで事前に行うこと。
func NewSQLiteFeedbackRepo(db *sql.DB) *SQLiteFeedbackRepo {
	return &SQLiteFeedbackRepo{db: db}
}

// Insert は新しい行を挿入し、採番されたIDを含む行を返す。
func (r *SQLiteFeedbackRepo) Insert(ctx context.Context, f *model.Feedback) (*model.Feedback, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO feedback (category, reference, content, username, nickname,
		                       applied, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+feedbackColumns,
		f.Category, f.Reference, f.Content, f.Username, f.Nickname,
		f.Applied, f.Source, formatSQLiteTime(f.CreatedAt), formatSQLiteTime(f.UpdatedAt),
	)

	inserted, err := scanSQLiteFeedback(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return inserted, nil
}

// FindByID は指定IDのフィードバックを取得する。見つからない場合はnilを返す。
func (r *SQLiteFeedbackRepo) FindByID(ctx context.Context, id int64) (*model.Feedback, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`,
		id,
	)

	f, err := scanSQLiteFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find feedback %d: %w", id, err)
	}
	return f, nil
}

// List は全件をID昇順で返す。
func (r *SQLiteFeedbackRepo) List(ctx context.Context) ([]*model.Feedback, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feedbackColumns+` FROM feedback ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	feedback := make([]*model.Feedback, 0)
	for rows.Next() {
		f, err := scanSQLiteFeedback(rows)
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
func (r *SQLiteFeedbackRepo) Update(ctx context.Context, f *model.Feedback) (*model.Feedback, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE feedback SET
		    category = ?, reference = ?, content = ?,
		    username = ?, nickname = ?, applied = ?,
		    source = ?, updated_at = ?
		 WHERE id = ?
		 RETURNING `+feedbackColumns,
		f.Category, f.Reference, f.Content,
		f.Username, f.Nickname, f.Applied,
		f.Source, formatSQLiteTime(f.UpdatedAt),
		f.ID,
	)

	updated, err := scanSQLiteFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update feedback %d: %w", f.ID, err)
	}
	return updated, nil
}

// MarkApplied はappliedを1にする。対象行が存在しない場合はnilを返す。
func (r *SQLiteFeedbackRepo) MarkApplied(ctx context.Context, id int64, updatedAt time.Time) (*model.Feedback, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE feedback SET applied = 1, updated_at = ?
		 WHERE id = ?
		 RETURNING `+feedbackColumns,
		formatSQLiteTime(updatedAt), id,
	)

	updated, err := scanSQLiteFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark feedback %d as applied: %w", id, err)
	}
	return updated, nil
}

// Delete は指定IDの行を削除する。
func (r *SQLiteFeedbackRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM feedback WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete feedback %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// scanSQLiteFeedback は1行をmodel.Feedbackに読み込む。
// タイムスタンプはTEXT列から解析する。
func scanSQLiteFeedback(s rowScanner) (*model.Feedback, error) {
	f := &model.Feedback{}
	var createdAt, updatedAt string
	if err := s.Scan(
		&f.ID, &f.Category, &f.Reference, &f.Content,
		&f.Username, &f.Nickname, &f.Applied, &f.Source,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if f.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if f.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	return f, nil
}

// formatSQLiteTime はタイムスタンプをUTCのRFC3339形式に変換する。
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// compile-time interface check
var _ FeedbackRepository = (*SQLiteFeedbackRepo)(nil)
