// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/feedbackbot/internal/model"
)

// FeedbackRepository はフィードバックの永続化インターフェース。
// 各メソッドは単一のSQL文で完結し、複数レコードにまたがるトランザクションは持たない。
// スキーマは000003以降の形（reference・source・boolean applied）のみを前提とする。
type FeedbackRepository interface {
	// Insert は新しい行を挿入し、ストアが採番したIDを含む行を返す。
	Insert(ctx context.Context, f *model.Feedback) (*model.Feedback, error)

	// FindByID は指定IDのフィードバックを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Feedback, error)

	// List は全件をID昇順（挿入順）で返す。0件の場合は空スライスを返す。
	List(ctx context.Context) ([]*model.Feedback, error)

	// Update は可変項目とupdated_atを上書きする。created_atは変更しない。
	// 対象行が存在しない場合はnilを返す。
	Update(ctx context.Context, f *model.Feedback) (*model.Feedback, error)

	// MarkApplied はappliedをtrueにしupdated_atを更新する。
	// 対象行が存在しない場合はnilを返す。
	MarkApplied(ctx context.Context, id int64, updatedAt time.Time) (*model.Feedback, error)

	// Delete は指定IDの行を削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, id int64) (bool, error)
}

// feedbackColumns はSELECT/RETURNINGで使う列の並び。scan関数の引数順と一致させること。
const feedbackColumns = `id, category, reference, content, username, nickname, applied, source, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}
