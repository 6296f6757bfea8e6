// Package feedback はフィードバックレコードの作成・取得・更新・削除の契約を提供する。
package feedback

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/feedbackbot/internal/model"
	"github.com/hitoshi/feedbackbot/internal/repository"
)

// Store はFeedbackRepositoryの上に検証とエラー変換を載せたサービス。
// 検証はI/Oより先に行い、ストアの失敗はStorageError、存在しない行はNotFoundに変換する。
type Store struct {
	repo repository.FeedbackRepository
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(repo repository.FeedbackRepository) *Store {
	return &Store{repo: repo}
}

// Create はフィードバックを即座に挿入する。appliedはfalseで作成される。
func (s *Store) Create(
	ctx context.Context,
	category, reference, content, username, nickname, source string,
) (*model.Feedback, error) {
	f := model.NewFeedback(category, reference, content, username, nickname, source)
	if err := validate(f); err != nil {
		return nil, err
	}

	inserted, err := s.repo.Insert(ctx, f)
	if err != nil {
		return nil, model.NewStorageError("create", err)
	}
	return inserted, nil
}

// Read は指定IDのフィードバックを返す。
func (s *Store) Read(ctx context.Context, id int64) (*model.Feedback, error) {
	f, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewStorageError("read", err)
	}
	if f == nil {
		return nil, model.NewNotFoundError(id)
	}
	return f, nil
}

// ReadAll は全件を挿入順で返す。0件の場合は空スライス。
func (s *Store) ReadAll(ctx context.Context) ([]*model.Feedback, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, model.NewStorageError("read all", err)
	}
	if list == nil {
		list = []*model.Feedback{}
	}
	return list, nil
}

// Update は指定IDのフィードバックを適用済みにし、updated_atを更新する。
// updated_atは既存のcreated_at・updated_atより前に戻らない。
func (s *Store) Update(ctx context.Context, id int64) (*model.Feedback, error) {
	existing, err := s.Read(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.MarkApplied(ctx, id, advance(existing.CreatedAt, existing.UpdatedAt))
	if err != nil {
		return nil, model.NewStorageError("update", err)
	}
	if updated == nil {
		return nil, model.NewNotFoundError(id)
	}
	return updated, nil
}

// Upsert はidがあれば既存行の可変項目を上書きし、無ければ新規に挿入する。
// 更新時もcreated_atは変更しない。挿入時は呼び出し側のappliedを尊重する。
func (s *Store) Upsert(ctx context.Context, id *int64, in model.FeedbackInput) (*model.Feedback, error) {
	f := model.NewFeedback(in.Category, in.Reference, in.Content, in.Username, in.Nickname, in.Source)
	f.Applied = in.Applied
	if err := validate(f); err != nil {
		return nil, err
	}

	if id == nil {
		inserted, err := s.repo.Insert(ctx, f)
		if err != nil {
			return nil, model.NewStorageError("upsert", err)
		}
		return inserted, nil
	}

	existing, err := s.Read(ctx, *id)
	if err != nil {
		return nil, err
	}

	f.ID = *id
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = advance(existing.CreatedAt, existing.UpdatedAt)
	updated, err := s.repo.Update(ctx, f)
	if err != nil {
		return nil, model.NewStorageError("upsert", err)
	}
	if updated == nil {
		return nil, model.NewNotFoundError(*id)
	}
	return updated, nil
}

// Delete は保存済みのフィードバックを削除し、ハンドルのIDを番兵値に戻す。
// 未保存のハンドルに対しては何もせずfalseを返す。
func (s *Store) Delete(ctx context.Context, f *model.Feedback) (bool, error) {
	if !f.IsPersisted() {
		return false, nil
	}

	deleted, err := s.repo.Delete(ctx, f.ID)
	if err != nil {
		return false, model.NewStorageError("delete", err)
	}
	f.ID = model.UnsavedID
	return deleted, nil
}

// Save はハンドルの状態を永続化する。
// 未保存なら挿入してID・タイムスタンプを書き戻す。
// 保存済みなら可変項目を上書きし、updated_atをcreated_atより後へ進める。
func (s *Store) Save(ctx context.Context, f *model.Feedback) error {
	if err := validate(f); err != nil {
		return err
	}

	if !f.IsPersisted() {
		if f.CreatedAt.IsZero() {
			f.CreatedAt = model.Now()
		}
		f.UpdatedAt = f.CreatedAt

		inserted, err := s.repo.Insert(ctx, f)
		if err != nil {
			return model.NewStorageError("save", err)
		}
		*f = *inserted
		return nil
	}

	f.UpdatedAt = advance(f.CreatedAt, f.UpdatedAt)
	updated, err := s.repo.Update(ctx, f)
	if err != nil {
		return model.NewStorageError("save", err)
	}
	if updated == nil {
		return model.NewNotFoundError(f.ID)
	}
	*f = *updated
	return nil
}

// advance は現在時刻を返す。時計の分解能で前回値以下になる場合は1マイクロ秒進める。
func advance(createdAt, previous time.Time) time.Time {
	now := model.Now()
	floor := createdAt
	if previous.After(floor) {
		floor = previous
	}
	if !now.After(floor) {
		now = floor.Add(time.Microsecond)
	}
	return now
}

// validate は必須項目と列幅をI/Oの前に検査する。
func validate(f *model.Feedback) error {
	if strings.TrimSpace(f.Category) == "" {
		return model.NewValidationError("category")
	}
	if strings.TrimSpace(f.Content) == "" {
		return model.NewValidationError("content")
	}

	limits := []struct {
		field string
		value string
		max   int
	}{
		{"category", f.Category, model.MaxCategoryLength},
		{"reference", f.Reference, model.MaxReferenceLength},
		{"username", f.Username, model.MaxNameLength},
		{"nickname", f.Nickname, model.MaxNameLength},
		{"source", f.Source, model.MaxSourceLength},
	}
	for _, l := range limits {
		if utf8.RuneCountInString(l.value) > l.max {
			return model.NewFieldTooLongError(l.field, l.max)
		}
	}
	return nil
}
