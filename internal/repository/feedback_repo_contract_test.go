package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/feedbackbot/internal/model"
)

// repoFactory は空のfeedbackテーブルを持つリポジトリを生成する。
type repoFactory func(t *testing.T) FeedbackRepository

// runFeedbackRepoContract は全バックエンドが満たすべき振る舞いを検証する。
func runFeedbackRepoContract(t *testing.T, newRepo repoFactory) {
	cases := []struct {
		name string
		run  func(t *testing.T, repo FeedbackRepository)
	}{
		{"InsertAndFind", testInsertAndFind},
		{"FindByID_NotFound", testFindByIDNotFound},
		{"List_OrderAndEmpty", testListOrderAndEmpty},
		{"Update_KeepsCreatedAt", testUpdateKeepsCreatedAt},
		{"Update_Missing", testUpdateMissing},
		{"MarkApplied", testMarkApplied},
		{"Delete", testDelete},
		{"Insert_RejectsEmptyContent", testInsertRejectsEmptyContent},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			c.run(t, newRepo(t))
		})
	}
}

func testInsertAndFind(t *testing.T, repo FeedbackRepository) {
	ctx := context.Background()

	f := model.NewFeedback("idea", "", "launch a contest", "Ana", "ana99", "Telegram")
	inserted, err := repo.Insert(ctx, f)
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if inserted.ID <= 0 {
		t.Fatalf("inserted.ID = %d, want positive", inserted.ID)
	}

	found, err := repo.FindByID(ctx, inserted.ID)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if found == nil {
		t.Fatal("FindByID returned nil")
	}
	if found.Category != "idea" || found.Content != "launch a contest" ||
		found.Username != "Ana" || found.Nickname != "ana99" || found.Source != "Telegram" {
		t.Errorf("found = %+v", found)
	}
	if !found.CreatedAt.Equal(f.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", found.CreatedAt, f.CreatedAt)
	}
	if found.Applied {
		t.Error("Applied = true, want false")
	}
}

func testFindByIDNotFound(t *testing.T, repo FeedbackRepository) {

	found, err := repo.FindByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if found != nil {
		t.Errorf("FindByID(999) = %+v, want nil", found)
	}
}

func testListOrderAndEmpty(t *testing.T, repo FeedbackRepository) {
	ctx := context.Background()

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("List on empty store = %v, want empty non-nil slice", list)
	}

	for _, content := range []string{"first", "second", "third"} {
		if _, err := repo.Insert(ctx, model.NewFeedback("idea", "", content, "", "", "")); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	}

	list, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len(List) = %d, want 3", len(list))
	}
	for i, want := range []string{"first", "second", "third"} {
		if list[i].Content != want {
			t.Errorf("list[%d].Content = %q, want %q", i, list[i].Content, want)
		}
	}
}

func testUpdateKeepsCreatedAt(t *testing.T, repo FeedbackRepository) {
	ctx := context.Background()

	inserted, err := repo.Insert(ctx, model.NewFeedback("pregunta", "", "¿cuándo?", "", "", ""))
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	changed := *inserted
	changed.Content = "¿cuándo sale?"
	changed.CreatedAt = inserted.CreatedAt.Add(-24 * time.Hour) // 無視されるべき
	changed.UpdatedAt = inserted.UpdatedAt.Add(time.Second)

	updated, err := repo.Update(ctx, &changed)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated == nil {
		t.Fatal("Update returned nil")
	}
	if updated.Content != "¿cuándo sale?" {
		t.Errorf("Content = %q, want %q", updated.Content, "¿cuándo sale?")
	}
	if !updated.CreatedAt.Equal(inserted.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", updated.CreatedAt, inserted.CreatedAt)
	}
	if !updated.UpdatedAt.Equal(changed.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, changed.UpdatedAt)
	}
}

func testUpdateMissing(t *testing.T, repo FeedbackRepository) {

	f := model.NewFeedback("idea", "", "x", "", "", "")
	f.ID = 42
	updated, err := repo.Update(context.Background(), f)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated != nil {
		t.Errorf("Update(missing) = %+v, want nil", updated)
	}
}

func testMarkApplied(t *testing.T, repo FeedbackRepository) {
	ctx := context.Background()

	inserted, err := repo.Insert(ctx, model.NewFeedback("idea", "", "x", "", "", ""))
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	at := inserted.UpdatedAt.Add(time.Minute)
	updated, err := repo.MarkApplied(ctx, inserted.ID, at)
	if err != nil {
		t.Fatalf("MarkApplied error: %v", err)
	}
	if !updated.Applied {
		t.Error("Applied = false, want true")
	}
	if !updated.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, at)
	}

	missing, err := repo.MarkApplied(ctx, inserted.ID+100, at)
	if err != nil {
		t.Fatalf("MarkApplied(missing) error: %v", err)
	}
	if missing != nil {
		t.Errorf("MarkApplied(missing) = %+v, want nil", missing)
	}
}

func testDelete(t *testing.T, repo FeedbackRepository) {
	ctx := context.Background()

	inserted, err := repo.Insert(ctx, model.NewFeedback("idea", "", "x", "", "", ""))
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	deleted, err := repo.Delete(ctx, inserted.ID)
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if !deleted {
		t.Error("Delete = false, want true")
	}

	deleted, err = repo.Delete(ctx, inserted.ID)
	if err != nil {
		t.Fatalf("second Delete error: %v", err)
	}
	if deleted {
		t.Error("second Delete = true, want false")
	}
}

// 空のcategory/contentはCHECK制約で拒否される
func testInsertRejectsEmptyContent(t *testing.T, repo FeedbackRepository) {

	_, err := repo.Insert(context.Background(), model.NewFeedback("idea", "", "", "", "", ""))
	if err == nil {
		t.Fatal("Insert with empty content should fail")
	}
}
