package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedbackbot/internal/model"
)

// --- モック定義 ---

// mockFeedbackService はFeedbackServiceInterfaceのモック実装。
type mockFeedbackService struct {
	readFn    func(ctx context.Context, id int64) (*model.Feedback, error)
	readAllFn func(ctx context.Context) ([]*model.Feedback, error)
	updateFn  func(ctx context.Context, id int64) (*model.Feedback, error)
	upsertFn  func(ctx context.Context, id *int64, in model.FeedbackInput) (*model.Feedback, error)
	deleteFn  func(ctx context.Context, f *model.Feedback) (bool, error)
}

func (m *mockFeedbackService) Read(ctx context.Context, id int64) (*model.Feedback, error) {
	if m.readFn != nil {
		return m.readFn(ctx, id)
	}
	return nil, model.NewNotFoundError(id)
}

func (m *mockFeedbackService) ReadAll(ctx context.Context) ([]*model.Feedback, error) {
	if m.readAllFn != nil {
		return m.readAllFn(ctx)
	}
	return []*model.Feedback{}, nil
}

func (m *mockFeedbackService) Update(ctx context.Context, id int64) (*model.Feedback, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id)
	}
	return nil, model.NewNotFoundError(id)
}

func (m *mockFeedbackService) Upsert(ctx context.Context, id *int64, in model.FeedbackInput) (*model.Feedback, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, id, in)
	}
	return nil, nil
}

func (m *mockFeedbackService) Delete(ctx context.Context, f *model.Feedback) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, f)
	}
	return true, nil
}

// --- テストヘルパー ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// envelope はレスポンスの共通フォーマット。contentは呼び出し側でデコードする。
type envelope struct {
	Code    int             `json:"code"`
	Status  string          `json:"status"`
	Content json.RawMessage `json:"content"`
}

func parseEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if env.Code != w.Code {
		t.Errorf("envelope code = %d, HTTP status = %d", env.Code, w.Code)
	}
	return env
}

func sampleFeedback(id int64) *model.Feedback {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &model.Feedback{
		ID:        id,
		Category:  model.CategoryIdea,
		Content:   "launch a contest",
		Username:  "Ana",
		Nickname:  "ana99",
		Source:    "Telegram",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// --- テスト ---

func TestFeedbackHandler_List(t *testing.T) {
	svc := &mockFeedbackService{
		readAllFn: func(ctx context.Context) ([]*model.Feedback, error) {
			return []*model.Feedback{sampleFeedback(1), sampleFeedback(2)}, nil
		},
	}
	h := NewFeedbackHandler(svc, discardLogger())

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/feedback", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	env := parseEnvelope(t, w)
	if env.Status != "Ok" {
		t.Errorf("status field = %q, want Ok", env.Status)
	}
	var records []model.Feedback
	if err := json.Unmarshal(env.Content, &records); err != nil {
		t.Fatalf("failed to decode content: %v", err)
	}
	if len(records) != 2 || records[0].ID != 1 || records[1].ID != 2 {
		t.Errorf("records = %+v", records)
	}
}

// 0件の場合もnullではなく空配列を返す
func TestFeedbackHandler_List_Empty(t *testing.T) {
	h := NewFeedbackHandler(&mockFeedbackService{}, discardLogger())

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/feedback", nil))

	env := parseEnvelope(t, w)
	if string(env.Content) != "[]" {
		t.Errorf("content = %s, want []", env.Content)
	}
}

func TestFeedbackHandler_List_StorageError(t *testing.T) {
	svc := &mockFeedbackService{
		readAllFn: func(ctx context.Context) ([]*model.Feedback, error) {
			return nil, model.NewStorageError("list", errors.New("connection refused"))
		},
	}
	h := NewFeedbackHandler(svc, discardLogger())

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/feedback", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Error("response should not expose the underlying error")
	}
}

func TestFeedbackHandler_Create(t *testing.T) {
	var gotID *int64
	var gotInput model.FeedbackInput
	svc := &mockFeedbackService{
		upsertFn: func(ctx context.Context, id *int64, in model.FeedbackInput) (*model.Feedback, error) {
			gotID, gotInput = id, in
			f := sampleFeedback(7)
			f.Applied = in.Applied
			return f, nil
		},
	}
	h := NewFeedbackHandler(svc, discardLogger())

	body := `{"category":"idea","content":"launch a contest","username":"Ana","applied":1,"source":"api"}`
	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if gotID != nil {
		t.Errorf("Upsert id = %v, want nil", *gotID)
	}
	want := model.FeedbackInput{Category: "idea", Content: "launch a contest", Username: "Ana", Applied: true, Source: "api"}
	if gotInput != want {
		t.Errorf("Upsert input = %+v, want %+v", gotInput, want)
	}
}

func TestFeedbackHandler_Create_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"category欠落", `{"content":"x"}`, http.StatusBadRequest, model.ErrCodeValidation, "category"},
		{"content欠落", `{"category":"idea"}`, http.StatusBadRequest, model.ErrCodeValidation, "content"},
		{"content空文字", `{"category":"idea","content":""}`, http.StatusBadRequest, model.ErrCodeValidation, "content"},
		{"category長すぎ", `{"category":"` + strings.Repeat("a", 65) + `","content":"x"}`, http.StatusBadRequest, model.ErrCodeValidation, "category"},
		{"不正なJSON", `{"category":`, http.StatusBadRequest, model.ErrCodeMalformedPayload, ""},
		{"空ボディ", ``, http.StatusBadRequest, model.ErrCodeMalformedPayload, "empty body"},
		{"appliedが不正", `{"category":"idea","content":"x","applied":"yes"}`, http.StatusBadRequest, model.ErrCodeMalformedPayload, "applied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockFeedbackService{
				upsertFn: func(ctx context.Context, id *int64, in model.FeedbackInput) (*model.Feedback, error) {
					called = true
					return sampleFeedback(1), nil
				},
			}
			h := NewFeedbackHandler(svc, discardLogger())

			w := httptest.NewRecorder()
			h.Create(w, httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			env := parseEnvelope(t, w)
			if env.Status != tt.wantCode {
				t.Errorf("status field = %q, want %q", env.Status, tt.wantCode)
			}
			if !bytes.Contains(env.Content, []byte(tt.wantMsg)) {
				t.Errorf("content = %s, want mention of %q", env.Content, tt.wantMsg)
			}
			if called {
				t.Error("service should not be called for invalid input")
			}
		})
	}
}

func TestFeedbackHandler_Get(t *testing.T) {
	svc := &mockFeedbackService{
		readFn: func(ctx context.Context, id int64) (*model.Feedback, error) {
			if id != 5 {
				t.Errorf("Read id = %d, want 5", id)
			}
			return sampleFeedback(5), nil
		},
	}
	h := NewFeedbackHandler(svc, discardLogger())

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/feedback/5", nil), "id", "5")
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	env := parseEnvelope(t, w)
	var got model.Feedback
	if err := json.Unmarshal(env.Content, &got); err != nil {
		t.Fatalf("failed to decode content: %v", err)
	}
	if got.ID != 5 || got.Content != "launch a contest" {
		t.Errorf("record = %+v", got)
	}
}

func TestFeedbackHandler_Get_NotFound(t *testing.T) {
	h := NewFeedbackHandler(&mockFeedbackService{}, discardLogger())

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/feedback/99", nil), "id", "99")
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if env := parseEnvelope(t, w); env.Status != model.ErrCodeNotFound {
		t.Errorf("status field = %q, want %q", env.Status, model.ErrCodeNotFound)
	}
}

func TestFeedbackHandler_InvalidID(t *testing.T) {
	h := NewFeedbackHandler(&mockFeedbackService{}, discardLogger())

	for _, raw := range []string{"abc", "0", "-1", ""} {
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/feedback/x", nil), "id", raw)
		w := httptest.NewRecorder()
		h.Get(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("id %q: status = %d, want %d", raw, w.Code, http.StatusBadRequest)
		}
	}
}

func TestFeedbackHandler_Replace(t *testing.T) {
	var gotID int64
	svc := &mockFeedbackService{
		upsertFn: func(ctx context.Context, id *int64, in model.FeedbackInput) (*model.Feedback, error) {
			if id == nil {
				t.Fatal("Upsert id = nil, want 3")
			}
			gotID = *id
			f := sampleFeedback(*id)
			f.Content = in.Content
			return f, nil
		},
	}
	h := NewFeedbackHandler(svc, discardLogger())

	body := `{"category":"idea","content":"updated","applied":false}`
	req := withChiURLParam(httptest.NewRequest(http.MethodPut, "/api/feedback/3", strings.NewReader(body)), "id", "3")
	w := httptest.NewRecorder()
	h.Replace(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if gotID != 3 {
		t.Errorf("Upsert id = %d, want 3", gotID)
	}
}

func TestFeedbackHandler_Replace_NotFound(t *testing.T) {
	svc := &mockFeedbackService{
		upsertFn: func(ctx context.Context, id *int64, in model.FeedbackInput) (*model.Feedback, error) {
			return nil, model.NewNotFoundError(*id)
		},
	}
	h := NewFeedbackHandler(svc, discardLogger())

	body := `{"category":"idea","content":"updated"}`
	req := withChiURLParam(httptest.NewRequest(http.MethodPut, "/api/feedback/3", strings.NewReader(body)), "id", "3")
	w := httptest.NewRecorder()
	h.Replace(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestFeedbackHandler_MarkApplied(t *testing.T) {
	svc := &mockFeedbackService{
		updateFn: func(ctx context.Context, id int64) (*model.Feedback, error) {
			f := sampleFeedback(id)
			f.Applied = true
			return f, nil
		},
	}
	h := NewFeedbackHandler(svc, discardLogger())

	req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/api/feedback/4/applied", nil), "id", "4")
	w := httptest.NewRecorder()
	h.MarkApplied(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	env := parseEnvelope(t, w)
	var got model.Feedback
	if err := json.Unmarshal(env.Content, &got); err != nil {
		t.Fatalf("failed to decode content: %v", err)
	}
	if !got.Applied {
		t.Error("applied = false, want true")
	}
}

func TestFeedbackHandler_Delete(t *testing.T) {
	var deleted *model.Feedback
	svc := &mockFeedbackService{
		readFn: func(ctx context.Context, id int64) (*model.Feedback, error) {
			return sampleFeedback(id), nil
		},
		deleteFn: func(ctx context.Context, f *model.Feedback) (bool, error) {
			deleted = f
			return true, nil
		},
	}
	h := NewFeedbackHandler(svc, discardLogger())

	req := withChiURLParam(httptest.NewRequest(http.MethodDelete, "/api/feedback/8", nil), "id", "8")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if deleted == nil || deleted.ID != 8 {
		t.Errorf("deleted = %+v, want record 8", deleted)
	}
	env := parseEnvelope(t, w)
	var got deleteResponse
	if err := json.Unmarshal(env.Content, &got); err != nil {
		t.Fatalf("failed to decode content: %v", err)
	}
	if got.ID != 8 || !got.Deleted {
		t.Errorf("content = %+v, want {8 true}", got)
	}
}

func TestFeedbackHandler_Delete_NotFound(t *testing.T) {
	deleteCalled := false
	svc := &mockFeedbackService{
		deleteFn: func(ctx context.Context, f *model.Feedback) (bool, error) {
			deleteCalled = true
			return true, nil
		},
	}
	h := NewFeedbackHandler(svc, discardLogger())

	req := withChiURLParam(httptest.NewRequest(http.MethodDelete, "/api/feedback/8", nil), "id", "8")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if deleteCalled {
		t.Error("Delete should not be called when the record is missing")
	}
}

func TestFlagBool_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"false", false, false},
		{"1", true, false},
		{"0", false, false},
		{"null", false, false},
		{"2", false, true},
		{`"true"`, false, true},
	}
	for _, tt := range tests {
		var b flagBool
		err := json.Unmarshal([]byte(tt.in), &b)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && bool(b) != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, b, tt.want)
		}
	}
}
