package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/feedbackbot/internal/middleware"
	"github.com/hitoshi/feedbackbot/internal/model"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 20

// FeedbackServiceInterface は管理APIが必要とするサービスインターフェース。
// feedback.Storeが満たす。
type FeedbackServiceInterface interface {
	Read(ctx context.Context, id int64) (*model.Feedback, error)
	ReadAll(ctx context.Context) ([]*model.Feedback, error)
	Update(ctx context.Context, id int64) (*model.Feedback, error)
	Upsert(ctx context.Context, id *int64, in model.FeedbackInput) (*model.Feedback, error)
	Delete(ctx context.Context, f *model.Feedback) (bool, error)
}

// FeedbackHandler はフィードバックの管理API。
type FeedbackHandler struct {
	service  FeedbackServiceInterface
	validate *validator.Validate
	logger   *slog.Logger
}

// NewFeedbackHandler はFeedbackHandlerを生成する。
func NewFeedbackHandler(service FeedbackServiceInterface, logger *slog.Logger) *FeedbackHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	// エラーメッセージにはJSONのフィールド名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &FeedbackHandler{service: service, validate: v, logger: logger}
}

// feedbackRequest は作成・更新リクエストのボディ。
type feedbackRequest struct {
	Category  string   `json:"category" validate:"required,max=64"`
	Content   string   `json:"content" validate:"required"`
	Reference string   `json:"reference" validate:"max=64"`
	Username  string   `json:"username" validate:"max=255"`
	Nickname  string   `json:"nickname" validate:"max=255"`
	Applied   flagBool `json:"applied"`
	Source    string   `json:"source" validate:"max=64"`
}

func (req feedbackRequest) toInput() model.FeedbackInput {
	return model.FeedbackInput{
		Category:  req.Category,
		Reference: req.Reference,
		Content:   req.Content,
		Username:  req.Username,
		Nickname:  req.Nickname,
		Applied:   bool(req.Applied),
		Source:    req.Source,
	}
}

// flagBool は true/false と 0/1 の両方を受け付ける真偽値。
type flagBool bool

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (b *flagBool) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*b = true
	case "false", "0", "null":
		*b = false
	default:
		return fmt.Errorf("applied must be a boolean or 0/1, got %s", data)
	}
	return nil
}

// deleteResponse は削除成功時のcontent。
type deleteResponse struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

// List はフィードバックを全件返す。
// GET /api/feedback
func (h *FeedbackHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ReadAll(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, records)
}

// Create はフィードバックを新規作成する。
// POST /api/feedback
func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, apiErr := h.decode(w, r)
	if apiErr != nil {
		middleware.WriteError(w, apiErr)
		return
	}

	f, err := h.service.Upsert(r.Context(), nil, req.toInput())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, f)
}

// Get はフィードバックを1件返す。
// GET /api/feedback/{id}
func (h *FeedbackHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, apiErr := feedbackID(r)
	if apiErr != nil {
		middleware.WriteError(w, apiErr)
		return
	}

	f, err := h.service.Read(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, f)
}

// Replace はフィードバックの可変項目を更新する。created_atは変わらない。
// PUT /api/feedback/{id}
func (h *FeedbackHandler) Replace(w http.ResponseWriter, r *http.Request) {
	id, apiErr := feedbackID(r)
	if apiErr != nil {
		middleware.WriteError(w, apiErr)
		return
	}
	req, apiErr := h.decode(w, r)
	if apiErr != nil {
		middleware.WriteError(w, apiErr)
		return
	}

	f, err := h.service.Upsert(r.Context(), &id, req.toInput())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, f)
}

// MarkApplied はフィードバックを対応済みにする。
// POST /api/feedback/{id}/applied
func (h *FeedbackHandler) MarkApplied(w http.ResponseWriter, r *http.Request) {
	id, apiErr := feedbackID(r)
	if apiErr != nil {
		middleware.WriteError(w, apiErr)
		return
	}

	f, err := h.service.Update(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, f)
}

// Delete はフィードバックを削除する。
// DELETE /api/feedback/{id}
func (h *FeedbackHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, apiErr := feedbackID(r)
	if apiErr != nil {
		middleware.WriteError(w, apiErr)
		return
	}

	f, err := h.service.Read(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	deleted, err := h.service.Delete(r.Context(), f)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, deleteResponse{ID: id, Deleted: deleted})
}

// decode はボディを解析し、必須項目を検証する。
func (h *FeedbackHandler) decode(w http.ResponseWriter, r *http.Request) (*feedbackRequest, *model.APIError) {
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return nil, model.NewValidationError(fe.Field())
			}
			return nil, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()),
			}
		}
		return nil, model.NewMalformedPayloadError(err.Error())
	}
	return &req, nil
}

// decodeJSON はボディをvへデコードする。空ボディや不正なJSONはMALFORMED_PAYLOAD。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) *model.APIError {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewMalformedPayloadError("empty body")
		}
		return model.NewMalformedPayloadError(err.Error())
	}
	return nil
}

// feedbackID はURLの{id}を正の整数として解釈する。
func feedbackID(r *http.Request) (int64, *model.APIError) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &model.APIError{
			Code:    model.ErrCodeValidation,
			Message: fmt.Sprintf("invalid feedback id %q", raw),
		}
	}
	return id, nil
}
