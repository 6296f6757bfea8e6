// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// Errには原因となった下位のエラーを保持する（レスポンスには含めない）。
type APIError struct {
	Code    string // エラーコード
	Message string // 利用者向けメッセージ
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeStorage          = "STORAGE_ERROR"
	ErrCodeMalformedPayload = "MALFORMED_PAYLOAD"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnavailable      = "UNAVAILABLE"
)

// NewValidationError は必須項目の欠落・空値エラーを生成する。
func NewValidationError(field string) *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("%s is required and must not be empty", field),
	}
}

// NewFieldTooLongError は項目が列の上限文字数を超える場合のエラーを生成する。
func NewFieldTooLongError(field string, max int) *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("%s must be at most %d characters", field, max),
	}
}

// NewNotFoundError は指定IDのフィードバックが存在しない場合のエラーを生成する。
func NewNotFoundError(id int64) *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("feedback %d not found", id),
	}
}

// NewStorageError はストアのI/O失敗を表すエラーを生成する。
func NewStorageError(op string, err error) *APIError {
	return &APIError{
		Code:    ErrCodeStorage,
		Message: fmt.Sprintf("storage failure during %s", op),
		Err:     err,
	}
}

// NewMalformedPayloadError は入力JSONを解釈できない場合のエラーを生成する。
func NewMalformedPayloadError(reason string) *APIError {
	return &APIError{
		Code:    ErrCodeMalformedPayload,
		Message: fmt.Sprintf("malformed payload: %s", reason),
	}
}

// NewUnavailableError は依存先（データベース等）に到達できない場合のエラーを生成する。
func NewUnavailableError(dependency string, err error) *APIError {
	return &APIError{
		Code:    ErrCodeUnavailable,
		Message: fmt.Sprintf("%s is unavailable", dependency),
		Err:     err,
	}
}

// HasCode はerrのチェーンに指定コードのAPIErrorが含まれるかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// IsNotFound はNotFoundエラーかを返す。
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// IsValidation はValidationErrorかを返す。
func IsValidation(err error) bool {
	return HasCode(err, ErrCodeValidation)
}
