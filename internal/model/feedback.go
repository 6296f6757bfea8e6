// Package model はドメインモデルを定義する。
package model

import "time"

// UnsavedID は未保存のフィードバックを表す番兵ID。
const UnsavedID int64 = -1

// 代表的なカテゴリ。管理APIからは任意の文字列も受け付ける。
const (
	CategoryIdea     = "idea"
	CategoryQuestion = "pregunta"
	CategoryComment  = "comentario"
)

// 各項目の最大文字数。feedbackテーブルのVARCHAR幅と一致させること。
const (
	MaxCategoryLength  = 64
	MaxReferenceLength = 64
	MaxSourceLength    = 64
	MaxNameLength      = 255
)

// Feedback はユーザーから送られた1件のフィードバック（アイデア・質問・コメント）を表す。
// 任意項目は空文字列で表現し、NULLは使わない。
type Feedback struct {
	ID        int64     `json:"id"`
	Category  string    `json:"category"`
	Reference string    `json:"reference"`
	Content   string    `json:"content"`
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname"`
	Applied   bool      `json:"applied"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFeedback は未保存のFeedbackを生成する。
// IDは番兵値、タイムスタンプは現在時刻で初期化される。永続化にはSaveを使う。
func NewFeedback(category, reference, content, username, nickname, source string) *Feedback {
	now := Now()
	return &Feedback{
		ID:        UnsavedID,
		Category:  category,
		Reference: reference,
		Content:   content,
		Username:  username,
		Nickname:  nickname,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsPersisted はストアが採番したIDを持つかを返す。
func (f *Feedback) IsPersisted() bool {
	return f != nil && f.ID > 0
}

// FeedbackInput は作成・更新時にクライアントが指定できる項目。
type FeedbackInput struct {
	Category  string
	Reference string
	Content   string
	Username  string
	Nickname  string
	Applied   bool
	Source    string
}

// Now はUTCかつマイクロ秒精度に丸めた現在時刻を返す。
// PostgreSQLのtimestamptzと同じ精度に揃え、保存前後で値が変わらないようにする。
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
