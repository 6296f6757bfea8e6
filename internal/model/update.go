package model

// Update はTelegramのWebhookで届く更新を表す。
// 上流はこのシステムの管理外のため、すべてのフィールドを任意として扱う。
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message はチャットメッセージを表す。
type Message struct {
	Text *string `json:"text,omitempty"`
	From *Sender `json:"from,omitempty"`
	Chat *Chat   `json:"chat,omitempty"`
}

// Sender はメッセージの送信者を表す。
type Sender struct {
	FirstName *string `json:"first_name,omitempty"`
	Username  *string `json:"username,omitempty"`
}

// Chat はメッセージが送られたチャットを表す。
type Chat struct {
	ID *int64 `json:"id,omitempty"`
}

// 以下のアクセサはnilレシーバでも安全に呼べる。

// GetMessage はメッセージを返す。存在しない場合はfalse。
func (u *Update) GetMessage() (*Message, bool) {
	if u == nil || u.Message == nil {
		return nil, false
	}
	return u.Message, true
}

// GetText はメッセージ本文を返す。
func (m *Message) GetText() (string, bool) {
	if m == nil || m.Text == nil {
		return "", false
	}
	return *m.Text, true
}

// GetFrom は送信者を返す。
func (m *Message) GetFrom() (*Sender, bool) {
	if m == nil || m.From == nil {
		return nil, false
	}
	return m.From, true
}

// GetChat はチャットを返す。
func (m *Message) GetChat() (*Chat, bool) {
	if m == nil || m.Chat == nil {
		return nil, false
	}
	return m.Chat, true
}

// GetFirstName は表示名を返す。
func (s *Sender) GetFirstName() (string, bool) {
	if s == nil || s.FirstName == nil {
		return "", false
	}
	return *s.FirstName, true
}

// GetUsername はハンドル名を返す。
func (s *Sender) GetUsername() (string, bool) {
	if s == nil || s.Username == nil {
		return "", false
	}
	return *s.Username, true
}

// GetID はチャットIDを返す。
func (c *Chat) GetID() (int64, bool) {
	if c == nil || c.ID == nil {
		return 0, false
	}
	return *c.ID, true
}
