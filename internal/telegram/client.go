// Package telegram はTelegram Bot APIへの送信クライアントを提供する。
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxResponseSize はAPIレスポンスとして読み取る最大バイト数。
const maxResponseSize = 1 << 20

// Client はsendMessageを呼び出すクライアント。
// Bot APIの送信上限を超えないようにクライアント側でレートを制限する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	baseURL    string
	token      string
	retryBase  time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
// perSecondが0以下の場合はレート制限を行わない。
func NewClient(httpClient *http.Client, baseURL, token string, perSecond int, logger *slog.Logger) *Client {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		limiter:    rate.NewLimiter(limit, max(perSecond, 1)),
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		retryBase:  defaultRetryBase,
	}
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// SendMessage はchatIDのチャットにHTML形式のテキストを送信する。
// 429・5xx・通信エラーは最大maxAttempts回まで再送する。
// それ以外の失敗（4xx、okがfalse）は再送せずにエラーを返す。
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("failed to encode sendMessage request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram rate limiter: %w", err)
		}

		result, retryAfter, err := c.send(ctx, chatID, body)
		if result != sendResultRetry || attempt+1 >= maxAttempts || ctx.Err() != nil {
			return err
		}

		delay := retryDelay(c.retryBase, attempt, retryAfter)
		c.logger.Warn("sendMessageを再送します",
			slog.Int64("chat_id", chatID),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
		)
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("sendMessage retry aborted: %w", err)
		}
	}
}

// send はsendMessageを1回呼び出し、結果の分類とretry_after（秒）を返す。
func (c *Client) send(ctx context.Context, chatID int64, body []byte) (sendResult, int, error) {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return sendResultStop, 0, fmt.Errorf("failed to create sendMessage request: %w", redact(err, c.token))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// URLにトークンが含まれるためエラー本文はそのまま返さない
		c.logger.Error("Telegram APIの呼び出しに失敗しました",
			slog.Int64("chat_id", chatID),
		)
		return sendResultRetry, 0, fmt.Errorf("sendMessage request failed: %w", redact(err, c.token))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return sendResultRetry, 0, fmt.Errorf("failed to read sendMessage response: %w", err)
	}

	var result apiResponse
	_ = json.Unmarshal(raw, &result)

	outcome := classifyStatus(resp.StatusCode, result.OK)
	if outcome != sendResultOK {
		c.logger.Error("Telegram APIがエラーを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.Int64("chat_id", chatID),
			slog.String("description", result.Description),
		)
		return outcome, result.Parameters.RetryAfter,
			fmt.Errorf("sendMessage returned status %d: %s", resp.StatusCode, result.Description)
	}

	return sendResultOK, 0, nil
}

// redactedError はトークンを伏せたエラー文言を持ちつつ原因をUnwrapできるエラー。
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "***"), err: err}
}
