// Package index はフィードバックを検索基盤（OpenObserve/Zinc互換の_json API）へ公開するクライアントを提供する。
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/feedbackbot/internal/model"
)

// Client はレコードを1件ずつ取り込みAPIへ送信する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	token      string
}

// NewClient はClientの新しいインスタンスを生成する。
// hostにスキームが無い場合はhttpsとして扱う。
// tokenはBasic認証の資格情報（base64エンコード済み）をそのまま使う。
func NewClient(httpClient *http.Client, host, org, indexName, token string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   Endpoint(host, org, indexName),
		token:      token,
	}
}

// Endpoint は取り込みAPIのURLを組み立てる。
func Endpoint(host, org, indexName string) string {
	base := strings.TrimRight(host, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return fmt.Sprintf("%s/api/%s/%s/_json", base, org, indexName)
}

// Publish はフィードバック1件を配列に包んで送信する。200以外はエラー。
func (c *Client) Publish(ctx context.Context, f *model.Feedback) error {
	body, err := json.Marshal([]*model.Feedback{f})
	if err != nil {
		return fmt.Errorf("failed to encode index record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create index request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Basic "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("index request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("インデックスAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.Int64("feedback_id", f.ID),
		)
		return fmt.Errorf("index API returned status %d", resp.StatusCode)
	}

	return nil
}
