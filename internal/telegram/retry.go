package telegram

import (
	"context"
	"net/http"
	"time"
)

// sendResult はHTTPステータスに基づく送信結果の分類。
type sendResult int

const (
	// sendResultOK は送信成功（200かつok=true）。
	sendResultOK sendResult = iota
	// sendResultStop は再送しても結果が変わらない失敗（4xx、ok=false）。
	sendResultStop
	// sendResultRetry は時間をおいて再送する失敗（429/5xx、通信エラー）。
	sendResultRetry
)

const (
	// maxAttempts は1メッセージあたりの最大送信回数。
	maxAttempts = 3
	// defaultRetryBase は指数バックオフの初回遅延。
	defaultRetryBase = 200 * time.Millisecond
	// maxRetryDelay はバックオフおよびretry_afterの上限。
	maxRetryDelay = 5 * time.Second
)

// classifyStatus はHTTPステータスコードとokフラグを送信結果に分類する。
func classifyStatus(statusCode int, ok bool) sendResult {
	switch {
	case statusCode == http.StatusOK && ok:
		return sendResultOK
	case statusCode == http.StatusTooManyRequests:
		return sendResultRetry
	case statusCode >= 500:
		return sendResultRetry
	default:
		return sendResultStop
	}
}

// retryDelay は次の送信までの待ち時間を返す。
// サーバーがretry_afterを指定した場合はそれを優先し、無ければbaseから2倍ずつ増やす。
// どちらもmaxRetryDelayで打ち切る。
func retryDelay(base time.Duration, attempt int, retryAfterSeconds int) time.Duration {
	if retryAfterSeconds > 0 {
		return min(time.Duration(retryAfterSeconds)*time.Second, maxRetryDelay)
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// sleep はdだけ待つ。ctxが先に終了した場合はそのエラーを返す。
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
