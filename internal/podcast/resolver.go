// Package podcast はコメントの参照番号からエピソード名を引く。
package podcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/singleflight"
)

// defaultMaxBodySize はRSSフィードとして読み取る最大バイト数。
const defaultMaxBodySize = 5 << 20

// titleNumberPattern はitunes:episodeが無いフィードで、タイトルから番号を拾う。
// 例: "#42 Título", "Episodio 42: Título", "Ep. 42 - Título", "42. Título"
var titleNumberPattern = regexp.MustCompile(`(?i)^\s*(?:#|ep(?:isodio|isode)?\.?\s*)?(\d+)\b`)

// Resolver はRSSフィードを取得し、エピソード番号とタイトルの対応をTTLの間キャッシュする。
type Resolver struct {
	httpClient  *http.Client
	logger      *slog.Logger
	feedURL     string
	ttl         time.Duration
	maxBodySize int64
	now         func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	titles    map[int]string
	fetchedAt time.Time
}

// NewResolver はResolverの新しいインスタンスを生成する。
// httpClientにはsecurity.URLGuardが生成するクライアントを渡す。
func NewResolver(httpClient *http.Client, feedURL string, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		httpClient:  httpClient,
		logger:      logger,
		feedURL:     feedURL,
		ttl:         ttl,
		maxBodySize: defaultMaxBodySize,
		now:         time.Now,
	}
}

// EpisodeTitle は参照番号に対応するエピソード名を返す。
// 番号として解釈できない、またはフィードに存在しない場合はfalseを返す。
func (r *Resolver) EpisodeTitle(ctx context.Context, reference string) (string, bool, error) {
	number, err := strconv.Atoi(strings.TrimSpace(reference))
	if err != nil || number < 0 {
		return "", false, nil
	}

	titles, err := r.catalog(ctx)
	if err != nil {
		return "", false, err
	}
	title, ok := titles[number]
	return title, ok, nil
}

// catalog はキャッシュが有効ならそれを返し、期限切れなら取り直す。
// 同時に期限切れを検出した呼び出しは1回の取得を共有する。
func (r *Resolver) catalog(ctx context.Context) (map[int]string, error) {
	r.mu.RLock()
	titles, fetchedAt := r.titles, r.fetchedAt
	r.mu.RUnlock()

	if titles != nil && r.now().Sub(fetchedAt) < r.ttl {
		return titles, nil
	}

	v, err, _ := r.group.Do("feed", func() (any, error) {
		fresh, err := r.fetch(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.titles = fresh
		r.fetchedAt = r.now()
		r.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		if titles != nil {
			// 取得に失敗しても古いキャッシュで応答する
			r.logger.Warn("ポッドキャストフィードの再取得に失敗したため古い一覧を使用します",
				slog.String("feed_url", r.feedURL),
				slog.String("error", err.Error()),
			)
			return titles, nil
		}
		return nil, err
	}
	return v.(map[int]string), nil
}

func (r *Resolver) fetch(ctx context.Context) (map[int]string, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("User-Agent", "feedbackbot/1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, r.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	titles := episodeTitles(parsed.Items)

	r.logger.Info("ポッドキャストフィードを取得しました",
		slog.String("feed_url", r.feedURL),
		slog.Int("episodes", len(titles)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return titles, nil
}

// episodeTitles はitunes:episode、無ければタイトル先頭の番号でエピソードを索引する。
// 同じ番号が複数ある場合はフィード上で先に現れたもの（通常は最新）を採用する。
func episodeTitles(items []*gofeed.Item) map[int]string {
	titles := make(map[int]string, len(items))
	for _, item := range items {
		if item == nil || item.Title == "" {
			continue
		}

		number, ok := episodeNumber(item)
		if !ok {
			continue
		}
		if _, exists := titles[number]; !exists {
			titles[number] = strings.TrimSpace(item.Title)
		}
	}
	return titles
}

func episodeNumber(item *gofeed.Item) (int, bool) {
	if item.ITunesExt != nil && item.ITunesExt.Episode != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(item.ITunesExt.Episode)); err == nil {
			return n, true
		}
	}

	m := titleNumberPattern.FindStringSubmatch(item.Title)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
