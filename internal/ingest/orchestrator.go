// Package ingest はWebhookで受け取ったメッセージを分類・保存し、返信とインデックス公開を行う。
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/feedbackbot/internal/command"
	"github.com/hitoshi/feedbackbot/internal/config"
	"github.com/hitoshi/feedbackbot/internal/metrics"
	"github.com/hitoshi/feedbackbot/internal/model"
)

// FeedbackCreator はフィードバックの保存先。feedback.Storeが満たす。
type FeedbackCreator interface {
	Create(ctx context.Context, category, reference, content, username, nickname, source string) (*model.Feedback, error)
}

// Notifier はチャットへの返信を送る。telegram.Clientが満たす。
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Indexer は保存済みのレコードを検索基盤へ公開する。index.Clientが満たす。
type Indexer interface {
	Publish(ctx context.Context, f *model.Feedback) error
}

// EpisodeResolver はコメントの参照番号からエピソード名を引く。podcast.Resolverが満たす。
type EpisodeResolver interface {
	EpisodeTitle(ctx context.Context, reference string) (string, bool, error)
}

// Deps はOrchestratorの依存。IndexerとEpisodesはnilでよい。
type Deps struct {
	Parser   *command.Parser
	Keys     config.CommandKeys
	Replies  *Replies
	Store    FeedbackCreator
	Notifier Notifier
	Indexer  Indexer
	Episodes EpisodeResolver
	Metrics  metrics.MetricsCollector
	Logger   *slog.Logger
	Source   string
	// EmptyContentPolicy はconfig.EmptyContentIgnore または config.EmptyContentPrompt。
	EmptyContentPolicy string
	OutboundTimeout    time.Duration
}

// Orchestrator は1件のUpdateを処理する。状態は持たず、並行に呼び出してよい。
type Orchestrator struct {
	deps Deps
}

// NewOrchestrator はOrchestratorを生成する。
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NopCollector{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.OutboundTimeout <= 0 {
		deps.OutboundTimeout = 10 * time.Second
	}
	return &Orchestrator{deps: deps}
}

// Result は1件のUpdateを処理した結果。
type Result struct {
	Stored   []*model.Feedback
	Prompted int
	Failed   int
	Help     bool
}

// intent はメッセージから取り出した1件の分類結果。
type intent struct {
	category  string
	key       string
	reply     string
	reference string
	content   string
}

// Handle はUpdateを分類し、各意図を保存してから返信とインデックス公開を行う。
// 保存に失敗した意図があっても残りの意図は処理を続ける。
// エラーを返すのは1件も保存できず、ストアの失敗があった場合のみ。
// 検証エラーの意図は破棄してFailedに数える。返信・公開の失敗はログとメトリクスに記録する。
func (o *Orchestrator) Handle(ctx context.Context, update *model.Update) (Result, error) {
	var result Result

	msg, ok := update.GetMessage()
	if !ok {
		return result, nil
	}

	chatID, hasChat := command.ExtractChatID(msg)
	name, handle := command.ExtractIdentity(msg)

	if o.deps.Parser.IsCommand(o.deps.Keys.Help, msg) {
		result.Help = true
		o.reply(ctx, chatID, hasChat, replyHelp, replyData{Name: name})
		return result, nil
	}

	var storeErr error
	for _, in := range o.classify(msg) {
		if in.content == "" {
			if o.deps.EmptyContentPolicy == config.EmptyContentPrompt {
				result.Prompted++
				o.reply(ctx, chatID, hasChat, replyEmpty, replyData{Name: name, Command: in.key})
			}
			continue
		}

		stored, err := o.deps.Store.Create(ctx, in.category, in.reference, in.content, name, handle, o.deps.Source)
		if err != nil {
			result.Failed++
			if model.IsValidation(err) {
				o.deps.Logger.Warn("検証エラーのためフィードバックを破棄しました",
					slog.String("category", in.category),
					slog.String("error", err.Error()),
				)
				continue
			}
			o.deps.Metrics.RecordStoreFailure("create")
			o.deps.Logger.Error("フィードバックの保存に失敗しました",
				slog.String("category", in.category),
				slog.String("error", err.Error()),
			)
			if storeErr == nil {
				storeErr = err
			}
			continue
		}

		o.deps.Metrics.RecordFeedbackStored(stored.Category)
		o.deps.Logger.Info("フィードバックを保存しました",
			slog.Int64("feedback_id", stored.ID),
			slog.String("category", stored.Category),
			slog.String("source", stored.Source),
		)
		result.Stored = append(result.Stored, stored)

		o.afterStore(ctx, stored, in, chatID, hasChat, name)
	}

	// 1件でも保存済みなら再送で重複するため、エラーは返さない
	if storeErr != nil && len(result.Stored) == 0 {
		return result, storeErr
	}
	if storeErr != nil {
		o.deps.Logger.Warn("一部のフィードバックのみ保存しました",
			slog.Int("stored", len(result.Stored)),
			slog.Int("failed", result.Failed),
		)
	}
	return result, nil
}

// classify はカテゴリごとにコマンドを照合する。
// slash文法では高々1件、hashtag文法では複数件になり得る。
func (o *Orchestrator) classify(msg *model.Message) []intent {
	var intents []intent
	keys := o.deps.Keys

	if content, ok := o.deps.Parser.MatchCommand(keys.Idea, msg); ok {
		intents = append(intents, intent{
			category: model.CategoryIdea, key: keys.Idea, reply: replyIdea, content: content,
		})
	}
	if content, ok := o.deps.Parser.MatchCommand(keys.Question, msg); ok {
		intents = append(intents, intent{
			category: model.CategoryQuestion, key: keys.Question, reply: replyQuestion, content: content,
		})
	}
	if c, ok := o.deps.Parser.MatchComment(keys.Comment, msg); ok {
		intents = append(intents, intent{
			category: model.CategoryComment, key: keys.Comment, reply: replyComment,
			reference: c.Reference, content: c.Content,
		})
	}

	return intents
}

// afterStore は返信とインデックス公開を並行に実行し、両方の完了を待つ。
// リクエストのキャンセルとは切り離し、OutboundTimeoutで打ち切る。
func (o *Orchestrator) afterStore(ctx context.Context, f *model.Feedback, in intent, chatID int64, hasChat bool, name string) {
	outCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.deps.OutboundTimeout)
	defer cancel()

	var g errgroup.Group

	if hasChat {
		g.Go(func() error {
			data := replyData{Name: name, ID: f.ID, Content: f.Content, Reference: f.Reference}
			tmpl := in.reply
			if in.category == model.CategoryComment && f.Reference != "" {
				if title, ok := o.episodeTitle(outCtx, f.Reference); ok {
					data.Episode = title
					tmpl = replyCommentEpisode
				}
			}
			o.send(outCtx, chatID, tmpl, data)
			return nil
		})
	}

	if o.deps.Indexer != nil {
		g.Go(func() error {
			if err := o.deps.Indexer.Publish(outCtx, f); err != nil {
				o.deps.Metrics.RecordIndexFailure()
				o.deps.Logger.Warn("インデックスへの公開に失敗しました",
					slog.Int64("feedback_id", f.ID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}

	_ = g.Wait()
}

func (o *Orchestrator) episodeTitle(ctx context.Context, reference string) (string, bool) {
	if o.deps.Episodes == nil {
		return "", false
	}
	title, ok, err := o.deps.Episodes.EpisodeTitle(ctx, reference)
	if err != nil {
		o.deps.Logger.Warn("エピソード名の取得に失敗しました",
			slog.String("reference", reference),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	return title, ok
}

// reply は保存を伴わない返信（ヘルプ・本文の催促）を送る。
func (o *Orchestrator) reply(ctx context.Context, chatID int64, hasChat bool, tmpl string, data replyData) {
	if !hasChat {
		return
	}
	outCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.deps.OutboundTimeout)
	defer cancel()
	o.send(outCtx, chatID, tmpl, data)
}

func (o *Orchestrator) send(ctx context.Context, chatID int64, tmpl string, data replyData) {
	text, err := o.deps.Replies.render(tmpl, data)
	if err == nil {
		err = o.deps.Notifier.SendMessage(ctx, chatID, text)
	}
	if err != nil {
		o.deps.Metrics.RecordNotifyFailure()
		o.deps.Logger.Warn("返信の送信に失敗しました",
			slog.Int64("chat_id", chatID),
			slog.String("template", tmpl),
			slog.String("error", err.Error()),
		)
	}
}

// PrefixFor は文法に対応するコマンドの接頭辞を返す。ヘルプ文の表示に使う。
func PrefixFor(g command.Grammar) string {
	if g == command.GrammarHashtag {
		return "#"
	}
	return "/"
}

// String はResultをログ向けに要約する。
func (r Result) String() string {
	return fmt.Sprintf("stored=%d prompted=%d failed=%d help=%t", len(r.Stored), r.Prompted, r.Failed, r.Help)
}
