package handler

import (
	"context"

	"github.com/hitoshi/feedbackbot/internal/ingest"
	"github.com/hitoshi/feedbackbot/internal/model"
)

// OrchestratorAdapter は ingest.Orchestrator を UpdateProcessor に適合させるアダプタ。
type OrchestratorAdapter struct {
	orch *ingest.Orchestrator
}

// NewOrchestratorAdapter はOrchestratorAdapterを生成する。
func NewOrchestratorAdapter(orch *ingest.Orchestrator) *OrchestratorAdapter {
	return &OrchestratorAdapter{orch: orch}
}

// Process は更新を処理し、結果をhandlerレスポンス型で返す。
func (a *OrchestratorAdapter) Process(ctx context.Context, update *model.Update) (*webhookResponse, error) {
	result, err := a.orch.Handle(ctx, update)
	if err != nil {
		return nil, err
	}
	return toWebhookResponse(result), nil
}

// toWebhookResponse はingest.Resultをhandlerのレスポンス型に変換する。
func toWebhookResponse(result ingest.Result) *webhookResponse {
	ids := make([]int64, len(result.Stored))
	for i, f := range result.Stored {
		ids[i] = f.ID
	}
	return &webhookResponse{
		Stored:   ids,
		Prompted: result.Prompted,
		Failed:   result.Failed,
		Help:     result.Help,
	}
}
