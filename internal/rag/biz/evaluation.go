package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/internal/pkg/rag/evaluator"
	"github.com/kart-io/bhasha/internal/rag/metrics"
	"github.com/kart-io/bhasha/internal/rag/store"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/pool"
)

// evaluationTimeout 后台评估的最长耗时。
const evaluationTimeout = 2 * time.Minute

// EvaluationService 计算并持久化回答质量评估与用户反馈。
type EvaluationService struct {
	store      store.Factory
	evaluator  *evaluator.Evaluator
	background *pool.Pool
	metrics    *metrics.RAGMetrics
}

// NewEvaluationService 创建评估服务。background 为空时异步评估退化为 goroutine。
func NewEvaluationService(factory store.Factory, ev *evaluator.Evaluator, background *pool.Pool) *EvaluationService {
	return &EvaluationService{
		store:      factory,
		evaluator:  ev,
		background: background,
		metrics:    metrics.GetRAGMetrics(),
	}
}

// Evaluate 计算回答的全部质量指标。
func (s *EvaluationService) Evaluate(ctx context.Context, query, answer string, sources []string) (*evaluator.Scores, error) {
	return s.evaluator.ScoreAnswer(ctx, query, answer, sources)
}

// StoreEvaluation 保存消息的 groundedness 与 relevance。
func (s *EvaluationService) StoreEvaluation(ctx context.Context, messageID string, scores *evaluator.Scores) error {
	if err := s.store.Evaluations().UpsertScores(ctx, messageID, scores.Groundedness, scores.Relevance); err != nil {
		return errors.ErrPersistence.WithCause(err)
	}
	return nil
}

// EvaluateAndStore 计算指标并保存。
func (s *EvaluationService) EvaluateAndStore(ctx context.Context, messageID, query, answer string, sources []string) (*evaluator.Scores, error) {
	scores, err := s.Evaluate(ctx, query, answer, sources)
	if err == nil {
		err = s.StoreEvaluation(ctx, messageID, scores)
	}
	s.metrics.RecordEvaluation(err)
	if err != nil {
		return nil, err
	}

	logger.Debugw("回答评估完成",
		"message_id", messageID,
		"groundedness", scores.Groundedness,
		"relevance", scores.Relevance,
		"overall", scores.Overall,
	)
	return scores, nil
}

// EvaluateAsync 在后台池中评估回答，失败只记录日志。
func (s *EvaluationService) EvaluateAsync(messageID, query, answer string, sources []string) {
	task := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), evaluationTimeout)
		defer cancel()
		_, err := s.EvaluateAndStore(ctx, messageID, query, answer, sources)
		return err
	}

	if s.background == nil {
		go func() {
			if err := task(); err != nil {
				logger.Warnw("回答评估失败", "message_id", messageID, "error", err.Error())
			}
		}()
		return
	}

	if err := pool.Go(s.background, "evaluate-answer", task); err != nil {
		logger.Warnw("提交评估任务失败", "message_id", messageID, "error", err.Error())
	}
}

// StoreFeedback 记录用户对回答的反馈。
func (s *EvaluationService) StoreFeedback(ctx context.Context, messageID, feedback string) error {
	if !model.ValidFeedback(feedback) {
		return errors.ErrInvalidFeedback.WithMessagef(
			"feedback must be one of %s, %s, %s", model.FeedbackHelpful, model.FeedbackNotHelpful, model.FeedbackPartial)
	}
	if _, err := s.store.Messages().Get(ctx, messageID); err != nil {
		return wrapErrno(errors.ErrPersistence, err)
	}
	if err := s.store.Evaluations().UpsertFeedback(ctx, messageID, feedback); err != nil {
		return errors.ErrPersistence.WithCause(err)
	}

	logger.Infow("记录用户反馈", "message_id", messageID, "feedback", feedback)
	return nil
}

// Stats 返回评估汇总。
func (s *EvaluationService) Stats(ctx context.Context) (*store.EvaluationStats, error) {
	stats, err := s.store.Evaluations().Stats(ctx)
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err)
	}
	return stats, nil
}
