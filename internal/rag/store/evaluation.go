package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/pkg/errors"
)

type evaluations struct {
	db *gorm.DB
}

func newEvaluations(db *gorm.DB) *evaluations {
	return &evaluations{db}
}

// UpsertScores records groundedness and relevance for a message.
func (e *evaluations) UpsertScores(ctx context.Context, messageID string, groundedness, relevance float64) error {
	ev := &model.Evaluation{MessageID: messageID, Groundedness: &groundedness, Relevance: &relevance}
	return e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"groundedness", "relevance", "updated_at"}),
	}).Create(ev).Error
}

// UpsertFeedback records the user's feedback label for a message.
func (e *evaluations) UpsertFeedback(ctx context.Context, messageID, feedback string) error {
	ev := &model.Evaluation{MessageID: messageID, UserFeedback: &feedback}
	return e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_feedback", "updated_at"}),
	}).Create(ev).Error
}

// Get returns the evaluation of a message.
func (e *evaluations) Get(ctx context.Context, messageID string) (*model.Evaluation, error) {
	var ev model.Evaluation
	err := e.db.WithContext(ctx).Where("message_id = ?", messageID).First(&ev).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound.WithMessage("Evaluation not found")
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Stats aggregates all evaluations.
func (e *evaluations) Stats(ctx context.Context) (*EvaluationStats, error) {
	stats := &EvaluationStats{FeedbackDistribution: map[string]int64{}}

	var agg struct {
		Total           int64
		AvgGroundedness *float64
		AvgRelevance    *float64
	}
	err := e.db.WithContext(ctx).Model(&model.Evaluation{}).
		Select("COUNT(*) AS total, AVG(groundedness) AS avg_groundedness, AVG(relevance) AS avg_relevance").
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	stats.Total = agg.Total
	if agg.AvgGroundedness != nil {
		stats.AvgGroundedness = *agg.AvgGroundedness
	}
	if agg.AvgRelevance != nil {
		stats.AvgRelevance = *agg.AvgRelevance
	}

	var rows []struct {
		UserFeedback string
		Count        int64
	}
	err = e.db.WithContext(ctx).Model(&model.Evaluation{}).
		Select("user_feedback, COUNT(*) AS count").
		Where("user_feedback IS NOT NULL").
		Group("user_feedback").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.FeedbackDistribution[r.UserFeedback] = r.Count
	}
	return stats, nil
}
