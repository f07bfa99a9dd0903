// Package food は食品記録のドメインロジックを提供する。
// 栄養推定、グラム換算、記録の永続化と1日分の集計をまとめる。
package food

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/hitoshi/nutrilog/internal/metrics"
	"github.com/hitoshi/nutrilog/internal/model"
	"github.com/hitoshi/nutrilog/internal/nutrition"
	"github.com/hitoshi/nutrilog/internal/repository"
)

// Estimator は100gあたりの栄養値を推定する。
type Estimator interface {
	Estimate(ctx context.Context, req nutrition.Request) (*nutrition.Estimate, error)
	Recognize(ctx context.Context, image []byte, mimeType string) (*model.Nutrition, error)
}

// WeightConverter は数量をグラムに換算する。
type WeightConverter interface {
	Grams(ctx context.Context, name string, quantity float64, unit model.Unit) (float64, error)
}

// AddFoodInput は食品追加の入力。
type AddFoodInput struct {
	nutrition.Request
	Quantity float64
	Unit     string
}

// DailySummary は当日の記録と集計。
type DailySummary struct {
	Entries      []model.FoodEntry
	Totals       model.Totals
	CalorieLimit float64
	// Remaining は上限までの残りカロリー。超過時は負の値。
	Remaining float64
	// Progress は上限に対する摂取カロリーの割合（%）。100を超えることがある。
	Progress float64
}

// Service は食品記録のサービス層。
type Service struct {
	foods     repository.FoodRepository
	settings  repository.SettingsRepository
	estimator Estimator
	weights   WeightConverter
	recorder  metrics.Recorder
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	foods repository.FoodRepository,
	settings repository.SettingsRepository,
	estimator Estimator,
	weights WeightConverter,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		foods:     foods,
		settings:  settings,
		estimator: estimator,
		weights:   weights,
		recorder:  recorder,
		logger:    logger,
	}
}

// AddFood は食品を推定してセッションの記録に追加する。
//
// 単位の検証は外部呼び出しより前に行う。推定値（100gあたり）をグラム換算した量で
// スケールした値を記録する。同一内容の二重送信は区別しない。
func (s *Service) AddFood(ctx context.Context, sessionID string, in AddFoodInput) (*model.FoodEntry, error) {
	unit, err := model.ParseUnit(in.Unit)
	if err != nil {
		return nil, err
	}
	if in.Quantity <= 0 || math.IsInf(in.Quantity, 0) || math.IsNaN(in.Quantity) {
		return nil, fmt.Errorf("%w: quantity must be a positive number", model.ErrInvalidInput)
	}
	if in.Request.Strategy() == "" {
		return nil, fmt.Errorf("%w: a food name, barcode or image is required", model.ErrInvalidInput)
	}

	est, err := s.estimator.Estimate(ctx, in.Request)
	if err != nil {
		return nil, err
	}

	grams, err := s.weights.Grams(ctx, est.Nutrition.Name, in.Quantity, unit)
	if err != nil {
		return nil, err
	}

	scaled := est.Nutrition.Scale(grams)
	entry := &model.FoodEntry{
		SessionID:  sessionID,
		Name:       scaled.Name,
		Calories:   scaled.Calories,
		Protein:    scaled.Protein,
		Carbs:      scaled.Carbs,
		Fat:        scaled.Fat,
		Fiber:      scaled.Fiber,
		Quantity:   in.Quantity,
		Unit:       unit,
		NutriScore: scaled.NutriScore,
	}
	if err := s.foods.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("食品記録の追加に失敗しました: %w", err)
	}

	s.recorder.RecordEntryAdded(string(est.Strategy))
	s.logger.Info("食品記録を追加しました",
		slog.String("session_id", sessionID),
		slog.Int64("entry_id", entry.ID),
		slog.String("strategy", string(est.Strategy)),
		slog.Float64("grams", grams),
	)

	return entry, nil
}

// Today はセッションの当日分の記録と合計、カロリー上限を返す。
func (s *Service) Today(ctx context.Context, sessionID string) (*DailySummary, error) {
	entries, err := s.foods.ListForToday(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("食品記録の取得に失敗しました: %w", err)
	}

	limit, err := s.settings.GetCalorieLimit(ctx)
	if err != nil {
		return nil, fmt.Errorf("カロリー上限の取得に失敗しました: %w", err)
	}

	totals := nutrition.Sum(entries)
	summary := &DailySummary{
		Entries:      entries,
		Totals:       totals,
		CalorieLimit: limit,
		Remaining:    limit - totals.Calories,
	}
	if limit > 0 {
		summary.Progress = totals.Calories / limit * 100
	}
	return summary, nil
}

// DeleteFood はセッションが所有する記録を削除する。該当がなくてもエラーにしない。
func (s *Service) DeleteFood(ctx context.Context, sessionID string, id int64) error {
	if err := s.foods.Delete(ctx, sessionID, id); err != nil {
		return fmt.Errorf("食品記録の削除に失敗しました: %w", err)
	}
	s.recorder.RecordEntryDeleted()
	return nil
}

// CalorieLimit は1日のカロリー上限を返す。
func (s *Service) CalorieLimit(ctx context.Context) (float64, error) {
	limit, err := s.settings.GetCalorieLimit(ctx)
	if err != nil {
		return 0, fmt.Errorf("カロリー上限の取得に失敗しました: %w", err)
	}
	return limit, nil
}

// SetCalorieLimit は1日のカロリー上限を更新する。正の有限値のみ受け付ける。
func (s *Service) SetCalorieLimit(ctx context.Context, limit float64) error {
	if limit <= 0 || math.IsInf(limit, 0) || math.IsNaN(limit) {
		return fmt.Errorf("%w: calorie limit must be a positive number", model.ErrInvalidInput)
	}
	if err := s.settings.SetCalorieLimit(ctx, limit); err != nil {
		return fmt.Errorf("カロリー上限の更新に失敗しました: %w", err)
	}
	return nil
}

// Recognize は画像から100gあたりの栄養値を推定する。記録は追加しない。
func (s *Service) Recognize(ctx context.Context, image []byte, mimeType string) (*model.Nutrition, error) {
	return s.estimator.Recognize(ctx, image, mimeType)
}
