// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/nutrilog/internal/model"
)

// FoodRepository は食品記録（台帳）の永続化インターフェース。
// すべての操作はセッションIDで区切られ、他セッションの記録は参照も変更もできない。
type FoodRepository interface {
	// Append は記録を追加し、採番されたIDと作成日をentryに設定する。
	Append(ctx context.Context, entry *model.FoodEntry) error

	// ListForToday はセッションの本日分の記録を新しい順に返す。
	// 本日の判定はデータベース側の時計で行う。
	ListForToday(ctx context.Context, sessionID string) ([]model.FoodEntry, error)

	// Delete はIDとセッションが一致する記録を削除する。
	// 該当する記録がない場合もエラーにはしない。
	Delete(ctx context.Context, sessionID string, id int64) error
}

// SettingsRepository は単一行の設定の永続化インターフェース。
type SettingsRepository interface {
	// GetCalorieLimit は1日のカロリー上限を返す。行がない場合はmodel.DefaultCalorieLimitを返す。
	GetCalorieLimit(ctx context.Context) (float64, error)

	// SetCalorieLimit はカロリー上限を上書きする。
	SetCalorieLimit(ctx context.Context, limit float64) error
}
