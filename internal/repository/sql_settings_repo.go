package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/nutrilog/internal/database"
	"github.com/hitoshi/nutrilog/internal/model"
)

// SQLSettingsRepo はsettingsテーブル（id = 1 の単一行）を扱うリポジトリ。
type SQLSettingsRepo struct {
	db *database.DB
}

// NewSQLSettingsRepo はSQLSettingsRepoを生成する。
func NewSQLSettingsRepo(db *database.DB) *SQLSettingsRepo {
	return &SQLSettingsRepo{db: db}
}

// GetCalorieLimit は1日のカロリー上限を返す。
func (r *SQLSettingsRepo) GetCalorieLimit(ctx context.Context) (float64, error) {
	var limit sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT calorie_limit FROM settings WHERE id = 1`,
	).Scan(&limit)
	if err == sql.ErrNoRows || (err == nil && !limit.Valid) {
		return model.DefaultCalorieLimit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get calorie limit: %w", err)
	}
	return limit.Float64, nil
}

// SetCalorieLimit はカロリー上限を上書きする。行がなければ作成する。
func (r *SQLSettingsRepo) SetCalorieLimit(ctx context.Context, limit float64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO settings (id, calorie_limit) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET calorie_limit = excluded.calorie_limit`),
		limit,
	)
	if err != nil {
		return fmt.Errorf("failed to set calorie limit: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SettingsRepository = (*SQLSettingsRepo)(nil)
