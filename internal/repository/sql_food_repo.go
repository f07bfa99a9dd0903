package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/nutrilog/internal/database"
	"github.com/hitoshi/nutrilog/internal/model"
)

// SQLFoodRepo はSQLite/PostgreSQLを使用した食品記録リポジトリ。
type SQLFoodRepo struct {
	db *database.DB
}

// NewSQLFoodRepo はSQLFoodRepoを生成する。
func NewSQLFoodRepo(db *database.DB) *SQLFoodRepo {
	return &SQLFoodRepo{db: db}
}

// Append は記録を追加する。
func (r *SQLFoodRepo) Append(ctx context.Context, entry *model.FoodEntry) error {
	var nutriscore sql.NullString
	if entry.NutriScore != "" {
		nutriscore = sql.NullString{String: entry.NutriScore, Valid: true}
	}

	var created dateValue
	err := r.db.QueryRowContext(ctx, r.db.Rebind(
		`INSERT INTO food (session_id, name, calories, protein, carbs, fat, fiber, quantity, unit, nutriscore, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, `+r.db.CurrentDateExpr()+`)
		 RETURNING id, created_at`),
		entry.SessionID, entry.Name,
		entry.Calories, entry.Protein, entry.Carbs, entry.Fat, entry.Fiber,
		entry.Quantity, string(entry.Unit), nutriscore,
	).Scan(&entry.ID, &created)
	if err != nil {
		return fmt.Errorf("failed to append food entry: %w", err)
	}
	entry.CreatedOn = created.Time
	return nil
}

// ListForToday はセッションの本日分の記録をID降順で返す。
func (r *SQLFoodRepo) ListForToday(ctx context.Context, sessionID string) ([]model.FoodEntry, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(
		`SELECT id, session_id, name, calories, protein, carbs, fat, fiber, quantity, unit, nutriscore, created_at
		 FROM food
		 WHERE session_id = ? AND created_at = `+r.db.CurrentDateExpr()+`
		 ORDER BY id DESC`),
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list food entries: %w", err)
	}
	defer rows.Close()

	entries := []model.FoodEntry{}
	for rows.Next() {
		var (
			e          model.FoodEntry
			unit       string
			nutriscore sql.NullString
			created    dateValue
		)
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.Name,
			&e.Calories, &e.Protein, &e.Carbs, &e.Fat, &e.Fiber,
			&e.Quantity, &unit, &nutriscore, &created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan food entry: %w", err)
		}
		e.Unit = model.Unit(unit)
		e.NutriScore = nutriscore.String
		e.CreatedOn = created.Time
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate food entries: %w", err)
	}

	return entries, nil
}

// Delete はIDとセッションが一致する記録を削除する。
func (r *SQLFoodRepo) Delete(ctx context.Context, sessionID string, id int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`DELETE FROM food WHERE id = ? AND session_id = ?`),
		id, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete food entry: %w", err)
	}
	return nil
}

// dateValue はDATE列を読み取るためのScanner。
// ドライバによってtime.Time、文字列、バイト列のいずれかで返されるため、すべてを受け付ける。
type dateValue struct {
	time.Time
}

// Scan はsql.Scannerを実装する。
func (d *dateValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Time = time.Time{}
		return nil
	case time.Time:
		d.Time = v
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported date value type %T", src)
	}
}

func (d *dateValue) parse(s string) error {
	for _, layout := range []string{time.DateOnly, time.RFC3339, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid date value %q", s)
}

// compile-time interface check
var _ FoodRepository = (*SQLFoodRepo)(nil)
