package database

import (
	"context"
	"fmt"
	"log/slog"
)

// columnDef は追加マイグレーションで補う列の定義。
type columnDef struct {
	name     string
	sqliteDD string
	pgDD     string
}

// foodColumns はfoodテーブルの現行の列定義。
// 旧バージョンで作成されたストアに存在しない列は、安全な既定値付きで追加する。
var foodColumns = []columnDef{
	{"session_id", "TEXT NOT NULL DEFAULT ''", "TEXT NOT NULL DEFAULT ''"},
	{"fiber", "REAL NOT NULL DEFAULT 0", "DOUBLE PRECISION NOT NULL DEFAULT 0"},
	{"quantity", "REAL NOT NULL DEFAULT 100", "DOUBLE PRECISION NOT NULL DEFAULT 100"},
	{"unit", "TEXT NOT NULL DEFAULT 'g'", "TEXT NOT NULL DEFAULT 'g'"},
	{"nutriscore", "TEXT", "TEXT"},
}

// EnsureColumns はfoodテーブルの列を確認し、不足している列を追加する。
// 列の削除や名前変更は行わない。何度実行しても結果は変わらない。
func EnsureColumns(ctx context.Context, db *DB, logger *slog.Logger) error {
	existing, err := tableColumns(ctx, db, "food")
	if err != nil {
		return err
	}

	for _, col := range foodColumns {
		if existing[col.name] {
			continue
		}
		ddl := col.sqliteDD
		if db.Dialect == DialectPostgres {
			ddl = col.pgDD
		}
		stmt := fmt.Sprintf("ALTER TABLE food ADD COLUMN %s %s", col.name, ddl)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add column food.%s: %w", col.name, err)
		}
		logger.Info("added missing column", slog.String("table", "food"), slog.String("column", col.name))
	}

	if _, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_food_session_created ON food (session_id, created_at)`,
	); err != nil {
		return fmt.Errorf("failed to create food index: %w", err)
	}

	return nil
}

// tableColumns はテーブルに存在する列名の集合を返す。
func tableColumns(ctx context.Context, db *DB, table string) (map[string]bool, error) {
	cols := make(map[string]bool)

	if db.Dialect == DialectPostgres {
		rows, err := db.QueryContext(ctx,
			`SELECT column_name FROM information_schema.columns
			 WHERE table_schema = current_schema() AND table_name = $1`,
			table,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect %s columns: %w", table, err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, fmt.Errorf("failed to scan column name: %w", err)
			}
			cols[name] = true
		}
		return cols, rows.Err()
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s columns: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
