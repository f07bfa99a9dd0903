package repository

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/nutrilog/internal/database"
	"github.com/hitoshi/nutrilog/internal/model"
)

// setupTestDB は一時ディレクトリにスキーマ適用済みのSQLiteデータベースを用意する。
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	url := "sqlite://" + filepath.Join(t.TempDir(), "nutrients.db")
	db, err := database.Setup(context.Background(), url, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("テスト用データベースの準備に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newEntry(sessionID, name string, calories float64) *model.FoodEntry {
	return &model.FoodEntry{
		SessionID:  sessionID,
		Name:       name,
		Calories:   calories,
		Protein:    1,
		Carbs:      2,
		Fat:        3,
		Fiber:      4,
		Quantity:   150,
		Unit:       model.UnitGram,
		NutriScore: "B",
	}
}

func TestSQLFoodRepo_ImplementsInterface(t *testing.T) {
	var _ FoodRepository = (*SQLFoodRepo)(nil)
}

func TestSQLFoodRepo_Append_SetsIDAndDate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLFoodRepo(db)
	ctx := context.Background()

	e := newEntry("session-a", "ヨーグルト", 90)
	if err := repo.Append(ctx, e); err != nil {
		t.Fatalf("Append に失敗: %v", err)
	}
	if e.ID == 0 {
		t.Error("ID が採番されていません")
	}
	if e.CreatedOn.IsZero() {
		t.Error("CreatedOn が設定されていません")
	}
	today := time.Now().UTC().Format(time.DateOnly)
	if got := e.CreatedOn.Format(time.DateOnly); got != today {
		t.Errorf("CreatedOn = %s, want %s", got, today)
	}
}

func TestSQLFoodRepo_ListForToday_OrderAndFields(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLFoodRepo(db)
	ctx := context.Background()

	first := newEntry("session-a", "パン", 250)
	second := newEntry("session-a", "牛乳", 130)
	second.Unit = model.UnitMilliliter
	second.NutriScore = ""
	for _, e := range []*model.FoodEntry{first, second} {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append に失敗: %v", err)
		}
	}

	entries, err := repo.ListForToday(ctx, "session-a")
	if err != nil {
		t.Fatalf("ListForToday に失敗: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("件数 = %d, want 2", len(entries))
	}
	// 新しい順
	if entries[0].ID != second.ID || entries[1].ID != first.ID {
		t.Errorf("順序が不正: got [%d, %d], want [%d, %d]", entries[0].ID, entries[1].ID, second.ID, first.ID)
	}

	got := entries[1]
	if got.Name != "パン" || got.Calories != 250 || got.Protein != 1 || got.Carbs != 2 ||
		got.Fat != 3 || got.Fiber != 4 || got.Quantity != 150 || got.Unit != model.UnitGram ||
		got.NutriScore != "B" || got.SessionID != "session-a" {
		t.Errorf("読み取った記録が不正: %+v", got)
	}
	if entries[0].NutriScore != "" {
		t.Errorf("NutriScore = %q, want empty", entries[0].NutriScore)
	}
	if entries[0].Unit != model.UnitMilliliter {
		t.Errorf("Unit = %q, want %q", entries[0].Unit, model.UnitMilliliter)
	}
}

func TestSQLFoodRepo_ListForToday_ScopedToSessionAndDate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLFoodRepo(db)
	ctx := context.Background()

	mine := newEntry("session-a", "りんご", 95)
	other := newEntry("session-b", "バナナ", 105)
	for _, e := range []*model.FoodEntry{mine, other} {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append に失敗: %v", err)
		}
	}

	// 前日の記録を直接挿入する
	if _, err := db.Exec(
		`INSERT INTO food (session_id, name, calories, protein, carbs, fat, fiber, quantity, unit, created_at)
		 VALUES ('session-a', '昨日のパスタ', 600, 20, 80, 15, 5, 300, 'g', DATE('now', '-1 day'))`,
	); err != nil {
		t.Fatalf("前日の記録の挿入に失敗: %v", err)
	}

	entries, err := repo.ListForToday(ctx, "session-a")
	if err != nil {
		t.Fatalf("ListForToday に失敗: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("件数 = %d, want 1 (%+v)", len(entries), entries)
	}
	if entries[0].ID != mine.ID {
		t.Errorf("ID = %d, want %d", entries[0].ID, mine.ID)
	}
	for _, e := range entries {
		if e.SessionID != "session-a" {
			t.Errorf("他セッションの記録が含まれています: %+v", e)
		}
	}
}

func TestSQLFoodRepo_ListForToday_EmptyIsNonNil(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLFoodRepo(db)

	entries, err := repo.ListForToday(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListForToday に失敗: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("entries = %#v, want empty slice", entries)
	}
}

func countFood(t *testing.T, db *database.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM food").Scan(&n); err != nil {
		t.Fatalf("件数取得に失敗: %v", err)
	}
	return n
}

func TestSQLFoodRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLFoodRepo(db)
	ctx := context.Background()

	e := newEntry("session-a", "おにぎり", 180)
	if err := repo.Append(ctx, e); err != nil {
		t.Fatalf("Append に失敗: %v", err)
	}

	t.Run("存在しないIDは何もしない", func(t *testing.T) {
		if err := repo.Delete(ctx, "session-a", e.ID+1000); err != nil {
			t.Fatalf("Delete がエラーを返した: %v", err)
		}
		if n := countFood(t, db); n != 1 {
			t.Errorf("件数 = %d, want 1", n)
		}
	})

	t.Run("他セッションの記録は削除しない", func(t *testing.T) {
		if err := repo.Delete(ctx, "session-b", e.ID); err != nil {
			t.Fatalf("Delete がエラーを返した: %v", err)
		}
		if n := countFood(t, db); n != 1 {
			t.Errorf("件数 = %d, want 1", n)
		}
	})

	t.Run("所有セッションなら削除する", func(t *testing.T) {
		if err := repo.Delete(ctx, "session-a", e.ID); err != nil {
			t.Fatalf("Delete に失敗: %v", err)
		}
		if n := countFood(t, db); n != 0 {
			t.Errorf("件数 = %d, want 0", n)
		}
	})
}

func TestDateValue_Scan(t *testing.T) {
	want := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	inputs := []any{"2026-10-17", []byte("2026-10-17"), want, "2026-10-17T00:00:00Z"}
	for _, in := range inputs {
		var d dateValue
		if err := d.Scan(in); err != nil {
			t.Errorf("Scan(%#v) returned error: %v", in, err)
			continue
		}
		if !d.Time.Equal(want) {
			t.Errorf("Scan(%#v) = %v, want %v", in, d.Time, want)
		}
	}

	var d dateValue
	if err := d.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
	if err := d.Scan("yesterday"); err == nil {
		t.Error("Scan(invalid string) should fail")
	}
}
