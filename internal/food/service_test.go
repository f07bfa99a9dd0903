package food

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/hitoshi/nutrilog/internal/model"
	"github.com/hitoshi/nutrilog/internal/nutrition"
)

const tolerance = 1e-9

// memoryFoodRepo はFoodRepositoryのメモリ実装。
type memoryFoodRepo struct {
	entries   []model.FoodEntry
	nextID    int64
	appendErr error
	deleteErr error
}

func (r *memoryFoodRepo) Append(ctx context.Context, e *model.FoodEntry) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.nextID++
	e.ID = r.nextID
	e.CreatedOn = time.Now().UTC().Truncate(24 * time.Hour)
	r.entries = append(r.entries, *e)
	return nil
}

func (r *memoryFoodRepo) ListForToday(ctx context.Context, sessionID string) ([]model.FoodEntry, error) {
	result := []model.FoodEntry{}
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].SessionID == sessionID {
			result = append(result, r.entries[i])
		}
	}
	return result, nil
}

func (r *memoryFoodRepo) Delete(ctx context.Context, sessionID string, id int64) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	kept := r.entries[:0]
	for _, e := range r.entries {
		if !(e.ID == id && e.SessionID == sessionID) {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	return nil
}

// memorySettingsRepo はSettingsRepositoryのメモリ実装。
type memorySettingsRepo struct {
	limit float64
}

func (r *memorySettingsRepo) GetCalorieLimit(ctx context.Context) (float64, error) {
	return r.limit, nil
}

func (r *memorySettingsRepo) SetCalorieLimit(ctx context.Context, limit float64) error {
	r.limit = limit
	return nil
}

// mockEstimator はEstimatorのテスト用モック。
type mockEstimator struct {
	estimateFn  func(ctx context.Context, req nutrition.Request) (*nutrition.Estimate, error)
	recognizeFn func(ctx context.Context, image []byte, mimeType string) (*model.Nutrition, error)
	calls       int
}

func (m *mockEstimator) Estimate(ctx context.Context, req nutrition.Request) (*nutrition.Estimate, error) {
	m.calls++
	return m.estimateFn(ctx, req)
}

func (m *mockEstimator) Recognize(ctx context.Context, image []byte, mimeType string) (*model.Nutrition, error) {
	return m.recognizeFn(ctx, image, mimeType)
}

// mockWeights はWeightConverterのテスト用モック。
type mockWeights struct {
	gramsFn func(ctx context.Context, name string, quantity float64, unit model.Unit) (float64, error)
}

func (m *mockWeights) Grams(ctx context.Context, name string, quantity float64, unit model.Unit) (float64, error) {
	return m.gramsFn(ctx, name, quantity, unit)
}

// countingRecorder はメトリクス呼び出し回数を数えるRecorder。
type countingRecorder struct {
	added   []string
	deleted int
}

func (c *countingRecorder) RecordOracleCall(string, string, time.Duration) {}
func (c *countingRecorder) RecordEntryAdded(strategy string)               { c.added = append(c.added, strategy) }
func (c *countingRecorder) RecordEntryDeleted()                            { c.deleted++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedEstimate(n model.Nutrition, s nutrition.Strategy) *mockEstimator {
	return &mockEstimator{
		estimateFn: func(ctx context.Context, req nutrition.Request) (*nutrition.Estimate, error) {
			return &nutrition.Estimate{Nutrition: n, Strategy: s}, nil
		},
	}
}

func identityWeights() *mockWeights {
	return &mockWeights{
		gramsFn: func(ctx context.Context, name string, quantity float64, unit model.Unit) (float64, error) {
			return quantity, nil
		},
	}
}

func TestAddFood_ScalesByGrams(t *testing.T) {
	per100 := model.Nutrition{Name: "Oats", Calories: 389, Protein: 16.9, Carbs: 66.3, Fat: 6.9, Fiber: 10.6, NutriScore: "A"}

	for _, grams := range []float64{1, 40, 100, 250, 333.3} {
		foods := &memoryFoodRepo{}
		rec := &countingRecorder{}
		svc := NewService(foods, &memorySettingsRepo{limit: 2000}, fixedEstimate(per100, nutrition.StrategyName), identityWeights(), rec, testLogger())

		entry, err := svc.AddFood(context.Background(), "s1", AddFoodInput{
			Request:  nutrition.Request{Name: "Oats"},
			Quantity: grams,
			Unit:     "g",
		})
		if err != nil {
			t.Fatalf("AddFood returned error: %v", err)
		}

		factor := grams / 100
		checks := []struct {
			field     string
			got, want float64
		}{
			{"calories", entry.Calories, per100.Calories * factor},
			{"protein", entry.Protein, per100.Protein * factor},
			{"carbs", entry.Carbs, per100.Carbs * factor},
			{"fat", entry.Fat, per100.Fat * factor},
			{"fiber", entry.Fiber, per100.Fiber * factor},
		}
		for _, c := range checks {
			if math.Abs(c.got-c.want) > tolerance {
				t.Errorf("grams=%v %s = %v, want %v", grams, c.field, c.got, c.want)
			}
		}
		if entry.Quantity != grams || entry.Unit != model.UnitGram || entry.NutriScore != "A" || entry.SessionID != "s1" {
			t.Errorf("entry = %+v", entry)
		}
		if entry.ID == 0 {
			t.Error("ID が設定されていません")
		}
		if len(foods.entries) != 1 {
			t.Errorf("stored = %d, want 1", len(foods.entries))
		}
		if len(rec.added) != 1 || rec.added[0] != "name" {
			t.Errorf("recorded = %v", rec.added)
		}
	}
}

func TestAddFood_UsesConvertedGrams(t *testing.T) {
	per100 := model.Nutrition{Name: "Milk", Calories: 64, Protein: 3.3}
	weights := &mockWeights{
		gramsFn: func(ctx context.Context, name string, quantity float64, unit model.Unit) (float64, error) {
			if name != "Milk" || unit != model.UnitMilliliter {
				t.Errorf("Grams(%q, %v, %q)", name, quantity, unit)
			}
			return quantity * 1.03, nil
		},
	}
	svc := NewService(&memoryFoodRepo{}, &memorySettingsRepo{limit: 2000}, fixedEstimate(per100, nutrition.StrategyName), weights, &countingRecorder{}, testLogger())

	entry, err := svc.AddFood(context.Background(), "s1", AddFoodInput{
		Request:  nutrition.Request{Name: "Milk"},
		Quantity: 200,
		Unit:     "ml",
	})
	if err != nil {
		t.Fatalf("AddFood returned error: %v", err)
	}
	if math.Abs(entry.Calories-64*2.06) > tolerance {
		t.Errorf("Calories = %v, want %v", entry.Calories, 64*2.06)
	}
	// 数量は入力単位のまま保存する
	if entry.Quantity != 200 || entry.Unit != model.UnitMilliliter {
		t.Errorf("Quantity/Unit = %v %q", entry.Quantity, entry.Unit)
	}
}

func TestAddFood_UnknownUnitBeforeEstimate(t *testing.T) {
	est := fixedEstimate(model.Nutrition{}, nutrition.StrategyName)
	foods := &memoryFoodRepo{}
	svc := NewService(foods, &memorySettingsRepo{}, est, identityWeights(), &countingRecorder{}, testLogger())

	_, err := svc.AddFood(context.Background(), "s1", AddFoodInput{
		Request:  nutrition.Request{Name: "Soup"},
		Quantity: 1,
		Unit:     "cup",
	})
	if !errors.Is(err, model.ErrUnknownUnit) {
		t.Errorf("err = %v, want ErrUnknownUnit", err)
	}
	if est.calls != 0 {
		t.Error("単位エラーなのに推定が呼び出されました")
	}
	if len(foods.entries) != 0 {
		t.Error("記録が追加されました")
	}
}

func TestAddFood_InvalidInput(t *testing.T) {
	est := fixedEstimate(model.Nutrition{}, nutrition.StrategyName)
	svc := NewService(&memoryFoodRepo{}, &memorySettingsRepo{}, est, identityWeights(), &countingRecorder{}, testLogger())

	inputs := []AddFoodInput{
		{Request: nutrition.Request{Name: "x"}, Quantity: 0, Unit: "g"},
		{Request: nutrition.Request{Name: "x"}, Quantity: -5, Unit: "g"},
		{Request: nutrition.Request{Name: "x"}, Quantity: math.Inf(1), Unit: "g"},
		{Request: nutrition.Request{}, Quantity: 100, Unit: "g"},
	}
	for _, in := range inputs {
		if _, err := svc.AddFood(context.Background(), "s1", in); !errors.Is(err, model.ErrInvalidInput) {
			t.Errorf("AddFood(%+v) err = %v, want ErrInvalidInput", in, err)
		}
	}
	if est.calls != 0 {
		t.Error("入力エラーなのに推定が呼び出されました")
	}
}

func TestAddFood_OracleFailureStoresNothing(t *testing.T) {
	est := &mockEstimator{
		estimateFn: func(ctx context.Context, req nutrition.Request) (*nutrition.Estimate, error) {
			return nil, model.ErrMalformedOracleResponse
		},
	}
	foods := &memoryFoodRepo{}
	rec := &countingRecorder{}
	svc := NewService(foods, &memorySettingsRepo{}, est, identityWeights(), rec, testLogger())

	_, err := svc.AddFood(context.Background(), "s1", AddFoodInput{Request: nutrition.Request{Name: "x"}, Quantity: 1, Unit: "g"})
	if !errors.Is(err, model.ErrMalformedOracleResponse) {
		t.Errorf("err = %v, want ErrMalformedOracleResponse", err)
	}
	if len(foods.entries) != 0 || len(rec.added) != 0 {
		t.Error("失敗時に記録が追加されました")
	}
}

func TestAddFood_WeightFailure(t *testing.T) {
	weights := &mockWeights{
		gramsFn: func(ctx context.Context, name string, quantity float64, unit model.Unit) (float64, error) {
			return 0, model.ErrMalformedOracleResponse
		},
	}
	foods := &memoryFoodRepo{}
	svc := NewService(foods, &memorySettingsRepo{}, fixedEstimate(model.Nutrition{Name: "x"}, nutrition.StrategyName), weights, &countingRecorder{}, testLogger())

	_, err := svc.AddFood(context.Background(), "s1", AddFoodInput{Request: nutrition.Request{Name: "x"}, Quantity: 1, Unit: "P"})
	if !errors.Is(err, model.ErrMalformedOracleResponse) {
		t.Errorf("err = %v, want ErrMalformedOracleResponse", err)
	}
	if len(foods.entries) != 0 {
		t.Error("失敗時に記録が追加されました")
	}
}

func TestAddFood_StoreFailure(t *testing.T) {
	storeErr := errors.New("disk I/O error")
	foods := &memoryFoodRepo{appendErr: storeErr}
	svc := NewService(foods, &memorySettingsRepo{}, fixedEstimate(model.Nutrition{Name: "x"}, nutrition.StrategyName), identityWeights(), &countingRecorder{}, testLogger())

	_, err := svc.AddFood(context.Background(), "s1", AddFoodInput{Request: nutrition.Request{Name: "x"}, Quantity: 1, Unit: "g"})
	if !errors.Is(err, storeErr) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
	if model.IsOracleError(err) {
		t.Error("ストアのエラーがオラクルエラーとして分類されました")
	}
}

func TestToday_Summary(t *testing.T) {
	foods := &memoryFoodRepo{}
	svc := NewService(foods, &memorySettingsRepo{limit: 1500}, nil, nil, &countingRecorder{}, testLogger())
	ctx := context.Background()

	for _, e := range []model.FoodEntry{
		{SessionID: "s1", Name: "a", Calories: 100, Protein: 1},
		{SessionID: "s2", Name: "other", Calories: 999},
		{SessionID: "s1", Name: "b", Calories: 200, Protein: 2},
	} {
		e := e
		foods.Append(ctx, &e)
	}

	summary, err := svc.Today(ctx, "s1")
	if err != nil {
		t.Fatalf("Today returned error: %v", err)
	}
	if len(summary.Entries) != 2 || summary.Entries[0].Name != "b" {
		t.Errorf("Entries = %+v", summary.Entries)
	}
	if summary.Totals.Calories != 300 || summary.Totals.Protein != 3 {
		t.Errorf("Totals = %+v", summary.Totals)
	}
	if summary.CalorieLimit != 1500 || summary.Remaining != 1200 || summary.Progress != 20 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestToday_Empty(t *testing.T) {
	svc := NewService(&memoryFoodRepo{}, &memorySettingsRepo{limit: 2000}, nil, nil, &countingRecorder{}, testLogger())

	summary, err := svc.Today(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Today returned error: %v", err)
	}
	if len(summary.Entries) != 0 || summary.Totals != (model.Totals{}) || summary.Remaining != 2000 || summary.Progress != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestDeleteFood_ScopedToSession(t *testing.T) {
	foods := &memoryFoodRepo{}
	rec := &countingRecorder{}
	svc := NewService(foods, &memorySettingsRepo{}, nil, nil, rec, testLogger())
	ctx := context.Background()

	e := model.FoodEntry{SessionID: "owner", Name: "x"}
	foods.Append(ctx, &e)

	if err := svc.DeleteFood(ctx, "intruder", e.ID); err != nil {
		t.Fatalf("DeleteFood returned error: %v", err)
	}
	if len(foods.entries) != 1 {
		t.Error("他セッションの記録が削除されました")
	}
	if err := svc.DeleteFood(ctx, "owner", 9999); err != nil {
		t.Fatalf("DeleteFood returned error: %v", err)
	}
	if err := svc.DeleteFood(ctx, "owner", e.ID); err != nil {
		t.Fatalf("DeleteFood returned error: %v", err)
	}
	if len(foods.entries) != 0 {
		t.Error("記録が削除されていません")
	}
	if rec.deleted != 3 {
		t.Errorf("deleted = %d, want 3", rec.deleted)
	}
}

func TestSetCalorieLimit(t *testing.T) {
	settings := &memorySettingsRepo{limit: 2000}
	svc := NewService(&memoryFoodRepo{}, settings, nil, nil, &countingRecorder{}, testLogger())
	ctx := context.Background()

	if err := svc.SetCalorieLimit(ctx, 1800); err != nil {
		t.Fatalf("SetCalorieLimit returned error: %v", err)
	}
	got, err := svc.CalorieLimit(ctx)
	if err != nil || got != 1800 {
		t.Errorf("CalorieLimit = %v, %v, want 1800", got, err)
	}

	for _, bad := range []float64{0, -100, math.NaN(), math.Inf(1)} {
		if err := svc.SetCalorieLimit(ctx, bad); !errors.Is(err, model.ErrInvalidInput) {
			t.Errorf("SetCalorieLimit(%v) err = %v, want ErrInvalidInput", bad, err)
		}
	}
	if settings.limit != 1800 {
		t.Errorf("limit = %v, want unchanged 1800", settings.limit)
	}
}

func TestRecognize_Delegates(t *testing.T) {
	est := &mockEstimator{
		recognizeFn: func(ctx context.Context, image []byte, mimeType string) (*model.Nutrition, error) {
			return &model.Nutrition{Name: "Pizza", Calories: 266}, nil
		},
	}
	foods := &memoryFoodRepo{}
	svc := NewService(foods, &memorySettingsRepo{}, est, nil, &countingRecorder{}, testLogger())

	got, err := svc.Recognize(context.Background(), []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	if got.Name != "Pizza" {
		t.Errorf("Recognize = %+v", got)
	}
	if len(foods.entries) != 0 {
		t.Error("Recognize で記録が追加されました")
	}
}
