package nutrition

import "github.com/hitoshi/nutrilog/internal/model"

// Sum は記録の栄養値を項目ごとに合計する。空の場合はすべて0。丸めは行わない。
func Sum(entries []model.FoodEntry) model.Totals {
	var t model.Totals
	for _, e := range entries {
		t.Calories += e.Calories
		t.Protein += e.Protein
		t.Carbs += e.Carbs
		t.Fat += e.Fat
		t.Fiber += e.Fiber
	}
	return t
}
