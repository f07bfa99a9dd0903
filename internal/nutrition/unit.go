package nutrition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hitoshi/nutrilog/internal/metrics"
	"github.com/hitoshi/nutrilog/internal/model"
	"github.com/hitoshi/nutrilog/internal/oracle"
)

// gramsPerUnit は食品名と単位ごとの1単位あたりのグラム数。
// キーは小文字化・空白正規化済みの食品名。
var gramsPerUnit = map[string]map[model.Unit]float64{
	"water":        {model.UnitMilliliter: 1.0},
	"水":            {model.UnitMilliliter: 1.0},
	"milk":         {model.UnitMilliliter: 1.03},
	"牛乳":           {model.UnitMilliliter: 1.03},
	"soy milk":     {model.UnitMilliliter: 1.02},
	"豆乳":           {model.UnitMilliliter: 1.02},
	"orange juice": {model.UnitMilliliter: 1.04},
	"coffee":       {model.UnitMilliliter: 1.0},
	"コーヒー":         {model.UnitMilliliter: 1.0},
	"tea":          {model.UnitMilliliter: 1.0},
	"お茶":           {model.UnitMilliliter: 1.0},
	"olive oil":    {model.UnitMilliliter: 0.91},
	"egg":          {model.UnitPiece: 50},
	"卵":            {model.UnitPiece: 50},
	"apple":        {model.UnitPiece: 182},
	"りんご":          {model.UnitPiece: 182},
	"banana":       {model.UnitPiece: 118},
	"バナナ":          {model.UnitPiece: 118},
}

const weightPrompt = `Estimate the weight in grams of %s %s of "%s". ` +
	`Reply with a single number of grams for the whole amount and nothing else.`

// WeightNormalizer は入力された数量と単位をグラムに換算する。
// グラムはそのまま、それ以外は静的な換算表を引き、該当がなければオラクルに推定させる。
type WeightNormalizer struct {
	oracle   TextOracle
	recorder metrics.Recorder
	logger   *slog.Logger
	timeout  time.Duration
}

// NewWeightNormalizer はWeightNormalizerを生成する。
func NewWeightNormalizer(o TextOracle, recorder metrics.Recorder, logger *slog.Logger, timeout time.Duration) *WeightNormalizer {
	return &WeightNormalizer{
		oracle:   o,
		recorder: recorder,
		logger:   logger,
		timeout:  timeout,
	}
}

// Grams は数量をグラムに換算する。
// 単位が列挙外の場合は外部呼び出しの前にmodel.ErrUnknownUnitを返す。
func (w *WeightNormalizer) Grams(ctx context.Context, name string, quantity float64, unit model.Unit) (float64, error) {
	if _, err := model.ParseUnit(string(unit)); err != nil {
		return 0, err
	}

	if unit == model.UnitGram {
		return quantity, nil
	}

	if perUnit, ok := StaticGramsPerUnit(name, unit); ok {
		return quantity * perUnit, nil
	}

	return w.estimate(ctx, name, quantity, unit)
}

// StaticGramsPerUnit は換算表に登録された1単位あたりのグラム数を返す。
func StaticGramsPerUnit(name string, unit model.Unit) (float64, bool) {
	byUnit, ok := gramsPerUnit[normalizeFoodName(name)]
	if !ok {
		return 0, false
	}
	g, ok := byUnit[unit]
	return g, ok
}

func (w *WeightNormalizer) estimate(ctx context.Context, name string, quantity float64, unit model.Unit) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	prompt := fmt.Sprintf(weightPrompt, formatQuantity(quantity), unitWord(unit), name)

	start := time.Now()
	reply, err := w.oracle.GenerateText(ctx, prompt)
	if err != nil {
		w.recorder.RecordOracleCall(metrics.OracleKindWeight, outcomeFor(err), time.Since(start))
		return 0, err
	}

	grams, ok := oracle.FirstNumber(reply)
	if !ok || grams <= 0 || math.IsInf(grams, 0) {
		w.recorder.RecordOracleCall(metrics.OracleKindWeight, metrics.OutcomeMalformed, time.Since(start))
		w.logger.Warn("重量推定の応答から数値を取得できませんでした",
			slog.String("food", name),
			slog.String("unit", string(unit)),
			slog.Int("reply_length", len(reply)),
		)
		return 0, fmt.Errorf("%w: no weight in reply", model.ErrMalformedOracleResponse)
	}

	w.recorder.RecordOracleCall(metrics.OracleKindWeight, metrics.OutcomeSuccess, time.Since(start))
	return grams, nil
}

func normalizeFoodName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func unitWord(unit model.Unit) string {
	switch unit {
	case model.UnitMilliliter:
		return "milliliters"
	case model.UnitPiece:
		return "pieces (portions)"
	default:
		return string(unit)
	}
}

func formatQuantity(q float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", q), "0"), ".")
}

// outcomeFor はエラーをメトリクスの結果ラベルに分類する。
func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, model.ErrMalformedOracleResponse):
		return metrics.OutcomeMalformed
	case errors.Is(err, model.ErrProductNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
