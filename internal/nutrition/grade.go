package nutrition

import (
	"math"
	"strconv"
	"strings"
)

// NormalizeGrade はNutri-Scoreの表記をA〜Eの1文字に揃える。
//
// 1文字の英字は大文字にしてそのまま返す。数値スコアは次の閾値で変換する:
// -1以下はA、2以下はB、10以下はC、18以下はD、それ以外はE。
// 解析できない値と有限でない値（NaN、Inf）は大文字化してそのまま返し、空の場合は空文字列（未設定）を返す。
func NormalizeGrade(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if score, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(score) && !math.IsInf(score, 0) {
		return gradeForScore(score)
	}

	return strings.ToUpper(s)
}

func gradeForScore(score float64) string {
	switch {
	case score <= -1:
		return "A"
	case score <= 2:
		return "B"
	case score <= 10:
		return "C"
	case score <= 18:
		return "D"
	default:
		return "E"
	}
}
