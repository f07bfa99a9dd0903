// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// DefaultCalorieLimit は設定行が存在しない場合に使う1日のカロリー上限。
const DefaultCalorieLimit = 2000.0

// CaloriePreset は設定画面で選べるカロリー上限の目安。
type CaloriePreset struct {
	Label    string
	Calories float64
}

// CaloriePresets は目的別のカロリー上限の目安（表示順）。
var CaloriePresets = []CaloriePreset{
	{Label: "減量", Calories: 1500},
	{Label: "維持", Calories: DefaultCalorieLimit},
	{Label: "筋肉増量", Calories: 2500},
	{Label: "激しい運動", Calories: 3000},
}

// Unit はユーザーが入力する数量の単位を表す。
type Unit string

const (
	// UnitGram はグラム。重量にそのまま換算される。
	UnitGram Unit = "g"
	// UnitMilliliter はミリリットル。
	UnitMilliliter Unit = "mL"
	// UnitPiece は個数・1人前。
	UnitPiece Unit = "P"
)

// Units は受け付ける単位の一覧（表示順）。
var Units = []Unit{UnitGram, UnitMilliliter, UnitPiece}

// ParseUnit は入力文字列を単位に変換する。大文字小文字は区別しない。
// 受け付けない単位の場合はErrUnknownUnitを返す。
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "g":
		return UnitGram, nil
	case "ml":
		return UnitMilliliter, nil
	case "p":
		return UnitPiece, nil
	default:
		return "", &UnitError{Unit: s}
	}
}

// Label は単位の表示名を返す。
func (u Unit) Label() string {
	switch u {
	case UnitGram:
		return "グラム"
	case UnitMilliliter:
		return "ミリリットル"
	case UnitPiece:
		return "個"
	default:
		return string(u)
	}
}

// Nutrition は100gあたりの栄養推定値を表す。
// NutriScoreはA〜Eの1文字、または未設定の場合は空文字列。
type Nutrition struct {
	Name       string  `json:"name,omitempty"`
	Calories   float64 `json:"calories"`
	Protein    float64 `json:"protein"`
	Carbs      float64 `json:"carbs"`
	Fat        float64 `json:"fat"`
	Fiber      float64 `json:"fiber"`
	NutriScore string  `json:"nutriscore,omitempty"`
}

// Scale は100gあたりの値をgrams分の値に換算したコピーを返す。
func (n Nutrition) Scale(grams float64) Nutrition {
	f := grams / 100
	n.Calories *= f
	n.Protein *= f
	n.Carbs *= f
	n.Fat *= f
	n.Fiber *= f
	return n
}

// FoodEntry は摂取した食品の記録を表す。
// 栄養値は登録時点の推定値を実際の摂取量に換算したスナップショットで、後から再計算されない。
type FoodEntry struct {
	ID         int64
	SessionID  string
	Name       string
	Calories   float64
	Protein    float64
	Carbs      float64
	Fat        float64
	Fiber      float64
	Quantity   float64
	Unit       Unit
	NutriScore string
	CreatedOn  time.Time
}

// Totals は1日分の栄養合計を表す。
type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
}
