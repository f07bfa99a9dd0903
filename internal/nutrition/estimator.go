// Package nutrition は栄養推定の業務ロジックを提供する。
//
// 入力（事前入力値、バーコード、画像、食品名）に応じて推定方法を選択し、
// 100gあたりの栄養値とNutri-Scoreを正規化して返す。
// 数量のグラム換算と1日分の合計もこのパッケージが担う。
package nutrition

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/nutrilog/internal/metrics"
	"github.com/hitoshi/nutrilog/internal/model"
	"github.com/hitoshi/nutrilog/internal/oracle"
)

// TextOracle はテキストプロンプトに応答する外部サービス。
type TextOracle interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// VisionOracle は画像付きプロンプトに応答する外部サービス。
type VisionOracle interface {
	GenerateFromImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

// ProductLookup はバーコードから製品の栄養値を検索する外部サービス。
type ProductLookup interface {
	LookupBarcode(ctx context.Context, code string) (*model.Nutrition, error)
}

// NameSanitizer は外部由来の食品名を平文に整える。
type NameSanitizer interface {
	Sanitize(raw string) string
}

// Strategy は推定方法を表す。
type Strategy string

// 推定方法。複数の入力がある場合は上から順に優先される。
const (
	StrategyPrefilled Strategy = "prefilled"
	StrategyBarcode   Strategy = "barcode"
	StrategyImage     Strategy = "image"
	StrategyName      Strategy = "name"
)

// unknownFoodName は食品名が得られなかった場合の表示名。
const unknownFoodName = "不明な食品"

const textPrompt = `You are a nutrition database. Estimate the nutrition of "%s" per 100 g. ` +
	`Reply with only a JSON object of the form ` +
	`{"name": string, "calories": number, "protein": number, "carbs": number, "fat": number, "fiber": number, "nutriscore": "A"|"B"|"C"|"D"|"E"} ` +
	`where calories are kcal and the other values are grams.`

const visionPrompt = `Identify the food in this photo and estimate its nutrition per 100 g. ` +
	`Reply with only a JSON object of the form ` +
	`{"name": string, "calories": number, "protein": number, "carbs": number, "fat": number, "fiber": number, "nutriscore": "A"|"B"|"C"|"D"|"E"} ` +
	`where calories are kcal and the other values are grams.`

// Prefilled はクライアント側で事前に入力された100gあたりの栄養値。
type Prefilled struct {
	Calories   float64
	Protein    float64
	Carbs      float64
	Fat        float64
	Fiber      float64
	NutriScore string
}

// Request は推定の入力。
type Request struct {
	Name      string
	Barcode   string
	Image     []byte
	ImageType string
	Prefilled *Prefilled
}

// Strategy は入力から選択される推定方法を返す。いずれの入力もなければ空文字列。
func (r Request) Strategy() Strategy {
	switch {
	case r.Prefilled != nil:
		return StrategyPrefilled
	case strings.TrimSpace(r.Barcode) != "":
		return StrategyBarcode
	case len(r.Image) > 0:
		return StrategyImage
	case strings.TrimSpace(r.Name) != "":
		return StrategyName
	default:
		return ""
	}
}

// Estimate は推定結果。Nutritionは100gあたりの値。
type Estimate struct {
	Nutrition model.Nutrition
	Strategy  Strategy
}

// Timeouts は呼び出し種別ごとのタイムアウト。
type Timeouts struct {
	Text    time.Duration
	Vision  time.Duration
	Weight  time.Duration
	Barcode time.Duration
}

// DefaultTimeouts は既定のタイムアウト。
var DefaultTimeouts = Timeouts{
	Text:    30 * time.Second,
	Vision:  60 * time.Second,
	Weight:  15 * time.Second,
	Barcode: 15 * time.Second,
}

// Estimator は推定方法の選択と応答の正規化を行う。
// 外部呼び出しは再試行せず、失敗はそのまま呼び出し元に返す。
type Estimator struct {
	text      TextOracle
	vision    VisionOracle
	products  ProductLookup
	sanitizer NameSanitizer
	recorder  metrics.Recorder
	logger    *slog.Logger
	timeouts  Timeouts
}

// NewEstimator はEstimatorを生成する。
func NewEstimator(
	text TextOracle,
	vision VisionOracle,
	products ProductLookup,
	sanitizer NameSanitizer,
	recorder metrics.Recorder,
	logger *slog.Logger,
	timeouts Timeouts,
) *Estimator {
	return &Estimator{
		text:      text,
		vision:    vision,
		products:  products,
		sanitizer: sanitizer,
		recorder:  recorder,
		logger:    logger,
		timeouts:  timeouts,
	}
}

// Estimate は入力に応じた方法で100gあたりの栄養値を推定する。
// 利用者が入力した食品名があればそれを優先し、なければ外部サービスが返した名前を使う。
func (e *Estimator) Estimate(ctx context.Context, req Request) (*Estimate, error) {
	strategy := req.Strategy()

	var (
		n   *model.Nutrition
		err error
	)
	switch strategy {
	case StrategyPrefilled:
		p := req.Prefilled
		n = &model.Nutrition{
			Calories:   p.Calories,
			Protein:    p.Protein,
			Carbs:      p.Carbs,
			Fat:        p.Fat,
			Fiber:      p.Fiber,
			NutriScore: p.NutriScore,
		}
	case StrategyBarcode:
		n, err = e.lookupBarcode(ctx, req.Barcode)
	case StrategyImage:
		n, err = e.recognize(ctx, req.Image, req.ImageType)
	case StrategyName:
		n, err = e.describe(ctx, req.Name)
	default:
		return nil, fmt.Errorf("%w: a food name, barcode or image is required", model.ErrInvalidInput)
	}
	if err != nil {
		return nil, err
	}

	result := normalize(*n)
	if name := e.sanitizer.Sanitize(req.Name); name != "" {
		result.Name = name
	} else {
		result.Name = e.sanitizer.Sanitize(result.Name)
	}
	if result.Name == "" {
		result.Name = unknownFoodName
	}

	return &Estimate{Nutrition: result, Strategy: strategy}, nil
}

// Recognize は画像のみから100gあたりの栄養値を推定する。クライアント側の事前入力に使う。
func (e *Estimator) Recognize(ctx context.Context, image []byte, mimeType string) (*model.Nutrition, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image is required", model.ErrInvalidInput)
	}
	n, err := e.recognize(ctx, image, mimeType)
	if err != nil {
		return nil, err
	}
	result := normalize(*n)
	result.Name = e.sanitizer.Sanitize(result.Name)
	return &result, nil
}

func (e *Estimator) lookupBarcode(ctx context.Context, code string) (*model.Nutrition, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Barcode)
	defer cancel()

	start := time.Now()
	n, err := e.products.LookupBarcode(ctx, code)
	e.recorder.RecordOracleCall(metrics.OracleKindBarcode, outcomeFor(err), time.Since(start))
	return n, err
}

func (e *Estimator) recognize(ctx context.Context, image []byte, mimeType string) (*model.Nutrition, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Vision)
	defer cancel()

	start := time.Now()
	var n *model.Nutrition
	reply, err := e.vision.GenerateFromImage(ctx, visionPrompt, image, mimeType)
	if err == nil {
		n, err = ParseReply(reply)
	}
	e.recorder.RecordOracleCall(metrics.OracleKindVision, outcomeFor(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (e *Estimator) describe(ctx context.Context, name string) (*model.Nutrition, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Text)
	defer cancel()

	start := time.Now()
	var n *model.Nutrition
	reply, err := e.text.GenerateText(ctx, fmt.Sprintf(textPrompt, strings.TrimSpace(name)))
	if err == nil {
		n, err = ParseReply(reply)
	}
	e.recorder.RecordOracleCall(metrics.OracleKindText, outcomeFor(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return n, nil
}

// replyObject はオラクル応答のJSONオブジェクト。数値は文字列でも受け付ける。
type replyObject struct {
	Name       string          `json:"name"`
	Calories   oracle.Number   `json:"calories"`
	Protein    oracle.Number   `json:"protein"`
	Carbs      oracle.Number   `json:"carbs"`
	Fat        oracle.Number   `json:"fat"`
	Fiber      oracle.Number   `json:"fiber"`
	NutriScore json.RawMessage `json:"nutriscore"`
}

// ParseReply はオラクルの自由文応答から100gあたりの栄養値を取り出す。
// 欠けている数値は0、欠けているNutri-Scoreは未設定として扱う。
func ParseReply(reply string) (*model.Nutrition, error) {
	raw, err := oracle.ExtractObject(reply)
	if err != nil {
		return nil, err
	}

	var obj replyObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedOracleResponse, err)
	}

	return &model.Nutrition{
		Name:       obj.Name,
		Calories:   float64(obj.Calories),
		Protein:    float64(obj.Protein),
		Carbs:      float64(obj.Carbs),
		Fat:        float64(obj.Fat),
		Fiber:      float64(obj.Fiber),
		NutriScore: gradeText(obj.NutriScore),
	}, nil
}

// gradeText はnutriscoreの値（文字列または数値）を文字列にする。
func gradeText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// normalize は負の値を0に丸め、Nutri-Scoreを正規化する。
func normalize(n model.Nutrition) model.Nutrition {
	n.Calories = nonNegative(n.Calories)
	n.Protein = nonNegative(n.Protein)
	n.Carbs = nonNegative(n.Carbs)
	n.Fat = nonNegative(n.Fat)
	n.Fiber = nonNegative(n.Fiber)
	n.NutriScore = NormalizeGrade(n.NutriScore)
	return n
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
