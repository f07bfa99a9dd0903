// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 外部オラクルと入力検証のエラー分類。
// 呼び出し側はerrors.Isで判定し、ユーザーには汎用メッセージのみを返す。
var (
	// ErrOracleNotConfigured はAPIキー等の認証情報が未設定であることを示す。
	// 該当する操作のみが失敗し、プロセスは継続する。
	ErrOracleNotConfigured = errors.New("oracle is not configured")
	// ErrUnknownUnit は受け付けない単位が指定されたことを示す。
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrOracleRequestFailed は外部サービスとの通信失敗を示す。
	ErrOracleRequestFailed = errors.New("oracle request failed")
	// ErrMalformedOracleResponse は応答を受け取ったが期待する構造に解析できなかったことを示す。
	ErrMalformedOracleResponse = errors.New("malformed oracle response")
	// ErrProductNotFound はバーコードに該当する商品が存在しないことを示す。
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidInput はフォーム入力の検証エラーを示す。
	ErrInvalidInput = errors.New("invalid input")
)

// UnitError は受け付けない単位のエラー。ErrUnknownUnitとして判定できる。
type UnitError struct {
	Unit string
}

// Error はerrorインターフェースを実装する。
func (e *UnitError) Error() string {
	return fmt.Sprintf("unknown unit %q", e.Unit)
}

// Unwrap はErrUnknownUnitを返す。
func (e *UnitError) Unwrap() error {
	return ErrUnknownUnit
}

// IsOracleError はオラクル関連のエラーかどうかを判定する。
func IsOracleError(err error) bool {
	return errors.Is(err, ErrOracleNotConfigured) ||
		errors.Is(err, ErrOracleRequestFailed) ||
		errors.Is(err, ErrMalformedOracleResponse) ||
		errors.Is(err, ErrProductNotFound)
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, oracle, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNutritionUnavailable = "NUTRITION_UNAVAILABLE"
	ErrCodeUnknownUnit          = "UNKNOWN_UNIT"
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeImageRequired        = "IMAGE_REQUIRED"
	ErrCodeInternal             = "INTERNAL_ERROR"
	ErrCodeRateLimited          = "RATE_LIMITED"
)

// NewNutritionUnavailableError は栄養情報を取得できなかった場合のエラーを生成する。
// オラクル関連の失敗はすべてこのメッセージに集約し、原因はログにのみ記録する。
func NewNutritionUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeNutritionUnavailable,
		Message:  "栄養情報を取得できませんでした。",
		Category: "oracle",
		Action:   "食品名やバーコードを確認し、しばらく待ってから再度お試しください。",
	}
}

// NewUnknownUnitError は受け付けない単位が指定された場合のエラーを生成する。
func NewUnknownUnitError(unit string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownUnit,
		Message:  fmt.Sprintf("無効な単位です: %s", unit),
		Category: "validation",
		Action:   "単位には g、mL、P のいずれかを指定してください。",
	}
}

// NewInvalidInputError はフォーム入力が不正な場合のエラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewImageRequiredError は画像が送信されなかった場合のエラーを生成する。
func NewImageRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeImageRequired,
		Message:  "画像が送信されていません。",
		Category: "validation",
		Action:   "食品の写真を選択してから送信してください。",
	}
}

// NewRateLimitedError はレート制限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
