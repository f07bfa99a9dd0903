// Package mcptools は食品記録をMCPツールとして公開する。
//
// 各ツールは依存（Ledger）をコンストラクタで受け取り、
// Definition()でスキーマを、Handle()で呼び出しの処理を提供する。
// HTTPのセッションCookieの代わりに、呼び出し側がsession_idを明示的に渡す。
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hitoshi/nutrilog/internal/food"
	"github.com/hitoshi/nutrilog/internal/model"
	"github.com/mark3labs/mcp-go/mcp"
)

// Ledger はツールが必要とする食品記録の操作。*food.Serviceが満たす。
type Ledger interface {
	AddFood(ctx context.Context, sessionID string, in food.AddFoodInput) (*model.FoodEntry, error)
	Today(ctx context.Context, sessionID string) (*food.DailySummary, error)
	DeleteFood(ctx context.Context, sessionID string, id int64) error
	CalorieLimit(ctx context.Context) (float64, error)
	SetCalorieLimit(ctx context.Context, limit float64) error
}

// withSessionID はツール定義に共通のsession_id引数を追加する。
func withSessionID() mcp.ToolOption {
	return mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session ID (UUID) that owns the food log, as issued by the web UI"),
	)
}

// sessionArg はsession_id引数を取り出して検証する。
func sessionArg(req mcp.CallToolRequest) (string, error) {
	raw := req.GetString("session_id", "")
	if raw == "" {
		return "", errors.New("'session_id' is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", errors.New("'session_id' must be a UUID")
	}
	return id.String(), nil
}

// floatArg は数値引数を取り出す。JSONの数値はfloat64として届く。
func floatArg(req mcp.CallToolRequest, key string) (float64, bool) {
	v, ok := req.GetArguments()[key].(float64)
	return v, ok
}

// jsonResult は値をJSONテキストとして返す。
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// errorResult はエラーを利用者向けのメッセージに変換する。
// 外部サービスや行ストアのエラー詳細はログのみに記録する。
func errorResult(logger *slog.Logger, tool string, err error) *mcp.CallToolResult {
	var unitErr *model.UnitError
	switch {
	case errors.As(err, &unitErr):
		return mcp.NewToolResultError(model.NewUnknownUnitError(unitErr.Unit).Message)
	case errors.Is(err, model.ErrInvalidInput):
		return mcp.NewToolResultError(err.Error())
	case model.IsOracleError(err):
		logger.Warn("nutrition estimate failed",
			slog.String("tool", tool),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultError(model.NewNutritionUnavailableError().Message)
	default:
		logger.Error("tool failed",
			slog.String("tool", tool),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultError(model.NewInternalError().Message)
	}
}

// entryView はツール結果に含める記録の表現。
type entryView struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Calories   float64 `json:"calories"`
	Protein    float64 `json:"protein"`
	Carbs      float64 `json:"carbs"`
	Fat        float64 `json:"fat"`
	Fiber      float64 `json:"fiber"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	NutriScore string  `json:"nutriscore,omitempty"`
	CreatedOn  string  `json:"created_on"`
}

func toEntryView(e model.FoodEntry) entryView {
	return entryView{
		ID:         e.ID,
		Name:       e.Name,
		Calories:   e.Calories,
		Protein:    e.Protein,
		Carbs:      e.Carbs,
		Fat:        e.Fat,
		Fiber:      e.Fiber,
		Quantity:   e.Quantity,
		Unit:       string(e.Unit),
		NutriScore: e.NutriScore,
		CreatedOn:  e.CreatedOn.Format("2006-01-02"),
	}
}
