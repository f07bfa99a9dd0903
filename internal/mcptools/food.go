package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/nutrilog/internal/food"
	"github.com/hitoshi/nutrilog/internal/model"
	"github.com/hitoshi/nutrilog/internal/nutrition"
	"github.com/mark3labs/mcp-go/mcp"
)

// --- TodayTool ---

// TodayTool は food_today ツールを処理する。
type TodayTool struct {
	ledger Ledger
	logger *slog.Logger
}

// NewTodayTool はTodayToolを生成する。
func NewTodayTool(ledger Ledger, logger *slog.Logger) *TodayTool {
	return &TodayTool{ledger: ledger, logger: logger}
}

// Definition は food_today のツール定義を返す。
func (t *TodayTool) Definition() mcp.Tool {
	return mcp.NewTool("food_today",
		mcp.WithDescription("List today's food entries for a session with nutrition totals and the daily calorie limit."),
		withSessionID(),
	)
}

type todayResult struct {
	Entries      []entryView  `json:"entries"`
	Totals       model.Totals `json:"totals"`
	CalorieLimit float64      `json:"calorie_limit"`
	Remaining    float64      `json:"remaining"`
}

// Handle は food_today の呼び出しを処理する。
func (t *TodayTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := sessionArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summary, err := t.ledger.Today(ctx, sessionID)
	if err != nil {
		return errorResult(t.logger, "food_today", err), nil
	}

	result := todayResult{
		Entries:      make([]entryView, 0, len(summary.Entries)),
		Totals:       summary.Totals,
		CalorieLimit: summary.CalorieLimit,
		Remaining:    summary.Remaining,
	}
	for _, e := range summary.Entries {
		result.Entries = append(result.Entries, toEntryView(e))
	}
	return jsonResult(result)
}

// --- AddTool ---

// AddTool は food_add ツールを処理する。
type AddTool struct {
	ledger Ledger
	logger *slog.Logger
}

// NewAddTool はAddToolを生成する。
func NewAddTool(ledger Ledger, logger *slog.Logger) *AddTool {
	return &AddTool{ledger: ledger, logger: logger}
}

var macroKeys = []string{"calories", "protein", "carbs", "fat", "fiber"}

// Definition は food_add のツール定義を返す。
func (t *AddTool) Definition() mcp.Tool {
	return mcp.NewTool("food_add",
		mcp.WithDescription(
			"Log a consumed food for a session. Nutrition is estimated from the barcode or the name "+
				"unless all five per-100 g values (calories, protein, carbs, fat, fiber) are given.",
		),
		withSessionID(),
		mcp.WithString("name", mcp.Description("Food name")),
		mcp.WithString("barcode", mcp.Description("EAN/UPC barcode (8-14 digits)")),
		mcp.WithNumber("quantity", mcp.Required(), mcp.Description("Amount consumed, in the given unit")),
		mcp.WithString("unit",
			mcp.Required(),
			mcp.Enum("g", "mL", "P"),
			mcp.Description("g (grams), mL (milliliters) or P (pieces/portions)"),
		),
		mcp.WithNumber("calories", mcp.Description("kcal per 100 g")),
		mcp.WithNumber("protein", mcp.Description("Protein grams per 100 g")),
		mcp.WithNumber("carbs", mcp.Description("Carbohydrate grams per 100 g")),
		mcp.WithNumber("fat", mcp.Description("Fat grams per 100 g")),
		mcp.WithNumber("fiber", mcp.Description("Fiber grams per 100 g")),
		mcp.WithString("nutriscore", mcp.Description("Nutri-Score grade A-E")),
	)
}

// Handle は food_add の呼び出しを処理する。
func (t *AddTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := sessionArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	quantity, ok := floatArg(req, "quantity")
	if !ok {
		return mcp.NewToolResultError("'quantity' is required"), nil
	}

	in := food.AddFoodInput{
		Request: nutrition.Request{
			Name:      strings.TrimSpace(req.GetString("name", "")),
			Barcode:   strings.TrimSpace(req.GetString("barcode", "")),
			Prefilled: prefilledArgs(req),
		},
		Quantity: quantity,
		Unit:     req.GetString("unit", ""),
	}

	entry, err := t.ledger.AddFood(ctx, sessionID, in)
	if err != nil {
		return errorResult(t.logger, "food_add", err), nil
	}
	return jsonResult(toEntryView(*entry))
}

// prefilledArgs は5つの栄養値がすべて指定された場合のみ事前入力値を返す。
func prefilledArgs(req mcp.CallToolRequest) *nutrition.Prefilled {
	values := make([]float64, len(macroKeys))
	for i, key := range macroKeys {
		v, ok := floatArg(req, key)
		if !ok {
			return nil
		}
		values[i] = v
	}
	return &nutrition.Prefilled{
		Calories:   values[0],
		Protein:    values[1],
		Carbs:      values[2],
		Fat:        values[3],
		Fiber:      values[4],
		NutriScore: req.GetString("nutriscore", ""),
	}
}

// --- DeleteTool ---

// DeleteTool は food_delete ツールを処理する。
type DeleteTool struct {
	ledger Ledger
	logger *slog.Logger
}

// NewDeleteTool はDeleteToolを生成する。
func NewDeleteTool(ledger Ledger, logger *slog.Logger) *DeleteTool {
	return &DeleteTool{ledger: ledger, logger: logger}
}

// Definition は food_delete のツール定義を返す。
func (t *DeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("food_delete",
		mcp.WithDescription("Delete a food entry owned by the session. Unknown or foreign ids are ignored."),
		withSessionID(),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Entry ID to delete")),
	)
}

// Handle は food_delete の呼び出しを処理する。
func (t *DeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := sessionArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, ok := floatArg(req, "id")
	if !ok || id < 1 || id != float64(int64(id)) {
		return mcp.NewToolResultError("'id' must be a positive integer"), nil
	}

	if err := t.ledger.DeleteFood(ctx, sessionID, int64(id)); err != nil {
		return errorResult(t.logger, "food_delete", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Entry %d deleted if it belonged to the session", int64(id))), nil
}
