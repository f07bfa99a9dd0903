package mcptools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
)

// LimitGetTool は calorie_limit_get ツールを処理する。
type LimitGetTool struct {
	ledger Ledger
	logger *slog.Logger
}

// NewLimitGetTool はLimitGetToolを生成する。
func NewLimitGetTool(ledger Ledger, logger *slog.Logger) *LimitGetTool {
	return &LimitGetTool{ledger: ledger, logger: logger}
}

// Definition は calorie_limit_get のツール定義を返す。
func (t *LimitGetTool) Definition() mcp.Tool {
	return mcp.NewTool("calorie_limit_get",
		mcp.WithDescription("Return the daily calorie limit in kcal."),
	)
}

// Handle は calorie_limit_get の呼び出しを処理する。
func (t *LimitGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit, err := t.ledger.CalorieLimit(ctx)
	if err != nil {
		return errorResult(t.logger, "calorie_limit_get", err), nil
	}
	return jsonResult(map[string]float64{"calorie_limit": limit})
}

// LimitSetTool は calorie_limit_set ツールを処理する。
type LimitSetTool struct {
	ledger Ledger
	logger *slog.Logger
}

// NewLimitSetTool はLimitSetToolを生成する。
func NewLimitSetTool(ledger Ledger, logger *slog.Logger) *LimitSetTool {
	return &LimitSetTool{ledger: ledger, logger: logger}
}

// Definition は calorie_limit_set のツール定義を返す。
func (t *LimitSetTool) Definition() mcp.Tool {
	return mcp.NewTool("calorie_limit_set",
		mcp.WithDescription("Update the daily calorie limit. The value must be a positive number of kcal."),
		mcp.WithNumber("calorie_limit", mcp.Required(), mcp.Description("New daily limit in kcal")),
	)
}

// Handle は calorie_limit_set の呼び出しを処理する。
func (t *LimitSetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit, ok := floatArg(req, "calorie_limit")
	if !ok {
		return mcp.NewToolResultError("'calorie_limit' is required"), nil
	}

	if err := t.ledger.SetCalorieLimit(ctx, limit); err != nil {
		return errorResult(t.logger, "calorie_limit_set", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Daily calorie limit set to %g kcal", limit)), nil
}
