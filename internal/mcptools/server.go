package mcptools

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

// Version はビルド時に -ldflags で上書きされる。
var Version = "dev"

const instructions = `nutrilog keeps a per-session daily food log. ` +
	`Every tool except the calorie limit tools needs the session_id (UUID) shown at the bottom of the web UI today page. ` +
	`Nutrition values are per 100 g estimates scaled to the logged quantity.`

// NewServer は食品記録ツールを登録したMCPサーバーを生成する。
func NewServer(ledger Ledger, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"nutrilog",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	today := NewTodayTool(ledger, logger)
	s.AddTool(today.Definition(), today.Handle)

	add := NewAddTool(ledger, logger)
	s.AddTool(add.Definition(), add.Handle)

	del := NewDeleteTool(ledger, logger)
	s.AddTool(del.Definition(), del.Handle)

	limitGet := NewLimitGetTool(ledger, logger)
	s.AddTool(limitGet.Definition(), limitGet.Handle)

	limitSet := NewLimitSetTool(ledger, logger)
	s.AddTool(limitSet.Definition(), limitSet.Handle)

	return s
}

// ServeStdio は標準入出力でMCPサーバーを実行する。入力が閉じられるまでブロックする。
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
