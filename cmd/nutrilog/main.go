// Command nutrilog は1日の食事記録とカロリー管理を行うWebサーバー。
//
// サブコマンド:
//
//	serve        Webサーバーを起動する（既定）
//	migrate      データベースマイグレーションのみを実行する
//	mcp          標準入出力でMCPサーバーを起動する
//	healthcheck  起動中のサーバーの /health を確認する
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/nutrilog/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "nutrilog: %v\n", err)
		os.Exit(1)
	}
}
