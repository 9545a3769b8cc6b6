package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/takumi/voltmap/internal/app"
)

func main() {
	// .envはローカル開発でのみ存在する。本番では環境変数を直接渡す。
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded")
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
