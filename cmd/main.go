package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/yungbote/listingtrust-backend/internal/app"
	"github.com/yungbote/listingtrust-backend/internal/platform/shutdown"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("load .env: %v\n", err)
	}

	cfg, err := app.LoadConfig("")
	if err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	a, err := app.New(cfg)
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := a.Start(); err != nil {
		a.Log.Error("start background jobs", "error", err)
		return
	}
	if err := a.Run(ctx); err != nil {
		a.Log.Error("server exited", "error", err)
	}
}
