package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/RuleSheet/internal/cli"
	"github.com/JonMunkholm/RuleSheet/internal/logging"
)

func main() {
	// A missing .env is fine; the environment may already be configured.
	_ = godotenv.Load()

	// Logs go to stderr so json and yaml output stay parseable.
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	slog.SetDefault(logging.New(os.Stderr, level, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", cli.ErrorText(err))
		stop()
		os.Exit(1)
	}
}
