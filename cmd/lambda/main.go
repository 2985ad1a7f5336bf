package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/yYagoKn/drp/internal/app"
	"github.com/yYagoKn/drp/internal/config"
	"github.com/yYagoKn/drp/internal/lambdaproxy"
	"github.com/yYagoKn/drp/internal/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Lambda ships stdout to CloudWatch; a log file would be lost with the sandbox.
	log, _, err := logger.New(cfg.AppEnv, "")
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	if err := app.ResolveSecrets(ctx, &cfg); err != nil {
		slog.Error("failed to resolve secrets", "err", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		slog.Error("failed to initialize app", "err", err)
		os.Exit(1)
	}
	// workers live as long as the execution environment
	a.Start(ctx)

	h, err := lambdaproxy.New(a.Router, a, log)
	if err != nil {
		slog.Error("failed to create proxy handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
