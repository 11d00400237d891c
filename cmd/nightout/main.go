package main

import (
	"context"
	"log/slog"

	"nightout/cmd/nightout/commands"
	"nightout/lib/telemetry"
)

func main() {
	ctx := context.Background()

	telemetry.InitSlog(false)
	err := telemetry.SetupFromEnv(ctx, "nightout")
	if err != nil {
		slog.Warn("telemetry setup failed", "err", err)
	}
	defer telemetry.Shutdown(ctx)

	commands.ExecuteContext(ctx)
}
