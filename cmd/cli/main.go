package main

import (
	"context"

	"github.com/emezins/carevault/internal/client/cli"
	"github.com/emezins/carevault/internal/client/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app := cli.NewApp(cfg)
	app.Run(ctx)
}
