package main

import (
	"context"
	"flag"
	"os"
	"time"

	"secops-dashboard/internal/config"
	"secops-dashboard/internal/migrate"
	"secops-dashboard/internal/util"
)

func main() {
	command := flag.String("command", "up", "migration command: up, status or down")
	target := flag.Int64("target", 0, "version to roll back to with -command=down (0 rolls back one)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging)
	defer util.Sync()

	runner, err := migrate.New(cfg.Postgres.URL, util.Named("migrate"))
	if err != nil {
		util.Fatal("DATABASE_URL is required", util.ErrorField(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *command {
	case "up":
		err = runner.Ensure(ctx)
	case "status":
		err = runner.Status(ctx)
	case "down":
		err = runner.Down(ctx, *target)
	default:
		util.Error("Unknown migration command", util.String("command", *command))
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		util.Fatal("Migration failed", util.String("command", *command), util.ErrorField(err))
	}
	util.Info("Migration command completed", util.String("command", *command))
}
