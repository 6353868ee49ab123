package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/wolfeidau/salesboard/cmd/salesboard/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"SALESBOARD_DEBUG"`
		Version kong.VersionFlag
		Server  commands.ServerCmd  `cmd:"" help:"Start the leaderboard server (login + JSON API)"`
		Sync    commands.SyncCmd    `cmd:"" help:"Mirror CRM owners and deals for a tenant"`
		Migrate commands.MigrateCmd `cmd:"" help:"Run PostgreSQL migrations"`
	}
)

func main() {
	// a missing .env file is fine, the environment may already be set
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("salesboard"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
