package main

import (
	"context"
	"time"

	"github.com/alecthomas/kong"

	"github.com/wolfeidau/eddits-console/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Login     commands.LoginCmd     `cmd:"" help:"Sign in to the dashboard API"`
		Logout    commands.LogoutCmd    `cmd:"" help:"Sign out and remove stored tokens"`
		Status    commands.StatusCmd    `cmd:"" help:"Check the stored session"`
		Refresh   commands.RefreshCmd   `cmd:"" help:"Refresh the access token"`
		Whoami    commands.WhoamiCmd    `cmd:"" help:"Show the signed in user"`
		Passwd    commands.PasswdCmd    `cmd:"" help:"Change the account password"`
		Profile   commands.ProfileCmd   `cmd:"" help:"Update the account profile"`
		Stats     commands.StatsCmd     `cmd:"" help:"Show dashboard statistics"`
		Analytics commands.AnalyticsCmd `cmd:"" help:"Show event analytics"`
		Health    commands.HealthCmd    `cmd:"" help:"Check backend health"`

		Config    string        `help:"Path to the config file (default ~/.eddits/config.yaml)" type:"path"`
		APIURL    string        `help:"Dashboard API base URL" name:"api-url"`
		StoreType string        `help:"Credential store type" name:"store-type"`
		StoreDir  string        `help:"Credential store directory" name:"store-dir" type:"path"`
		Timeout   time.Duration `help:"Request timeout"`
		Tracing   bool          `help:"Export traces and metrics over OTLP" env:"EDDITS_TRACING"`
		Notify    string        `help:"Where notifications go" enum:"console,log" default:"console" env:"EDDITS_NOTIFY"`
		Debug     bool          `help:"Enable debug mode."`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("eddits-cli"),
		kong.Description("Command line client for the eddits events dashboard."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	globals := &commands.Globals{
		Debug:      cli.Debug,
		Version:    version,
		ConfigPath: cli.Config,
		APIURL:     cli.APIURL,
		StoreType:  cli.StoreType,
		StoreDir:   cli.StoreDir,
		Timeout:    cli.Timeout,
		Tracing:    cli.Tracing,
		Notify:     cli.Notify,
	}
	err := cmd.Run(globals)
	if err != nil && globals.Reported() {
		// already shown by the notifier
		cmd.Exit(1)
	}
	cmd.FatalIfErrorf(err)
}
