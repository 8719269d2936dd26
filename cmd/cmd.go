// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"
)

// setupCommand handles setup operations for configuration and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml if missing, initialize the database and run migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Roll back the most recent migration instead",
			},
		},
		Action: r.Setup,
	}
}

// authCommand handles session operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the dashboard session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with email and password and verify the account",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "email",
						Aliases: []string{"e"},
						Usage:   "Account email",
						Sources: cli.EnvVars("SONGDESK_EMAIL"),
					},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Account password",
						Sources: cli.EnvVars("SONGDESK_PASSWORD"),
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Sign out and clear all local session state",
				Action: r.AuthLogout,
			},
			{
				Name:  "status",
				Usage: "Verify the stored session against the backend",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Force a token refresh",
				Action: r.AuthRefresh,
			},
		},
	}
}

func apiRequestCommand(name, usage string, withData bool, action cli.ActionFunc) *cli.Command {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
	if withData {
		flags = append(flags, &cli.StringFlag{
			Name:     "data",
			Aliases:  []string{"d"},
			Usage:    "JSON body to send",
			Required: true,
		})
	}

	return &cli.Command{
		Name:      name,
		Usage:     usage,
		Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
		Flags:     flags,
		Action:    action,
	}
}

// apiCommand handles direct backend calls through the resilient client
func apiCommand(r *Runner) *cli.Command {
	get := apiRequestCommand("get", "GET a backend path, prints JSON", false, r.APIGet)
	get.Flags = append(get.Flags, &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Render list responses as json, csv, markdown or txt",
		Value:   "json",
	})

	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the dashboard backend",
		Commands: []*cli.Command{
			get,
			apiRequestCommand("post", "POST a JSON body", true, r.APIPost),
			apiRequestCommand("put", "PUT a JSON body", true, r.APIPut),
			apiRequestCommand("delete", "DELETE a backend path", false, r.APIDelete),
		},
	}
}

// overviewCommand reads every dashboard section
func overviewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "overview",
		Usage: "Read every dashboard section and summarize or export it",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "section",
				Aliases: []string{"s"},
				Usage:   "Sections to read (songs, comments, ratings, subscriptions, karaoke, analytics)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Export sections into this directory",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format: json, csv, markdown or txt",
				Value:   "json",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent section reads",
				Value: 3,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Section reads per second",
				Value: 5,
			},
		},
		Action: r.Overview,
	}
}

// serveCommand runs the local gateway
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local dashboard gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, defaults to server.host:server.port",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the login page in the browser",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for the session status view.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive session and overview TUI",
		Action:  r.TUI,
	}
}
