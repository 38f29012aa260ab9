// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
		},
	}
}

func scheduleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "cron",
			Usage: "Standard 5-field cron expression, e.g. \"0 */6 * * *\"",
		},
		&cli.BoolFlag{
			Name:  "disable",
			Usage: "Keep the expression but turn the schedule off",
		},
	}
}

// setupCommand handles database and configuration setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write an example configuration file",
				Action: r.SetupConfig,
			},
			{
				Name:   "status",
				Usage:  "Show applied and pending migrations",
				Action: r.SetupStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Revert the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// parentCommand manages tracked remote accounts.
func parentCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "parent",
		Aliases: []string{"parents", "p"},
		Usage:   "Manage tracked accounts",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Track a remote account",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "account",
					},
				},
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name (defaults to the account id)",
					},
					&cli.IntFlag{
						Name:  "max-items",
						Usage: "Per-sync item cap; 0 uses sync.default_max_items",
					},
				}, scheduleFlags()...),
				Action: r.ParentAdd,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List tracked accounts",
				Flags:   jsonFlags(),
				Action:  r.ParentList,
			},
			{
				Name:    "rm",
				Aliases: []string{"remove"},
				Usage:   "Stop tracking an account and forget its items",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "parent",
					},
				},
				Action: r.ParentRemove,
			},
			{
				Name:  "schedule",
				Usage: "Set or disable an account's auto-sync schedule",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "parent",
					},
				},
				Flags:  scheduleFlags(),
				Action: r.ParentSchedule,
			},
		},
	}
}

// taskCommand manages tasks grouping several accounts.
func taskCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "task",
		Aliases: []string{"tasks", "t"},
		Usage:   "Manage tasks",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a task over one or more accounts",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "name",
					},
				},
				Flags: append([]cli.Flag{
					&cli.StringSliceFlag{
						Name:    "parent",
						Aliases: []string{"p"},
						Usage:   "Member account id or external id (repeatable)",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Accounts synced at once",
						Value: 1,
					},
				}, scheduleFlags()...),
				Action: r.TaskCreate,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List tasks",
				Flags:   jsonFlags(),
				Action:  r.TaskList,
			},
			{
				Name:  "show",
				Usage: "Show one task as JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "task",
					},
				},
				Action: r.TaskShow,
			},
			{
				Name:    "rm",
				Aliases: []string{"remove"},
				Usage:   "Delete a task",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "task",
					},
				},
				Action: r.TaskRemove,
			},
			{
				Name:  "schedule",
				Usage: "Set or disable a task's auto-run schedule",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "task",
					},
				},
				Flags:  scheduleFlags(),
				Action: r.TaskSchedule,
			},
		},
	}
}

// syncCommand syncs a single account.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Download new items for an account",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "parent",
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Follow progress in the interactive view",
			},
		},
		Action: r.Sync,
	}
}

// watchCommand opens the interactive view.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Browse accounts and run syncs interactively",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "parent",
			},
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Downloaded items shown per account",
				Value: 100,
			},
		},
		Action: r.Watch,
	}
}

// runCommand runs a task once.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run every account of a task",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "task",
			},
		},
		Action: r.RunTask,
	}
}

// itemsCommand reads downloaded items.
func itemsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "items",
		Usage: "Inspect and export downloaded items",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List an account's most recent downloads",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "parent",
					},
				},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of items to show; 0 shows all",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "paths",
						Usage: "Show downloaded file paths",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON",
					},
				},
				Action: r.ItemsList,
			},
			{
				Name:  "export",
				Usage: "Export an account's downloads (csv, markdown, txt, json)",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "parent",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: csv, markdown, txt or json",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file or directory (markdown); derived from the account when empty",
					},
				},
				Action: r.ItemsExport,
			},
		},
	}
}

// scheduleCommand inspects cron schedules.
func scheduleCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Inspect auto-sync schedules",
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Check a cron expression and show its next fire times",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "expr",
					},
				},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "count",
						Usage: "Number of upcoming fire times to print",
						Value: 5,
					},
				},
				Action: r.ScheduleValidate,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List enabled schedules and their next fire times",
				Flags:   jsonFlags(),
				Action:  r.ScheduleList,
			},
		},
	}
}

// serveCommand runs the scheduler and control API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run scheduled syncs and the HTTP control API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides server.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (overrides server.port)",
			},
			&cli.DurationFlag{
				Name:  "heartbeat",
				Usage: "Keep-alive interval for /api/events",
				Value: 15 * time.Second,
			},
		},
		Action: r.Serve,
	}
}
