package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Priya8975/hookrelay/internal/app"
	"github.com/Priya8975/hookrelay/internal/config"
	"github.com/Priya8975/hookrelay/internal/engine"
)

type sweeper interface {
	Sweep(ctx context.Context) (engine.SweepResult, error)
}

type pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

type keyRegenerator interface {
	Regenerate(ctx context.Context) (string, error)
}

// services is what the commands operate on.
type services struct {
	sweeper   sweeper
	pruner    pruner
	keys      keyRegenerator
	retention time.Duration
	close     func()
}

type loader func(ctx context.Context) (*services, error)

func loadServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, app.NewLogger(cfg.LogLevel))
	if err != nil {
		return nil, err
	}
	return &services{
		sweeper:   a.Retry,
		pruner:    a.Pruner,
		keys:      a.Keys,
		retention: cfg.LogRetention(),
		close:     a.Close,
	}, nil
}

// Command is one hookctl subcommand.
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
}

func newRootCommand(load loader, out io.Writer) *Command {
	root := &Command{
		Name:        "hookctl",
		Description: "hookctl - webhook delivery maintenance",
		Subcommands: make(map[string]*Command),
	}

	root.Subcommands["process"] = newProcessCommand(load, out)
	root.Subcommands["clean-logs"] = newCleanLogsCommand(load, out)
	root.Subcommands["regenerate-key"] = newRegenerateKeyCommand(load, out)

	root.Run = func(_ context.Context, _ []string) error {
		fmt.Fprintf(out, "Usage: %s <command> [args]\n\nCommands:\n", root.Name)
		names := make([]string, 0, len(root.Subcommands))
		for name := range root.Subcommands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "  %-15s %s\n", name, root.Subcommands[name].Description)
		}
		return nil
	}
	return root
}

// Execute dispatches to the named subcommand.
func (c *Command) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return c.Run(ctx, nil)
	}

	if sub, ok := c.Subcommands[args[0]]; ok {
		return sub.Run(ctx, args[1:])
	}
	return fmt.Errorf("unknown command: %s", args[0])
}

func withServices(ctx context.Context, load loader, fn func(*services) error) error {
	svc, err := load(ctx)
	if err != nil {
		return err
	}
	if svc.close != nil {
		defer svc.close()
	}
	return fn(svc)
}

func newProcessCommand(load loader, out io.Writer) *Command {
	return &Command{
		Name:        "process",
		Description: "Run one retry sweep now",
		Run: func(ctx context.Context, args []string) error {
			fs := flag.NewFlagSet("process", flag.ContinueOnError)
			fs.SetOutput(out)
			if err := fs.Parse(args); err != nil {
				return err
			}

			return withServices(ctx, load, func(svc *services) error {
				res, err := svc.sweeper.Sweep(ctx)
				if err != nil {
					return fmt.Errorf("running retry sweep: %w", err)
				}
				if res.LeaseHeld {
					fmt.Fprintln(out, "Another sweep is running, nothing done.")
					return nil
				}
				fmt.Fprintf(out, "Scanned %d, dispatched %d, delivered %d, orphaned %d, abandoned %d.\n",
					res.Scanned, res.Dispatched, res.Delivered, res.Orphaned, res.Abandoned)
				return nil
			})
		},
	}
}

func newCleanLogsCommand(load loader, out io.Writer) *Command {
	return &Command{
		Name:        "clean-logs",
		Description: "Delete delivery logs older than the retention window",
		Run: func(ctx context.Context, args []string) error {
			fs := flag.NewFlagSet("clean-logs", flag.ContinueOnError)
			fs.SetOutput(out)
			days := fs.Int("days", 0, "retention in days (default LOG_RETENTION_DAYS)")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *days < 0 {
				return fmt.Errorf("-days must not be negative, got %d", *days)
			}

			return withServices(ctx, load, func(svc *services) error {
				retention := svc.retention
				if *days > 0 {
					retention = engine.RetentionDays(*days)
				}
				n, err := svc.pruner.Prune(ctx, retention)
				if err != nil {
					return fmt.Errorf("pruning delivery logs: %w", err)
				}
				fmt.Fprintf(out, "Deleted %d delivery log entries.\n", n)
				return nil
			})
		},
	}
}

func newRegenerateKeyCommand(load loader, out io.Writer) *Command {
	return &Command{
		Name:        "regenerate-key",
		Description: "Generate a new API key",
		Run: func(ctx context.Context, args []string) error {
			fs := flag.NewFlagSet("regenerate-key", flag.ContinueOnError)
			fs.SetOutput(out)
			if err := fs.Parse(args); err != nil {
				return err
			}

			return withServices(ctx, load, func(svc *services) error {
				key, err := svc.keys.Regenerate(ctx)
				if err != nil {
					return fmt.Errorf("regenerating api key: %w", err)
				}
				fmt.Fprintf(out, "New API key: %s\n", key)
				return nil
			})
		},
	}
}
