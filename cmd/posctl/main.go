package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-pos/cmd/posctl/cli"
	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/migrations"
)

const usage = `usage: posctl <command> [args]

commands:
  migrate                 apply pending database migrations
  jobs trigger <task>     enqueue inventory:low_stock_scan or maintenance:idempotency_cleanup
  jobs stats              print default queue counters
  jobs scheduled [-n N]   list scheduled tasks
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	switch args[0] {
	case "migrate":
		return migrate(ctx, cfg, logger, stdout, stderr)
	case "jobs":
		return jobsCommand(ctx, cfg, args[1:], stdout, stderr)
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger, stdout, stderr io.Writer) int {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		fmt.Fprintf(stderr, "connect database: %v\n", err)
		return 1
	}
	defer pool.Close()

	applied, err := migrations.Apply(ctx, pool, logger)
	if err != nil {
		fmt.Fprintf(stderr, "migrate: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "applied %d migration(s)\n", applied)
	return 0
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprint(stderr, usage)
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(stderr, "trigger: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "stats: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "scheduled":
		fs := flag.NewFlagSet("scheduled", flag.ContinueOnError)
		fs.SetOutput(stderr)
		size := fs.Int("n", 10, "number of tasks to list")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		tasks, err := jobsCLI.ListScheduled(ctx, *size)
		if err != nil {
			fmt.Fprintf(stderr, "scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"))
		}
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
	return 0
}
