package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/contentieux/contentieux/cmd/contentieux/cli"
	"github.com/contentieux/contentieux/internal/app"
)

const usage = `usage: contentieux [command] [flags]

commands:
  serve                 run the HTTP server (default)
  report                build a distribution report from a CSV snapshot
  jobs trigger|inspect  manage report warmup jobs
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		return serveCommand(ctx, args, stderr)
	case "report":
		return reportCommand(ctx, args, stdout, stderr)
	case "jobs":
		return jobsCommand(ctx, args, stdout, stderr)
	case "help":
		_, _ = fmt.Fprint(stdout, usage)
		return cli.ExitOK
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", command, usage)
		return 2
	}
}

func reportCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "report: load config: %v\n", err)
		return cli.ExitFailure
	}
	opts := cli.ReportOptions{Currency: cfg.Currency(), Stdout: stdout, Stderr: stderr}
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.Input, "input", "-", "CSV file with case_id,offender,total_owed,amount_collected columns (- for stdin)")
	fs.StringVar(&opts.Period, "period", "", "period label: YYYY, YYYY-MM, YYYY-Qn or YYYY-Sn")
	fs.StringVar(&opts.Rule, "rule", "", "rule code from the rules file (default rule when empty)")
	fs.StringVar(&opts.RulesFile, "rules", cfg.RulesFile, "YAML rules file")
	fs.StringVar(&opts.StatePercent, "state-percent", "", "fixed state percentage, overrides the rules file")
	fs.BoolVar(&opts.SkipInvalid, "skip-invalid", false, "exclude invalid records instead of failing")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the report as JSON")
	fs.StringVar(&opts.Locale, "locale", cfg.ReportLocale, "display locale")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if opts.RulesFile == "" && opts.StatePercent == "" {
		opts.StatePercent = cfg.DefaultStatePercent
	}
	return cli.ReportCommand(ctx, opts)
}

func jobsCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	opts := cli.JobsOptions{Action: args[0], Stdout: stdout, Stderr: stderr}
	fs := flag.NewFlagSet("jobs "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.Period, "period", "", "period to warm (all recent periods when empty)")
	fs.StringVar(&opts.Rule, "rule", "", "rule code (default rule when empty)")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs: load config: %v\n", err)
		return cli.ExitFailure
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.Redis().AsynqOpts())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs: %v\n", err)
		return cli.ExitFailure
	}
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			slog.Default().Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	return jobsCLI.JobsCommand(ctx, opts)
}
