package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/mecattaf/smart-tiling/internal/config"
	"github.com/mecattaf/smart-tiling/internal/control/client"
	"github.com/mecattaf/smart-tiling/internal/rules"
	"github.com/mecattaf/smart-tiling/internal/util"
)

var (
	headline = color.New(color.Bold)
	okColor  = color.New(color.FgGreen)
	errColor = color.New(color.FgRed)
	dimColor = color.New(color.Faint)
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	fs := flag.NewFlagSet("stctl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	socket := fs.String("socket", "", "path to smart-tiling control socket")
	timeout := fs.Duration("timeout", 3*time.Second, "control request timeout")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <command> [args]\n", fs.Name())
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Commands:")
		fmt.Fprintln(fs.Output(), "  status\t\tshow daemon state")
		fmt.Fprintln(fs.Output(), "  rules\t\t\tlist loaded rules")
		fmt.Fprintln(fs.Output(), "  relationships\t\tlist live parent-child pairings")
		fmt.Fprintln(fs.Output(), "  metrics\t\tshow rule counters")
		fmt.Fprintln(fs.Output(), "  reload\t\ttrigger a live config reload")
		fmt.Fprintln(fs.Output(), "  check --config <path>\tvalidate a configuration file")
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Flags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return fmt.Errorf("missing subcommand")
	}

	if args[0] == "check" {
		return runCheck(args[1:], os.Stdout, os.Stderr)
	}

	cli, err := client.New(*socket)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	switch args[0] {
	case "status":
		return runStatus(ctx, cli)
	case "rules":
		return runRules(ctx, cli)
	case "relationships":
		return runRelationships(ctx, cli)
	case "metrics":
		return runMetrics(ctx, cli)
	case "reload":
		return runReload(ctx, cli)
	default:
		fs.Usage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func runStatus(ctx context.Context, cli *client.Client) error {
	status, err := cli.Status(ctx)
	if err != nil {
		return err
	}
	headline.Println("smart-tiling daemon")
	fmt.Printf("  rules loaded:   %d\n", status.Rules)
	fmt.Printf("  pending:        %d\n", status.Pending)
	fmt.Printf("  relationships:  %d\n", status.Relationships)
	fmt.Printf("  rule timeout:   %gs\n", status.RuleTimeoutSeconds)
	fmt.Printf("  dry run:        %v\n", status.DryRun)
	fmt.Printf("  fallback:       %v\n", status.Fallback)
	return nil
}

func runRules(ctx context.Context, cli *client.Client) error {
	info, err := cli.Rules(ctx)
	if err != nil {
		return err
	}
	if len(info.Rules) == 0 {
		fmt.Println("No rules loaded")
		return nil
	}
	for _, rule := range info.Rules {
		headline.Println(rule.Name)
		printCriteria("  parent:", rule.ParentAppIDs, rule.ParentClasses, rule.ParentTitles, false)
		printCriteria("  child: ", rule.ChildAppIDs, rule.ChildClasses, rule.ChildTitles, rule.ChildAny)
		fmt.Printf("  actions: %s\n", strings.Join(rule.Actions, ", "))
	}
	return nil
}

func printCriteria(label string, appIDs, classes, titles []string, any bool) {
	if any {
		fmt.Printf("%s %s\n", label, dimColor.Sprint("(any window)"))
		return
	}
	var parts []string
	if len(appIDs) > 0 {
		parts = append(parts, "app_id="+strings.Join(appIDs, "|"))
	}
	if len(classes) > 0 {
		parts = append(parts, "class="+strings.Join(classes, "|"))
	}
	if len(titles) > 0 {
		parts = append(parts, "title="+strings.Join(titles, "|"))
	}
	fmt.Printf("%s %s\n", label, strings.Join(parts, " "))
}

func runRelationships(ctx context.Context, cli *client.Client) error {
	info, err := cli.Relationships(ctx)
	if err != nil {
		return err
	}
	if len(info.Relationships) == 0 {
		fmt.Println("No live relationships")
		return nil
	}
	for _, rel := range info.Relationships {
		fmt.Printf("%s: parent %d -> child %d on workspace %s (since %s)\n",
			rel.Rule, rel.ParentID, rel.ChildID, rel.Workspace,
			rel.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runMetrics(ctx context.Context, cli *client.Client) error {
	snap, err := cli.Metrics(ctx)
	if err != nil {
		return err
	}
	if !snap.Enabled {
		fmt.Println("Metrics collection is disabled")
		return nil
	}
	headline.Printf("since %s\n", snap.Started.Format(time.RFC3339))
	fmt.Printf("  parent matches:  %d\n", snap.Totals.ParentMatches)
	fmt.Printf("  child resolved:  %d\n", snap.Totals.ChildResolved)
	fmt.Printf("  expired:         %d\n", snap.Totals.Expired)
	fmt.Printf("  command errors:  %d\n", snap.Totals.CommandErrors)
	fmt.Printf("  fallback splits: %d\n", snap.Global.Fallbacks)
	fmt.Printf("  events consumed: %d\n", snap.Global.EventsConsumed)
	for _, rule := range snap.Rules {
		fmt.Printf("  %s: matched %d, resolved %d, expired %d, errors %d\n",
			rule.Rule, rule.ParentMatches, rule.ChildResolved, rule.Expired, rule.CommandErrors)
	}
	return nil
}

func runReload(ctx context.Context, cli *client.Client) error {
	if err := cli.Reload(ctx); err != nil {
		return err
	}
	okColor.Println("Reload requested")
	return nil
}

func runCheck(args []string, stdout io.Writer, stderr io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *configPath == "" {
		fs.Usage()
		return fmt.Errorf("check requires --config <path>")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := util.NewLoggerWithWriter(util.LevelWarn, stderr)
	compiled := rules.Compile(cfg.Rules, logger)
	skipped := len(cfg.Rules) - len(compiled)
	if skipped > 0 {
		fmt.Fprintf(stderr, "%d of %d rules failed validation\n", skipped, len(cfg.Rules))
		return fmt.Errorf("configuration validation failed")
	}
	fmt.Fprintf(stdout, "Configuration OK (%d rules)\n", len(compiled))
	return nil
}
