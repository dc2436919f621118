// Command docscope inspects ingested documents from the terminal.
//
// Usage:
//
//	docscope filter -prompt "what is the status of cpa123?"
//	docscope documents
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/samber/lo"

	"doc-scope/internal/app"
	"doc-scope/internal/contextfilter"
	"doc-scope/internal/store"
)

var errUsage = errors.New("usage: docscope <filter|documents> [flags]")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	deps, err := app.Build(app.Options{})
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}

	if err := run(ctx, os.Args[1:], os.Stdout, deps.Store, deps.Filter); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, lister contextfilter.Lister, matcher *contextfilter.Matcher) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "filter":
		fs := flag.NewFlagSet("filter", flag.ContinueOnError)
		fs.SetOutput(out)
		prompt := fs.String("prompt", "", "prompt to find relevant documents for")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *prompt == "" {
			return fmt.Errorf("%w: filter requires -prompt", errUsage)
		}
		return runFilter(ctx, out, *prompt, lister, matcher)
	case "documents":
		return runDocuments(ctx, out, lister)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func runFilter(ctx context.Context, out io.Writer, prompt string, lister contextfilter.Lister, matcher *contextfilter.Matcher) error {
	res, err := matcher.Filter(ctx, prompt, lister)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	if code := contextfilter.ProjectCode(prompt); code != "" {
		bold.Fprint(out, "project code: ")
		color.New(color.FgCyan).Fprintln(out, code)
	}
	if names := contextfilter.CandidateNames(prompt); len(names) > 0 {
		bold.Fprint(out, "names: ")
		fmt.Fprintln(out, lo.Map(names, func(n string, _ int) string { return fmt.Sprintf("%q", n) }))
	}

	if len(res.FileNames) == 0 {
		color.New(color.FgYellow).Fprintln(out, "no relevant files; queries would search every ready document")
		return nil
	}
	green := color.New(color.FgGreen)
	for _, name := range res.FileNames {
		green.Fprintf(out, "  %s\n", name)
	}
	fmt.Fprintf(out, "%d files, %d documents\n", len(res.FileNames), len(res.DocumentIDs))
	return nil
}

func runDocuments(ctx context.Context, out io.Writer, lister contextfilter.Lister) error {
	docs, err := lister.ListDocuments(ctx)
	if err != nil {
		return err
	}
	statusColor := map[store.DocumentStatus]*color.Color{
		store.StatusReady:      color.New(color.FgGreen),
		store.StatusProcessing: color.New(color.FgYellow),
		store.StatusFailed:     color.New(color.FgRed),
	}
	for _, d := range docs {
		c, ok := statusColor[d.Status]
		if !ok {
			c = color.New(color.Reset)
		}
		c.Fprintf(out, "%-10s", d.Status)
		if d.Page > 0 {
			fmt.Fprintf(out, " %s  %s (page %d)\n", d.ID, d.Filename, d.Page)
		} else {
			fmt.Fprintf(out, " %s  %s\n", d.ID, d.Filename)
		}
	}
	return nil
}
