package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/oicur0t/forwardog/internal/history"
	"github.com/oicur0t/forwardog/internal/present"
	"github.com/oicur0t/forwardog/pkg/models"
)

func runHistory(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: forwardog history list|show|replay|clear|export")
	}

	switch args[0] {
	case "list":
		return historyList(a, args[1:])
	case "show":
		return historyShow(a, args[1:])
	case "replay":
		return historyReplay(ctx, a, args[1:])
	case "clear":
		return historyClear(ctx, a, args[1:])
	case "export":
		return historyExport(a, args[1:])
	}
	return fmt.Errorf("unknown history command %q", args[0])
}

func historyList(a *app, args []string) error {
	fs := flag.NewFlagSet("history list", flag.ContinueOnError)
	fs.SetOutput(a.out)
	kindName := fs.String("kind", "", "Only show entries of this kind")
	limit := fs.Int("limit", 0, "Show at most this many entries (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var entries []models.HistoryEntry
	if *kindName != "" {
		kind, err := models.ParseKind(*kindName)
		if err != nil {
			return err
		}
		entries = a.history.ByKind(kind, *limit)
	} else {
		entries = a.history.Entries()
		if *limit > 0 && len(entries) > *limit {
			entries = entries[:*limit]
		}
	}

	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No history yet")
		return nil
	}
	return present.RenderHistory(a.out, entries)
}

func historyShow(a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: forwardog history show <id>")
	}
	entry, ok := a.history.FindByID(args[0])
	if !ok {
		return fmt.Errorf("history entry %q not found", args[0])
	}
	return printJSON(a, entry)
}

// historyReplay prints the editable state of an entry, or re-submits it
// with -submit
func historyReplay(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history replay", flag.ContinueOnError)
	fs.SetOutput(a.out)
	submit := fs.Bool("submit", false, "Submit the replayed state instead of printing it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: forwardog history replay [-submit] <id>")
	}

	id := fs.Arg(0)
	entry, ok := a.history.FindByID(id)
	if !ok {
		return fmt.Errorf("history entry %q not found", id)
	}
	state, err := a.history.Replay(id)
	if err != nil {
		return err
	}

	if !*submit {
		return printJSON(a, map[string]any{"kind": entry.Kind, "state": state})
	}
	if result := a.dispatcher(a.terminal()).Submit(ctx, entry.Kind, state); !result.Success {
		return errFailed
	}
	return nil
}

func historyClear(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history clear", flag.ContinueOnError)
	fs.SetOutput(a.out)
	yes := fs.Bool("yes", false, "Confirm clearing all history")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("refusing to clear %d history entries without -yes", a.history.Len())
	}

	if err := a.history.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "History cleared")
	return nil
}

func historyExport(a *app, args []string) error {
	fs := flag.NewFlagSet("history export", flag.ContinueOnError)
	fs.SetOutput(a.out)
	format := fs.String("format", history.FormatJSON, "Export format: json, yaml or msgpack")
	output := fs.String("o", "", "Write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := a.history.Export(*format)
	if err != nil {
		return err
	}

	if *output == "" {
		_, err = a.out.Write(data)
		return err
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Fprintf(a.out, "Exported %d entries to %s\n", a.history.Len(), *output)
	return nil
}

func printJSON(a *app, v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
