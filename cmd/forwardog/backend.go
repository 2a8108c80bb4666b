package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/oicur0t/forwardog/internal/prefs"
	"github.com/oicur0t/forwardog/internal/presets"
	"github.com/oicur0t/forwardog/pkg/models"
)

func runPresets(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("presets", flag.ContinueOnError)
	fs.SetOutput(a.out)
	asJSON := fs.Bool("json", false, "Print the full presets as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: forwardog presets [-json] <kind>; kinds: %s", kindList())
	}
	kind, err := models.ParseKind(fs.Arg(0))
	if err != nil {
		return err
	}

	list, err := presets.Fetch(ctx, a.client, kind, time.Now())
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(a, list)
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
	for _, p := range list {
		id := p.ID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, p.Name, p.Description)
	}
	return tw.Flush()
}

func runValidateKey(ctx context.Context, a *app, args []string) error {
	status, err := a.client.ValidateKey(ctx)
	if err != nil {
		return err
	}

	palette := a.terminalPalette()
	if status.Valid {
		palette.Success.Fprintln(a.out, firstNonEmpty(status.Message, "API key is valid"))
		return nil
	}
	palette.Error.Fprintln(a.out, firstNonEmpty(status.Message, "API key is invalid"))
	return errFailed
}

func runAgentFile(ctx context.Context, a *app, args []string) error {
	const usage = "usage: forwardog agent-file recent [-n lines] | clear"
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "recent":
		fs := flag.NewFlagSet("agent-file recent", flag.ContinueOnError)
		fs.SetOutput(a.out)
		n := fs.Int("n", 20, "Number of lines to show")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		recent, err := a.client.AgentFileRecent(ctx, *n)
		if err != nil {
			return err
		}
		if len(recent.Lines) == 0 {
			a.terminalPalette().Muted.Fprintf(a.out, "%s is empty\n", firstNonEmpty(recent.Path, "Agent log file"))
			return nil
		}
		for _, line := range recent.Lines {
			fmt.Fprintln(a.out, strings.TrimRight(line, "\r\n"))
		}
		return nil

	case "clear":
		result, err := a.client.ClearAgentFile(ctx)
		if err != nil {
			return err
		}
		palette := a.terminalPalette()
		if !result.Success {
			palette.Error.Fprintln(a.out, firstNonEmpty(result.Message, "Failed to clear the agent log file"))
			if result.ErrorHint != "" {
				palette.Muted.Fprintln(a.out, result.ErrorHint)
			}
			return errFailed
		}
		palette.Success.Fprintln(a.out, firstNonEmpty(result.Message, "Agent log file cleared"))
		return nil
	}
	return errors.New(usage)
}

func runConfig(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(a.out)
	asJSON := fs.Bool("json", false, "Print the backend settings as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := a.client.Settings(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(a, settings)
	}

	configured := "no"
	if settings.Configured {
		configured = "yes"
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "backend\t%s\n", a.cfg.Backend.URL)
	fmt.Fprintf(tw, "configured\t%s\n", configured)
	fmt.Fprintf(tw, "api key\t%s\n", settings.MaskedAPIKey)
	fmt.Fprintf(tw, "site\t%s\n", settings.Site)
	fmt.Fprintf(tw, "log path\t%s\n", settings.LogPath)
	return tw.Flush()
}

func runTheme(ctx context.Context, a *app, args []string) error {
	switch len(args) {
	case 0:
		fmt.Fprintln(a.out, a.theme)
		return nil
	case 1:
		theme, err := prefs.ParseTheme(args[0])
		if err != nil {
			return err
		}
		if err := prefs.SaveTheme(ctx, a.kv, theme); err != nil {
			return err
		}
		a.theme = theme
		fmt.Fprintf(a.out, "Theme set to %s\n", theme)
		return nil
	}
	return errors.New("usage: forwardog theme [light|dark]")
}
