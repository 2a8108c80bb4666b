package main

import (
	"context"
	"errors"
	"flag"

	"github.com/oicur0t/forwardog/internal/follow"
	"github.com/oicur0t/forwardog/internal/present"
	"go.uber.org/zap"
)

func runFollow(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("follow", flag.ContinueOnError)
	fs.SetOutput(a.out)
	fromStart := fs.Bool("from-start", false, "Read the file from the beginning when there is no saved position")
	service := fs.String("service", a.cfg.Follow.Service, "Service name attached to each batch")
	source := fs.String("source", a.cfg.Follow.Source, "Log source attached to each batch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: forwardog follow [-from-start] <file>")
	}

	cfg := a.cfg.Follow
	cfg.Service = *service
	cfg.Source = *source

	a.logger.Info("Starting follow",
		zap.String("file", fs.Arg(0)),
		zap.Int("max_lines", cfg.MaxLines),
		zap.Duration("max_wait", cfg.MaxWait))

	term := a.terminal()
	err := follow.New(fs.Arg(0), cfg, *fromStart, a.dispatcher(term), a.logger).Run(ctx)

	if a.verbose {
		a.terminalPalette().Muted.Fprintln(a.out, "Recent outcomes:")
		present.RenderFeed(a.out, term.Feed())
	}
	return err
}
