// Package main implements the main entry point for the SNES sprite editor
package main

import (
	"context"
	"errors"
	"os"

	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"
	"github.com/semmlerino/spritepal/internal/cli"
	"github.com/semmlerino/spritepal/internal/config"
	"github.com/semmlerino/spritepal/internal/fileprocessor"
	"github.com/semmlerino/spritepal/internal/pipeline"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx := app.Context()

	opts, err := cli.ParseFlags()
	if err != nil {
		logger := config.CreateLogger(opts.Debug, opts.Quiet, config.DefaultSettings())
		var usageErr *cli.UsageError
		if errors.As(err, &usageErr) {
			fileprocessor.PrintBanner(logger, opts, version, commit, date)
			if msg := usageErr.Error(); msg != "" {
				logger.Error(msg)
			}
			usageErr.ShowUsage()
		} else {
			logger.Fatal(err.Error())
		}
		os.Exit(1)
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = config.DefaultEnvFile
	}
	settings, err := config.LoadSettings(envFile)
	if err != nil {
		config.CreateLogger(opts.Debug, opts.Quiet, config.DefaultSettings()).Fatal(err.Error())
	}
	if opts.Config != "" {
		settings.SpriteConfig = opts.Config
	}

	logger := config.CreateLogger(opts.Debug, opts.Quiet, settings)
	fileprocessor.PrintBanner(logger, opts, version, commit, date)

	files, err := fileprocessor.GetFilesToProcess(&opts)
	if err != nil {
		logger.Fatal(err.Error())
	}
	if len(files) > 1 {
		opts.Output = ""
	}

	p := pipeline.New(logger, settings, os.Stdout)
	for _, file := range files {
		opts.Input = file

		if err := p.Execute(ctx, opts); err != nil {
			// Handle context cancellation (Ctrl+C) gracefully
			if errors.Is(err, context.Canceled) {
				logger.Info("Operation cancelled")
				return
			}
			logger.Error("Command failed",
				log.String("command", opts.Command),
				log.String("file", file),
				log.Err(err))
		}
	}
}
