package main

import (
	"context"
	"flag"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/config"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/logging"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/mcpserver"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/status"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/toolbox"
)

type statusOptions struct {
	bidsFolder  string
	results     string
	participant string
	config      string
	tui         bool
	textColor   string
	http        string
}

func addStatusFlags(fs *flag.FlagSet, o *statusOptions) {
	fs.StringVar(&o.bidsFolder, "b", "", "Path to the BIDS folder.")
	fs.StringVar(&o.results, "r", "", "Path to the results folder.")
	fs.StringVar(&o.config, "config", "", "Configuration file (default "+config.DefaultPath()+").")
}

func newStatusFlags(o *statusOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	addStatusFlags(fs, o)
	fs.StringVar(&o.participant, "p", "", "Only show this participant, e.g. sub-001.")
	fs.BoolVar(&o.tui, "tui", false, "Browse the artifacts in a text user interface.")
	fs.StringVar(&o.textColor, "text-color", "white", "Color of the text in the text user interface.")
	return fs
}

func newMCPFlags(o *statusOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	addStatusFlags(fs, o)
	fs.StringVar(&o.http, "http", "", "Listen for streamable HTTP requests on this address, e.g. localhost:8080.\nThe default serves on stdin/stdout.")
	return fs
}

type checkOptions struct {
	config      string
	writeConfig bool
}

func newCheckFlags(o *checkOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&o.config, "config", "", "Configuration file (default "+config.DefaultPath()+").")
	fs.BoolVar(&o.writeConfig, "write-config", false, "Write the effective configuration to the configuration file.")
	return fs
}

// collector reads the mirror and the ledger when they are configured. Both
// are optional for a report.
func (o *statusOptions) collector(ctx context.Context, logger log.FieldLogger) (*status.Collector, func(), error) {
	cfg, err := loadConfig(o.config)
	if err != nil {
		return nil, nil, err
	}
	layout := bids.Layout{BIDS: o.bidsFolder, Results: o.results}
	c := &status.Collector{Layout: layout}
	closeFn := func() {}
	m, err := openMirror(ctx, cfg)
	if err != nil {
		logger.WithError(err).Warn("mirror not available")
	} else if m != nil {
		c.Mirror = m
	}
	if led := openHistory(ctx, cfg, layout.Results, logger); led != nil {
		c.History = led
		closeFn = func() { led.Close() }
	}
	return c, closeFn, nil
}

func (c *cli) status(args []string) error {
	var o statusOptions
	fs := newStatusFlags(&o)
	if err := parse(fs, c.stderr, args, "b", "r"); err != nil {
		return err
	}
	logger, err := logging.New(c.stderr, "warn")
	if err != nil {
		return err
	}
	ctx := context.Background()
	collector, closeFn, err := o.collector(ctx, logger)
	if err != nil {
		return err
	}
	defer closeFn()
	report, err := collector.Collect(ctx, o.participant)
	if err != nil {
		return err
	}
	if o.tui {
		return status.NewTUI(report, collector.Layout, o.textColor).Run()
	}
	report.WriteTable(c.stdout)
	return nil
}

func (c *cli) mcp(args []string) error {
	var o statusOptions
	fs := newMCPFlags(&o)
	if err := parse(fs, c.stderr, args, "b", "r"); err != nil {
		return err
	}
	// stdout carries the protocol
	logger, err := logging.New(c.stderr, "info")
	if err != nil {
		return err
	}
	ctx, stop := c.signalContext()
	defer stop()
	collector, closeFn, err := o.collector(ctx, logger)
	if err != nil {
		return err
	}
	defer closeFn()
	return interrupted(ctx, mcpserver.New(collector, version+compileDate, logger).Serve(ctx, o.http))
}

func (c *cli) check(args []string) error {
	var o checkOptions
	fs := newCheckFlags(&o)
	if err := parse(fs, c.stderr, args); err != nil {
		return err
	}
	cfg, err := loadConfig(o.config)
	if err != nil {
		return err
	}
	if o.writeConfig {
		path := o.config
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.SaveConfig(cfg, path); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Configuration written to %s\n", path)
	}
	tools := toolsFromConfig(cfg)
	if err := toolbox.Preflight(tools.Required(true)); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "All %d programs found.\n", len(tools.Required(true)))
	return nil
}
