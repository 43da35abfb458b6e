package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/artifact"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/config"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/ledger"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/logging"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/metrics"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/pipeline"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/toolbox"
)

type processOptions struct {
	convertOptions
	results        string
	skipConversion bool
}

func newProcessFlags(o *processOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	addConvertFlags(fs, &o.convertOptions)
	fs.StringVar(&o.results, "r", "", "Path to the results folder.")
	fs.BoolVar(&o.skipConversion, "skip-conversion", false, "Use the images already in the BIDS folder, -d is not needed.")
	return fs
}

func (c *cli) process(args []string) error {
	var o processOptions
	fs := newProcessFlags(&o)
	if err := parse(fs, c.stderr, expandMulti(args, "c")); err != nil {
		return err
	}
	required := []string{"b", "r", "p", "s", "c"}
	if !o.skipConversion {
		required = append([]string{"d"}, required...)
	}
	if err := require(fs, c.stderr, required...); err != nil {
		return err
	}
	// Contrasts without a processing routine are neither converted nor
	// rejected, the pipeline warns about them.
	opts, err := o.conversionOptions(supported)
	converting := !o.skipConversion && len(opts.Contrasts) > 0
	if err == nil && converting {
		err = opts.Validate()
	}
	if err == nil {
		err = opts.Subject.Validate()
	}
	if err != nil {
		return invalid(fs, c.stderr, err)
	}

	cfg, err := loadConfig(o.config)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	tools := toolsFromConfig(cfg)
	if err := toolbox.Preflight(tools.Required(converting)); err != nil {
		return err
	}

	layout := bids.Layout{BIDS: o.bidsFolder, Results: o.results}
	if _, err := pipeline.NewPlan(layout, opts.Subject, o.contrasts); err != nil {
		return err
	}

	ctx, stop := c.signalContext()
	defer stop()
	if converting {
		if _, err := c.runConversion(ctx, tools, cfg.Logging.Level, opts); err != nil {
			return interrupted(ctx, err)
		}
	}
	return interrupted(ctx, c.runPipeline(ctx, cfg, tools, layout, opts.Subject, o.contrasts))
}

func supported(label string) bool {
	_, ok := pipeline.Lookup(label)
	return ok
}

// runPipeline processes the contrasts of one visit with a log file in the
// results folder.
func (c *cli) runPipeline(ctx context.Context, cfg *config.Config, tools toolbox.Tools, layout bids.Layout, subject bids.Subject, labels []string) error {
	start := time.Now()
	run, err := logging.Open(layout.LogDir(), logging.FileName("process", subject.Participant, subject.Session, start), c.stdout, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer run.Close()

	rec := metrics.New()
	if cfg.Metrics.Textfile != "" {
		defer func() {
			if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				run.WithError(err).Warn("could not write metrics")
			}
		}()
	}

	storeOpts := []artifact.StoreOption{artifact.WithLogger(run)}
	m, err := openMirror(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mirror: %w", err)
	}
	if m != nil {
		run.Infof("Verified artifacts are mirrored to s3://%s", cfg.Mirror.Bucket)
		storeOpts = append(storeOpts, artifact.WithMirror(m))
	}

	resolverOpts := []artifact.ResolverOption{artifact.WithObserver(rec), artifact.WithResolverLogger(run)}
	if led := openLedger(ctx, cfg, layout.Results, run); led != nil {
		defer led.Close()
		runID := ledger.NewRunID()
		run.WithField("run", runID).Debug("recording resolutions")
		resolverOpts = append(resolverOpts, artifact.WithRecorder(led, runID))
	}

	p := &pipeline.Pipeline{
		Resolver: artifact.NewResolver(artifact.NewStore(layout, storeOpts...), resolverOpts...),
		Tools:    tools,
		Runner: &toolbox.ExecRunner{
			Stdout:  c.stdout,
			Stderr:  c.stderr,
			Log:     run.Writer(),
			Logger:  run,
			Observe: rec.ObserveTool,
		},
		Prompt: c.prompter(),
		Log:    run,
	}
	report, err := p.Run(ctx, subject, labels)
	if report != nil {
		for _, r := range report.Resolutions {
			run.Infof("%s %s: %s", r.Key.Contrast, r.Key.Kind, r.Outcome)
		}
	}
	if err != nil {
		run.WithError(err).Error("processing failed")
		return err
	}
	run.Infof("Processed %d of %d contrasts in %s, log written to %s",
		len(report.Processed), len(labels), time.Since(start).Round(time.Second), run.Path)
	return nil
}
