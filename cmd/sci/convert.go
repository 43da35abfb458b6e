package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/config"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/convert"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/logging"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/toolbox"
)

type convertOptions struct {
	dicom       string
	bidsFolder  string
	participant string
	session     string
	contrasts   contrastList
	age         string
	sex         string
	config      string
	logLevel    string
	debug       bool
	preview     bool
}

// addConvertFlags registers the flags shared by convert and process.
func addConvertFlags(fs *flag.FlagSet, o *convertOptions) {
	fs.StringVar(&o.dicom, "d", "", "Path to the folder with the DICOM images of the session.")
	fs.StringVar(&o.bidsFolder, "b", "", "Path to the BIDS folder.")
	fs.StringVar(&o.participant, "p", "", "Participant ID, e.g. sub-001.")
	fs.StringVar(&o.session, "s", "", "Session ID, e.g. ses-01.")
	fs.Var(&o.contrasts, "c", "MRI contrasts to convert, e.g. -c T2w acq-axial_T2w. The flag can be repeated.")
	fs.StringVar(&o.age, "a", "", "Age of the participant, optional.")
	fs.StringVar(&o.sex, "x", "", "Sex of the participant (M, F or n/a), optional.")
	fs.StringVar(&o.config, "config", "", "Configuration file (default "+config.DefaultPath()+").")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn or error.")
	fs.BoolVar(&o.debug, "debug", false, "Keep the temporary dcm2niix folder.")
	fs.BoolVar(&o.preview, "preview", false, "Print a preview of every DICOM series.")
}

func newConvertFlags(o *convertOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	addConvertFlags(fs, o)
	return fs
}

// invalid reports a bad flag value like a parse error.
func invalid(fs *flag.FlagSet, w io.Writer, err error) error {
	fmt.Fprintf(w, "invalid value: %v\n", err)
	fs.Usage()
	return errUsage
}

// conversionOptions checks the flag values and turns them into the options
// of a conversion. Only the contrasts keep accepts are parsed, a nil keep
// accepts all.
func (o *convertOptions) conversionOptions(keep func(label string) bool) (convert.Options, error) {
	opts := convert.Options{
		DICOMFolder: o.dicom,
		BIDSFolder:  o.bidsFolder,
		Subject:     bids.Subject{Participant: o.participant, Session: o.session},
		Age:         o.age,
		Sex:         o.sex,
		Debug:       o.debug,
		Preview:     o.preview,
	}
	for _, label := range o.contrasts {
		if keep != nil && !keep(label) {
			continue
		}
		c, err := bids.ParseContrast(label)
		if err != nil {
			return opts, err
		}
		opts.Contrasts = append(opts.Contrasts, c)
	}
	return opts, nil
}

func (c *cli) convert(args []string) error {
	var o convertOptions
	fs := newConvertFlags(&o)
	if err := parse(fs, c.stderr, expandMulti(args, "c"), "d", "b", "p", "s", "c"); err != nil {
		return err
	}
	opts, err := o.conversionOptions(nil)
	if err == nil {
		err = opts.Validate()
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
	if err := toolbox.Preflight([]string{tools.Converter}); err != nil {
		return err
	}

	ctx, stop := c.signalContext()
	defer stop()
	_, err = c.runConversion(ctx, tools, cfg.Logging.Level, opts)
	return interrupted(ctx, err)
}

// runConversion converts one session and logs to <bids>/logs.
func (c *cli) runConversion(ctx context.Context, tools toolbox.Tools, level string, opts convert.Options) (*convert.Result, error) {
	run, err := logging.Open(filepath.Join(opts.BIDSFolder, "logs"), logging.FileName("dicom_to_nifti", opts.Subject.Participant, opts.Subject.Session, time.Now()), c.stdout, level)
	if err != nil {
		return nil, err
	}
	defer run.Close()

	conv := &convert.Converter{
		Tools:  tools,
		Runner: &toolbox.ExecRunner{Stdout: c.stdout, Stderr: c.stderr, Log: run.Writer(), Logger: run},
		Prompt: c.prompter(),
		Out:    c.stdout,
		Log:    run,
	}
	res, err := conv.Run(ctx, opts)
	if err != nil {
		run.WithError(err).Error("conversion failed")
		return nil, err
	}
	if res.Skipped {
		run.Info("Conversion skipped, the existing BIDS folder is kept")
	}
	return res, nil
}
