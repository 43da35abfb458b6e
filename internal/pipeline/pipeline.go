package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/artifact"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/prompt"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/toolbox"
)

// DiscLabelQuestion is asked after the QC report with the automatic disc
// labels was opened.
const DiscLabelQuestion = "Are the disc labels correct?"

// Pipeline processes the contrasts of one visit.
type Pipeline struct {
	Resolver *artifact.Resolver
	Tools    toolbox.Tools
	Runner   toolbox.Runner
	Prompt   *prompt.Prompter
	Log      log.FieldLogger
}

// Report lists what a run did.
type Report struct {
	Processed   []Step
	Skipped     []string
	Resolutions []artifact.Result
}

func (p *Pipeline) logger() log.FieldLogger {
	if p.Log == nil {
		return log.StandardLogger()
	}
	return p.Log
}

// Run plans labels and executes the steps in order. The first failing
// step ends the run.
func (p *Pipeline) Run(ctx context.Context, subject bids.Subject, labels []string) (*Report, error) {
	layout := p.Resolver.Store().Layout()
	plan, err := NewPlan(layout, subject, labels)
	if err != nil {
		return nil, err
	}
	report := &Report{Skipped: plan.Skipped}
	for _, label := range plan.Skipped {
		p.logger().Warnf("contrast %s is not supported, skipping it", label)
	}
	for _, step := range plan.Steps {
		p.logger().WithFields(log.Fields{
			"participant": subject.Participant,
			"session":     subject.Session,
			"contrast":    step.Label,
		}).Infof("processing %s contrast", step.Routine)
		var res []artifact.Result
		switch step.Routine {
		case Sagittal:
			res, err = p.sagittal(ctx, subject, step.Contrast)
		case Axial:
			res, err = p.axial(ctx, subject, step.Contrast, step.Sagittal)
		}
		report.Resolutions = append(report.Resolutions, res...)
		if err != nil {
			return report, err
		}
		report.Processed = append(report.Processed, step)
	}
	return report, nil
}

// stage copies the raw image of c into the working folder.
func (p *Pipeline) stage(subject bids.Subject, c bids.Contrast) (string, error) {
	layout := p.Resolver.Store().Layout()
	key := bids.NewKey(subject, c, bids.RawImage)
	raw := layout.Raw(key)
	if _, err := os.Stat(raw); err != nil {
		return "", fmt.Errorf("raw image of %s is missing, run the conversion first: %s", c, raw)
	}
	if err := os.MkdirAll(layout.WorkingDir(subject, c.Datatype()), 0755); err != nil {
		return "", err
	}
	working := layout.Working(key)
	if _, err := artifact.Stage(raw, working); err != nil {
		return "", fmt.Errorf("stage %s: %w", raw, err)
	}
	return working, nil
}

// segmentation resolves the spinal cord segmentation of the staged image.
// The review opens the viewer where the segmentation can be edited in place
// and always accepts.
func (p *Pipeline) segmentation(ctx context.Context, key bids.Key) (artifact.Result, error) {
	layout := p.Resolver.Store().Layout()
	image := layout.Working(key.As(bids.RawImage))
	seg := layout.Working(key.As(bids.SpinalCordSegmentation))
	return p.Resolver.Resolve(ctx, artifact.Request{
		Key: key.As(bids.SpinalCordSegmentation),
		Compute: func(ctx context.Context) error {
			return p.Runner.Run(ctx, p.Tools.SegmentCord(image, toolbox.SCTContrast(key.Contrast.Suffix), seg, layout.QCDir()))
		},
		Review: func(ctx context.Context) (artifact.Decision, error) {
			p.logger().Info("check the segmentation in the viewer, correct it if needed, save and close the viewer")
			if err := p.Runner.Run(ctx, p.Tools.View(image, seg)); err != nil {
				return artifact.Reject, err
			}
			return artifact.Accept, nil
		},
	})
}

// discLabels resolves the disc labels of a sagittal image. The operator
// checks the QC report; a rejection opens the manual labeling viewer.
func (p *Pipeline) discLabels(ctx context.Context, key bids.Key) (artifact.Result, error) {
	layout := p.Resolver.Store().Layout()
	image := layout.Working(key.As(bids.RawImage))
	seg := layout.Working(key.As(bids.SpinalCordSegmentation))
	discs := layout.Working(key.As(bids.DiscLabels))
	dir := filepath.Dir(image)
	return p.Resolver.Resolve(ctx, artifact.Request{
		Key: key.As(bids.DiscLabels),
		Compute: func(ctx context.Context) error {
			if err := p.Runner.Run(ctx, p.Tools.LabelDiscs(image, seg, toolbox.SCTContrast(key.Contrast.Suffix), dir, layout.QCDir())); err != nil {
				return err
			}
			err := os.Rename(filepath.Join(dir, toolbox.LabeledDiscsName(seg)), discs)
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		},
		Review: func(ctx context.Context) (artifact.Decision, error) {
			if err := p.Runner.Run(ctx, p.Tools.OpenQC(layout.QCDir())); err != nil {
				return artifact.Reject, err
			}
			ok, err := p.Prompt.YesNo(DiscLabelQuestion)
			if err != nil {
				return artifact.Reject, err
			}
			if ok {
				return artifact.Accept, nil
			}
			return artifact.Reject, nil
		},
		Correct: func(ctx context.Context) error {
			return p.Runner.Run(ctx, p.Tools.LabelDiscsManually(image, discs))
		},
	})
}

// vertebrae labels the segmentation from the disc labels.
func (p *Pipeline) vertebrae(ctx context.Context, key bids.Key) error {
	layout := p.Resolver.Store().Layout()
	image := layout.Working(key.As(bids.RawImage))
	return p.Runner.Run(ctx, p.Tools.LabelVertebraeFromDiscs(
		image,
		layout.Working(key.As(bids.SpinalCordSegmentation)),
		toolbox.SCTContrast(key.Contrast.Suffix),
		layout.Working(key.As(bids.DiscLabels)),
		filepath.Dir(image),
		layout.QCDir(),
	))
}

func (p *Pipeline) sagittal(ctx context.Context, subject bids.Subject, c bids.Contrast) ([]artifact.Result, error) {
	var out []artifact.Result
	if _, err := p.stage(subject, c); err != nil {
		return out, err
	}
	key := bids.NewKey(subject, c, bids.RawImage)
	res, err := p.segmentation(ctx, key)
	if err != nil {
		return out, err
	}
	out = append(out, res)
	res, err = p.discLabels(ctx, key)
	if err != nil {
		return out, err
	}
	out = append(out, res)
	return out, p.vertebrae(ctx, key)
}

// axial takes the disc labels of the sagittal contrast sag into the space
// of the axial image.
func (p *Pipeline) axial(ctx context.Context, subject bids.Subject, c, sag bids.Contrast) ([]artifact.Result, error) {
	var out []artifact.Result
	layout := p.Resolver.Store().Layout()
	if missing := missingSagittalFiles(layout, subject, sag); len(missing) > 0 {
		return out, fmt.Errorf("%s: %w: %v", c, ErrMissingDependency, missing)
	}
	image, err := p.stage(subject, c)
	if err != nil {
		return out, err
	}
	key := bids.NewKey(subject, c, bids.RawImage)
	res, err := p.segmentation(ctx, key)
	if err != nil {
		return out, err
	}
	out = append(out, res)

	sagKey := bids.NewKey(subject, sag, bids.RawImage)
	sagImage := layout.Working(sagKey)
	dir := filepath.Dir(image)
	if err := p.Runner.Run(ctx, p.Tools.RegisterIdentity(sagImage, image, dir)); err != nil {
		return out, err
	}
	warp := filepath.Join(dir, toolbox.WarpName(sagImage, image))
	discs := layout.Working(key.As(bids.DiscLabels))
	if err := p.Runner.Run(ctx, p.Tools.ApplyLabelTransform(layout.Working(sagKey.As(bids.DiscLabels)), image, warp, discs)); err != nil {
		return out, err
	}
	return out, p.vertebrae(ctx, key)
}
