// Package pipeline runs the per-contrast processing of a scan visit. Each
// contrast label is dispatched to the sagittal or axial routine; labels
// without a routine are skipped with a warning.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
)

// ErrMissingDependency is returned when an axial contrast has no sagittal
// contrast to take its disc labels from.
var ErrMissingDependency = errors.New("missing sagittal dependency")

// Routine is the processing applied to a contrast.
type Routine int

const (
	Sagittal Routine = iota + 1
	Axial
)

func (r Routine) String() string {
	switch r {
	case Sagittal:
		return "sagittal"
	case Axial:
		return "axial"
	}
	return "unknown"
}

var dispatch = map[string]Routine{
	"T2w":           Sagittal,
	"acq-sag_T2w":   Sagittal,
	"acq-axial_T2w": Axial,
}

// sagittalLabels are the contrasts an axial contrast can depend on, in
// lookup order.
var sagittalLabels = []string{"acq-sag_T2w", "T2w"}

// Lookup returns the routine of a contrast label.
func Lookup(label string) (Routine, bool) {
	r, ok := dispatch[label]
	return r, ok
}

// Step is one contrast to process.
type Step struct {
	Label    string
	Contrast bids.Contrast
	Routine  Routine
	// Sagittal is the contrast an axial step takes its disc labels from.
	Sagittal bids.Contrast
}

// Plan is the ordered list of steps of a run.
type Plan struct {
	Subject bids.Subject
	Steps   []Step
	// Skipped lists labels without a routine.
	Skipped []string
}

// NewPlan dispatches labels in order. An axial label needs a sagittal label
// earlier in the list, or the sagittal working image and disc labels of an
// earlier run in the working folder.
func NewPlan(layout bids.Layout, subject bids.Subject, labels []string) (*Plan, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	p := &Plan{Subject: subject}
	for i, label := range labels {
		routine, ok := Lookup(label)
		if !ok {
			p.Skipped = append(p.Skipped, label)
			continue
		}
		c, err := bids.ParseContrast(label)
		if err != nil {
			return nil, err
		}
		step := Step{Label: label, Contrast: c, Routine: routine}
		if routine == Axial {
			sag, err := findSagittal(layout, subject, labels[:i])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", label, err)
			}
			step.Sagittal = sag
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

func findSagittal(layout bids.Layout, subject bids.Subject, earlier []string) (bids.Contrast, error) {
	for _, label := range sagittalLabels {
		for _, e := range earlier {
			if e == label {
				return bids.ParseContrast(label)
			}
		}
	}
	var missing []string
	for _, label := range sagittalLabels {
		c, err := bids.ParseContrast(label)
		if err != nil {
			return c, err
		}
		m := missingSagittalFiles(layout, subject, c)
		if len(m) == 0 {
			return c, nil
		}
		missing = append(missing, m...)
	}
	return bids.Contrast{}, fmt.Errorf("%w: list a sagittal contrast (%s) before it or provide %s",
		ErrMissingDependency, strings.Join(sagittalLabels, " or "), strings.Join(missing, ", "))
}

// missingSagittalFiles lists the working files an axial step reads from a
// sagittal contrast that do not exist.
func missingSagittalFiles(layout bids.Layout, subject bids.Subject, c bids.Contrast) []string {
	var missing []string
	for _, kind := range []bids.Kind{bids.RawImage, bids.DiscLabels} {
		path := layout.Working(bids.NewKey(subject, c, kind))
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	return missing
}
