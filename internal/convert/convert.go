// Package convert turns a folder of DICOM files into the raw images of a BIDS
// session. The converter writes into a temporary folder, the operator picks
// one image per contrast and the picks are copied under their BIDS names.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/artifact"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/dicomscan"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/prompt"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/toolbox"
)

// TempFolder is created inside the session folder for the converter output.
const TempFolder = "temp_dcm2niix"

const rule = "----------------------------------------------------------------------------------------------------"

// Options are the inputs of one conversion.
type Options struct {
	DICOMFolder string
	BIDSFolder  string
	Subject     bids.Subject
	Contrasts   []bids.Contrast
	Age         string
	Sex         string
	// Debug keeps the temporary folder.
	Debug bool
	// Preview prints one frame per DICOM series as ASCII art.
	Preview bool
}

// Validate checks the options before anything is written.
func (o Options) Validate() error {
	if o.DICOMFolder == "" || o.BIDSFolder == "" {
		return errors.New("dicom and bids folders are required")
	}
	if err := o.Subject.Validate(); err != nil {
		return err
	}
	if len(o.Contrasts) == 0 {
		return errors.New("at least one contrast is required")
	}
	if o.Sex != "" && !bids.ValidSex(o.Sex) {
		return fmt.Errorf("sex %q must be one of M, F or %s", o.Sex, bids.NotAvailable)
	}
	return nil
}

// Result lists what a conversion produced.
type Result struct {
	// Skipped is set when the operator kept an existing session folder.
	Skipped bool
	// Images maps each contrast label to its raw image path.
	Images map[string]string
	// Registered is set when a new participants.tsv was created.
	Registered bool
}

// Converter runs the conversion with an operator at the terminal.
type Converter struct {
	Tools  toolbox.Tools
	Runner toolbox.Runner
	Prompt *prompt.Prompter
	// Out receives the tables shown to the operator.
	Out io.Writer
	Log log.FieldLogger
	// Scan inventories the DICOM folder, dicomscan.Scan when nil.
	Scan func(root string) (*dicomscan.Inventory, error)
}

// Run converts opts.DICOMFolder into the session folder of opts.Subject.
func (c *Converter) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := c.Log
	if logger == nil {
		logger = log.StandardLogger()
	}
	layout := bids.Layout{BIDS: opts.BIDSFolder}

	logger.Info(rule)
	logger.Info("Starting DICOM to NIfTI conversion")
	logger.Info(rule)
	logger.Infof("Dicom folder: %s", opts.DICOMFolder)
	logger.Infof("BIDS folder: %s", opts.BIDSFolder)
	logger.Infof("Participant ID: %s", opts.Subject.Participant)
	logger.Infof("Session ID: %s", opts.Subject.Session)
	logger.Infof("MRI contrasts to use: %s", contrastList(opts.Contrasts))
	logger.Infof("Age: %s", orNA(opts.Age))
	logger.Infof("Sex: %s", orNA(opts.Sex))
	logger.Info(rule)

	if st, err := os.Stat(opts.DICOMFolder); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("provided folder with DICOM images does not exist: %s", opts.DICOMFolder)
	}
	scan := c.Scan
	if scan == nil {
		scan = dicomscan.Scan
	}
	inv, err := scan(opts.DICOMFolder)
	if err != nil {
		return nil, err
	}
	logger.Info(inv.Summary())
	if len(inv.Series) == 0 {
		return nil, fmt.Errorf("no DICOM files found in %s", opts.DICOMFolder)
	}
	inv.WriteTable(c.Out)
	if opts.Preview {
		for _, s := range inv.Series {
			fmt.Fprintf(c.Out, "%03d %s\n", s.SeriesNumber, s.SeriesDescription)
			if err := dicomscan.Preview(c.Out, s.Path, 60); err != nil {
				logger.WithError(err).Warn("no preview")
			}
		}
	}

	sessionDir := layout.SessionDir(opts.Subject)
	if _, err := os.Stat(sessionDir); err == nil {
		logger.Warnf("BIDS folder for the provided participant and session already exists: %s", sessionDir)
		overwrite, err := c.Prompt.YesNo("Do you want to overwrite the existing folder?")
		if err != nil {
			return nil, err
		}
		if !overwrite {
			logger.Info("Skipping the DICOM to NIfTI conversion.")
			return &Result{Skipped: true}, nil
		}
		logger.Info("Overwriting the existing folder.")
		if err := os.RemoveAll(sessionDir); err != nil {
			return nil, fmt.Errorf("failed to remove existing folder: %w", err)
		}
		logger.Infof("Removed existing folder: %s", sessionDir)
	}
	tempDir := filepath.Join(sessionDir, TempFolder)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, err
	}
	logger.Infof("Converted NIfTI images will be stored in: %s", sessionDir)

	logger.Info("Starting DICOM to NIfTI conversion using dcm2niix...")
	if err := c.Runner.Run(ctx, c.Tools.Convert(opts.DICOMFolder, tempDir)); err != nil {
		return nil, err
	}
	logger.Info(rule)
	logger.Info("DICOM to NIfTI is done. Please review the images and select images for further processing.")
	logger.Info(rule)

	candidates, err := ListCandidates(tempDir)
	if err != nil {
		return nil, err
	}
	WriteCandidates(c.Out, candidates)

	picks := make([]Candidate, len(opts.Contrasts))
	for i, contrast := range opts.Contrasts {
		var accept func(int) error
		if contrast.Suffix == "dwi" {
			accept = func(row int) error { return checkDWI(candidates[row].Path) }
		}
		row, err := c.Prompt.Row(fmt.Sprintf("Please specify the row number of the %s image you want to use", contrast), len(candidates), accept)
		if err != nil {
			return nil, err
		}
		picks[i] = candidates[row]
		logger.Infof("Selected %s image: %s", contrast, picks[i].FileName)
	}

	res := &Result{Images: map[string]string{}}
	for i, contrast := range opts.Contrasts {
		dst := layout.Raw(bids.NewKey(opts.Subject, contrast, bids.RawImage))
		if err := copyToBIDS(picks[i].Path, dst, contrast.Suffix == "dwi"); err != nil {
			return nil, err
		}
		logger.Infof("Copying %s to %s", picks[i].Path, dst)
		res.Images[contrast.String()] = dst
	}

	if opts.Debug {
		logger.Infof("Temporary folder with NIfTI images is stored in: %s", tempDir)
	} else {
		logger.Infof("Removing the temporary folder %s", tempDir)
		if err := os.RemoveAll(tempDir); err != nil {
			return nil, err
		}
	}

	logger.Info(rule)
	logger.Infof("All files have been successfully converted and validated. You can find the images in the BIDS folder: %s", sessionDir)
	logger.Info(rule)

	created, err := bids.UpsertParticipant(layout.Participants(), bids.Participant{
		ParticipantID: opts.Subject.Participant,
		SessionID:     opts.Subject.Session,
		SourceID:      filepath.Base(filepath.Clean(opts.DICOMFolder)),
		Age:           opts.Age,
		Sex:           opts.Sex,
	})
	if err != nil {
		return nil, err
	}
	if created {
		logger.Infof("Created new participants.tsv file at %s", layout.Participants())
	}
	logger.Infof("Added entry for %s to participants.tsv", opts.Subject)
	res.Registered = created
	return res, nil
}

// copyToBIDS copies the image with its sidecar, and the gradient files of a
// DWI image.
func copyToBIDS(src, dst string, dwi bool) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if _, err := artifact.Stage(src, dst); err != nil {
		return err
	}
	if !dwi {
		return nil
	}
	srcBase, dstBase := strings.TrimSuffix(src, ".nii.gz"), strings.TrimSuffix(dst, ".nii.gz")
	for _, ext := range []string{".bval", ".bvec"} {
		b, err := os.ReadFile(srcBase + ext)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dstBase+ext, b, 0644); err != nil {
			return err
		}
	}
	return nil
}

func contrastList(cs []bids.Contrast) string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.String()
	}
	return strings.Join(names, " ")
}

func orNA(s string) string {
	if s == "" {
		return bids.NotAvailable
	}
	return s
}
