package toolbox

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// ManualLabelMessage is shown in the manual disc labeling viewer.
const ManualLabelMessage = "Place labels at the posterior tip of each inter-vertebral disc. E.g. Label 3: C2/C3, Label 4: C3/C4, etc."

// Tools holds the program names and formats the command lines of the
// pipeline.
type Tools struct {
	Converter      string
	Segment        string
	LabelVertebrae string
	LabelUtils     string
	Register       string
	ApplyTransfo   string
	Viewer         string
	QCOpener       string

	SegmentationColormap string
	Opacity              float64
}

// Processing lists the programs needed by the per-contrast stage, the QC
// report opener included.
func (t Tools) Processing() []string {
	return []string{t.Segment, t.LabelVertebrae, t.LabelUtils, t.Register, t.ApplyTransfo, t.Viewer, t.OpenQC("").Name}
}

// Required lists every program a run needs. The converter is only needed
// when conversion runs.
func (t Tools) Required(convert bool) []string {
	names := t.Processing()
	if convert {
		names = append([]string{t.Converter}, names...)
	}
	return names
}

// SCTContrast maps a BIDS suffix to the -c option of the toolbox.
func SCTContrast(suffix string) string {
	switch suffix {
	case "T1w":
		return "t1"
	case "T2star":
		return "t2s"
	case "dwi":
		return "dwi"
	}
	return "t2"
}

// Convert runs dcm2niix with gzip output, series description and number in
// the file name, and derived/localizer images ignored.
func (t Tools) Convert(dicomDir, outDir string) Command {
	return Command{Name: t.Converter, Args: []string{"-z", "y", "-f", "%d_%s", "-i", "y", "-o", outDir, dicomDir}}
}

// SegmentCord runs the automatic spinal cord segmentation.
func (t Tools) SegmentCord(image, contrast, out, qc string) Command {
	return Command{Name: t.Segment, Args: []string{"-i", image, "-c", contrast, "-o", out, "-qc", qc}}
}

// LabelDiscs runs automatic vertebral labeling to get disc labels.
func (t Tools) LabelDiscs(image, seg, contrast, ofolder, qc string) Command {
	return Command{Name: t.LabelVertebrae, Args: []string{"-i", image, "-s", seg, "-c", contrast, "-ofolder", ofolder, "-qc", qc}}
}

// LabelDiscsManually opens the toolbox viewer to place disc labels by hand.
func (t Tools) LabelDiscsManually(image, out string) Command {
	return Command{Name: t.LabelUtils, Args: []string{"-i", image, "-create-viewer", "1:25", "-o", out, "-msg", ManualLabelMessage}}
}

// LabelVertebraeFromDiscs labels the segmentation using existing disc labels.
func (t Tools) LabelVertebraeFromDiscs(image, seg, contrast, discs, ofolder, qc string) Command {
	return Command{Name: t.LabelVertebrae, Args: []string{"-i", image, "-s", seg, "-c", contrast, "-discfile", discs, "-ofolder", ofolder, "-qc", qc}}
}

// RegisterIdentity brings src into the space of dst without moving it.
func (t Tools) RegisterIdentity(src, dst, ofolder string) Command {
	return Command{Name: t.Register, Args: []string{"-i", src, "-d", dst, "-identity", "1", "-x", "nn", "-ofolder", ofolder}}
}

// ApplyLabelTransform warps a label image with nearest label interpolation.
func (t Tools) ApplyLabelTransform(labels, dst, warp, out string) Command {
	return Command{Name: t.ApplyTransfo, Args: []string{"-i", labels, "-d", dst, "-w", warp, "-x", "label", "-o", out}}
}

// View opens the viewer with the segmentation on top of the image.
func (t Tools) View(image, seg string) Command {
	cm := t.SegmentationColormap
	if cm == "" {
		cm = "red"
	}
	opacity := t.Opacity
	if opacity == 0 {
		opacity = 70
	}
	return Command{Name: t.Viewer, Args: []string{image, "-cm", "greyscale", seg, "-cm", cm, "-a", strconv.FormatFloat(opacity, 'f', 1, 64)}}
}

// OpenQC opens the QC report index in the browser.
func (t Tools) OpenQC(qcDir string) Command {
	name := t.QCOpener
	if name == "" {
		name = "xdg-open"
		if runtime.GOOS == "darwin" {
			name = "open"
		}
	}
	return Command{Name: name, Args: []string{filepath.Join(qcDir, "index.html")}}
}

func base(path string) string {
	b := filepath.Base(path)
	b = strings.TrimSuffix(b, ".gz")
	return strings.TrimSuffix(b, ".nii")
}

// WarpName is the forward warp written by RegisterIdentity into ofolder.
func WarpName(src, dst string) string {
	return "warp_" + base(src) + "2" + base(dst) + ".nii.gz"
}

// LabeledDiscsName is the disc label file written by LabelDiscs into ofolder.
func LabeledDiscsName(seg string) string {
	return base(seg) + "_labeled_discs.nii.gz"
}
