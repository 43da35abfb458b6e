package toolbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestPreflightReportsEveryMissingTool(t *testing.T) {
	present := map[string]bool{"dcm2niix": true, "fsleyes": true}
	lookPath := func(name string) (string, error) {
		if present[name] {
			return "/usr/bin/" + name, nil
		}
		return "", exec.ErrNotFound
	}
	err := preflight([]string{"dcm2niix", "sct_deepseg_sc", "fsleyes", "sct_label_vertebrae", "sct_deepseg_sc"}, lookPath)
	var missing *MissingToolsError
	if !errors.As(err, &missing) {
		t.Fatalf("preflight() error = %v, want MissingToolsError", err)
	}
	want := []string{"sct_deepseg_sc", "sct_label_vertebrae"}
	if !reflect.DeepEqual(missing.Names, want) {
		t.Errorf("missing = %v, want %v", missing.Names, want)
	}
	for _, name := range want {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
	if err := preflight([]string{"dcm2niix"}, lookPath); err != nil {
		t.Errorf("preflight() = %v, want nil", err)
	}
}

func testTools() Tools {
	return Tools{
		Converter:      "dcm2niix",
		Segment:        "sct_deepseg_sc",
		LabelVertebrae: "sct_label_vertebrae",
		LabelUtils:     "sct_label_utils",
		Register:       "sct_register_multimodal",
		ApplyTransfo:   "sct_apply_transfo",
		Viewer:         "fsleyes",
		QCOpener:       "xdg-open",
	}
}

func TestCommandLines(t *testing.T) {
	tools := testTools()
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"convert", tools.Convert("/dicom", "/tmp/out"), "dcm2niix -z y -f %d_%s -i y -o /tmp/out /dicom"},
		{"segment", tools.SegmentCord("a.nii.gz", "t2", "a_seg.nii.gz", "/qc"), "sct_deepseg_sc -i a.nii.gz -c t2 -o a_seg.nii.gz -qc /qc"},
		{"view", tools.View("a.nii.gz", "a_seg.nii.gz"), "fsleyes a.nii.gz -cm greyscale a_seg.nii.gz -cm red -a 70.0"},
		{"discs", tools.LabelDiscs("a.nii.gz", "s.nii.gz", "t2", "/w", "/qc"), "sct_label_vertebrae -i a.nii.gz -s s.nii.gz -c t2 -ofolder /w -qc /qc"},
		{"vertebrae", tools.LabelVertebraeFromDiscs("a.nii.gz", "s.nii.gz", "t2", "d.nii.gz", "/w", "/qc"), "sct_label_vertebrae -i a.nii.gz -s s.nii.gz -c t2 -discfile d.nii.gz -ofolder /w -qc /qc"},
		{"register", tools.RegisterIdentity("sag.nii.gz", "ax.nii.gz", "/w"), "sct_register_multimodal -i sag.nii.gz -d ax.nii.gz -identity 1 -x nn -ofolder /w"},
		{"transform", tools.ApplyLabelTransform("l.nii.gz", "ax.nii.gz", "w.nii.gz", "o.nii.gz"), "sct_apply_transfo -i l.nii.gz -d ax.nii.gz -w w.nii.gz -x label -o o.nii.gz"},
		{"qc", tools.OpenQC("/r/qc"), "xdg-open /r/qc/index.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
	manual := tools.LabelDiscsManually("a.nii.gz", "a_labels-disc.nii.gz")
	if got := manual.Args[len(manual.Args)-1]; got != ManualLabelMessage {
		t.Errorf("manual labeling message = %q", got)
	}
}

func TestRequired(t *testing.T) {
	tools := testTools()
	want := []string{"sct_deepseg_sc", "sct_label_vertebrae", "sct_label_utils", "sct_register_multimodal", "sct_apply_transfo", "fsleyes", "xdg-open"}
	if got := tools.Required(false); !reflect.DeepEqual(got, want) {
		t.Errorf("Required(false) = %v, want %v", got, want)
	}
	if got := tools.Required(true); len(got) != len(want)+1 || got[0] != "dcm2niix" {
		t.Errorf("Required(true) = %v", got)
	}

	tools.QCOpener = ""
	opener := "xdg-open"
	if runtime.GOOS == "darwin" {
		opener = "open"
	}
	if got := tools.Processing(); got[len(got)-1] != opener {
		t.Errorf("Processing() = %v, want %s last", got, opener)
	}
}

func TestNames(t *testing.T) {
	if got, want := WarpName("/w/sub-001_ses-01_acq-sag_T2w.nii.gz", "/w/sub-001_ses-01_acq-axial_T2w.nii.gz"), "warp_sub-001_ses-01_acq-sag_T2w2sub-001_ses-01_acq-axial_T2w.nii.gz"; got != want {
		t.Errorf("WarpName() = %v, want %v", got, want)
	}
	if got, want := LabeledDiscsName("/w/s_label-SC_seg.nii.gz"), "s_label-SC_seg_labeled_discs.nii.gz"; got != want {
		t.Errorf("LabeledDiscsName() = %v, want %v", got, want)
	}
}

func TestSCTContrast(t *testing.T) {
	tests := map[string]string{"T2w": "t2", "T1w": "t1", "T2star": "t2s", "dwi": "dwi", "PD": "t2"}
	for suffix, want := range tests {
		if got := SCTContrast(suffix); got != want {
			t.Errorf("SCTContrast(%q) = %v, want %v", suffix, got, want)
		}
	}
}

func TestExecRunnerExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	var out, logged bytes.Buffer
	var observed string
	r := &ExecRunner{Stdout: &out, Stderr: &out, Log: &logged, Observe: func(tool string, d time.Duration, err error) {
		observed = tool
	}}
	err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hello; exit 3"}})
	code, ok := ExitCode(err)
	if !ok || code != 3 {
		t.Errorf("ExitCode() = %d, %v, want 3, true", code, ok)
	}
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Cmd.Name != "sh" {
		t.Errorf("error %v is not a ToolError for sh", err)
	}
	if !strings.Contains(out.String(), "hello") || !strings.Contains(logged.String(), "hello") {
		t.Errorf("output not copied: out=%q log=%q", out.String(), logged.String())
	}
	if observed != "sh" {
		t.Errorf("Observe saw %q, want sh", observed)
	}
	if err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "true"}}); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

func TestExitCodeOfOtherErrors(t *testing.T) {
	if _, ok := ExitCode(errors.New("boom")); ok {
		t.Errorf("ExitCode() of a plain error should report false")
	}
}
