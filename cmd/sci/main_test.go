package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"sci"}, args...), strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func qcOpener() string {
	if runtime.GOOS == "darwin" {
		return "open"
	}
	return "xdg-open"
}

// fakeTools puts an executable for every default program on PATH and
// returns the folder.
func fakeTools(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"dcm2niix", "sct_deepseg_sc", "sct_label_vertebrae", "sct_label_utils", "sct_register_multimodal", "sct_apply_transfo", "fsleyes", qcOpener()} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", dir)
	return dir
}

func noConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "config.yaml")
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "-version")
	if code != 0 || !strings.Contains(out, version) {
		t.Errorf("-version = %d %q", code, out)
	}
}

func TestUsage(t *testing.T) {
	code, _, errOut := runCLI(t)
	if code != 1 || !strings.Contains(errOut, "Option process:") {
		t.Errorf("no arguments = %d\n%s", code, errOut)
	}
	code, _, errOut = runCLI(t, "segment")
	if code != 1 || !strings.Contains(errOut, `unknown command "segment"`) {
		t.Errorf("unknown command = %d\n%s", code, errOut)
	}
}

func TestProcessMandatoryFlags(t *testing.T) {
	full := map[string]string{"d": "dicom", "b": "bids", "r": "results", "p": "sub-001", "s": "ses-01", "c": "T2w"}
	for missing := range full {
		var args []string
		for _, name := range []string{"d", "b", "r", "p", "s", "c"} {
			if name != missing {
				args = append(args, "-"+name, full[name])
			}
		}
		code, _, errOut := runCLI(t, append([]string{"process"}, args...)...)
		if code != 1 {
			t.Errorf("without -%s: exit %d, want 1", missing, code)
		}
		if !strings.Contains(errOut, "missing required flag: -"+missing+"\n") {
			t.Errorf("without -%s: stderr\n%s", missing, errOut)
		}
	}
}

func TestProcessInvalidArguments(t *testing.T) {
	base := []string{"process", "-d", "dicom", "-b", "bids", "-r", "results", "-s", "ses-01", "-c", "T2w"}
	for name, args := range map[string][]string{
		"unknown flag":   append(append([]string{}, base...), "-p", "sub-001", "-q"),
		"bad id":         append(append([]string{}, base...), "-p", "001"),
		"bad sex":        append(append([]string{}, base...), "-p", "sub-001", "-x", "male"),
		"extra argument": append(append([]string{}, base...), "-p", "sub-001", "--", "more"),
	} {
		code, _, errOut := runCLI(t, args...)
		if code != 1 || !strings.Contains(errOut, "Usage of process") {
			t.Errorf("%s: exit %d\n%s", name, code, errOut)
		}
	}
}

func TestConvertInvalidContrast(t *testing.T) {
	code, _, errOut := runCLI(t, "convert", "-d", "dicom", "-b", "bids", "-p", "sub-001", "-s", "ses-01", "-c", "T2w", "acq-sag")
	if code != 1 || !strings.Contains(errOut, "invalid value:") || !strings.Contains(errOut, "Usage of convert") {
		t.Errorf("exit %d\n%s", code, errOut)
	}
}

func TestProcessSkipsUnsupportedContrast(t *testing.T) {
	fakeTools(t)
	t.Setenv("SCI_LEDGER_DSN", "off")
	root := t.TempDir()
	code, out, errOut := runCLI(t, "process", "-skip-conversion",
		"-b", filepath.Join(root, "bids"), "-r", filepath.Join(root, "results"),
		"-p", "sub-001", "-s", "ses-01", "-c", "T2w", "flair_sag", "-config", noConfig(t))
	if strings.Contains(errOut, "invalid value") {
		t.Fatalf("flair_sag was rejected:\n%s", errOut)
	}
	if !strings.Contains(out, "contrast flair_sag is not supported, skipping it") {
		t.Errorf("no warning for flair_sag:\n%s", out)
	}
	// T2w is processed and stops at its missing raw image
	if code != 1 || !strings.Contains(errOut, "raw image of T2w is missing") {
		t.Errorf("exit %d\n%s", code, errOut)
	}
}

func TestProcessMissingTools(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	code, _, errOut := runCLI(t, "process", "-skip-conversion", "-b", "bids", "-r", "results",
		"-p", "sub-001", "-s", "ses-01", "-c", "T2w", "-config", noConfig(t))
	if code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
	for _, name := range []string{"sct_deepseg_sc", "sct_label_vertebrae", "fsleyes"} {
		if !strings.Contains(errOut, name) {
			t.Errorf("%s is not reported:\n%s", name, errOut)
		}
	}
	if strings.Contains(errOut, "dcm2niix") {
		t.Errorf("converter is not needed with -skip-conversion:\n%s", errOut)
	}
}

func TestProcessAxialWithoutSagittal(t *testing.T) {
	fakeTools(t)
	root := t.TempDir()
	code, _, errOut := runCLI(t, "process", "-skip-conversion",
		"-b", filepath.Join(root, "bids"), "-r", filepath.Join(root, "results"),
		"-p", "sub-001", "-s", "ses-01", "-c", "acq-axial_T2w", "-config", noConfig(t))
	if code != 1 || !strings.Contains(errOut, "missing sagittal dependency") {
		t.Errorf("exit %d\n%s", code, errOut)
	}
	if _, err := os.Stat(filepath.Join(root, "results")); !os.IsNotExist(err) {
		t.Errorf("results folder was created")
	}
}

func TestCheck(t *testing.T) {
	dir := fakeTools(t)
	code, out, errOut := runCLI(t, "check", "-config", noConfig(t))
	if code != 0 || !strings.Contains(out, "All 8 programs found.") {
		t.Errorf("check = %d %q %q", code, out, errOut)
	}

	if err := os.Remove(filepath.Join(dir, qcOpener())); err != nil {
		t.Fatal(err)
	}
	code, _, errOut = runCLI(t, "check", "-config", noConfig(t))
	if code != 1 || !strings.Contains(errOut, "error: required tools not found on PATH: "+qcOpener()) {
		t.Errorf("check without QC opener = %d\n%s", code, errOut)
	}

	t.Setenv("PATH", t.TempDir())
	code, _, errOut = runCLI(t, "check", "-config", noConfig(t))
	if code != 1 || !strings.Contains(errOut, "error: required tools not found on PATH: dcm2niix") {
		t.Errorf("check without tools = %d\n%s", code, errOut)
	}
}

func TestStatusEmpty(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SCI_LEDGER_DSN", "off")
	code, out, errOut := runCLI(t, "status", "-b", filepath.Join(root, "bids"), "-r", filepath.Join(root, "results"), "-config", noConfig(t))
	if code != 0 || !strings.Contains(out, "0 visits") {
		t.Errorf("status = %d %q %q", code, out, errOut)
	}
}

func TestCheckWriteConfig(t *testing.T) {
	fakeTools(t)
	path := filepath.Join(t.TempDir(), "sci", "config.yaml")
	code, out, errOut := runCLI(t, "check", "-write-config", "-config", path)
	if code != 0 || !strings.Contains(out, "Configuration written to "+path) {
		t.Fatalf("check -write-config = %d %q %q", code, out, errOut)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "converter: dcm2niix") {
		t.Errorf("written configuration:\n%s", b)
	}
}

func TestStatusLeavesLedgerAlone(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SCI_LEDGER_DSN", "")
	results := filepath.Join(root, "results")
	code, _, errOut := runCLI(t, "status", "-b", filepath.Join(root, "bids"), "-r", results, "-config", noConfig(t))
	if code != 0 {
		t.Fatalf("status = %d %q", code, errOut)
	}
	if _, err := os.Stat(results); !os.IsNotExist(err) {
		t.Errorf("status created %s", results)
	}
}

func TestExpandMulti(t *testing.T) {
	for _, tc := range []struct {
		in, want []string
	}{
		{[]string{"-c", "T2w", "acq-axial_T2w", "-p", "sub-001"}, []string{"-c", "T2w", "-c", "acq-axial_T2w", "-p", "sub-001"}},
		{[]string{"-p", "sub-001", "-c", "T2w"}, []string{"-p", "sub-001", "-c", "T2w"}},
		{[]string{"-c", "T2w", "-c", "dwi", "T1w"}, []string{"-c", "T2w", "-c", "dwi", "-c", "T1w"}},
		{[]string{"-c"}, []string{"-c"}},
		{[]string{"-c", "T2w", "--", "extra"}, []string{"-c", "T2w", "--", "extra"}},
	} {
		if got := expandMulti(tc.in, "c"); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("expandMulti(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestContrastList(t *testing.T) {
	var l contrastList
	for _, v := range []string{"T2w", "acq-sag_T2w dwi"} {
		if err := l.Set(v); err != nil {
			t.Fatal(err)
		}
	}
	if l.String() != "T2w acq-sag_T2w dwi" {
		t.Errorf("contrasts = %q", l.String())
	}
}
