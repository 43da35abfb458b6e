package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	got := FileName("dicom_to_nifti", "sub-001", "ses-01", ts)
	want := "dicom_to_nifti_sub-001_ses-01_20240305_140709.log"
	if got != want {
		t.Errorf("FileName() = %v, want %v", got, want)
	}
}

func TestOpenWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	run, err := Open(t.TempDir(), "run.log", &console, "info")
	if err != nil {
		t.Fatal(err)
	}
	run.WithField("participant", "sub-001").Info("starting")
	run.Debug("hidden")
	if err := run.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(run.Path)
	if err != nil {
		t.Fatal(err)
	}
	for name, out := range map[string]string{"console": console.String(), "file": string(b)} {
		if !strings.Contains(out, "starting") || !strings.Contains(out, "participant=sub-001") {
			t.Errorf("%s output %q misses the message", name, out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("%s output contains a debug message", name)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud"); err == nil {
		t.Errorf("New() with unknown level should fail")
	}
}
