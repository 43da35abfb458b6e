package bids

import (
	"path/filepath"
	"strings"
)

// Layout holds the two roots all other paths are derived from.
//
//	<bids>/<sub>/<ses>/<datatype>/                          raw images
//	<bids>/derivatives/labels/<sub>/<ses>/<datatype>/       verified artifacts
//	<results>/data_processed/<sub>/<ses>/<datatype>/        working copies
//	<results>/qc/                                           QC report
type Layout struct {
	BIDS    string
	Results string
}

// SessionDir is the raw BIDS folder of a visit.
func (l Layout) SessionDir(s Subject) string {
	return filepath.Join(l.BIDS, s.Participant, s.Session)
}

// Raw is the converted image of a contrast in the BIDS tree.
func (l Layout) Raw(k Key) string {
	k = k.As(RawImage)
	return filepath.Join(l.SessionDir(k.Subject), k.Contrast.Datatype(), k.FileName())
}

// VerifiedRoot is the root of the human-verified store.
func (l Layout) VerifiedRoot() string {
	return filepath.Join(l.BIDS, "derivatives", "labels")
}

// Verified is the path of the verified copy of an artifact.
func (l Layout) Verified(k Key) string {
	return filepath.Join(l.VerifiedRoot(), k.Participant, k.Session, k.Contrast.Datatype(), k.FileName())
}

// VerifiedName is the path of the verified copy relative to VerifiedRoot,
// always with forward slashes.
func (l Layout) VerifiedName(k Key) string {
	return strings.Join([]string{k.Participant, k.Session, k.Contrast.Datatype(), k.FileName()}, "/")
}

// WorkingDir is the folder the toolbox writes into for a visit and datatype.
func (l Layout) WorkingDir(s Subject, datatype string) string {
	return filepath.Join(l.Results, "data_processed", s.Participant, s.Session, datatype)
}

// Working is the path of the working copy of an artifact.
func (l Layout) Working(k Key) string {
	return filepath.Join(l.WorkingDir(k.Subject, k.Contrast.Datatype()), k.FileName())
}

// QCDir is the root of the QC report tree.
func (l Layout) QCDir() string {
	return filepath.Join(l.Results, "qc")
}

// LogDir holds the run logs of the processing stage.
func (l Layout) LogDir() string {
	return filepath.Join(l.Results, "logs")
}

// Participants is the participant registry of the BIDS tree.
func (l Layout) Participants() string {
	return filepath.Join(l.BIDS, "participants.tsv")
}

// Sidecar returns the JSON sidecar path belonging to an image path.
func Sidecar(image string) string {
	switch {
	case strings.HasSuffix(image, ".nii.gz"):
		return strings.TrimSuffix(image, ".nii.gz") + ".json"
	case strings.HasSuffix(image, ".nii"):
		return strings.TrimSuffix(image, ".nii") + ".json"
	}
	return image + ".json"
}
