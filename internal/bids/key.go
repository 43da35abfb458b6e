// Package bids describes where artifacts of a scan visit live on disk.
//
// File names are always formatted from the fields of a Key. A name is never
// derived from another name by replacing parts of it.
package bids

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the type of an artifact produced for one contrast.
type Kind int

const (
	RawImage Kind = iota
	SpinalCordSegmentation
	DiscLabels
)

var kindNames = map[Kind]string{
	RawImage:               "raw_image",
	SpinalCordSegmentation: "spinal_cord_segmentation",
	DiscLabels:             "disc_labels",
}

// Kinds lists every artifact kind in processing order.
var Kinds = []Kind{RawImage, SpinalCordSegmentation, DiscLabels}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// suffix is appended to the stem of a contrast to name the artifact file.
func (k Kind) suffix() string {
	switch k {
	case SpinalCordSegmentation:
		return "_label-SC_seg"
	case DiscLabels:
		return "_labels-disc"
	}
	return ""
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown artifact kind %q", s)
}

var (
	participantRe = regexp.MustCompile(`^sub-[A-Za-z0-9]+$`)
	sessionRe     = regexp.MustCompile(`^ses-[A-Za-z0-9]+$`)
	labelRe       = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// Subject identifies one scan visit, for example sub-001 and ses-01.
type Subject struct {
	Participant string
	Session     string
}

func (s Subject) String() string {
	return s.Participant + "/" + s.Session
}

// Validate checks the identifiers against the BIDS entity rules.
func (s Subject) Validate() error {
	if !participantRe.MatchString(s.Participant) {
		return fmt.Errorf("participant id %q must look like sub-<label>", s.Participant)
	}
	if !sessionRe.MatchString(s.Session) {
		return fmt.Errorf("session id %q must look like ses-<label>", s.Session)
	}
	return nil
}

// Contrast is a BIDS contrast label split into its acquisition entity and
// suffix. The label acq-sag_T2w becomes Contrast{Acq: "sag", Suffix: "T2w"}.
type Contrast struct {
	Acq    string
	Suffix string
}

// ParseContrast splits a label of the form [acq-<label>_]<suffix>.
func ParseContrast(label string) (Contrast, error) {
	var c Contrast
	rest := label
	if strings.HasPrefix(rest, "acq-") {
		i := strings.Index(rest, "_")
		if i < 0 {
			return c, fmt.Errorf("contrast %q has an acq entity but no suffix", label)
		}
		c.Acq = rest[len("acq-"):i]
		rest = rest[i+1:]
		if !labelRe.MatchString(c.Acq) {
			return c, fmt.Errorf("contrast %q has an invalid acq label", label)
		}
	}
	if !labelRe.MatchString(rest) {
		return c, fmt.Errorf("contrast %q has an invalid suffix", label)
	}
	c.Suffix = rest
	return c, nil
}

func (c Contrast) String() string {
	if c.Acq == "" {
		return c.Suffix
	}
	return "acq-" + c.Acq + "_" + c.Suffix
}

// Datatype is the BIDS datatype folder of the contrast.
func (c Contrast) Datatype() string {
	if c.Suffix == "dwi" {
		return "dwi"
	}
	return "anat"
}

// Key addresses one artifact of one contrast of one scan visit.
type Key struct {
	Subject
	Contrast Contrast
	Kind     Kind
}

// NewKey is a short hand for building a Key.
func NewKey(s Subject, c Contrast, k Kind) Key {
	return Key{Subject: s, Contrast: c, Kind: k}
}

// As returns the key of another artifact kind of the same contrast.
func (k Key) As(kind Kind) Key {
	k.Kind = kind
	return k
}

// Stem is <participant>_<session>_<contrast>.
func (k Key) Stem() string {
	return k.Participant + "_" + k.Session + "_" + k.Contrast.String()
}

// FileName is the image file name of the artifact.
func (k Key) FileName() string {
	return k.Stem() + k.Kind.suffix() + ".nii.gz"
}

// SidecarName is the JSON metadata file name of the artifact.
func (k Key) SidecarName() string {
	return k.Stem() + k.Kind.suffix() + ".json"
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Subject, k.Contrast, k.Kind)
}

// ParseFileName is the inverse of Key.FileName for the files of subject.
func ParseFileName(subject Subject, name string) (Key, bool) {
	prefix := subject.Participant + "_" + subject.Session + "_"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".nii.gz") {
		return Key{}, false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".nii.gz")
	kind := RawImage
	for _, k := range []Kind{SpinalCordSegmentation, DiscLabels} {
		if strings.HasSuffix(rest, k.suffix()) {
			kind = k
			rest = strings.TrimSuffix(rest, k.suffix())
			break
		}
	}
	c, err := ParseContrast(rest)
	if err != nil {
		return Key{}, false
	}
	return NewKey(subject, c, kind), true
}
