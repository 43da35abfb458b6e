// Package dicomscan inventories a folder of DICOM files before conversion so
// the operator sees which series the converter will find.
package dicomscan

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Series summarizes the files of one SeriesInstanceUID.
type Series struct {
	SeriesInstanceUID string
	StudyInstanceUID  string
	SeriesNumber      int
	SeriesDescription string
	Modality          string
	PatientID         string
	NumImages         int
	// Classes are the types from Classify for the first file, e.g. [T2 sagittal].
	Classes []string
	// Path is the first file of the series.
	Path string
}

// Inventory is the result of a scan.
type Inventory struct {
	Root     string
	Series   []Series
	NonDICOM int
}

// NumImages is the number of DICOM files found.
func (inv *Inventory) NumImages() int {
	n := 0
	for _, s := range inv.Series {
		n += s.NumImages
	}
	return n
}

func firstString(dataset dicom.Dataset, t tag.Tag) string {
	el, err := dataset.FindElementByTag(t)
	if err != nil {
		return ""
	}
	v := dicom.MustGetStrings(el.Value)
	if len(v) == 0 {
		return ""
	}
	return strings.TrimSpace(v[0])
}

// Scan walks root and groups every readable DICOM file by series. Zip files
// and files that do not parse are counted as non-DICOM.
func Scan(root string) (*Inventory, error) {
	inv := &Inventory{Root: root}
	bySeries := map[string]*Series{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(d.Name()) == ".zip" {
			inv.NonDICOM++
			return nil
		}
		dataset, err := dicom.ParseFile(path, nil)
		if err != nil && err.Error() != "unexpected EOF" {
			inv.NonDICOM++
			return nil
		}
		uid := firstString(dataset, tag.SeriesInstanceUID)
		if uid == "" {
			inv.NonDICOM++
			return nil
		}
		s, ok := bySeries[uid]
		if !ok {
			s = &Series{
				SeriesInstanceUID: uid,
				StudyInstanceUID:  firstString(dataset, tag.StudyInstanceUID),
				SeriesDescription: firstString(dataset, tag.SeriesDescription),
				Modality:          firstString(dataset, tag.Modality),
				PatientID:         firstString(dataset, tag.PatientID),
				Classes:           Classify(dataset),
				Path:              path,
			}
			if n, err := strconv.Atoi(firstString(dataset, tag.SeriesNumber)); err == nil {
				s.SeriesNumber = n
			}
			bySeries[uid] = s
		}
		s.NumImages++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	for _, s := range bySeries {
		inv.Series = append(inv.Series, *s)
	}
	sort.Slice(inv.Series, func(i, j int) bool {
		if inv.Series[i].SeriesNumber != inv.Series[j].SeriesNumber {
			return inv.Series[i].SeriesNumber < inv.Series[j].SeriesNumber
		}
		return inv.Series[i].SeriesDescription < inv.Series[j].SeriesDescription
	})
	return inv, nil
}

// Summary is a one line description, e.g. "Found 3 series with 1,024 images".
func (inv *Inventory) Summary() string {
	p := message.NewPrinter(language.English)
	s := p.Sprintf("Found %d series with %d images in %s", len(inv.Series), inv.NumImages(), inv.Root)
	if inv.NonDICOM > 0 {
		s += p.Sprintf(" (%d non-DICOM files ignored)", inv.NonDICOM)
	}
	return s
}

// WriteTable prints the series as a table.
func (inv *Inventory) WriteTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Series", "Description", "Class", "Modality", "Images", "Patient"})
	table.SetAutoFormatHeaders(false)
	for _, s := range inv.Series {
		table.Append([]string{fmt.Sprintf("%03d", s.SeriesNumber), s.SeriesDescription, strings.Join(s.Classes, " "), s.Modality, strconv.Itoa(s.NumImages), s.PatientID})
	}
	table.Render()
}
