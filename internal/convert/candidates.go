package convert

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mkmik/argsort"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/nifti"
)

// Candidate is one converted image the operator can choose from.
type Candidate struct {
	FileName   string
	Path       string
	Series     int
	Dimensions string
	PixelSize  string
}

// seriesNumber returns the number after the last underscore of a converter
// output name like t2_tse_sag_5.nii.gz.
func seriesNumber(name string) (int, bool) {
	stem := strings.TrimSuffix(name, ".nii.gz")
	i := strings.LastIndex(stem, "_")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(stem[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ListCandidates returns the .nii.gz files of dir ordered by series number.
// Names without a series number come last.
func ListCandidates(dir string) ([]Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var found []Candidate
	var order []int
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".nii.gz") {
			continue
		}
		c := Candidate{FileName: e.Name(), Path: filepath.Join(dir, e.Name()), Dimensions: "?", PixelSize: "?"}
		n, ok := seriesNumber(e.Name())
		if !ok {
			n = math.MaxInt
		}
		c.Series = n
		if h, err := nifti.ReadHeader(c.Path); err != nil {
			log.WithError(err).Warnf("could not read the header of %s", e.Name())
		} else {
			c.Dimensions = h.Dimensions()
			c.PixelSize = h.PixelSize()
		}
		found = append(found, c)
		order = append(order, n)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no NIfTI files found in %s", dir)
	}
	idx := argsort.SortSlice(order, func(i, j int) bool {
		if order[i] != order[j] {
			return order[i] < order[j]
		}
		return found[i].FileName < found[j].FileName
	})
	sorted := make([]Candidate, len(found))
	for i, j := range idx {
		sorted[i] = found[j]
	}
	return sorted, nil
}

// WriteCandidates prints the numbered candidate table the operator picks
// rows from.
func WriteCandidates(w io.Writer, candidates []Candidate) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "File Name", "Dimensions", "Pixel Size [mm]"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, c := range candidates {
		table.Append([]string{strconv.Itoa(i), c.FileName, c.Dimensions, c.PixelSize})
	}
	table.Render()
}

// checkDWI requires the b-value and b-vector files next to a DWI image.
func checkDWI(image string) error {
	base := strings.TrimSuffix(image, ".nii.gz")
	for _, ext := range []string{".bval", ".bvec"} {
		if _, err := os.Stat(base + ext); err != nil {
			return fmt.Errorf("bval or bvec file is missing for the provided DWI image, please try another DWI image")
		}
	}
	return nil
}
