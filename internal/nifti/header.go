// Package nifti reads the NIfTI-1 header of an image for display. Voxel data
// is never read.
package nifti

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
	"os"
	"strings"

	kwp "github.com/KyungWonPark/nifti"
	log "github.com/sirupsen/logrus"
)

const headerSize = 348

// Header is a decoded NIfTI-1 header and the byte order it was stored in.
type Header struct {
	kwp.Nifti1Header
	ByteOrder binary.ByteOrder
}

// checkFile makes sure LoadHeader can open path: the file exists and a .gz
// file starts with the gzip magic.
func checkFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("%s is not a file", path)
	}
	if strings.HasSuffix(path, ".gz") {
		magic := make([]byte, 2)
		if _, err := io.ReadFull(f, magic); err != nil || magic[0] != 0x1f || magic[1] != 0x8b {
			return fmt.Errorf("%s is not gzip compressed", path)
		}
	}
	return nil
}

// ReadHeader reads the header of a .nii or .nii.gz file. Headers written
// big endian are swapped into host order.
func ReadHeader(path string) (*Header, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}
	h := &Header{ByteOrder: binary.LittleEndian}
	if err := h.load(path); err != nil {
		return nil, err
	}

	switch {
	case h.SizeofHdr == headerSize:
	case int32(bits.ReverseBytes32(uint32(h.SizeofHdr))) == headerSize:
		if err := h.swap(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: not a nifti-1 header", path)
	}
	magic := string(h.Magic[:3])
	if magic != "n+1" && magic != "ni1" {
		return nil, fmt.Errorf("%s: bad nifti magic %q", path, magic)
	}
	log.WithFields(log.Fields{
		"file":   path,
		"dim":    h.Dim,
		"pixdim": h.Pixdim,
	}).Debug("read nifti header")
	return h, nil
}

// load reads the header with LoadHeader, which panics when the gzip stream
// cannot be opened.
func (h *Header) load(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: cannot read nifti header: %v", path, r)
		}
	}()
	h.LoadHeader(path)
	return nil
}

// swap reinterprets a header that was read little endian as big endian.
func (h *Header) swap() error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &h.Nifti1Header); err != nil {
		return err
	}
	if err := binary.Read(&buf, binary.BigEndian, &h.Nifti1Header); err != nil {
		return err
	}
	h.ByteOrder = binary.BigEndian
	return nil
}

// Dimensions formats the first three dimensions, e.g. 320×320×15.
func (h *Header) Dimensions() string {
	d := [3]int16{1, 1, 1}
	for i := 0; i < 3 && i < int(h.Dim[0]); i++ {
		d[i] = h.Dim[i+1]
	}
	return fmt.Sprintf("%d×%d×%d", d[0], d[1], d[2])
}

// PixelSize formats the voxel size in mm, e.g. 0.50×0.50×3.00.
func (h *Header) PixelSize() string {
	return fmt.Sprintf("%.2f×%.2f×%.2f", h.Pixdim[1], h.Pixdim[2], h.Pixdim[3])
}
