package dicomscan

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/image/draw"
)

// from http://paulbourke.net/dataformats/asciiart/
var asciiRamp = "$@B%8&WM#*oahkbdpqwmZO0QLCJUYXzcvunxrjft/\\|()1{}[]?-_+~<>i!lI;:,\"^`'."

// terminal characters are about 80/30 times higher than wide
const charAspect = 80.0 / 30.0

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// Render scales img to width characters and maps intensities between the
// 2% and 98% quantiles onto the ASCII ramp.
func Render(img image.Image, width int, photometric string) []byte {
	bounds := img.Bounds()
	if width <= 0 || bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil
	}
	height := int(math.Round(float64(width) / charAspect * float64(bounds.Dy()) / float64(bounds.Dx())))
	if height < 1 {
		height = 1
	}
	small := image.NewGray16(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, bounds, draw.Over, nil)

	table := []byte(reverse(asciiRamp))
	if photometric == "MONOCHROME1" {
		table = []byte(asciiRamp)
	}

	values := make([]int64, 0, width*height)
	minVal, maxVal := int64(math.MaxInt64), int64(math.MinInt64)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := int64(color.Gray16Model.Convert(small.At(x, y)).(color.Gray16).Y)
			values = append(values, v)
			minVal = min(minVal, v)
			maxVal = max(maxVal, v)
		}
	}

	var histogram [1024]int64
	bins := len(histogram)
	span := float64(maxVal - minVal)
	if span == 0 {
		span = 1
	}
	for _, v := range values {
		idx := int(math.Round(float64(v-minVal) / span * float64(bins-1)))
		histogram[idx]++
	}
	quantile := func(q float64) int64 {
		target := float64(len(values)) * q
		var s int64
		for i := 0; i < bins; i++ {
			s += histogram[i]
			if float64(s) >= target {
				return minVal + int64(float64(i)/float64(bins)*span)
			}
		}
		return maxVal
	}
	low, high := quantile(0.02), quantile(0.98)
	denom := float64(high - low)
	if denom <= 0 {
		denom = 1
	}

	buf := new(bytes.Buffer)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := values[y*width+x]
			pos := int(float64(v-low) * float64(len(table)-1) / denom)
			pos = max(0, min(len(table)-1, pos))
			buf.WriteByte(table[pos])
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Preview prints the first frame of a DICOM file as ASCII art.
func Preview(w io.Writer, path string, width int) error {
	dataset, err := dicom.ParseFile(path, nil)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	pixelData, err := dataset.FindElementByTag(tag.PixelData)
	if err != nil {
		return fmt.Errorf("%s has no pixel data", path)
	}
	photometric := firstString(dataset, tag.PhotometricInterpretation)
	info := dicom.MustGetPixelDataInfo(pixelData.Value)
	if len(info.Frames) == 0 {
		return fmt.Errorf("%s has no frames", path)
	}
	img, err := info.Frames[0].GetImage()
	if err != nil {
		return err
	}
	_, err = w.Write(Render(img, width, photometric))
	return err
}
