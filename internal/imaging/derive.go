// Package imaging derives width/height constrained renditions of a stored
// master image. Aspect ratio is always preserved: a box is covered and
// center-cropped, a single dimension scales the other one.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dmitrijs2005/keycatalog/internal/common"
)

// Format is the encoding of a master and of its renditions. BMP and TIFF
// decoders are registered by the imaging package.
type Format = imaging.Format

// Derive returns master re-sized to the requested box. A zero dimension is
// not given; with neither given the master is returned unchanged and only its
// header is read.
func Derive(master []byte, width, height int) ([]byte, Format, error) {
	if width < 0 || height < 0 {
		return nil, 0, fmt.Errorf("%w: negative dimensions %dx%d", common.ErrorValidation, width, height)
	}

	format, err := Sniff(master)
	if err != nil {
		return nil, 0, err
	}
	if width == 0 && height == 0 {
		return master, format, nil
	}

	src, _, err := image.Decode(bytes.NewReader(master))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", common.ErrDecodeFailed, err)
	}
	dst := resize(src, width, height)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, format); err != nil {
		return nil, 0, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), format, nil
}

// TargetSize is the size Derive produces for a source of sw x sh.
func TargetSize(sw, sh, width, height int) (int, int) {
	switch {
	case width > 0 && height > 0:
		return width, height
	case width > 0:
		return width, atLeastOne(math.Round(float64(width) * float64(sh) / float64(sw)))
	case height > 0:
		return atLeastOne(math.Round(float64(height) * float64(sw) / float64(sh))), height
	default:
		return sw, sh
	}
}

func resize(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	tw, th := TargetSize(sw, sh, width, height)

	if width > 0 && height > 0 {
		// Scale the side that leaves the other one overflowing the box, then
		// crop the overflow evenly.
		if float64(tw)/float64(th) < float64(sw)/float64(sh) {
			scaled := imaging.Resize(src, 0, th, imaging.Lanczos)
			return imaging.CropCenter(scaled, tw, th)
		}
		scaled := imaging.Resize(src, tw, 0, imaging.Lanczos)
		return imaging.CropCenter(scaled, tw, th)
	}
	return imaging.Resize(src, tw, th, imaging.Lanczos)
}

func atLeastOne(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}

// Sniff reports the format of an encoded image without decoding its pixels.
func Sniff(data []byte) (Format, error) {
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrDecodeFailed, err)
	}
	format, err := imaging.FormatFromExtension(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrDecodeFailed, err)
	}
	return format, nil
}

// Extension is the file extension artifacts of format are stored under.
func Extension(format Format) string {
	if format == imaging.JPEG {
		return "jpg"
	}
	return strings.ToLower(format.String())
}
