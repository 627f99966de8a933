package optimize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// errUnsupported marks input the codec cannot transform (vector formats,
// non-image blobs). Such captures are stored as-is.
var errUnsupported = errors.New("optimize: unsupported input")

// Input is one capture blob to optimize.
type Input struct {
	Name string
	Data []byte
}

// Result is the stored form of a capture. Optimized is false when the blob
// passed through untouched.
type Result struct {
	Name      string
	Data      []byte
	Width     int
	Height    int
	Optimized bool
}

// transform decodes, downscales to the dimension cap and re-encodes as lossy
// WebP, falling back to lossless PNG when the WebP encoder rejects the image.
func transform(in Input, maxDim int, quality float32) (Result, error) {
	if looksLikeSVG(in.Data) {
		return Result{}, errUnsupported
	}
	img, _, err := image.Decode(bytes.NewReader(in.Data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", errUnsupported, err)
	}

	img = downscale(img, maxDim)
	b := img.Bounds()

	var buf bytes.Buffer
	ext := ".webp"
	if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
		buf.Reset()
		ext = ".png"
		if err := png.Encode(&buf, img); err != nil {
			return Result{}, fmt.Errorf("optimize: encode: %w", err)
		}
	}

	return Result{
		Name:      renamed(in.Name, ext),
		Data:      buf.Bytes(),
		Width:     b.Dx(),
		Height:    b.Dy(),
		Optimized: true,
	}, nil
}

// passthrough keeps the blob untouched, recovering dimensions when the header
// is readable.
func passthrough(in Input) Result {
	res := Result{Name: in.Name, Data: in.Data}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(in.Data)); err == nil {
		res.Width = cfg.Width
		res.Height = cfg.Height
	}
	return res
}

// downscale caps the longest side at maxDim preserving aspect ratio. Images
// already within the cap are returned unchanged.
func downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if maxDim <= 0 || longest <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(longest)
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func looksLikeSVG(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<svg"))
}

// renamed swaps the filename extension for the encoded format's.
func renamed(name, ext string) string {
	if name == "" {
		return "capture" + ext
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i] + ext
	}
	return name + ext
}
