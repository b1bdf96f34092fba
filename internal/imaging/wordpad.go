// Package imaging implements the "opened and saved in WordPad" transform.
//
// WordPad, when it opens a binary file as text and saves it again, rewrites
// every bare LF byte as CRLF. Applied to the pixel payload of a BMP this
// shifts every following byte, which skews colour channels and rows in the
// characteristic diagonal smear.
package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

const (
	// DefaultJPEGQuality is used when Transformer.JPEGQuality is unset.
	DefaultJPEGQuality = 90

	bmpHeaderSize      = 14
	bmpPixelOffsetAt   = 10
	bmpPixelOffsetSize = 4
)

// ErrInvalidImage is returned for input that cannot be decoded.
var ErrInvalidImage = errors.New("invalid image")

// Transformer applies the wordpad transform and encodes the result as JPEG.
// The zero value is ready to use.
type Transformer struct {
	JPEGQuality int
}

// Transform decodes data, fits it inside the size cap, applies the wordpad
// effect (optionally on a rotated copy) and returns JPEG bytes. The output
// depends only on data and params.
func (t Transformer) Transform(data []byte, params core.TransformParams) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	img := Fit(src, params.MaxWidth, params.MaxHeight)
	if params.Rotate {
		img = Rotate90(img)
	}

	glitched, err := Wordpad(img)
	if err != nil {
		return nil, err
	}

	if params.Rotate {
		glitched = Rotate270(glitched)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, glitched, &jpeg.Options{Quality: t.quality()}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

func (t Transformer) quality() int {
	q := t.JPEGQuality
	if q <= 0 {
		return DefaultJPEGQuality
	}
	if q > 100 {
		return 100
	}
	return q
}

// Fit scales img down to fit inside maxWidth x maxHeight, keeping the aspect
// ratio. Images already inside the box, and non-positive bounds, are copied
// unscaled.
func Fit(img image.Image, maxWidth, maxHeight int) *image.RGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	scale := 1.0
	if maxWidth > 0 && width > maxWidth {
		scale = float64(maxWidth) / float64(width)
	}
	if maxHeight > 0 && height > maxHeight {
		scale = min(scale, float64(maxHeight)/float64(height))
	}

	newW := max(int(float64(width)*scale), 1)
	newH := max(int(float64(height)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	if scale == 1 {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

// Rotate90 rotates img a quarter turn clockwise.
func Rotate90(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

// Rotate270 rotates img a quarter turn counter-clockwise, undoing Rotate90.
func Rotate270(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(y, w-1-x, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

// Wordpad round-trips img through a BMP whose pixel payload had its line
// endings rewritten.
func Wordpad(img image.Image) (image.Image, error) {
	var encoded bytes.Buffer
	if err := bmp.Encode(&encoded, opaque(img)); err != nil {
		return nil, fmt.Errorf("encode bmp: %w", err)
	}

	mangled, err := ExpandLineEndings(encoded.Bytes())
	if err != nil {
		return nil, err
	}

	out, err := bmp.Decode(bytes.NewReader(mangled))
	if err != nil {
		return nil, fmt.Errorf("decode mangled bmp: %w", err)
	}
	return out, nil
}

// ExpandLineEndings rewrites every LF in the pixel payload of a BMP file as
// CRLF and truncates the result back to the original length, so the headers
// stay valid. The header bytes are left untouched.
func ExpandLineEndings(file []byte) ([]byte, error) {
	if len(file) < bmpHeaderSize {
		return nil, fmt.Errorf("%w: bmp shorter than its header", ErrInvalidImage)
	}
	offset := int(binary.LittleEndian.Uint32(file[bmpPixelOffsetAt : bmpPixelOffsetAt+bmpPixelOffsetSize]))
	if offset < bmpHeaderSize || offset > len(file) {
		return nil, fmt.Errorf("%w: bmp pixel offset %d out of range", ErrInvalidImage, offset)
	}

	out := make([]byte, 0, len(file)+len(file)/64)
	out = append(out, file[:offset]...)
	for _, b := range file[offset:] {
		if b == '\n' {
			out = append(out, '\r')
		}
		out = append(out, b)
		if len(out) >= len(file) {
			break
		}
	}
	return out[:len(file)], nil
}

// opaque flattens img onto an opaque RGBA so the BMP encoder writes 24-bit
// pixels.
func opaque(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}
