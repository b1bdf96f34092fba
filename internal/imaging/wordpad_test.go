package imaging

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 3), B: 10, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFit(t *testing.T) {
	t.Run("ShrinksLongestSide", func(t *testing.T) {
		out := Fit(gradient(1000, 500), 200, 200)
		require.Equal(t, image.Rect(0, 0, 200, 100), out.Bounds())
	})

	t.Run("TallImage", func(t *testing.T) {
		out := Fit(gradient(300, 1200), 1024, 600)
		require.Equal(t, 150, out.Bounds().Dx())
		require.Equal(t, 600, out.Bounds().Dy())
	})

	t.Run("NeverUpscales", func(t *testing.T) {
		src := gradient(40, 30)
		out := Fit(src, 1024, 1024)
		require.Equal(t, image.Rect(0, 0, 40, 30), out.Bounds())
		require.Equal(t, src.At(5, 5), out.At(5, 5))
	})
}

func TestRotate(t *testing.T) {
	src := gradient(3, 2)

	rotated := Rotate90(src)
	require.Equal(t, image.Rect(0, 0, 2, 3), rotated.Bounds())
	// top-left goes to top-right on a clockwise turn
	require.Equal(t, src.At(0, 0), rotated.At(1, 0))
	require.Equal(t, src.At(0, 1), rotated.At(0, 0))

	back := Rotate270(rotated)
	require.Equal(t, src.Bounds(), back.Bounds())
	require.Equal(t, src.Pix, back.Pix)
}

func TestExpandLineEndings(t *testing.T) {
	header := make([]byte, 54)
	header[0], header[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(header[10:14], 54)
	header[20] = '\n' // inside the info header, must survive

	file := append(header, 1, '\n', 2, 3, '\n')
	out, err := ExpandLineEndings(file)
	require.NoError(t, err)
	require.Len(t, out, len(file))
	require.Equal(t, header, out[:54])
	require.Equal(t, []byte{1, '\r', '\n', 2, 3}, out[54:])

	t.Run("TooShort", func(t *testing.T) {
		_, err := ExpandLineEndings([]byte("BM"))
		require.ErrorIs(t, err, ErrInvalidImage)
	})

	t.Run("OffsetOutOfRange", func(t *testing.T) {
		bad := make([]byte, 20)
		binary.LittleEndian.PutUint32(bad[10:14], 400)
		_, err := ExpandLineEndings(bad)
		require.ErrorIs(t, err, ErrInvalidImage)
	})
}

func TestWordpadChangesPixels(t *testing.T) {
	src := gradient(64, 64)
	out, err := Wordpad(src)
	require.NoError(t, err)
	require.Equal(t, src.Bounds(), out.Bounds())

	// every pixel has a blue channel of 0x0A
	differs := false
	for y := 0; y < 64 && !differs; y++ {
		for x := 0; x < 64; x++ {
			if src.At(x, y) != out.At(x, y) {
				differs = true
				break
			}
		}
	}
	require.True(t, differs)
}

func TestTransform(t *testing.T) {
	input := encodePNG(t, gradient(300, 200))

	t.Run("ProducesJPEGInsideCap", func(t *testing.T) {
		out, err := Transformer{}.Transform(input, core.TransformParams{MaxWidth: 150, MaxHeight: 150})
		require.NoError(t, err)

		img, err := jpeg.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		require.Equal(t, 150, img.Bounds().Dx())
		require.Equal(t, 100, img.Bounds().Dy())
	})

	t.Run("RotationKeepsOrientation", func(t *testing.T) {
		out, err := Transformer{}.Transform(input, core.TransformParams{MaxWidth: 1024, MaxHeight: 1024, Rotate: true})
		require.NoError(t, err)

		img, err := jpeg.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		require.Equal(t, 300, img.Bounds().Dx())
		require.Equal(t, 200, img.Bounds().Dy())
	})

	t.Run("Deterministic", func(t *testing.T) {
		params := core.TransformParams{MaxWidth: 1024, MaxHeight: 1024, Rotate: true}
		first, err := Transformer{}.Transform(input, params)
		require.NoError(t, err)
		second, err := Transformer{}.Transform(input, params)
		require.NoError(t, err)
		require.Equal(t, first, second)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		_, err := Transformer{}.Transform([]byte("not an image"), core.TransformParams{})
		require.ErrorIs(t, err, ErrInvalidImage)
	})
}
