package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFRendererOrdersPages(t *testing.T) {
	runner := &fakeRunner{}
	runner.onRun = func(args []string) {
		prefix := args[len(args)-1]
		// pdftoppm zero-pads page numbers once there are ten or more pages.
		for _, n := range []int{10, 2, 1} {
			name := prefix + "-" + pad(n) + ".png"
			require.NoError(t, os.WriteFile(name, []byte("page"+strconv.Itoa(n)), 0o644))
		}
	}
	r := NewPDFRenderer(RendererConfig{DPI: 150, MaxPages: 10, WorkDir: t.TempDir()}, runner)
	r.pageCounter = func(string) (int, error) { return 12, nil }

	pages, err := r.Render(context.Background(), "/in/doc.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{pages[0].Number, pages[1].Number, pages[2].Number})
	assert.Equal(t, []byte("page10"), pages[2].Data)

	args := runner.calls[0]
	assert.Equal(t, []string{"pdftoppm", "-r", "150", "-png", "-f", "1", "-l", "10", "/in/doc.pdf"}, args[:9])
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func TestPDFRendererErrors(t *testing.T) {
	r := NewPDFRenderer(RendererConfig{WorkDir: t.TempDir()}, &fakeRunner{err: errors.New("exit status 99")})
	r.pageCounter = func(string) (int, error) { return 1, nil }
	_, err := r.Render(context.Background(), "x.pdf")
	assert.ErrorContains(t, err, "pdftoppm")

	r.pageCounter = func(string) (int, error) { return 0, errors.New("corrupt xref") }
	_, err = r.Render(context.Background(), "x.pdf")
	assert.ErrorContains(t, err, "count pages")
}

func TestEnhancerGrayscalesAndUpscales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			v := uint8(100 + x)
			src.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var in bytes.Buffer
	require.NoError(t, png.Encode(&in, src))

	out, err := (&Enhancer{MinWidth: 80, Clip: 0}).Process(in.Bytes())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	gray, ok := img.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, 80, gray.Bounds().Dx())
	assert.Equal(t, 40, gray.Bounds().Dy())
	// contrast stretched to the full range
	assert.Less(t, gray.GrayAt(0, 10).Y, uint8(20))
	assert.Greater(t, gray.GrayAt(79, 10).Y, uint8(235))
}

func TestEnhancerRejectsGarbage(t *testing.T) {
	_, err := NewEnhancer().Process([]byte("not an image"))
	assert.Error(t, err)
}
