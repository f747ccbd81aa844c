package datasets

import (
	"image"
	"image/color"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// FrameRef locates the frame behind one row of a Split. Number is -1 for
// training frames whose name has no numeric stem.
type FrameRef struct {
	Clip   string
	Number int
	Path   string
}

// decodeFrame reads the image at path. TIFF files go through x/image/tiff,
// anything else through the registered image decoders (png, bmp).
func decodeFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		img, err := tiff.Decode(f)
		if err != nil {
			return nil, errors.Wrap(err, "tiff")
		}
		return img, nil
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// resize scales img to width x height with a box filter. A zero dimension
// keeps the aspect ratio; both zero returns img unchanged.
func resize(img image.Image, width, height int) image.Image {
	if width <= 0 && height <= 0 {
		return img
	}
	return imaging.Resize(img, max(width, 0), max(height, 0), imaging.Box)
}

// flatten returns the raw sample values of img in row-major order divided
// by divisor. 8 and 16 bit gray images keep their raw sample values; other
// colour models are converted to 8 bit gray first.
func flatten(img image.Image, divisor float32) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, 0, w*h)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			i := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[i : i+w]
			for _, p := range row {
				out = append(out, float32(p)/divisor)
			}
		}
	case *image.Gray16:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out = append(out, float32(src.Gray16At(x, y).Y)/divisor)
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
				out = append(out, float32(g.Y)/divisor)
			}
		}
	}
	return out
}
