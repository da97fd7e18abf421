/**
 * Image normalization ahead of text recognition
 *
 * Pipeline per screenshot:
 * 1. Decode and measure brightness (dark-mode detection)
 * 2. Linear contrast stretch, with a lift for dark-mode captures
 * 3. Trim near-black border rows from top and bottom
 * 4. 3x3 weighted blur when the capture looks noisy
 * 5. Split tall captures into overlapping vertical slices
 */

package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	apperrors "github.com/adverant/nexus/prospect-worker/internal/errors"
	"github.com/adverant/nexus/prospect-worker/internal/model"
)

const (
	// Brightness thresholds on the 0-255 channel-average scale
	NearBlack = 30
	NearWhite = 225

	darkMeanThreshold     = 100
	darkFractionThreshold = 0.5

	contrastFactor = 1.3
	darkLiftFactor = 1.4
	darkLiftOffset = 20

	borderRowFraction = 0.9
	noiseThreshold    = 0.3

	DefaultMaxSliceHeight = 2000
	DefaultSliceOverlap   = 100
)

// blurKernel is the 1-2-1 weighted 3x3 blur, normalized by its sum (16)
var blurKernel = [9]float64{
	1, 2, 1,
	2, 4, 2,
	1, 2, 1,
}

// Options configures segmentation
type Options struct {
	MaxSliceHeight int
	SliceOverlap   int
}

// Preprocessor turns raw screenshots into recognition-ready images
type Preprocessor struct {
	opts Options
}

// NewPreprocessor creates a preprocessor. Zero or invalid options fall back to defaults.
func NewPreprocessor(opts Options) *Preprocessor {
	if opts.MaxSliceHeight <= 0 {
		opts.MaxSliceHeight = DefaultMaxSliceHeight
	}
	if opts.SliceOverlap < 0 || opts.SliceOverlap >= opts.MaxSliceHeight {
		opts.SliceOverlap = DefaultSliceOverlap
		if opts.SliceOverlap >= opts.MaxSliceHeight {
			opts.SliceOverlap = 0
		}
	}
	return &Preprocessor{opts: opts}
}

// Stats summarizes the brightness of an image
type Stats struct {
	MeanBrightness    float64
	NearBlackFraction float64
	NearWhiteFraction float64
	DarkMode          bool
}

// Noisy reports whether the near-black share outweighs the near-white share
// by more than the noise threshold.
func (s Stats) Noisy() bool {
	return s.NearBlackFraction-s.NearWhiteFraction > noiseThreshold
}

// Normalize decodes raw and returns one or more normalized images.
// raw.Data is never modified.
func (p *Preprocessor) Normalize(raw model.RawImage) ([]model.NormalizedImage, error) {
	if len(raw.Data) == 0 {
		return nil, apperrors.NewPreprocessFailedError(raw.ID, fmt.Errorf("empty image data"))
	}

	decoded, err := imaging.Decode(bytes.NewReader(raw.Data))
	if err != nil {
		return nil, apperrors.NewPreprocessFailedError(raw.ID, fmt.Errorf("failed to decode image: %w", err))
	}

	src := imaging.Clone(decoded)
	if src.Bounds().Dx() == 0 || src.Bounds().Dy() == 0 {
		return nil, apperrors.NewPreprocessFailedError(raw.ID, fmt.Errorf("image has no pixels"))
	}

	stats := Analyze(src)
	img := EnhanceContrast(src, stats.DarkMode)
	img = Autocrop(img)
	if stats.Noisy() {
		img = Denoise(img)
	}

	slices := Segment(img, p.opts.MaxSliceHeight, p.opts.SliceOverlap)
	out := make([]model.NormalizedImage, 0, len(slices))
	for i, s := range slices {
		b := s.Bounds()
		out = append(out, model.NormalizedImage{
			ID:         uuid.New().String(),
			SourceID:   raw.ID,
			SliceIndex: i,
			Width:      b.Dx(),
			Height:     b.Dy(),
			Image:      s,
		})
	}
	return out, nil
}

// Analyze computes brightness statistics over every pixel
func Analyze(img *image.NRGBA) Stats {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return Stats{}
	}

	var sum float64
	var black, white int
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			v := brightness(row[x], row[x+1], row[x+2])
			sum += v
			if v < NearBlack {
				black++
			} else if v > NearWhite {
				white++
			}
		}
	}

	s := Stats{
		MeanBrightness:    sum / float64(total),
		NearBlackFraction: float64(black) / float64(total),
		NearWhiteFraction: float64(white) / float64(total),
	}
	s.DarkMode = s.MeanBrightness < darkMeanThreshold || s.NearBlackFraction > darkFractionThreshold
	return s
}

func brightness(r, g, b uint8) float64 {
	return (float64(r) + float64(g) + float64(b)) / 3
}

// EnhanceContrast stretches every channel around 128. Dark-mode images are
// lifted first. Alpha is preserved.
func EnhanceContrast(img image.Image, darkMode bool) *image.NRGBA {
	var lut [256]uint8
	for i := range lut {
		v := float64(i)
		if darkMode {
			v = v*darkLiftFactor + darkLiftOffset
		}
		v = (v-128)*contrastFactor + 128
		lut[i] = clamp(v)
	}

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	})
}

func clamp(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// Autocrop trims contiguous near-black border rows from the top and bottom.
// When every row is a border row the image is returned unchanged.
func Autocrop(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	top, bottom := 0, b.Dy()

	for top < bottom && isBorderRow(img, top) {
		top++
	}
	for bottom > top && isBorderRow(img, bottom-1) {
		bottom--
	}

	if bottom-top <= 0 || b.Dx() <= 0 {
		return img
	}
	if top == 0 && bottom == b.Dy() {
		return img
	}
	return imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y+top, b.Max.X, b.Min.Y+bottom))
}

func isBorderRow(img *image.NRGBA, y int) bool {
	w := img.Bounds().Dx()
	if w == 0 {
		return false
	}
	row := img.Pix[y*img.Stride : y*img.Stride+w*4]
	dark := 0
	for x := 0; x < len(row); x += 4 {
		if brightness(row[x], row[x+1], row[x+2]) < NearBlack {
			dark++
		}
	}
	return float64(dark) >= borderRowFraction*float64(w)
}

// Denoise applies the 3x3 weighted blur
func Denoise(img image.Image) *image.NRGBA {
	return imaging.Convolve3x3(img, blurKernel, &imaging.ConvolveOptions{Normalize: true})
}

// Bounds is a half-open vertical range [Top, Bottom)
type Bounds struct {
	Top    int
	Bottom int
}

// SliceBounds computes the vertical ranges for an image of the given height.
// Heights up to maxHeight yield one range. Taller images yield ceil(height/maxHeight)
// ranges; every range after the first starts overlap pixels before its nominal cut.
func SliceBounds(height, maxHeight, overlap int) []Bounds {
	if height <= maxHeight || maxHeight <= 0 {
		return []Bounds{{Top: 0, Bottom: height}}
	}

	count := (height + maxHeight - 1) / maxHeight
	out := make([]Bounds, 0, count)
	for i := 0; i < count; i++ {
		top := i * maxHeight
		if i > 0 {
			top -= overlap
			if top < 0 {
				top = 0
			}
		}
		bottom := (i + 1) * maxHeight
		if bottom > height {
			bottom = height
		}
		out = append(out, Bounds{Top: top, Bottom: bottom})
	}
	return out
}

// Segment splits img into vertical slices per SliceBounds
func Segment(img *image.NRGBA, maxHeight, overlap int) []*image.NRGBA {
	b := img.Bounds()
	ranges := SliceBounds(b.Dy(), maxHeight, overlap)
	if len(ranges) == 1 {
		return []*image.NRGBA{img}
	}

	out := make([]*image.NRGBA, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y+r.Top, b.Max.X, b.Min.Y+r.Bottom)))
	}
	return out
}
