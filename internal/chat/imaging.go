package chat

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"storefront/internal/models"
)

// ImageOptions bounds the shrink loop. Each extra attempt cuts the
// dimension to 80% and the quality by 10, until the result fits
// TargetBytes, MaxAttempts is reached or MinDimension is hit. Images
// declaring more than MaxPixels are refused before decoding.
type ImageOptions struct {
	MaxPixels    int
	MaxDimension int
	Quality      int
	TargetBytes  int
	MaxAttempts  int
	MinDimension int
}

const minQuality = 40

func (o ImageOptions) withDefaults() ImageOptions {
	if o.MaxPixels <= 0 {
		o.MaxPixels = 50_000_000
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = 1280
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 80
	}
	if o.TargetBytes <= 0 {
		o.TargetBytes = 1 << 20
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.MinDimension <= 0 {
		o.MinDimension = 320
	}
	if o.MinDimension > o.MaxDimension {
		o.MinDimension = o.MaxDimension
	}
	return o
}

// CompressImage decodes data and re-encodes it as JPEG, no side larger than
// MaxDimension. Transparent areas become white.
func CompressImage(data []byte, opts ImageOptions) ([]byte, error) {
	opts = opts.withDefaults()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", models.ErrUnsupportedFile, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(opts.MaxPixels) {
		return nil, fmt.Errorf("%w: image is %dx%d, limit %d pixels", models.ErrUnsupportedFile, cfg.Width, cfg.Height, opts.MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", models.ErrUnsupportedFile, err)
	}

	dim, quality := opts.MaxDimension, opts.Quality
	var out []byte
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		out, err = encodeJPEG(fit(src, dim), quality)
		if err != nil {
			return nil, err
		}
		if len(out) <= opts.TargetBytes || dim == opts.MinDimension {
			break
		}
		dim = max(dim*4/5, opts.MinDimension)
		quality = max(quality-10, minQuality)
	}
	return out, nil
}

// fit scales src down so neither side exceeds limit, onto a white canvas.
func fit(src image.Image, limit int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > limit || h > limit {
		if w >= h {
			h = max(h*limit/w, 1)
			w = limit
		} else {
			w = max(w*limit/h, 1)
			h = limit
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
