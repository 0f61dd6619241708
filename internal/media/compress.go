package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// reduction is one step of the quality/width ladder. Quality drops first
// with the width untouched, then the image shrinks in two further steps at
// the quality floor.
type reduction struct {
	quality    int
	widthScale float64
}

var reductionSteps = []reduction{
	{quality: 85, widthScale: 1},
	{quality: 70, widthScale: 1},
	{quality: 55, widthScale: 1},
	{quality: 55, widthScale: 0.75},
	{quality: 55, widthScale: 0.5},
}

// compressImage re-encodes the image at path as JPEG, walking the
// reduction ladder until the output fits the photo limit. If no step gets
// under the limit the smallest attempt is still returned; the caller sends
// the best approximation rather than failing the slot.
func (r *Resolver) compressImage(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open image: %w", err)
	}
	src, _, err := image.Decode(file)
	closeErr := file.Close()
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	if closeErr != nil {
		return "", 0, closeErr
	}

	var best []byte
	for _, step := range reductionSteps {
		encoded, err := encodeJPEG(src, step)
		if err != nil {
			continue
		}
		if best == nil || len(encoded) < len(best) {
			best = encoded
		}
		if int64(len(encoded)) <= r.photoLimit {
			break
		}
	}
	if best == nil {
		return "", 0, fmt.Errorf("%w: no encode step produced output", ErrNotAnImage)
	}
	out, err := r.writeScratch(best)
	if err != nil {
		return "", 0, err
	}
	return out, int64(len(best)), nil
}

func encodeJPEG(src image.Image, step reduction) ([]byte, error) {
	img := src
	if step.widthScale < 1 {
		bounds := src.Bounds()
		width := int(float64(bounds.Dx()) * step.widthScale)
		height := int(float64(bounds.Dy()) * step.widthScale)
		if width < 1 || height < 1 {
			return nil, fmt.Errorf("image too small to scale")
		}
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, bounds, draw.Over, nil)
		img = scaled
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: step.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Resolver) writeScratch(data []byte) (string, error) {
	if err := os.MkdirAll(r.scratchDir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	path := filepath.Join(r.scratchDir, uuid.NewString()+".jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return path, nil
}
