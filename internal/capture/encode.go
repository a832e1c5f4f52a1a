package capture

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"
	"time"

	"github.com/fpang/vision-weaver/internal/scene"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Encode decodes a raw camera frame (JPEG, PNG or WebP), downscales it so
// that it fits within maxWidth x maxHeight, and re-encodes it as JPEG.
// A non-positive bound disables scaling on that axis.
func Encode(frame []byte, maxWidth, maxHeight int, takenAt time.Time) (*scene.Capture, error) {
	if len(frame) == 0 {
		return nil, scene.Errorf(scene.KindDecode, "capture", "camera delivered an empty frame")
	}

	img, format, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, scene.NewError(scene.KindDecode, "capture", "failed to decode camera frame", err)
	}

	bounds := img.Bounds()
	origWidth, origHeight := bounds.Dx(), bounds.Dy()
	newWidth, newHeight := fitWithin(origWidth, origHeight, maxWidth, maxHeight)

	if newWidth != origWidth || newHeight != origHeight {
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, scene.NewError(scene.KindDecode, "capture", "failed to encode still image", err)
	}

	log.Debug().
		Str("source_format", format).
		Int("orig_width", origWidth).
		Int("orig_height", origHeight).
		Int("width", newWidth).
		Int("height", newHeight).
		Int("output_size", buf.Len()).
		Msg("Camera frame encoded")

	return &scene.Capture{
		Data:     buf.Bytes(),
		MIMEType: scene.MIMETypeJPEG,
		Width:    newWidth,
		Height:   newHeight,
		TakenAt:  takenAt,
	}, nil
}

// fitWithin scales (w, h) down, preserving aspect ratio, until it fits the
// bounds. Images that already fit are returned unchanged; never upscales.
func fitWithin(w, h, maxWidth, maxHeight int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}

	scale := 1.0
	if maxWidth > 0 && w > maxWidth {
		scale = float64(maxWidth) / float64(w)
	}
	if maxHeight > 0 && float64(h)*scale > float64(maxHeight) {
		scale = float64(maxHeight) / float64(h)
	}
	if scale >= 1.0 {
		return w, h
	}

	newW := int(float64(w)*scale + 0.5)
	newH := int(float64(h)*scale + 0.5)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	return newW, newH
}
