package common

// Image re-encoding for clipboard copies.
//
// The clipboard only accepts PNG, so every fetched image is decoded and
// written again as PNG regardless of its original format. This is lossy in
// the sense that JPEG artifacts get baked in and animated GIFs keep only
// their first frame. SVG cannot be rasterized here and is reported as
// unsupported.

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodedImage is a decoded picture plus the format name reported by the decoder.
type DecodedImage struct {
	Image  image.Image
	Format string
	Width  int
	Height int
}

// DecodeImage decodes any registered raster format.
func DecodeImage(data []byte) (*DecodedImage, error) {
	if len(data) == 0 {
		return nil, New(KindUnsupported, "image.decode", "empty image payload")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Wrap(KindUnsupported, "image.decode", "cannot decode image", err)
	}

	bounds := img.Bounds()
	return &DecodedImage{
		Image:  img,
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// EncodePNG redraws data onto an RGBA canvas of its natural size and
// encodes the canvas as PNG.
func EncodePNG(data []byte) ([]byte, error) {
	decoded, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, decoded.Width, decoded.Height))
	draw.Draw(canvas, canvas.Bounds(), decoded.Image, decoded.Image.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, Wrap(KindPlatform, "image.encode", fmt.Sprintf("encode %s as png", decoded.Format), err)
	}
	return buf.Bytes(), nil
}
